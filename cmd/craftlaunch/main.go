// cmd/craftlaunch/main.go
//
// Entry point for the launcher.
//
// Flow:
// 1. Resolve the game root and make sure its skeleton exists
// 2. With --list, print installed versions and exit
// 3. With --headless, launch straight away and stream output to stdout
// 4. Otherwise open the TUI

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/kingrea/craftlaunch/internal/config"
	"github.com/kingrea/craftlaunch/internal/launcher"
	"github.com/kingrea/craftlaunch/internal/logging"
	"github.com/kingrea/craftlaunch/internal/manifest"
	"github.com/kingrea/craftlaunch/internal/tui"
)

type options struct {
	root     string
	version  string
	username string
	headless bool
	list     bool
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var opts options
	flagSet := pflag.NewFlagSet("craftlaunch", pflag.ContinueOnError)
	flagSet.StringVar(&opts.root, "root", "", "game root directory (default $"+config.RootEnv+" or "+config.DefaultRoot+")")
	flagSet.StringVarP(&opts.version, "version", "v", "", "version id to launch (default from "+config.FileName+")")
	flagSet.StringVarP(&opts.username, "username", "u", "", "player name for --headless")
	flagSet.BoolVar(&opts.headless, "headless", false, "launch without the TUI and stream output to stdout")
	flagSet.BoolVar(&opts.list, "list", false, "list installed versions and exit")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	root := config.ResolveRoot(opts.root)
	if err := config.InitRoot(root); err != nil {
		return fmt.Errorf("initializing %s: %w", root, err)
	}
	cfg, err := config.Load(root)
	if err != nil {
		return err
	}

	if opts.list {
		return listVersions(cfg)
	}

	logger, err := logging.New(cfg.LogsDir())
	if err != nil {
		return err
	}
	defer logger.Close()

	versionID := opts.version
	if versionID == "" {
		versionID = cfg.DefaultVersion()
	}

	if opts.headless {
		return runHeadless(cfg, logger, versionID, opts.username)
	}
	return runTUI(cfg, logger, opts)
}

func listVersions(cfg *config.Config) error {
	ids, err := manifest.ListVersions(cfg.VersionsDir())
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Printf("No versions installed under %s\n", cfg.VersionsDir())
		return nil
	}
	for _, id := range ids {
		marker := " "
		if id == cfg.DefaultVersion() {
			marker = "*"
		}
		fmt.Printf("%s %s\n", marker, id)
	}
	return nil
}

// runHeadless launches versionID and blocks until the game exits. SIGINT
// and SIGTERM stop the game. A failed launch or a non-zero game exit is
// returned as an error naming the log file.
func runHeadless(cfg *config.Config, logger *logging.Logger, versionID, username string) error {
	if username == "" {
		return errors.New("--username is required with --headless")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sink := launcher.NewSerialSink(launcher.Tee(func(line string) { fmt.Println(line) }, logger.Sink()))
	defer sink.Close()

	l := launcher.New(cfg, versionID, launcher.WithSink(sink.Log))
	handle, err := l.Launch(ctx, username)
	if err != nil {
		return fmt.Errorf("%w (see %s)", err, logger.Path())
	}
	if err := cfg.SetDefaultVersion(versionID); err != nil {
		sink.Log(fmt.Sprintf("[Warn] Could not remember version %s: %v", versionID, err))
	}
	_ = handle.Wait()
	if ctx.Err() != nil {
		return nil
	}
	if code := handle.ExitCode(); code != 0 {
		return fmt.Errorf("game exited with code %d (see %s)", code, logger.Path())
	}
	return nil
}

func runTUI(cfg *config.Config, logger *logging.Logger, opts options) error {
	if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("no terminal attached; use --headless --username <name>")
	}
	if opts.version != "" {
		if err := cfg.SetDefaultVersion(opts.version); err != nil {
			return err
		}
	}
	app, err := tui.NewApp(cfg, tui.WithFileSink(logger.Sink()), tui.WithUsername(opts.username))
	if err != nil {
		return err
	}
	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running TUI: %w", err)
	}
	return nil
}
