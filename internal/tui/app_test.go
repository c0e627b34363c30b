package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/kingrea/craftlaunch/internal/config"
	"github.com/kingrea/craftlaunch/internal/launcher"
	"github.com/kingrea/craftlaunch/internal/supervisor"
)

const helperEnv = "CRAFTLAUNCH_TUI_HELPER"

// TestMain lets the test binary stand in for a running game.
func TestMain(m *testing.M) {
	switch os.Getenv(helperEnv) {
	case "":
		os.Exit(m.Run())
	case "sleep":
		fmt.Println("ready")
		time.Sleep(time.Minute)
		os.Exit(0)
	default:
		os.Exit(2)
	}
}

type launchCall struct {
	version  string
	username string
}

type stubLauncher struct {
	calls []launchCall
	err   error
	lines []string
}

func (s *stubLauncher) launch(ctx context.Context, versionID, username string, sink func(string)) (*supervisor.Handle, error) {
	s.calls = append(s.calls, launchCall{version: versionID, username: username})
	for _, line := range s.lines {
		sink(line)
	}
	return nil, s.err
}

func TestNewAppListsInstalledVersions(t *testing.T) {
	cfg := newTestConfig(t, "1.20.4", "1.21", "1.19.2")
	app := newTestApp(t, cfg, &stubLauncher{}, &supervisor.Guard{})
	if got := len(app.versions.Items()); got != 3 {
		t.Fatalf("expected 3 versions, got %d", got)
	}
	if got := app.selectedVersion(); got != "1.21" {
		t.Fatalf("default version should be preselected, got %s", got)
	}
}

func TestNoVersionsFallsBackToDefault(t *testing.T) {
	cfg := newTestConfig(t)
	app := newTestApp(t, cfg, &stubLauncher{}, &supervisor.Guard{})
	if got := app.selectedVersion(); got != cfg.DefaultVersion() {
		t.Fatalf("expected default version %s, got %s", cfg.DefaultVersion(), got)
	}
	if !strings.Contains(app.statusMsg, "No versions installed") {
		t.Fatalf("unexpected status %q", app.statusMsg)
	}
}

func TestLaunchRequiresUsername(t *testing.T) {
	stub := &stubLauncher{}
	app := newTestApp(t, newTestConfig(t, "1.21"), stub, &supervisor.Guard{})
	app.setFocus(focusUsername)
	model, cmd := app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	app = runCommands(t, model, cmd)
	if app.statusMsg != "username is empty." {
		t.Fatalf("unexpected status %q", app.statusMsg)
	}
	if len(stub.calls) != 0 {
		t.Fatalf("launch should not run without a username")
	}
}

func TestLaunchBlockedWhileGameRunning(t *testing.T) {
	stub := &stubLauncher{}
	guard := &supervisor.Guard{}
	guard.TryAcquire()
	app := newTestApp(t, newTestConfig(t, "1.21"), stub, guard)
	app.setFocus(focusUsername)
	app.username.SetValue("alice")
	model, cmd := app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	app = runCommands(t, model, cmd)
	if app.statusMsg != "game is already running" {
		t.Fatalf("unexpected status %q", app.statusMsg)
	}
	if len(stub.calls) != 0 {
		t.Fatalf("launch should be refused while the guard is held")
	}
}

func TestEnterMovesFocusThenLaunches(t *testing.T) {
	stub := &stubLauncher{lines: []string{"[Download] https://example.invalid/a.jar", "[Launch] Game launch request sent..."}}
	cfg := newTestConfig(t, "1.20.4", "1.21")
	app := newTestApp(t, cfg, stub, &supervisor.Guard{})

	model, cmd := app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	app = runCommands(t, model, cmd)
	if app.focus != focusUsername {
		t.Fatalf("enter on the version list should focus the username field")
	}
	app.username.SetValue("alice")
	model, cmd = app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	app = runCommands(t, model, cmd)

	if len(stub.calls) != 1 || stub.calls[0] != (launchCall{version: "1.21", username: "alice"}) {
		t.Fatalf("unexpected launch calls %+v", stub.calls)
	}
	if app.statusMsg != "Launch request sent." {
		t.Fatalf("unexpected status %q", app.statusMsg)
	}
	if app.logbook.Len() != 2 {
		t.Fatalf("expected 2 console lines, got %d", app.logbook.Len())
	}

	model, _ = app.Update(logLineMsg{})
	app = model.(*App)
	if !strings.Contains(app.View(), "[Download] https://example.invalid/a.jar") {
		t.Fatalf("console does not show relayed output")
	}

	reloaded, err := config.Load(cfg.Root)
	if err != nil {
		t.Fatal(err)
	}
	if reloaded.DefaultVersion() != "1.21" {
		t.Fatalf("launched version not remembered: %s", reloaded.DefaultVersion())
	}
}

func TestLaunchErrorIsSummarised(t *testing.T) {
	stub := &stubLauncher{err: &launcher.Error{Code: launcher.CodeRuntimeMissing, Message: "runtime not found"}}
	app := newTestApp(t, newTestConfig(t, "1.21"), stub, &supervisor.Guard{})
	app.setFocus(focusUsername)
	app.username.SetValue("alice")
	model, cmd := app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	app = runCommands(t, model, cmd)
	if !strings.Contains(app.statusMsg, "Java runtime not found") {
		t.Fatalf("unexpected status %q", app.statusMsg)
	}
	if got := describeLaunchError(errors.New("boom")); got != "Launch failed: boom" {
		t.Fatalf("unexpected fallback %q", got)
	}
}

func TestQuitKeyOnlyFromVersionList(t *testing.T) {
	app := newTestApp(t, newTestConfig(t, "1.21"), &stubLauncher{}, &supervisor.Guard{})
	app.setFocus(focusUsername)
	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd != nil {
		if _, ok := cmd().(tea.QuitMsg); ok {
			t.Fatalf("q must be typeable in the username field")
		}
	}
	app.setFocus(focusVersions)
	_, cmd = app.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatalf("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatalf("expected tea.QuitMsg")
	}
}

func TestQuitStopsRunningGameFirst(t *testing.T) {
	guard := &supervisor.Guard{}
	guard.TryAcquire()
	handle, err := supervisor.Start(context.Background(), supervisor.Spec{
		Path:  os.Args[0],
		Args:  []string{"-test.run=^$"},
		Env:   append(os.Environ(), helperEnv+"=sleep"),
		Guard: guard,
	})
	if err != nil {
		t.Fatalf("start game: %v", err)
	}
	t.Cleanup(func() { _ = handle.Stop(0) })

	app := newTestApp(t, newTestConfig(t, "1.21"), &stubLauncher{}, guard)
	model, _ := app.Update(launchResultMsg{handle: handle})
	app = model.(*App)

	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	select {
	case <-handle.Done():
		t.Fatal("game stopped before the quit command ran")
	default:
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("expected tea.QuitMsg once the game is stopped")
	}
	select {
	case <-handle.Done():
	default:
		t.Fatal("quit returned while the game was still running")
	}
	if guard.Held() {
		t.Fatal("guard held after quitting")
	}
}

func TestLaunchRemembersVersionOffUpdateLoop(t *testing.T) {
	stub := &stubLauncher{}
	cfg := newTestConfig(t, "1.20.4", "1.21")
	app := newTestApp(t, cfg, stub, &supervisor.Guard{})
	app.versions.Select(0)
	app.setFocus(focusUsername)
	app.username.SetValue("alice")

	model, cmd := app.Update(tea.KeyMsg{Type: tea.KeyEnter})
	before, err := config.Load(cfg.Root)
	if err != nil {
		t.Fatal(err)
	}
	if before.DefaultVersion() != "1.21" {
		t.Fatalf("Update wrote the default version itself: %s", before.DefaultVersion())
	}

	app = runCommands(t, model, cmd)
	after, err := config.Load(cfg.Root)
	if err != nil {
		t.Fatal(err)
	}
	if after.DefaultVersion() != "1.20.4" || app.config.DefaultVersion() != "1.20.4" {
		t.Fatalf("version not remembered: file=%s app=%s", after.DefaultVersion(), app.config.DefaultVersion())
	}
	data, err := os.ReadFile(cfg.Path())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "# craftlaunch configuration") {
		t.Fatalf("launcher.yaml comments dropped:\n%s", data)
	}
}

func TestStopWithoutGame(t *testing.T) {
	app := newTestApp(t, newTestConfig(t, "1.21"), &stubLauncher{}, &supervisor.Guard{})
	_, cmd := app.Update(tea.KeyMsg{Type: tea.KeyCtrlK})
	if cmd != nil || app.statusMsg != "No game is running." {
		t.Fatalf("unexpected stop handling: %q", app.statusMsg)
	}
}

func newTestConfig(t *testing.T, versions ...string) *config.Config {
	t.Helper()
	root := t.TempDir()
	if err := config.InitRoot(root); err != nil {
		t.Fatalf("init root: %v", err)
	}
	for _, id := range versions {
		if err := os.MkdirAll(filepath.Join(root, "versions", id), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	cfg, err := config.Load(root)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, stub *stubLauncher, guard *supervisor.Guard) *App {
	t.Helper()
	app, err := NewApp(cfg, WithLaunchFunc(stub.launch), WithGuard(guard))
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return app
}

func runCommands(t *testing.T, model tea.Model, cmd tea.Cmd) *App {
	t.Helper()
	app, ok := model.(*App)
	if !ok {
		t.Fatalf("unexpected model type: %T", model)
	}
	for cmd != nil {
		msg := cmd()
		if msg == nil {
			break
		}
		nextModel, nextCmd := app.Update(msg)
		var ok bool
		app, ok = nextModel.(*App)
		if !ok {
			t.Fatalf("unexpected model type: %T", nextModel)
		}
		cmd = nextCmd
	}
	return app
}
