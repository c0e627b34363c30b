// Package launcher drives one launch attempt end to end: it resolves the
// version manifest, fetches libraries, unpacks natives, assembles the
// command line and hands the result to the supervisor.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/kingrea/craftlaunch/internal/classpath"
	"github.com/kingrea/craftlaunch/internal/command"
	"github.com/kingrea/craftlaunch/internal/config"
	"github.com/kingrea/craftlaunch/internal/fetch"
	"github.com/kingrea/craftlaunch/internal/manifest"
	"github.com/kingrea/craftlaunch/internal/natives"
	"github.com/kingrea/craftlaunch/internal/supervisor"
)

// Context is the set of paths one launch works with. It is derived once in
// New and never changes.
type Context struct {
	VersionID    string
	ManifestPath string
	NativesDir   string
	LibrariesDir string
	MainArchive  string
	GameDir      string
	AssetsDir    string
}

// Result is delivered by LaunchAsync.
type Result struct {
	Handle *supervisor.Handle
	Err    error
}

// Launcher launches one version of the game.
type Launcher struct {
	paths      Context
	sink       func(string)
	fetcher    *fetch.Fetcher
	guard      *supervisor.Guard
	javaPath   string
	classifier string
	minHeap    string
	maxHeap    string

	state atomic.Int32
}

// Option customises a Launcher.
type Option func(*Launcher)

// WithSink routes every log line to sink. sink may be called from several
// goroutines; wrap it in a SerialSink when that matters.
func WithSink(sink func(string)) Option {
	return func(l *Launcher) {
		if sink != nil {
			l.sink = sink
		}
	}
}

// WithFetcher replaces the artifact fetcher built from the configuration.
func WithFetcher(f *fetch.Fetcher) Option {
	return func(l *Launcher) {
		l.fetcher = f
	}
}

// WithGuard replaces supervisor.Default.
func WithGuard(g *supervisor.Guard) Option {
	return func(l *Launcher) {
		if g != nil {
			l.guard = g
		}
	}
}

// WithJavaPath overrides the runtime executable.
func WithJavaPath(path string) Option {
	return func(l *Launcher) {
		if path != "" {
			l.javaPath = path
		}
	}
}

// WithClassifier overrides the native library classifier.
func WithClassifier(classifier string) Option {
	return func(l *Launcher) {
		if classifier != "" {
			l.classifier = classifier
		}
	}
}

// New prepares a Launcher for versionID under cfg's root.
func New(cfg *config.Config, versionID string, opts ...Option) *Launcher {
	layout := cfg.Layout(versionID)
	l := &Launcher{
		paths: Context{
			VersionID:    layout.VersionID,
			ManifestPath: layout.ManifestPath,
			NativesDir:   layout.NativesDir,
			LibrariesDir: layout.LibrariesDir,
			MainArchive:  layout.MainArchive,
			GameDir:      layout.GameDir,
			AssetsDir:    layout.AssetsDir,
		},
		sink:       stdoutSink,
		guard:      supervisor.Default,
		javaPath:   cfg.JavaPath(),
		classifier: cfg.Settings.Natives.Classifier,
		minHeap:    cfg.Settings.Java.MinHeap,
		maxHeap:    cfg.Settings.Java.MaxHeap,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.classifier == "" {
		l.classifier = natives.DefaultClassifier()
	}
	if l.fetcher == nil {
		l.fetcher = fetch.New(
			fetch.WithLogger(l.sink),
			fetch.WithTimeout(cfg.Settings.Downloads.Timeout),
			fetch.WithParallel(cfg.Settings.Downloads.Parallel),
		)
	}
	return l
}

// Context returns the launch paths.
func (l *Launcher) Context() Context {
	return l.paths
}

// State returns the current lifecycle state.
func (l *Launcher) State() State {
	return State(l.state.Load())
}

func (l *Launcher) setState(s State) {
	l.state.Store(int32(s))
}

func (l *Launcher) logf(format string, args ...any) {
	l.sink(fmt.Sprintf(format, args...))
}

func (l *Launcher) loadManifest() (*manifest.Version, error) {
	v, err := manifest.Load(l.paths.ManifestPath, l.paths.VersionID)
	if err != nil {
		if errors.Is(err, manifest.ErrMissingMainClass) {
			l.logf("[Error] mainClass missing in version JSON.")
		} else {
			l.logf("[Error] Failed to read version JSON: %s", l.paths.ManifestPath)
		}
		return nil, newError(CodeConfiguration, "read version manifest", err)
	}
	return v, nil
}

// Prepare fetches every library the manifest declares and unpacks the
// native archives. Individual download and extraction failures are logged
// and skipped; only an unusable manifest or cancellation fails the call.
// A manifest without a libraries array is logged and prepared as empty.
func (l *Launcher) Prepare(ctx context.Context) error {
	v, err := l.loadManifest()
	if err != nil {
		return err
	}
	if !v.HasLibraries() {
		l.logf("[Error] Version JSON missing 'libraries' array.")
		return nil
	}

	resolved, skipped := v.Artifacts(l.paths.LibrariesDir)
	for i := 0; i < skipped; i++ {
		l.logf("[Warn] Skip library (missing URL or path).")
	}
	batch := make([]fetch.Artifact, 0, len(resolved))
	seen := make(map[string]bool, len(resolved))
	for _, r := range resolved {
		if seen[r.Dest] {
			continue
		}
		seen[r.Dest] = true
		batch = append(batch, fetch.Artifact{URL: r.URL, Dest: r.Dest, SHA1: r.SHA1, Size: r.Size})
	}
	if failed := l.fetcher.EnsureAll(ctx, batch); len(failed) > 0 {
		l.logf("[Warn] %d of %d libraries could not be downloaded.", len(failed), len(batch))
	}
	if err := ctx.Err(); err != nil {
		return newError(CodeNetwork, "preparation cancelled", err)
	}

	l.extractNatives(v)
	return nil
}

func (l *Launcher) extractNatives(v *manifest.Version) {
	archives := v.NativeArchives(l.paths.LibrariesDir, l.classifier)
	if len(archives) == 0 {
		return
	}
	suffix := natives.SuffixFor(l.classifier)
	stamp := natives.LoadStamp(l.paths.NativesDir)
	changed := false
	for _, archive := range archives {
		digest, err := natives.Digest(archive)
		if err != nil {
			l.logf("[Warn] Native archive unavailable: %s", archive)
			continue
		}
		if stamp.Fresh(archive, digest) {
			l.logf("[Skip] natives %s", filepath.Base(archive))
			continue
		}
		files, err := natives.Extract(archive, l.paths.NativesDir, natives.Options{Suffix: suffix, Log: l.sink})
		if err != nil {
			l.logf("[Error] Failed to open native archive: %s", archive)
			continue
		}
		stamp.Record(archive, digest, files)
		changed = true
	}
	if changed {
		if err := stamp.Save(); err != nil {
			l.logf("[Warn] Failed to record extracted natives: %v", err)
		}
	}
}

// BuildArguments returns the runtime arguments for username. On failure
// the reason is logged and the tokens are nil.
func (l *Launcher) BuildArguments(username string) ([]string, error) {
	v, err := l.loadManifest()
	if err != nil {
		return nil, err
	}
	cp := classpath.Build(l.paths.LibrariesDir, l.paths.MainArchive, l.sink)

	nativesDir, err := filepath.Abs(l.paths.NativesDir)
	if err != nil {
		nativesDir = l.paths.NativesDir
	}
	for _, dir := range []string{l.paths.GameDir, l.paths.AssetsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			l.logf("[Error] Failed to create directory: %s", dir)
			return nil, newError(CodeIO, "create "+dir, err)
		}
	}

	tokens, err := command.Build(command.Input{
		Version:    v,
		VersionID:  l.paths.VersionID,
		Username:   username,
		Classpath:  cp,
		NativesDir: nativesDir,
		GameDir:    l.paths.GameDir,
		AssetsDir:  l.paths.AssetsDir,
		MinHeap:    l.minHeap,
		MaxHeap:    l.maxHeap,
	})
	if err != nil {
		if errors.Is(err, command.ErrInvalidUsername) {
			l.logf("[Error] Invalid username: %q", username)
		}
		return nil, newError(CodeConfiguration, "build arguments", err)
	}
	return tokens, nil
}

// Launch runs the whole sequence on the calling goroutine and returns the
// handle of the started game. The single-instance guard is held from the
// moment preparation begins until the game exits.
func (l *Launcher) Launch(ctx context.Context, username string) (*supervisor.Handle, error) {
	if !l.guard.TryAcquire() {
		l.logf("[Error] Game is already running.")
		return nil, newError(CodeAlreadyRunning, "launch rejected", ErrAlreadyRunning)
	}
	started := false
	defer func() {
		if !started {
			l.guard.Release()
		}
	}()

	l.setState(StatePreparing)
	if err := l.Prepare(ctx); err != nil {
		l.setState(StateFailed)
		return nil, err
	}

	l.setState(StateLaunching)
	args, err := l.BuildArguments(username)
	if err != nil || len(args) == 0 {
		l.logf("[Error] No launch arguments generated.")
		l.setState(StateFailed)
		if err == nil {
			err = newError(CodeConfiguration, "no launch arguments", nil)
		}
		return nil, err
	}

	if info, statErr := os.Stat(l.javaPath); statErr != nil || info.IsDir() {
		l.logf("[Error] Java not found: %s", l.javaPath)
		l.setState(StateFailed)
		return nil, newError(CodeRuntimeMissing, "runtime not found at "+l.javaPath, statErr)
	}

	l.logf("[Launch] Starting Java process...")
	l.logf("[Launch] %s %s", l.javaPath, command.Flatten(args))
	handle, err := supervisor.Start(ctx, supervisor.Spec{
		Path:  l.javaPath,
		Args:  args,
		Dir:   l.paths.GameDir,
		Sink:  l.sink,
		Guard: l.guard,
	})
	if err != nil {
		l.logf("[Error] Failed to start java process.")
		l.setState(StateFailed)
		return nil, newError(CodeProcessCreation, "start runtime", err)
	}
	started = true
	l.setState(StateRunning)
	go func() {
		<-handle.Done()
		l.setState(StateExited)
	}()
	l.logf("[Launch] Game launch request sent...")
	return handle, nil
}

// LaunchAsync runs Launch on its own goroutine and returns immediately. The
// channel receives exactly one Result and is then closed.
func (l *Launcher) LaunchAsync(ctx context.Context, username string) <-chan Result {
	out := make(chan Result, 1)
	go func() {
		defer close(out)
		handle, err := l.Launch(ctx, username)
		out <- Result{Handle: handle, Err: err}
	}()
	return out
}
