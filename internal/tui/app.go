// internal/tui/app.go
//
// This is the launcher's terminal front-end. It uses bubbletea, which
// follows The Elm Architecture:
//
// 1. Model: the App struct below
// 2. Update: turns key presses and launch events into a new App
// 3. View: renders the App to a string
//
// Launch work never runs inside Update. It is wrapped in a tea.Cmd so the
// UI keeps redrawing while libraries download.

package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/craftlaunch/internal/command"
	"github.com/kingrea/craftlaunch/internal/config"
	"github.com/kingrea/craftlaunch/internal/launcher"
	"github.com/kingrea/craftlaunch/internal/logbook"
	"github.com/kingrea/craftlaunch/internal/manifest"
	"github.com/kingrea/craftlaunch/internal/supervisor"
)

const consoleLines = 500

// LaunchFunc starts versionID for username, sending every log line to sink.
type LaunchFunc func(ctx context.Context, versionID, username string, sink func(string)) (*supervisor.Handle, error)

// AppOption customizes App construction for tests and alternate runtimes.
type AppOption func(*App)

// WithLaunchFunc replaces the launcher-backed launch function.
func WithLaunchFunc(fn LaunchFunc) AppOption {
	return func(a *App) {
		if fn != nil {
			a.launch = fn
		}
	}
}

// WithGuard sets the single-instance guard consulted before launching.
func WithGuard(g *supervisor.Guard) AppOption {
	return func(a *App) {
		if g != nil {
			a.guard = g
		}
	}
}

// WithLogbook shares an existing console buffer.
func WithLogbook(lb *logbook.Logbook) AppOption {
	return func(a *App) {
		if lb != nil {
			a.logbook = lb
		}
	}
}

// WithFileSink mirrors every console line into sink, typically the file
// logger.
func WithFileSink(sink func(string)) AppOption {
	return func(a *App) {
		a.fileSink = sink
	}
}

// WithUsername prefills the username field.
func WithUsername(name string) AppOption {
	return func(a *App) {
		a.username.SetValue(name)
	}
}

type focus int

const (
	focusVersions focus = iota
	focusUsername
)

// logLineMsg tells the App the logbook grew.
type logLineMsg struct{}

type launchResultMsg struct {
	version    string
	remembered bool
	handle     *supervisor.Handle
	err        error
}

type gameExitedMsg struct {
	code int
}

// versionItem implements list.Item for an installed version.
type versionItem struct {
	id        string
	isDefault bool
}

func (i versionItem) Title() string { return i.id }
func (i versionItem) Description() string {
	if i.isDefault {
		return "default version"
	}
	return "installed"
}
func (i versionItem) FilterValue() string { return i.id }

// App is the launcher model.
type App struct {
	config  *config.Config
	logbook *logbook.Logbook
	guard   *supervisor.Guard
	launch  LaunchFunc

	fileSink func(string)

	versions list.Model
	username textinput.Model
	console  viewport.Model
	keys     keyMap
	focus    focus

	statusMsg    string
	consoleTotal int
	cancel       context.CancelFunc
	handle       *supervisor.Handle

	width  int
	height int
}

// NewApp builds the App for the root described by cfg.
func NewApp(cfg *config.Config, opts ...AppOption) (*App, error) {
	if cfg == nil {
		return nil, errors.New("tui: config is required")
	}
	ids, err := manifest.ListVersions(cfg.VersionsDir())
	if err != nil {
		return nil, err
	}

	items := make([]list.Item, 0, len(ids))
	selected := 0
	for i, id := range ids {
		isDefault := id == cfg.DefaultVersion()
		if isDefault {
			selected = i
		}
		items = append(items, versionItem{id: id, isDefault: isDefault})
	}
	versions := list.New(items, list.NewDefaultDelegate(), 0, 0)
	versions.Title = "Versions"
	versions.SetShowStatusBar(false)
	versions.SetFilteringEnabled(false)
	versions.SetShowHelp(false)
	versions.Select(selected)

	username := textinput.New()
	username.Placeholder = "username"
	username.CharLimit = 16
	username.Prompt = "› "

	app := &App{
		config:   cfg,
		logbook:  logbook.New(),
		guard:    supervisor.Default,
		versions: versions,
		username: username,
		console:  viewport.New(80, 10),
		keys:     defaultKeyMap,
		focus:    focusVersions,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	if app.launch == nil {
		app.launch = launcherFunc(cfg, app.guard)
	}
	if len(ids) == 0 {
		app.statusMsg = fmt.Sprintf("No versions installed under %s; using %s.", cfg.VersionsDir(), cfg.DefaultVersion())
	}
	app.refreshConsole()
	return app, nil
}

func launcherFunc(cfg *config.Config, guard *supervisor.Guard) LaunchFunc {
	return func(ctx context.Context, versionID, username string, sink func(string)) (*supervisor.Handle, error) {
		l := launcher.New(cfg, versionID, launcher.WithSink(sink), launcher.WithGuard(guard))
		return l.Launch(ctx, username)
	}
}

// sink records a line in the console buffer and the file log.
func (a *App) sink(line string) {
	a.logbook.Record(line)
	if a.fileSink != nil {
		a.fileSink(line)
	}
}

// selectedVersion falls back to the configured default when nothing is
// installed.
func (a *App) selectedVersion() string {
	if item, ok := a.versions.SelectedItem().(versionItem); ok {
		return item.id
	}
	return a.config.DefaultVersion()
}

// Init starts listening for log lines.
func (a *App) Init() tea.Cmd {
	return tea.Batch(a.waitForLog(), textinput.Blink)
}

func (a *App) waitForLog() tea.Cmd {
	updates := a.logbook.Updates()
	return func() tea.Msg {
		<-updates
		return logLineMsg{}
	}
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.layout()
		return a, nil

	case logLineMsg:
		a.refreshConsole()
		return a, a.waitForLog()

	case launchResultMsg:
		return a, a.handleLaunchResult(msg)

	case gameExitedMsg:
		a.handle = nil
		if msg.code != 0 {
			a.statusMsg = fmt.Sprintf("Game exited with code %d.", msg.code)
		} else {
			a.statusMsg = "Game closed."
		}
		return a, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, a.keys.Exit):
			return a, a.quit()
		case key.Matches(msg, a.keys.Quit) && a.focus == focusVersions:
			return a, a.quit()
		case key.Matches(msg, a.keys.Focus):
			a.toggleFocus()
			return a, nil
		case key.Matches(msg, a.keys.Stop):
			return a, a.stopGame()
		case key.Matches(msg, a.keys.Launch):
			if a.focus == focusVersions {
				a.setFocus(focusUsername)
				return a, nil
			}
			return a, a.startLaunch()
		}
	}

	var cmd tea.Cmd
	switch a.focus {
	case focusVersions:
		a.versions, cmd = a.versions.Update(msg)
	case focusUsername:
		a.username, cmd = a.username.Update(msg)
	}
	return a, cmd
}

func (a *App) toggleFocus() {
	if a.focus == focusVersions {
		a.setFocus(focusUsername)
	} else {
		a.setFocus(focusVersions)
	}
}

func (a *App) setFocus(f focus) {
	a.focus = f
	if f == focusUsername {
		a.username.Focus()
	} else {
		a.username.Blur()
	}
}

// startLaunch validates the form and returns the command that runs the
// launch off the update loop.
func (a *App) startLaunch() tea.Cmd {
	name := strings.TrimSpace(a.username.Value())
	if name == "" {
		a.statusMsg = "username is empty."
		return nil
	}
	if err := command.ValidateUsername(name); err != nil {
		a.statusMsg = "username may only use letters, digits and _ (max 16)."
		return nil
	}
	if a.guard.Held() {
		a.statusMsg = "game is already running"
		return nil
	}
	if a.cancel != nil {
		a.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel

	versionID := a.selectedVersion()
	a.statusMsg = fmt.Sprintf("Launching %s as %s...", versionID, name)
	launch := a.launch
	sink := a.sink
	root := a.config.Root
	return func() tea.Msg {
		remembered := true
		if err := rememberVersion(root, versionID); err != nil {
			remembered = false
			sink(fmt.Sprintf("[Warn] Could not remember version %s: %v", versionID, err))
		}
		handle, err := launch(ctx, versionID, name, sink)
		return launchResultMsg{version: versionID, remembered: remembered, handle: handle, err: err}
	}
}

// rememberVersion persists id as the default through its own view of the
// settings file; the App's copy is only touched from Update.
func rememberVersion(root, id string) error {
	cfg, err := config.Load(root)
	if err != nil {
		return err
	}
	return cfg.SetDefaultVersion(id)
}

func (a *App) handleLaunchResult(msg launchResultMsg) tea.Cmd {
	if msg.remembered {
		a.config.Settings.DefaultVersion = msg.version
	}
	if msg.err != nil {
		a.statusMsg = describeLaunchError(msg.err)
		return nil
	}
	if msg.handle == nil {
		a.statusMsg = "Launch request sent."
		return nil
	}
	a.handle = msg.handle
	a.statusMsg = fmt.Sprintf("Game running (pid %d). ctrl+k stops it.", msg.handle.PID())
	handle := msg.handle
	return func() tea.Msg {
		return gameExitedMsg{code: handle.ExitCode()}
	}
}

func describeLaunchError(err error) string {
	switch launcher.CodeOf(err) {
	case launcher.CodeAlreadyRunning:
		return "game is already running"
	case launcher.CodeRuntimeMissing:
		return "Java runtime not found; see the console."
	case launcher.CodeConfiguration:
		return "Version is not launchable; see the console."
	case launcher.CodeProcessCreation:
		return "Could not start the game process."
	default:
		return fmt.Sprintf("Launch failed: %v", err)
	}
}

func (a *App) stopGame() tea.Cmd {
	if a.handle == nil {
		a.statusMsg = "No game is running."
		return nil
	}
	a.statusMsg = "Stopping game..."
	handle := a.handle
	return func() tea.Msg {
		if err := handle.Stop(supervisor.DefaultGrace); err != nil {
			return launchResultMsg{err: err}
		}
		return nil
	}
}

// quit cancels any launch in flight. A running game is stopped first and
// the program only exits once it is gone.
func (a *App) quit() tea.Cmd {
	if a.handle == nil {
		if a.cancel != nil {
			a.cancel()
		}
		return tea.Quit
	}
	a.statusMsg = "Stopping game..."
	handle, cancel := a.handle, a.cancel
	return func() tea.Msg {
		_ = handle.Stop(supervisor.DefaultGrace)
		if cancel != nil {
			cancel()
		}
		return tea.Quit()
	}
}

func (a *App) layout() {
	width := max(40, a.width)
	listWidth := max(24, width/3)
	consoleHeight := max(5, a.height/2-4)
	a.versions.SetSize(listWidth-4, max(6, a.height-consoleHeight-10))
	a.username.Width = max(16, width-listWidth-10)
	a.console.Width = width - 4
	a.console.Height = consoleHeight
	a.refreshConsole()
}

func (a *App) refreshConsole() {
	lines, total := a.logbook.Tail(consoleLines)
	a.consoleTotal = total
	a.console.SetContent(strings.Join(lines, "\n"))
	a.console.GotoBottom()
}

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5FD068")).
			MarginBottom(1)
	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
	focusedPanelStyle = panelStyle.BorderForeground(lipgloss.Color("#5FD068"))
	labelStyle        = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	mutedStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	consoleStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
)

// View renders the current state to a string.
func (a *App) View() string {
	width := a.width
	if width <= 0 {
		width = 100
	}
	listWidth := max(24, width/3)

	versionsPanel := panelStyle
	formPanel := focusedPanelStyle
	if a.focus == focusVersions {
		versionsPanel, formPanel = focusedPanelStyle, panelStyle
	}
	left := versionsPanel.Width(listWidth).Render(a.versions.View())

	form := lipgloss.JoinVertical(lipgloss.Left,
		labelStyle.Render("Version"),
		a.selectedVersion(),
		"",
		labelStyle.Render("Username"),
		a.username.View(),
		"",
		a.renderState(),
	)
	right := formPanel.Width(max(20, width-listWidth-6)).Render(form)

	consoleHead := labelStyle.Render(fmt.Sprintf("CONSOLE · %d lines", a.consoleTotal))
	console := panelStyle.Width(max(20, width-4)).Render(
		consoleHead + "\n" + consoleStyle.Render(a.console.View()),
	)

	sections := []string{
		headerStyle.Render("⬡ CRAFTLAUNCH"),
		lipgloss.JoinHorizontal(lipgloss.Top, left, right),
		console,
		mutedStyle.Render(a.statusMsg),
		mutedStyle.Render(a.keys.helpLine()),
	}
	return strings.Join(sections, "\n")
}

func (a *App) renderState() string {
	if a.handle != nil {
		return fmt.Sprintf("Game running · pid %d", a.handle.PID())
	}
	if a.guard.Held() {
		return "Preparing launch..."
	}
	return mutedStyle.Render("Idle")
}

func joinDots(parts []string) string {
	return strings.Join(parts, " · ")
}
