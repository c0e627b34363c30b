package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap holds the launcher's key bindings.
type keyMap struct {
	Launch key.Binding
	Stop   key.Binding
	Focus  key.Binding
	Quit   key.Binding
	Exit   key.Binding
}

var defaultKeyMap = keyMap{
	Launch: key.NewBinding(
		key.WithKeys("enter"),
		key.WithHelp("enter", "select / launch"),
	),
	Stop: key.NewBinding(
		key.WithKeys("ctrl+k"),
		key.WithHelp("C-k", "stop game"),
	),
	Focus: key.NewBinding(
		key.WithKeys("tab", "shift+tab"),
		key.WithHelp("tab", "switch focus"),
	),
	// Quit only applies while the version list has focus so q can be
	// typed into the username field.
	Quit: key.NewBinding(
		key.WithKeys("q"),
		key.WithHelp("q", "quit"),
	),
	Exit: key.NewBinding(
		key.WithKeys("ctrl+c"),
		key.WithHelp("C-c", "quit"),
	),
}

func (k keyMap) helpLine() string {
	bindings := []key.Binding{k.Launch, k.Focus, k.Stop, k.Quit}
	parts := make([]string, 0, len(bindings))
	for _, b := range bindings {
		h := b.Help()
		parts = append(parts, h.Key+" "+h.Desc)
	}
	return joinDots(parts)
}
