package tui

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines key bindings used across the TUI.
type KeyMap struct {
	Tab      key.Binding
	ShiftTab key.Binding
	Quit     key.Binding
	Refresh  key.Binding

	FilterAction key.Binding
	FilterModel  key.Binding

	NextAdvisor key.Binding
}

var DefaultKeyMap = KeyMap{
	Tab:      key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next tab")),
	ShiftTab: key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "prev tab")),
	Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Refresh:  key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "refresh")),

	FilterAction: key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "cycle action")),
	FilterModel:  key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "cycle model")),

	NextAdvisor: key.NewBinding(key.WithKeys("ctrl+n"), key.WithHelp("ctrl+n", "next model")),
}
