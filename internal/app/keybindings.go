package app

import "github.com/charmbracelet/bubbles/key"

// KeyMap defines the keybindings.
type KeyMap struct {
	ScrollDown   key.Binding
	ScrollUp     key.Binding
	HalfPageDown key.Binding
	HalfPageUp   key.Binding
	GotoTop      key.Binding
	GotoBottom   key.Binding

	OpenURL key.Binding
	Back    key.Binding
	Forward key.Binding
	Reload  key.Binding

	History      key.Binding
	ToggleSaving key.Binding
	DeleteEntry  key.Binding
	ClearHistory key.Binding
	Select       key.Binding
	Cancel       key.Binding

	Quit key.Binding
}

// DefaultKeyMap returns vim-style bindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		ScrollDown:   key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j", "scroll down")),
		ScrollUp:     key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k", "scroll up")),
		HalfPageDown: key.NewBinding(key.WithKeys("ctrl+d"), key.WithHelp("ctrl+d", "half page down")),
		HalfPageUp:   key.NewBinding(key.WithKeys("ctrl+u"), key.WithHelp("ctrl+u", "half page up")),
		GotoTop:      key.NewBinding(key.WithKeys("g", "home"), key.WithHelp("g", "top")),
		GotoBottom:   key.NewBinding(key.WithKeys("G", "end"), key.WithHelp("G", "bottom")),

		OpenURL: key.NewBinding(key.WithKeys("o", "ctrl+l"), key.WithHelp("o", "open URL")),
		Back:    key.NewBinding(key.WithKeys("H", "alt+left"), key.WithHelp("H", "back")),
		Forward: key.NewBinding(key.WithKeys("L", "alt+right"), key.WithHelp("L", "forward")),
		Reload:  key.NewBinding(key.WithKeys("r", "f5"), key.WithHelp("r", "reload")),

		History:      key.NewBinding(key.WithKeys("h"), key.WithHelp("h", "history")),
		ToggleSaving: key.NewBinding(key.WithKeys("S"), key.WithHelp("S", "toggle history saving")),
		DeleteEntry:  key.NewBinding(key.WithKeys("d", "delete"), key.WithHelp("d", "delete entry")),
		ClearHistory: key.NewBinding(key.WithKeys("D"), key.WithHelp("D", "clear history")),
		Select:       key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
		Cancel:       key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),

		Quit: key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}
