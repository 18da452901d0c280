package app

import "github.com/charmbracelet/bubbles/key"

// KeyMap holds the bindings the frame handles itself. Everything else
// goes to the focused page.
type KeyMap struct {
	ToggleFocus key.Binding
	Help        key.Binding
	Quit        key.Binding
	PortPicker  key.Binding
	Prev        key.Binding
	Next        key.Binding
	Open        key.Binding
	Back        key.Binding
}

var GlobalKeys = KeyMap{
	ToggleFocus: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "focus")),
	Help:        key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	Quit:        key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	PortPicker:  key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "port")),

	// Sidebar.
	Prev: key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/↓", "navigate")),
	Next: key.NewBinding(key.WithKeys("down", "j")),
	Open: key.NewBinding(key.WithKeys("enter", "right", "l"), key.WithHelp("enter", "select")),

	// Content.
	Back: key.NewBinding(key.WithKeys("left"), key.WithHelp("←", "pages")),
}

func (k KeyMap) sidebarHelp() []key.Binding {
	return []key.Binding{k.Prev, k.Open, k.PortPicker}
}

func (k KeyMap) frameHelp() []key.Binding {
	return []key.Binding{k.ToggleFocus, k.Help, k.Quit}
}
