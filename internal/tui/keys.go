package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Devices  key.Binding
	Connect  key.Binding
	Start    key.Binding
	Stop     key.Binding
	Params   key.Binding
	Up       key.Binding
	Down     key.Binding
	Toggle   key.Binding
	Select   key.Binding
	Back     key.Binding
	Yes      key.Binding
	No       key.Binding
	Quit     key.Binding
	ShowHelp key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		Devices:  key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "choose device")),
		Connect:  key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "connect")),
		Start:    key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start")),
		Stop:     key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "stop")),
		Params:   key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "parameters")),
		Up:       key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:     key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Toggle:   key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "toggle")),
		Select:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "select")),
		Back:     key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		Yes:      key.NewBinding(key.WithKeys("y"), key.WithHelp("y", "yes")),
		No:       key.NewBinding(key.WithKeys("n", "esc"), key.WithHelp("n", "no")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		ShowHelp: key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
	}
}

// mainKeys is the help for the live data screen.
type mainKeys struct{ keyMap }

func (k mainKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Devices, k.Connect, k.Start, k.Stop, k.Params, k.Quit}
}

func (k mainKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Devices, k.Connect, k.Start, k.Stop}, {k.Params, k.ShowHelp, k.Quit}}
}

type deviceKeys struct{ keyMap }

func (k deviceKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Select, k.Back}
}

func (k deviceKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

type paramKeys struct{ keyMap }

func (k paramKeys) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Toggle, k.Select, k.Back}
}

func (k paramKeys) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}
