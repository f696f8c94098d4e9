package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Left     key.Binding
	Right    key.Binding
	Up       key.Binding
	Down     key.Binding
	FastUp   key.Binding
	FastDown key.Binding
	Tap      key.Binding
	Hold     key.Binding
	Side     key.Binding
	Help     key.Binding
	Quit     key.Binding
}

func defaultKeys() keyMap {
	return keyMap{
		Left: key.NewBinding(
			key.WithKeys("left", "h"),
			key.WithHelp("←/h", "prev encoder"),
		),
		Right: key.NewBinding(
			key.WithKeys("right", "l"),
			key.WithHelp("→/l", "next encoder"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "turn cw"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "turn ccw"),
		),
		FastUp: key.NewBinding(
			key.WithKeys("K", "pgup"),
			key.WithHelp("K", "turn cw x5"),
		),
		FastDown: key.NewBinding(
			key.WithKeys("J", "pgdown"),
			key.WithHelp("J", "turn ccw x5"),
		),
		Tap: key.NewBinding(
			key.WithKeys(" ", "space"),
			key.WithHelp("space", "click switch"),
		),
		Hold: key.NewBinding(
			key.WithKeys("p"),
			key.WithHelp("p", "hold/release switch"),
		),
		Side: key.NewBinding(
			key.WithKeys("1", "2", "3", "4", "5", "6", "7", "8"),
			key.WithHelp("1-8", "side switch"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "more"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Left, k.Right, k.Up, k.Down, k.Tap, k.Side, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Left, k.Right, k.Up, k.Down},
		{k.FastUp, k.FastDown, k.Tap, k.Hold},
		{k.Side, k.Help, k.Quit},
	}
}
