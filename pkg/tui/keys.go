package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap holds all controller key bindings.
type keyMap struct {
	Toggle key.Binding
	Step   key.Binding
	Jump   key.Binding
	Vars   key.Binding
	Quit   key.Binding
}

var keys = keyMap{
	Toggle: key.NewBinding(
		key.WithKeys(" "),
		key.WithHelp("space", "pause/resume"),
	),
	Step: key.NewBinding(
		key.WithKeys("n"),
		key.WithHelp("n", "step"),
	),
	Jump: key.NewBinding(
		key.WithKeys("j"),
		key.WithHelp("j", "jump"),
	),
	Vars: key.NewBinding(
		key.WithKeys("v"),
		key.WithHelp("v", "vars"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "stop & quit"),
	),
}

// keyBarText renders the context-sensitive key hint line.
func keyBarText(overlay overlayKind, paused bool) string {
	switch overlay {
	case overlayVars:
		return keyStyle.Render("Esc") + keyDescStyle.Render(":close") + "  " +
			keyStyle.Render("q") + keyDescStyle.Render(":quit")
	case overlayJump:
		return keyStyle.Render("Enter") + keyDescStyle.Render(":jump") + "  " +
			keyStyle.Render("Esc") + keyDescStyle.Render(":cancel")
	}
	hints := keyStyle.Render("space") + keyDescStyle.Render(":pause/resume")
	if paused {
		hints += "  " + keyStyle.Render("n") + keyDescStyle.Render(":step")
	}
	return hints + "  " +
		keyStyle.Render("j") + keyDescStyle.Render(":jump") + "  " +
		keyStyle.Render("v") + keyDescStyle.Render(":vars") + "  " +
		keyStyle.Render("q") + keyDescStyle.Render(":stop & quit")
}
