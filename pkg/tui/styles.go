// Package tui implements a Bubble Tea controller for debug-enabled scenario
// runs. It consumes the debug session's event queue and drives the run with
// pause/resume/step/jump/stop commands.
package tui

import "github.com/charmbracelet/lipgloss"

// Step glyphs convey state without relying on color alone.
const (
	GlyphPending = "○"
	GlyphCurrent = "▸"
	GlyphVisited = "✓"
	GlyphFailed  = "✗"
)

var (
	colorGreen  = lipgloss.Color("42")
	colorRed    = lipgloss.Color("196")
	colorYellow = lipgloss.Color("214")
	colorBlue   = lipgloss.Color("39")
	colorCyan   = lipgloss.Color("51")
	colorDim    = lipgloss.Color("240")
	colorWhite  = lipgloss.Color("255")
)

var headerStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(colorCyan).
	Padding(0, 1)

var accountBadgeStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("0")).
	Background(colorYellow).
	Padding(0, 1)

var (
	stepNormal  = lipgloss.NewStyle().Foreground(colorWhite)
	stepCurrent = lipgloss.NewStyle().Bold(true).Foreground(colorYellow)
	stepVisited = lipgloss.NewStyle().Foreground(colorGreen)
	stepFailed  = lipgloss.NewStyle().Foreground(colorRed)
)

var (
	panelBorder = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorDim)

	panelTitle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorCyan).
			Padding(0, 1)

	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(colorBlue)

	valueStyle = lipgloss.NewStyle().
			Foreground(colorWhite)
)

var (
	keyStyle     = lipgloss.NewStyle().Foreground(colorCyan).Bold(true)
	keyDescStyle = lipgloss.NewStyle().Foreground(colorDim)
)

var errorStyle = lipgloss.NewStyle().
	Foreground(colorRed).
	Bold(true)

var statusPausedStyle = lipgloss.NewStyle().
	Foreground(colorYellow).
	Bold(true)

var statusDoneStyle = lipgloss.NewStyle().
	Foreground(colorGreen).
	Bold(true)

var spinnerStyle = lipgloss.NewStyle().Foreground(colorYellow)

var overlayBorder = lipgloss.NewStyle().
	Border(lipgloss.DoubleBorder()).
	BorderForeground(colorCyan).
	Padding(1, 2)
