package tui

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/Tort1k558/Camouflow/pkg/debug"
	"github.com/Tort1k558/Camouflow/pkg/vars"
)

// sessionEventMsg wraps one event from the debug session queue.
type sessionEventMsg struct {
	ev debug.Event
}

// sessionClosedMsg signals the event channel closed.
type sessionClosedMsg struct{}

type overlayKind int

const (
	overlayNone overlayKind = iota
	overlayVars
	overlayJump
)

// Config holds the parameters needed to launch the controller.
type Config struct {
	Session  *debug.Session
	Profile  *vars.Profile
	Scenario string
	Account  string
}

// Model is the top-level Bubble Tea model.
type Model struct {
	cfg     Config
	steps   stepsPanel
	spinner spinner.Model
	jump    textinput.Model
	overlay overlayKind

	last      debug.Update
	finished  bool
	runOK     bool
	runReason string
	varsText  string

	width  int
	height int
}

// New builds the initial model.
func New(cfg Config) Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = spinnerStyle

	jump := textinput.New()
	jump.Placeholder = "step number or tag"
	jump.CharLimit = 64

	return Model{
		cfg:     cfg,
		steps:   newStepsPanel(),
		spinner: sp,
		jump:    jump,
	}
}

// Run starts the controller and blocks until it exits.
func Run(cfg Config) error {
	p := tea.NewProgram(New(cfg), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init starts the spinner and the event pump.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvents())
}

// listenForEvents waits for the next session event.
func (m Model) listenForEvents() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.cfg.Session.Events()
		if !ok {
			return sessionClosedMsg{}
		}
		return sessionEventMsg{ev: ev}
	}
}

// Update processes messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layoutPanels()

	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case sessionEventMsg:
		m.applyEvent(msg.ev)
		cmds = append(cmds, m.listenForEvents())

	case sessionClosedMsg:
		return m, tea.Quit
	}

	return m, tea.Batch(cmds...)
}

// applyEvent folds a session event into the model.
func (m *Model) applyEvent(ev debug.Event) {
	switch ev.Kind {
	case debug.EventUpdate:
		m.last = ev.Update
		m.finished = false
		m.steps.Apply(ev.Update)
	case debug.EventFinished:
		m.finished = true
		m.runOK = ev.OK
		m.runReason = ev.Reason
		m.steps.MarkFinished(ev.OK)
	case debug.EventBrowserClosed:
		m.finished = true
		m.runOK = false
		m.runReason = "browser closed"
		m.steps.MarkFinished(false)
	}
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.overlay == overlayJump {
		switch msg.String() {
		case "esc":
			m.overlay = overlayNone
			m.jump.Reset()
			return m, nil
		case "enter":
			m.submitJump()
			return m, nil
		}
		var cmd tea.Cmd
		m.jump, cmd = m.jump.Update(msg)
		return m, cmd
	}

	if key.Matches(msg, keys.Quit) {
		m.cfg.Session.RequestStop()
		return m, tea.Quit
	}

	if msg.String() == "esc" && m.overlay == overlayVars {
		m.overlay = overlayNone
		return m, nil
	}

	switch {
	case key.Matches(msg, keys.Toggle):
		if m.cfg.Session.Paused() {
			m.cfg.Session.Resume()
		} else {
			m.cfg.Session.Pause()
		}

	case key.Matches(msg, keys.Step):
		if m.cfg.Session.Paused() {
			m.cfg.Session.StepOnce()
		}

	case key.Matches(msg, keys.Jump):
		m.overlay = overlayJump
		m.jump.Reset()
		return m, m.jump.Focus()

	case key.Matches(msg, keys.Vars):
		m.varsText = m.formatVars()
		m.overlay = overlayVars
	}

	return m, nil
}

// submitJump parses the jump field: a number targets a one-based step, any
// other text targets a tag.
func (m *Model) submitJump() {
	target := strings.TrimSpace(m.jump.Value())
	m.overlay = overlayNone
	m.jump.Reset()
	if target == "" {
		return
	}
	m.finished = false
	if n, err := strconv.Atoi(target); err == nil && n >= 1 {
		m.cfg.Session.RequestJumpToStep(n)
		return
	}
	m.cfg.Session.RequestJumpToTag(target)
}

// formatVars renders the profile snapshot for the vars overlay.
func (m *Model) formatVars() string {
	var b strings.Builder
	b.WriteString("━━━ Variables ━━━\n\n")
	if m.cfg.Profile == nil {
		b.WriteString(keyDescStyle.Render("  (no run attached)"))
	} else {
		snapshot := m.cfg.Profile.Snapshot()
		names := make([]string, 0, len(snapshot))
		for name := range snapshot {
			names = append(names, name)
		}
		sort.Strings(names)
		if len(names) == 0 {
			b.WriteString(keyDescStyle.Render("  (no variables set)"))
		}
		for _, name := range names {
			value := runewidth.Truncate(snapshot[name], 60, "…")
			b.WriteString(fmt.Sprintf("  %s = %s\n", labelStyle.Render(name), value))
		}
	}
	b.WriteString("\n\n" + keyStyle.Render("Esc") + keyDescStyle.Render(":close"))
	return b.String()
}

func (m *Model) layoutPanels() {
	if m.width == 0 || m.height == 0 {
		return
	}
	// header(1) + steps + status(1) + key bar(1)
	m.steps.width = m.width - 2
	m.steps.height = m.height - 4
	if m.steps.height < 4 {
		m.steps.height = 4
	}
}

// View renders the full controller.
func (m Model) View() string {
	switch m.overlay {
	case overlayVars:
		return m.renderOverlay(m.varsText)
	case overlayJump:
		content := "━━━ Jump ━━━\n\n" + m.jump.View() + "\n\n" +
			keyStyle.Render("Enter") + keyDescStyle.Render(":jump") + "  " +
			keyStyle.Render("Esc") + keyDescStyle.Render(":cancel")
		return m.renderOverlay(content)
	}

	header := m.renderHeader()
	stepsView := m.steps.View()
	status := m.renderStatus()
	keyBar := keyBarText(m.overlay, m.cfg.Session.Paused())

	return header + "\n" + stepsView + "\n" + status + "\n" + keyBar
}

func (m Model) renderOverlay(content string) string {
	contentW := m.width - 8
	if contentW < 40 {
		contentW = 40
	}
	box := overlayBorder.Width(contentW).Render(content)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func (m Model) renderHeader() string {
	title := headerStyle.Render("camouflow")
	account := accountBadgeStyle.Render(m.cfg.Account)
	left := title + " " + account + "  " + valueStyle.Render(m.cfg.Scenario)

	var right string
	switch {
	case m.finished && m.runOK:
		right = statusDoneStyle.Render("finished")
	case m.finished:
		right = errorStyle.Render("failed")
	case m.cfg.Session.Paused():
		right = statusPausedStyle.Render("paused")
	default:
		right = m.spinner.View() + " running"
	}

	padding := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if padding < 1 {
		padding = 1
	}
	return left + strings.Repeat(" ", padding) + right
}

func (m Model) renderStatus() string {
	if m.finished && !m.runOK && m.runReason != "" {
		return errorStyle.Render(" " + m.runReason)
	}
	if m.last.TotalSteps == 0 {
		return keyDescStyle.Render(" waiting for the run to reach its first step")
	}
	line := fmt.Sprintf(" step %d/%d  %s", m.last.StepIndex+1, m.last.TotalSteps, m.last.Action)
	if !m.last.ReloadedAt.IsZero() {
		line += keyDescStyle.Render("  reloaded " + m.last.ReloadedAt.Format("15:04:05"))
	}
	return valueStyle.Render(line)
}
