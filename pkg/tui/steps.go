package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/Tort1k558/Camouflow/pkg/debug"
)

// stepStatus tracks each step's display state.
type stepStatus int

const (
	statusPending stepStatus = iota
	statusCurrent
	statusVisited
	statusFailed
)

type stepInfo struct {
	Label  string
	Status stepStatus
}

// stepsPanel is the scrolling step timeline. Step labels fill in as updates
// arrive; unseen steps display a placeholder.
type stepsPanel struct {
	steps   []stepInfo
	current int
	width   int
	height  int
	offset  int
}

func newStepsPanel() stepsPanel {
	return stepsPanel{current: -1}
}

// Apply folds one before-step snapshot into the timeline.
func (p *stepsPanel) Apply(u debug.Update) {
	if len(p.steps) != u.TotalSteps {
		resized := make([]stepInfo, u.TotalSteps)
		copy(resized, p.steps)
		p.steps = resized
		if p.current >= len(p.steps) {
			p.current = -1
		}
	}
	if u.StepIndex < 0 || u.StepIndex >= len(p.steps) {
		return
	}
	if p.current >= 0 && p.current < len(p.steps) && p.current != u.StepIndex {
		p.steps[p.current].Status = statusVisited
	}
	label := u.Action
	if u.Tag != "" {
		label += " [" + u.Tag + "]"
	}
	if u.Description != "" {
		label += " — " + u.Description
	}
	p.steps[u.StepIndex] = stepInfo{Label: label, Status: statusCurrent}
	p.current = u.StepIndex
	p.ensureVisible()
}

// MarkFinished closes the timeline: the current step becomes visited, or
// failed when the run did not complete cleanly.
func (p *stepsPanel) MarkFinished(ok bool) {
	if p.current < 0 || p.current >= len(p.steps) {
		return
	}
	if ok {
		p.steps[p.current].Status = statusVisited
	} else {
		p.steps[p.current].Status = statusFailed
	}
}

func (p *stepsPanel) ensureVisible() {
	visible := p.height - 2
	if visible < 1 {
		visible = 1
	}
	if p.current < p.offset {
		p.offset = p.current
	}
	if p.current >= p.offset+visible {
		p.offset = p.current - visible + 1
	}
	if p.offset < 0 {
		p.offset = 0
	}
}

// View renders the timeline panel.
func (p *stepsPanel) View() string {
	if len(p.steps) == 0 {
		return panelBorder.Width(p.width).Height(p.height).Render("  Waiting for first step...")
	}

	visible := p.height - 2
	if visible < 1 {
		visible = 1
	}
	end := p.offset + visible
	if end > len(p.steps) {
		end = len(p.steps)
	}

	var lines []string
	for i := p.offset; i < end; i++ {
		step := p.steps[i]

		var glyph string
		var style lipgloss.Style
		switch step.Status {
		case statusPending:
			glyph = GlyphPending
			style = stepNormal
		case statusCurrent:
			glyph = GlyphCurrent
			style = stepCurrent
		case statusVisited:
			glyph = GlyphVisited
			style = stepVisited
		case statusFailed:
			glyph = GlyphFailed
			style = stepFailed
		}

		label := step.Label
		if label == "" {
			label = fmt.Sprintf("step %d", i+1)
		}
		maxLabel := p.width - 8
		if maxLabel < 4 {
			maxLabel = 4
		}
		label = runewidth.Truncate(label, maxLabel, "…")

		lines = append(lines, style.Render(fmt.Sprintf(" %s %d. %s", glyph, i+1, label)))
	}
	for len(lines) < visible {
		lines = append(lines, "")
	}

	title := panelTitle.Render("Steps")
	return panelBorder.Width(p.width).Height(p.height).Render(
		title + "\n" + strings.Join(lines, "\n"),
	)
}
