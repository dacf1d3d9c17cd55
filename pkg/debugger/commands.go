package debugger

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"
)

func (d *Debugger) handlePause() {
	d.session.Pause()
	fmt.Fprintf(d.output, "Paused. The run stops before its next step.\n")
}

func (d *Debugger) handleResume() {
	d.mu.Lock()
	d.done = false
	d.mu.Unlock()
	d.session.Resume()
	fmt.Fprintf(d.output, "Resumed.\n")
}

func (d *Debugger) handleStep() {
	if !d.session.Paused() {
		fmt.Fprintf(d.output, "Not paused; 'pause' first.\n")
		return
	}
	d.session.StepOnce()
}

// handleJump accepts a one-based step number or a tag.
func (d *Debugger) handleJump(parts []string) {
	if len(parts) < 2 {
		fmt.Fprintf(d.output, "Usage: jump <step-number|tag>\n")
		return
	}
	d.mu.Lock()
	d.done = false
	d.mu.Unlock()
	target := parts[1]
	if n, err := strconv.Atoi(target); err == nil {
		if n < 1 {
			fmt.Fprintf(d.output, "Step numbers start at 1.\n")
			return
		}
		d.session.RequestJumpToStep(n)
		fmt.Fprintf(d.output, "Jumping to step %d.\n", n)
		return
	}
	d.session.RequestJumpToTag(target)
	fmt.Fprintf(d.output, "Jumping to tag %q.\n", target)
}

func (d *Debugger) handleStop() {
	d.session.RequestStop()
	fmt.Fprintf(d.output, "Stop requested.\n")
}

// handleVars prints the profile variables, optionally filtered by a
// substring. Long values are truncated to keep the table readable.
func (d *Debugger) handleVars(parts []string) {
	if d.profile == nil {
		fmt.Fprintf(d.output, "No run attached.\n")
		return
	}
	filter := ""
	if len(parts) > 1 {
		filter = strings.ToLower(parts[1])
	}
	snapshot := d.profile.Snapshot()
	names := make([]string, 0, len(snapshot))
	for name := range snapshot {
		if filter != "" && !strings.Contains(strings.ToLower(name), filter) {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		fmt.Fprintf(d.output, "No variables.\n")
		return
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(d.output, "  %s = %q\n", name, runewidth.Truncate(snapshot[name], 80, "…"))
	}
}

func (d *Debugger) handleStatus() {
	d.mu.Lock()
	last, done := d.last, d.done
	d.mu.Unlock()
	switch {
	case d.session.StopRequested():
		fmt.Fprintf(d.output, "Stopped.\n")
	case done:
		fmt.Fprintf(d.output, "Run finished; waiting for a jump or stop.\n")
	case d.session.Paused():
		fmt.Fprintf(d.output, "Paused before step %d/%d (%s).\n", last.StepIndex+1, last.TotalSteps, last.Action)
	default:
		fmt.Fprintf(d.output, "Running.\n")
	}
	if !last.ReloadedAt.IsZero() {
		fmt.Fprintf(d.output, "Scenario hot-reloaded at %s.\n", last.ReloadedAt.Format("15:04:05"))
	}
}

func (d *Debugger) handleHelp() {
	fmt.Fprintln(d.output, "Available commands:")
	fmt.Fprintln(d.output, "  pause (p)        Pause before the next step")
	fmt.Fprintln(d.output, "  resume (c)       Resume a paused run")
	fmt.Fprintln(d.output, "  step (n)         Execute one step while paused")
	fmt.Fprintln(d.output, "  jump <N|tag>     Jump to a step by number or tag")
	fmt.Fprintln(d.output, "  vars [filter]    Show run variables")
	fmt.Fprintln(d.output, "  status           Show run state")
	fmt.Fprintln(d.output, "  stop             Stop the run and exit")
	fmt.Fprintln(d.output, "  help (?)         Show this help")
	fmt.Fprintln(d.output, "  quit (q)         Stop the run and exit")
}
