// Package debugger implements the interactive REPL controller for
// debug-enabled scenario runs. The run executes on its own goroutine; the
// REPL drives it through the debug session: pause, resume, single-step,
// jump and stop, with live step updates printed as they arrive.
package debugger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/chzyer/readline"

	"github.com/Tort1k558/Camouflow/pkg/debug"
	"github.com/Tort1k558/Camouflow/pkg/vars"
)

// Debugger is the REPL state: the session it controls and the profile store
// it inspects.
type Debugger struct {
	session *debug.Session
	profile *vars.Profile

	output io.Writer
	rl     *readline.Instance

	mu   sync.Mutex
	last debug.Update
	done bool
}

// New creates a debugger bound to a session. profile may be nil; the vars
// command then reports that no run is attached.
func New(session *debug.Session, profile *vars.Profile) *Debugger {
	return &Debugger{
		session: session,
		profile: profile,
		output:  os.Stdout,
	}
}

// Run starts the REPL loop and blocks until quit, stop or EOF. The event
// pump keeps printing step updates while the prompt waits.
func (d *Debugger) Run(ctx context.Context) error {
	commands := []string{"pause", "resume", "step", "jump", "stop", "vars", "status", "help", "quit"}

	completer := readline.NewPrefixCompleter()
	for _, cmd := range commands {
		completer.Children = append(completer.Children, readline.PcItem(cmd))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          d.buildPrompt(),
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	d.rl = rl
	defer rl.Close()

	pumpCtx, cancelPump := context.WithCancel(ctx)
	defer cancelPump()
	go d.pumpEvents(pumpCtx)

	fmt.Fprintf(d.output, "camouflow debugger — run paused at step boundaries\n")
	fmt.Fprintf(d.output, "Type 'help' for available commands, 'resume' to continue.\n\n")

	for {
		rl.SetPrompt(d.buildPrompt())
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				d.session.RequestStop()
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		switch parts[0] {
		case "pause", "p":
			d.handlePause()
		case "resume", "continue", "c", "r":
			d.handleResume()
		case "step", "next", "n", "s":
			d.handleStep()
		case "jump", "j":
			d.handleJump(parts)
		case "stop":
			d.handleStop()
			return nil
		case "vars", "v":
			d.handleVars(parts)
		case "status":
			d.handleStatus()
		case "help", "?":
			d.handleHelp()
		case "quit", "q":
			d.session.RequestStop()
			fmt.Fprintf(d.output, "Exiting debugger.\n")
			return nil
		default:
			fmt.Fprintf(d.output, "Unknown command: %q. Type 'help' for available commands.\n", parts[0])
		}
	}
}

// pumpEvents prints session events as they arrive, refreshing the prompt so
// asynchronous updates do not garble the input line.
func (d *Debugger) pumpEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-d.session.Events():
			if !ok {
				return
			}
			d.printEvent(ev)
		}
	}
}

func (d *Debugger) printEvent(ev debug.Event) {
	d.mu.Lock()
	switch ev.Kind {
	case debug.EventUpdate:
		d.last = ev.Update
		fmt.Fprintf(d.output, "\r-> step %d/%d %s %s\n",
			ev.Update.StepIndex+1, ev.Update.TotalSteps, ev.Update.Action, describeUpdate(ev.Update))
	case debug.EventFinished:
		d.done = true
		if ev.OK {
			fmt.Fprintf(d.output, "\rRun finished. Use 'jump N' to rerun from a step, or 'stop' to exit.\n")
		} else {
			fmt.Fprintf(d.output, "\rRun failed: %s\n", ev.Reason)
		}
	case debug.EventBrowserClosed:
		fmt.Fprintf(d.output, "\rBrowser closed; run aborted.\n")
	}
	d.mu.Unlock()
	if d.rl != nil {
		d.rl.Refresh()
	}
}

// buildPrompt shows the step position: camouflow[N/total | tag]>
func (d *Debugger) buildPrompt() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done {
		return "camouflow[done]> "
	}
	if d.last.TotalSteps == 0 {
		return "camouflow> "
	}
	label := d.last.Tag
	if label == "" {
		label = d.last.Action
	}
	return fmt.Sprintf("camouflow[%d/%d | %s]> ", d.last.StepIndex+1, d.last.TotalSteps, label)
}

func describeUpdate(u debug.Update) string {
	if u.Description != "" {
		return u.Description
	}
	return u.Tag
}
