package runtime

import "fmt"

// Status is the closed set of step outcomes.
type Status int

const (
	// StatusNext advances to the step's default successor.
	StatusNext Status = iota
	// StatusJump transfers control to the step tagged JumpTarget.
	StatusJump
	// StatusStop fails the scenario with StopReason, unless the step has
	// an error branch to recover through.
	StatusStop
	// StatusEnd finishes the scenario successfully.
	StatusEnd
)

// Outcome is the value every step handler returns. Handlers never panic
// across the dispatch boundary and never signal control flow with errors;
// the executor branches on Status alone.
type Outcome struct {
	Status     Status
	JumpTarget string
	StopReason string
}

// Next advances to the default successor.
func Next() Outcome { return Outcome{Status: StatusNext} }

// Jump transfers control to the step tagged tag.
func Jump(tag string) Outcome { return Outcome{Status: StatusJump, JumpTarget: tag} }

// Stop fails the step with a reason.
func Stop(reason string) Outcome { return Outcome{Status: StatusStop, StopReason: reason} }

// Stopf fails the step with a formatted reason.
func Stopf(format string, args ...any) Outcome {
	return Stop(fmt.Sprintf(format, args...))
}

// End finishes the scenario successfully.
func End() Outcome { return Outcome{Status: StatusEnd} }
