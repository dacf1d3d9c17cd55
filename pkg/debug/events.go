package debug

// EventKind discriminates controller events.
type EventKind int

const (
	// EventUpdate carries a before-step snapshot.
	EventUpdate EventKind = iota + 1
	// EventFinished signals a debug-mode run reached a terminal state.
	EventFinished
	// EventBrowserClosed signals the external session went away.
	EventBrowserClosed
)

// Event is one item on the controller's bounded queue.
type Event struct {
	Kind   EventKind
	Update Update
	OK     bool
	Reason string
}

// Events exposes the bounded queue the controller polls. The execution
// goroutine never blocks on it: when the controller lags, events are
// dropped rather than stalling the run.
func (s *Session) Events() <-chan Event {
	return s.events
}

func (s *Session) publish(ev Event) {
	select {
	case s.events <- ev:
	default:
	}
}
