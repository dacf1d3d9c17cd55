// Package debug implements the cooperative pause/resume/stop/jump protocol
// between an operator-facing controller and the goroutine driving a
// scenario execution. All controls are applied at step boundaries; a step
// already delegated to the page driver runs to its own completion first.
package debug

import (
	"strings"
	"sync"
	"time"
)

// Update is the immutable step snapshot published to the controller before
// each step executes.
type Update struct {
	Scenario    string
	Account     string
	StepIndex   int
	TotalSteps  int
	Action      string
	Description string
	Tag         string
	// ReloadedAt is the time of the last hot reload, zero when none
	// happened yet.
	ReloadedAt time.Time
}

// Decision is what the execution goroutine learns when it wakes up from a
// debug gate: stop, jump somewhere, or proceed with the default next step.
type Decision struct {
	Stop        bool
	JumpToIndex *int
	JumpToTag   string
}

// IsJump reports whether the decision carries a pending jump.
func (d Decision) IsJump() bool {
	return d.JumpToIndex != nil || d.JumpToTag != ""
}

// Session is the thread-safe controller shared between the operator surface
// and the execution goroutine.
//
// One mutex guards the jump slot, the stop flag and the latch together, so
// a set-then-consume jump sequence is atomic and stop is monotonic: once
// requested, every later decision reports Stop regardless of resume or jump
// calls that follow.
type Session struct {
	mu   sync.Mutex
	cond *sync.Cond

	enabled bool
	running bool // latch: set = execution may proceed
	stopped bool // sticky, one-way
	passOne bool // one-shot step grant while paused

	jumpIndex    *int
	jumpTag      string
	initialIndex *int

	currentAccount string
	lastReload     time.Time

	events          chan Event
	onUpdate        func(Update)
	onFinished      func(ok bool, reason string)
	onBrowserClosed func()
}

// Option configures a Session.
type Option func(*Session)

// WithOnUpdate registers a callback invoked with each published snapshot.
// Panics inside the callback are swallowed; they never reach the execution
// goroutine.
func WithOnUpdate(fn func(Update)) Option {
	return func(s *Session) { s.onUpdate = fn }
}

// WithOnFinished registers a callback invoked when a debug-mode run reaches
// a terminal state.
func WithOnFinished(fn func(ok bool, reason string)) Option {
	return func(s *Session) { s.onFinished = fn }
}

// WithOnBrowserClosed registers a callback invoked when the browser session
// is reported closed.
func WithOnBrowserClosed(fn func()) Option {
	return func(s *Session) { s.onBrowserClosed = fn }
}

// WithQueueSize overrides the event queue capacity (default 64).
func WithQueueSize(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.events = make(chan Event, n)
		}
	}
}

// NewSession creates an enabled session with the latch open.
func NewSession(opts ...Option) *Session {
	s := &Session{
		enabled: true,
		running: true,
		events:  make(chan Event, 64),
	}
	s.cond = sync.NewCond(&s.mu)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled reports whether debug gating is active.
func (s *Session) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled
}

// Disable turns the session into a pass-through and releases any waiter.
func (s *Session) Disable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled = false
	s.running = true
	s.cond.Broadcast()
}

// Paused reports whether the latch is currently cleared.
func (s *Session) Paused() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled && !s.running
}

// Pause clears the latch. Repeated calls collapse to one.
func (s *Session) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.enabled {
		s.running = false
	}
}

// Resume opens the latch. Repeated calls collapse to one; a single resume
// releases the waiter no matter how many pauses preceded it.
func (s *Session) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = true
	s.cond.Broadcast()
}

// StepOnce grants exactly one pass through the before-step gate while the
// session stays paused.
func (s *Session) StepOnce() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passOne = true
	s.cond.Broadcast()
}

// RequestStop sets the sticky stop flag and wakes all waiters.
func (s *Session) RequestStop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	s.running = true
	s.cond.Broadcast()
}

// StopRequested reports the sticky stop flag.
func (s *Session) StopRequested() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// RequestJumpToStep stores a pending jump by one-based step number and
// implicitly resumes. The slot holds one jump; a new request replaces any
// unconsumed one.
func (s *Session) RequestJumpToStep(stepOneBased int) {
	idx := stepOneBased - 1
	if idx < 0 {
		idx = 0
	}
	s.mu.Lock()
	s.jumpIndex = &idx
	s.jumpTag = ""
	s.running = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// RequestJumpToTag stores a pending jump by tag and implicitly resumes.
// Empty tags are ignored.
func (s *Session) RequestJumpToTag(tag string) {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return
	}
	s.mu.Lock()
	s.jumpTag = tag
	s.jumpIndex = nil
	s.running = true
	s.cond.Broadcast()
	s.mu.Unlock()
}

// ConsumeJump atomically takes the pending jump, if any. A second consume
// within the same step observes an empty slot.
func (s *Session) ConsumeJump() Decision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.consumeJumpLocked()
}

func (s *Session) consumeJumpLocked() Decision {
	idx, tag := s.jumpIndex, s.jumpTag
	s.jumpIndex = nil
	s.jumpTag = ""
	if idx != nil {
		return Decision{JumpToIndex: idx}
	}
	if tag != "" {
		return Decision{JumpToTag: tag}
	}
	return Decision{}
}

// SetInitialStep records the one-based index the next run iteration starts
// from.
func (s *Session) SetInitialStep(stepOneBased int) {
	idx := stepOneBased - 1
	if idx < 0 {
		idx = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialIndex = &idx
}

// ConsumeInitialStep takes the recorded start index, if any.
func (s *Session) ConsumeInitialStep() *int {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.initialIndex
	s.initialIndex = nil
	return idx
}

// NotifyReload records the time of a hot reload for snapshot publication.
func (s *Session) NotifyReload() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastReload = time.Now()
}

// LastReloadAt returns the last hot-reload time (zero when none).
func (s *Session) LastReloadAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReload
}

// BeforeStep is called on the execution goroutine before each step. It
// publishes the snapshot, blocks on the latch, and returns the decision:
// stop wins over any pending jump; otherwise the jump slot is consumed at
// most once.
func (s *Session) BeforeStep(u Update) Decision {
	s.mu.Lock()
	if !s.enabled {
		s.mu.Unlock()
		return Decision{}
	}
	s.currentAccount = u.Account
	u.ReloadedAt = s.lastReload
	s.mu.Unlock()

	s.publish(Event{Kind: EventUpdate, Update: u})
	s.invokeUpdate(u)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.awaitLatchLocked()
	if s.stopped {
		return Decision{Stop: true}
	}
	return s.consumeJumpLocked()
}

// WaitForCommand blocks between debug-mode run iterations until a jump is
// issued or stop is requested. A bare resume with no jump selected
// re-pauses the session instead of letting the next iteration free-run.
func (s *Session) WaitForCommand() Decision {
	for {
		s.mu.Lock()
		if s.stopped {
			s.mu.Unlock()
			return Decision{Stop: true}
		}
		s.awaitLatchLocked()
		if s.stopped {
			s.mu.Unlock()
			return Decision{Stop: true}
		}
		d := s.consumeJumpLocked()
		if d.IsJump() {
			s.mu.Unlock()
			return d
		}
		if s.enabled {
			s.running = false
		}
		s.mu.Unlock()
	}
}

// awaitLatchLocked blocks until the latch opens, stop is requested, or a
// one-shot step grant is consumed. Caller holds s.mu.
func (s *Session) awaitLatchLocked() {
	for s.enabled && !s.running && !s.stopped && !s.passOne {
		s.cond.Wait()
	}
	s.passOne = false
}

// invokeUpdate calls the registered update callback, swallowing panics.
func (s *Session) invokeUpdate(u Update) {
	if fn := s.onUpdate; fn != nil {
		safeCall(func() { fn(u) })
	}
}

// NotifyFinished reports a terminal run state to the controller.
func (s *Session) NotifyFinished(ok bool, reason string) {
	s.publish(Event{Kind: EventFinished, OK: ok, Reason: reason})
	if fn := s.onFinished; fn != nil {
		safeCall(func() { fn(ok, reason) })
	}
}

// NotifyBrowserClosed sets stop and wakes all waiters. Safe to call from
// any goroutine.
func (s *Session) NotifyBrowserClosed() {
	s.mu.Lock()
	s.stopped = true
	s.running = true
	s.cond.Broadcast()
	s.mu.Unlock()

	s.publish(Event{Kind: EventBrowserClosed})
	if fn := s.onBrowserClosed; fn != nil {
		safeCall(fn)
	}
}

// NotifyBrowserClosedFor applies NotifyBrowserClosed only when the named
// account is the one currently being debugged; closure reports for other
// accounts are ignored.
func (s *Session) NotifyBrowserClosedFor(account string) {
	s.mu.Lock()
	current := s.currentAccount
	s.mu.Unlock()
	if current != "" && account != "" && current != account {
		return
	}
	s.NotifyBrowserClosed()
}

func safeCall(fn func()) {
	defer func() { _ = recover() }()
	fn()
}
