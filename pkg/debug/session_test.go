package debug

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func update(idx int) Update {
	return Update{
		Scenario:   "login",
		Account:    "acct-1",
		StepIndex:  idx,
		TotalSteps: 5,
		Action:     "goto",
	}
}

func TestBeforeStepPassesThroughWhenRunning(t *testing.T) {
	t.Parallel()

	s := NewSession()
	d := s.BeforeStep(update(0))
	assert.False(t, d.Stop)
	assert.False(t, d.IsJump())
}

func TestBeforeStepBlocksUntilResume(t *testing.T) {
	t.Parallel()

	s := NewSession()
	s.Pause()

	released := make(chan Decision, 1)
	go func() {
		released <- s.BeforeStep(update(1))
	}()

	select {
	case <-released:
		t.Fatal("BeforeStep returned while paused")
	case <-time.After(50 * time.Millisecond):
	}

	s.Resume()
	select {
	case d := <-released:
		assert.False(t, d.Stop)
	case <-time.After(time.Second):
		t.Fatal("BeforeStep did not return after resume")
	}
}

func TestJumpIssuedWhilePausedIsReturnedExactlyOnce(t *testing.T) {
	t.Parallel()

	s := NewSession()
	s.Pause()

	released := make(chan Decision, 1)
	go func() {
		released <- s.BeforeStep(update(1))
	}()
	time.Sleep(20 * time.Millisecond)

	s.RequestJumpToStep(4) // one-based; implicitly resumes

	select {
	case d := <-released:
		require.NotNil(t, d.JumpToIndex)
		assert.Equal(t, 3, *d.JumpToIndex)
	case <-time.After(time.Second):
		t.Fatal("BeforeStep did not return after jump request")
	}

	// A second consume within the same step observes no pending jump.
	assert.False(t, s.ConsumeJump().IsJump())
}

func TestJumpSlotHoldsOneEntry(t *testing.T) {
	t.Parallel()

	s := NewSession()
	s.RequestJumpToStep(2)
	s.RequestJumpToTag("retry")

	d := s.ConsumeJump()
	assert.Nil(t, d.JumpToIndex)
	assert.Equal(t, "retry", d.JumpToTag)
	assert.False(t, s.ConsumeJump().IsJump())
}

func TestStopIsMonotonic(t *testing.T) {
	t.Parallel()

	s := NewSession()
	s.RequestStop()

	assert.True(t, s.BeforeStep(update(0)).Stop)

	// Later resume/jump calls cannot clear the stop.
	s.Resume()
	s.RequestJumpToStep(3)
	assert.True(t, s.BeforeStep(update(1)).Stop)
	assert.True(t, s.WaitForCommand().Stop)
}

func TestStopWinsOverPendingJump(t *testing.T) {
	t.Parallel()

	s := NewSession()
	s.Pause()

	released := make(chan Decision, 1)
	go func() {
		released <- s.BeforeStep(update(1))
	}()
	time.Sleep(20 * time.Millisecond)

	s.RequestJumpToStep(4)
	s.RequestStop()

	select {
	case d := <-released:
		assert.True(t, d.Stop)
	case <-time.After(time.Second):
		t.Fatal("BeforeStep did not return")
	}
}

func TestPauseAndResumeAreIdempotent(t *testing.T) {
	t.Parallel()

	s := NewSession()
	s.Pause()
	s.Pause()
	s.Pause()

	released := make(chan struct{})
	go func() {
		s.BeforeStep(update(0))
		close(released)
	}()
	time.Sleep(20 * time.Millisecond)

	// One resume releases the waiter regardless of how many pauses ran.
	s.Resume()
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("single resume did not release the latch")
	}
}

func TestStepOnceGrantsSinglePass(t *testing.T) {
	t.Parallel()

	s := NewSession()
	s.Pause()

	released := make(chan struct{}, 2)
	go func() {
		s.BeforeStep(update(0))
		released <- struct{}{}
		s.BeforeStep(update(1))
		released <- struct{}{}
	}()
	time.Sleep(20 * time.Millisecond)

	s.StepOnce()
	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("StepOnce did not release the first gate")
	}

	// Still paused: the second gate must hold.
	select {
	case <-released:
		t.Fatal("second step ran without a new grant")
	case <-time.After(50 * time.Millisecond):
	}
	s.RequestStop()
	<-released
}

func TestWaitForCommandRePausesOnBareResume(t *testing.T) {
	t.Parallel()

	s := NewSession()
	s.Pause()

	done := make(chan Decision, 1)
	go func() {
		done <- s.WaitForCommand()
	}()
	time.Sleep(20 * time.Millisecond)

	// Bare resume: no jump selected, so the session re-pauses and keeps
	// waiting instead of free-running.
	s.Resume()
	select {
	case <-done:
		t.Fatal("WaitForCommand returned on a bare resume")
	case <-time.After(50 * time.Millisecond):
	}
	assert.True(t, s.Paused())

	s.RequestJumpToStep(2)
	select {
	case d := <-done:
		require.NotNil(t, d.JumpToIndex)
		assert.Equal(t, 1, *d.JumpToIndex)
	case <-time.After(time.Second):
		t.Fatal("WaitForCommand did not return after a jump")
	}
}

func TestNotifyBrowserClosedWakesWaiters(t *testing.T) {
	t.Parallel()

	s := NewSession()
	s.Pause()

	done := make(chan Decision, 1)
	go func() {
		done <- s.BeforeStep(update(0))
	}()
	time.Sleep(20 * time.Millisecond)

	s.NotifyBrowserClosed()
	select {
	case d := <-done:
		assert.True(t, d.Stop)
	case <-time.After(time.Second):
		t.Fatal("waiter was not released by browser-closed notification")
	}
	assert.True(t, s.StopRequested())
}

func TestNotifyBrowserClosedForIgnoresOtherAccounts(t *testing.T) {
	t.Parallel()

	s := NewSession()
	s.BeforeStep(update(0)) // records acct-1 as current

	s.NotifyBrowserClosedFor("acct-2")
	assert.False(t, s.StopRequested())

	s.NotifyBrowserClosedFor("acct-1")
	assert.True(t, s.StopRequested())
}

func TestCallbackPanicsAreSwallowed(t *testing.T) {
	t.Parallel()

	s := NewSession(
		WithOnUpdate(func(Update) { panic("controller bug") }),
		WithOnFinished(func(bool, string) { panic("controller bug") }),
	)
	require.NotPanics(t, func() {
		s.BeforeStep(update(0))
		s.NotifyFinished(true, "")
	})
}

func TestEventsQueueNeverBlocksPublisher(t *testing.T) {
	t.Parallel()

	s := NewSession(WithQueueSize(1))
	done := make(chan struct{})
	go func() {
		// Nobody drains the queue; publishes must not stall.
		for i := 0; i < 100; i++ {
			s.BeforeStep(update(i))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a full event queue")
	}
}

func TestUpdateEventCarriesSnapshot(t *testing.T) {
	t.Parallel()

	s := NewSession()
	s.NotifyReload()
	s.BeforeStep(update(2))

	select {
	case ev := <-s.Events():
		assert.Equal(t, EventUpdate, ev.Kind)
		assert.Equal(t, "login", ev.Update.Scenario)
		assert.Equal(t, 2, ev.Update.StepIndex)
		assert.False(t, ev.Update.ReloadedAt.IsZero())
	case <-time.After(time.Second):
		t.Fatal("no update event published")
	}
}

func TestInitialStepConsumedOnce(t *testing.T) {
	t.Parallel()

	s := NewSession()
	s.SetInitialStep(3)
	idx := s.ConsumeInitialStep()
	require.NotNil(t, idx)
	assert.Equal(t, 2, *idx)
	assert.Nil(t, s.ConsumeInitialStep())
}

func TestConcurrentControllersDoNotRace(t *testing.T) {
	t.Parallel()

	s := NewSession()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				s.Pause()
				s.RequestJumpToStep(n + j)
				s.ConsumeJump()
				s.Resume()
			}
		}(i)
	}
	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			s.BeforeStep(update(i))
		}
		close(done)
	}()
	wg.Wait()
	s.RequestStop()
	<-done
}
