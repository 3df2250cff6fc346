package stepper

import (
	"sync"
	"time"
)

// control is the block shared between the goroutine running the program and
// callers of Pause, Resume and Stop.
type control struct {
	mu    sync.Mutex
	state State
	step  int
	cause error

	// wake is closed and replaced whenever the state changes.
	wake chan struct{}
	// done is closed once the run is aborted.
	done chan struct{}
}

func (c *control) broadcast() {
	close(c.wake)
	c.wake = make(chan struct{})
}

func (c *control) start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = Running
	c.step = 0
	c.cause = nil
	c.wake = make(chan struct{})
	c.done = make(chan struct{})
}

// finish records the final state of a run.
func (c *control) finish(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

func (c *control) pause() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Running || c.cause != nil {
		return false
	}
	c.state = Paused
	c.broadcast()
	return true
}

func (c *control) resume() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Paused {
		return false
	}
	c.state = Running
	c.broadcast()
	return true
}

// abort ends the active run with cause. Only the first cause is kept.
func (c *control) abort(cause error) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.state.Active() || c.cause != nil {
		return false
	}
	c.cause = cause
	c.state = Stopped
	close(c.done)
	c.broadcast()
	return true
}

func (c *control) snapshot() ControlState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ControlState{
		Running: c.state.Active(),
		Paused:  c.state == Paused,
		Step:    c.step,
	}
}

func (c *control) current() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *control) abortCause() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cause
}

// await parks the caller while the run is paused, re-checking at least once
// per poll interval. It returns the abort cause, nil if the run may go on.
func (c *control) await(poll time.Duration) error {
	for {
		c.mu.Lock()
		state, wake, cause := c.state, c.wake, c.cause
		c.mu.Unlock()
		if cause != nil {
			return cause
		}
		if state != Paused {
			return nil
		}
		t := time.NewTimer(poll)
		select {
		case <-wake:
		case <-t.C:
		}
		t.Stop()
	}
}

// advance counts a step unless limit steps were already taken.
func (c *control) advance(limit int) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if limit > 0 && c.step >= limit {
		return c.step, false
	}
	c.step++
	return c.step, true
}

// sleep waits for d or until the run is aborted.
func (c *control) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-done:
	}
}
