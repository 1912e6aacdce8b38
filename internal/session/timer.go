package session

import "sync"

// TimerState is the countdown state machine. idle (practice mode) and
// expired are absorbing with respect to ticking; running and paused
// toggle via Pause/Resume; running moves to expired the instant
// remaining hits 0.
type TimerState string

const (
	TimerIdle    TimerState = "idle"
	TimerRunning TimerState = "running"
	TimerPaused  TimerState = "paused"
	TimerExpired TimerState = "expired"
)

// Timer owns remaining-time state for one attempt. Callbacks run
// outside the lock so they may call back into the session.
type Timer struct {
	mu        sync.Mutex
	state     TimerState
	remaining int
	signaled  bool // expire already fired

	onUpdate func(remaining int)
	onExpire func()
}

// NewTimer creates a running countdown with the given remaining
// seconds. A remaining value of 0 or less starts expired without
// firing callbacks; the caller decides what to do with an attempt
// that is already out of time.
func NewTimer(remaining int, onUpdate func(int), onExpire func()) *Timer {
	t := &Timer{
		state:     TimerRunning,
		remaining: remaining,
		onUpdate:  onUpdate,
		onExpire:  onExpire,
	}
	if remaining <= 0 {
		t.remaining = 0
		t.state = TimerExpired
		t.signaled = true
	}
	return t
}

// NewIdleTimer creates the inert timer used in practice mode. It
// never ticks, never expires, and ignores pause/resume/resync.
func NewIdleTimer() *Timer {
	return &Timer{state: TimerIdle}
}

// Tick decrements remaining by one second when running. On reaching 0
// it transitions to expired and fires onExpire exactly once.
func (t *Timer) Tick() {
	t.mu.Lock()
	if t.state != TimerRunning {
		t.mu.Unlock()
		return
	}
	t.remaining--
	if t.remaining < 0 {
		t.remaining = 0
	}
	remaining := t.remaining

	fireExpire := false
	if t.remaining == 0 {
		t.state = TimerExpired
		if !t.signaled {
			t.signaled = true
			fireExpire = true
		}
	}
	t.mu.Unlock()

	if t.onUpdate != nil {
		t.onUpdate(remaining)
	}
	if fireExpire && t.onExpire != nil {
		t.onExpire()
	}
}

// Pause stops ticking. No tick and no expire fires while paused.
func (t *Timer) Pause() {
	t.mu.Lock()
	if t.state == TimerRunning {
		t.state = TimerPaused
	}
	t.mu.Unlock()
}

// Resume restarts the countdown after a pause.
func (t *Timer) Resume() {
	t.mu.Lock()
	if t.state == TimerPaused {
		t.state = TimerRunning
	}
	t.mu.Unlock()
}

// Resync replaces the local replica with the server-held value. It is
// the only path allowed to increase remaining time. Idempotent: a
// resync to a value at or below 0 after expiry was signaled does
// nothing, so expire can never fire twice.
func (t *Timer) Resync(serverRemaining int) {
	if serverRemaining < 0 {
		serverRemaining = 0
	}

	t.mu.Lock()
	if t.state == TimerIdle || t.state == TimerExpired {
		t.mu.Unlock()
		return
	}

	t.remaining = serverRemaining
	remaining := t.remaining

	fireExpire := false
	if t.remaining == 0 && t.state == TimerRunning {
		t.state = TimerExpired
		if !t.signaled {
			t.signaled = true
			fireExpire = true
		}
	}
	t.mu.Unlock()

	if t.onUpdate != nil {
		t.onUpdate(remaining)
	}
	if fireExpire && t.onExpire != nil {
		t.onExpire()
	}
}

// Remaining returns the current local replica value.
func (t *Timer) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.remaining
}

// State returns the current timer state.
func (t *Timer) State() TimerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}
