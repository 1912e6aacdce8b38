package session

import (
	"context"
	"sync"
	"time"

	"certexam/internal/model"
)

const (
	defaultDebounce   = 2 * time.Second
	defaultMaxRetries = 3
	defaultBackoff    = 250 * time.Millisecond
)

// SaveFunc persists a full answer snapshot for one attempt.
type SaveFunc func(ctx context.Context, snap *model.AnswerSnapshot) error

// StatusFunc receives save-health transitions. A degraded status is
// informational only; local editing continues and the next successful
// write carries the full latest state regardless.
type StatusFunc func(status model.SaveStatus, err error)

// AutosaveConfig configures the pipeline. Zero values fall back to the
// production defaults (2s debounce, 3 tries, 250ms base backoff).
type AutosaveConfig struct {
	Save       SaveFunc
	OnStatus   StatusFunc
	Debounce   time.Duration
	MaxRetries int
	Backoff    time.Duration
}

// Autosave debounces snapshot writes for one attempt. At most one
// write is in flight at any time; a newer snapshot arriving during a
// write is queued and sent immediately after, never dropped. Snapshots
// are whole-state, so only the newest one matters.
type Autosave struct {
	save       SaveFunc
	onStatus   StatusFunc
	debounce   time.Duration
	maxRetries int
	backoff    time.Duration

	mu      sync.Mutex
	cond    *sync.Cond
	timer   *time.Timer
	pending *model.AnswerSnapshot
	queued  *model.AnswerSnapshot
	writing bool
}

// NewAutosave creates the pipeline for one attempt.
func NewAutosave(cfg AutosaveConfig) *Autosave {
	a := &Autosave{
		save:       cfg.Save,
		onStatus:   cfg.OnStatus,
		debounce:   cfg.Debounce,
		maxRetries: cfg.MaxRetries,
		backoff:    cfg.Backoff,
	}
	if a.debounce <= 0 {
		a.debounce = defaultDebounce
	}
	if a.maxRetries <= 0 {
		a.maxRetries = defaultMaxRetries
	}
	if a.backoff <= 0 {
		a.backoff = defaultBackoff
	}
	a.cond = sync.NewCond(&a.mu)
	return a
}

// Schedule registers the latest snapshot and (re)starts the quiet
// window. Rapid calls within the window collapse into one write
// carrying the newest snapshot.
func (a *Autosave) Schedule(snap *model.AnswerSnapshot) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.pending = snap
	if a.timer == nil {
		a.timer = time.AfterFunc(a.debounce, a.fire)
	} else {
		a.timer.Reset(a.debounce)
	}
}

// fire runs when the quiet window elapses.
func (a *Autosave) fire() {
	a.mu.Lock()
	snap := a.pending
	a.pending = nil
	if snap == nil {
		a.mu.Unlock()
		return
	}
	if a.writing {
		// A write is in flight; this snapshot replaces any older
		// queued one and goes out right after.
		a.queued = snap
		a.mu.Unlock()
		return
	}
	a.writing = true
	a.mu.Unlock()

	go a.write(context.Background(), snap)
}

func (a *Autosave) write(ctx context.Context, snap *model.AnswerSnapshot) {
	err := a.tryWrite(ctx, snap)
	a.report(err)

	a.mu.Lock()
	next := a.queued
	a.queued = nil
	if next != nil {
		a.mu.Unlock()
		a.write(ctx, next)
		return
	}
	a.writing = false
	a.cond.Broadcast()
	a.mu.Unlock()
}

// tryWrite attempts the persistence write with bounded backoff.
func (a *Autosave) tryWrite(ctx context.Context, snap *model.AnswerSnapshot) error {
	var err error
	for attempt := 0; attempt < a.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(a.backoff << (attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if err = a.save(ctx, snap); err == nil {
			return nil
		}
	}
	return err
}

func (a *Autosave) report(err error) {
	if a.onStatus == nil {
		return
	}
	if err != nil {
		a.onStatus(model.SaveStatusDegraded, err)
	} else {
		a.onStatus(model.SaveStatusSaved, nil)
	}
}

// Flush writes the given snapshot immediately, bypassing the debounce
// window. It discards any stale pending or queued snapshot (the caller
// passes the newest state), waits out an in-flight write so writes
// stay serialized, and blocks until its own write completes. The
// submission coordinator awaits this before scoring.
func (a *Autosave) Flush(ctx context.Context, snap *model.AnswerSnapshot) error {
	a.mu.Lock()
	if a.timer != nil {
		a.timer.Stop()
	}
	a.pending = nil
	a.queued = nil
	for a.writing {
		a.cond.Wait()
	}
	a.writing = true
	a.mu.Unlock()

	err := a.tryWrite(ctx, snap)
	a.report(err)

	a.mu.Lock()
	next := a.queued
	a.queued = nil
	if next != nil {
		go a.write(context.Background(), next)
	} else {
		a.writing = false
		a.cond.Broadcast()
	}
	a.mu.Unlock()

	return err
}
