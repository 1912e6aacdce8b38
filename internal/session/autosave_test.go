package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"certexam/internal/model"
)

type saveRecorder struct {
	mu       sync.Mutex
	snaps    []*model.AnswerSnapshot
	statuses []model.SaveStatus
	failures int32 // remaining saves that fail
	delay    time.Duration
	inFlight int32
	maxSeen  int32
}

func (r *saveRecorder) save(ctx context.Context, snap *model.AnswerSnapshot) error {
	n := atomic.AddInt32(&r.inFlight, 1)
	defer atomic.AddInt32(&r.inFlight, -1)
	for {
		max := atomic.LoadInt32(&r.maxSeen)
		if n <= max || atomic.CompareAndSwapInt32(&r.maxSeen, max, n) {
			break
		}
	}

	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if atomic.AddInt32(&r.failures, -1) >= 0 {
		return errors.New("store unavailable")
	}

	r.mu.Lock()
	r.snaps = append(r.snaps, snap)
	r.mu.Unlock()
	return nil
}

func (r *saveRecorder) status(s model.SaveStatus, err error) {
	r.mu.Lock()
	r.statuses = append(r.statuses, s)
	r.mu.Unlock()
}

func (r *saveRecorder) saved() []*model.AnswerSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*model.AnswerSnapshot(nil), r.snaps...)
}

func snapWithIndex(i int) *model.AnswerSnapshot {
	return &model.AnswerSnapshot{CurrentQuestionIndex: i}
}

func TestAutosave_DebounceCollapsesToLatest(t *testing.T) {
	rec := &saveRecorder{failures: -1}
	a := NewAutosave(AutosaveConfig{
		Save:     rec.save,
		OnStatus: rec.status,
		Debounce: 20 * time.Millisecond,
		Backoff:  time.Millisecond,
	})

	a.Schedule(snapWithIndex(1))
	a.Schedule(snapWithIndex(2))
	a.Schedule(snapWithIndex(3))

	time.Sleep(100 * time.Millisecond)

	saved := rec.saved()
	if len(saved) != 1 {
		t.Fatalf("got %d writes, want 1 collapsed write", len(saved))
	}
	if saved[0].CurrentQuestionIndex != 3 {
		t.Errorf("saved index %d, want latest (3)", saved[0].CurrentQuestionIndex)
	}
}

func TestAutosave_FlushBypassesWindow(t *testing.T) {
	rec := &saveRecorder{failures: -1}
	a := NewAutosave(AutosaveConfig{
		Save:     rec.save,
		OnStatus: rec.status,
		Debounce: time.Hour, // window never elapses on its own
		Backoff:  time.Millisecond,
	})

	a.Schedule(snapWithIndex(1))
	if err := a.Flush(context.Background(), snapWithIndex(2)); err != nil {
		t.Fatal(err)
	}

	saved := rec.saved()
	if len(saved) != 1 {
		t.Fatalf("got %d writes, want 1 (stale pending discarded)", len(saved))
	}
	if saved[0].CurrentQuestionIndex != 2 {
		t.Errorf("flushed index %d, want the newest snapshot (2)", saved[0].CurrentQuestionIndex)
	}
}

func TestAutosave_RetrySucceedsWithinBudget(t *testing.T) {
	rec := &saveRecorder{failures: 2}
	a := NewAutosave(AutosaveConfig{
		Save:       rec.save,
		OnStatus:   rec.status,
		MaxRetries: 3,
		Backoff:    time.Millisecond,
	})

	if err := a.Flush(context.Background(), snapWithIndex(1)); err != nil {
		t.Fatalf("expected third try to succeed, got %v", err)
	}
	if len(rec.saved()) != 1 {
		t.Errorf("got %d successful writes, want 1", len(rec.saved()))
	}
}

func TestAutosave_ExhaustedRetriesSurfaceDegraded(t *testing.T) {
	rec := &saveRecorder{failures: 100}
	a := NewAutosave(AutosaveConfig{
		Save:       rec.save,
		OnStatus:   rec.status,
		MaxRetries: 2,
		Backoff:    time.Millisecond,
	})

	if err := a.Flush(context.Background(), snapWithIndex(1)); err == nil {
		t.Fatal("expected flush to report persistence failure")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.statuses) != 1 || rec.statuses[0] != model.SaveStatusDegraded {
		t.Errorf("statuses = %v, want single degraded signal", rec.statuses)
	}
}

func TestAutosave_WritesAreSerialized(t *testing.T) {
	rec := &saveRecorder{failures: -1, delay: 20 * time.Millisecond}
	a := NewAutosave(AutosaveConfig{
		Save:     rec.save,
		OnStatus: rec.status,
		Debounce: time.Millisecond,
		Backoff:  time.Millisecond,
	})

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a.Flush(context.Background(), snapWithIndex(i))
		}(i)
	}
	wg.Wait()

	if max := atomic.LoadInt32(&rec.maxSeen); max != 1 {
		t.Errorf("observed %d concurrent writes, want at most 1 in flight", max)
	}
	if len(rec.saved()) != 4 {
		t.Errorf("got %d writes, want all 4 flushes persisted", len(rec.saved()))
	}
}

func TestAutosave_SnapshotDuringInFlightWriteNotDropped(t *testing.T) {
	rec := &saveRecorder{failures: -1, delay: 30 * time.Millisecond}
	a := NewAutosave(AutosaveConfig{
		Save:     rec.save,
		OnStatus: rec.status,
		Debounce: time.Millisecond,
		Backoff:  time.Millisecond,
	})

	a.Schedule(snapWithIndex(1))
	time.Sleep(10 * time.Millisecond) // first write now in flight
	a.Schedule(snapWithIndex(2))

	time.Sleep(150 * time.Millisecond)

	saved := rec.saved()
	if len(saved) != 2 {
		t.Fatalf("got %d writes, want 2 (queued snapshot sent after in-flight)", len(saved))
	}
	if saved[1].CurrentQuestionIndex != 2 {
		t.Errorf("second write index %d, want 2", saved[1].CurrentQuestionIndex)
	}
}
