package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"certexam/internal/cache"
	"certexam/internal/model"
	"certexam/internal/repository"
)

const (
	tickInterval   = time.Second
	resyncInterval = 30 // ticks between server-truth resyncs
)

// ErrExamNotFound means no exam definition exists for the given id.
var ErrExamNotFound = errors.New("exam not found")

// ErrEmptyExam means the exam has no questions and cannot be
// attempted.
var ErrEmptyExam = errors.New("exam has no questions")

// Engine owns the live sessions, one per attempt. Attempts are fully
// independent; concurrent attempts (different users, or one user's
// tabs on different attempts) share nothing mutable.
type Engine struct {
	exams       repository.ExamRepo
	attempts    repository.AttemptRepo
	enrollments repository.EnrollmentRepo
	cache       cache.SessionCache
	events      Broadcaster
	autosaveCfg AutosaveConfig

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewEngine creates the session engine.
func NewEngine(
	exams repository.ExamRepo,
	attempts repository.AttemptRepo,
	enrollments repository.EnrollmentRepo,
	sessionCache cache.SessionCache,
) *Engine {
	return &Engine{
		exams:       exams,
		attempts:    attempts,
		enrollments: enrollments,
		cache:       sessionCache,
		sessions:    make(map[string]*Session),
	}
}

// SetBroadcaster sets the event sink for timer/save/submit events
// (the ws hub implements Broadcaster).
func (e *Engine) SetBroadcaster(b Broadcaster) {
	e.events = b
}

// SetAutosaveConfig overrides autosave tuning (tests shrink the
// debounce window).
func (e *Engine) SetAutosaveConfig(cfg AutosaveConfig) {
	e.autosaveCfg = cfg
}

// Start creates a new attempt for the user and brings its session
// live. Enrollment is checked here, once; the question set is
// snapshotted here, once.
func (e *Engine) Start(ctx context.Context, userID, examID string, mode model.AttemptMode) (*Session, error) {
	ok, err := e.enrollments.CanAttempt(ctx, userID, examID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotEnrolled
	}

	exam, err := e.exams.GetByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam == nil {
		return nil, ErrExamNotFound
	}

	questions, err := e.exams.GetQuestions(ctx, examID)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, ErrEmptyExam
	}

	timeLimit := 0
	if mode == model.ModeExam {
		timeLimit = exam.TimeLimitSeconds
	}

	attempt := &model.Attempt{
		ID:                   uuid.New().String(),
		ExamID:               examID,
		UserID:               userID,
		Mode:                 mode,
		Status:               model.AttemptNotStarted,
		StartedAt:            time.Now(),
		TimeLimitSeconds:     timeLimit,
		TimeRemainingSeconds: timeLimit,
		Answers:              make(map[string][]string),
		Flags:                []int{},
	}

	if err := e.attempts.Create(ctx, attempt); err != nil {
		return nil, err
	}
	if err := e.attempts.SetInProgress(ctx, attempt.ID); err != nil {
		return nil, err
	}
	attempt.Status = model.AttemptInProgress

	if mode == model.ModeExam && timeLimit > 0 {
		if err := e.cache.StartClock(ctx, attempt.ID, time.Duration(timeLimit)*time.Second); err != nil {
			return nil, err
		}
	}

	s := newSession(attempt, exam, questions, e.attempts, e.cache, e.events, e.autosaveCfg)
	e.register(s)

	if mode == model.ModeExam && timeLimit > 0 {
		go e.runLoop(s)
	}

	log.Printf("attempt %s started (exam %s, user %s, mode %s)", attempt.ID, examID, userID, mode)
	return s, nil
}

// Resume returns the live session for an attempt, rebuilding it from
// the durable store when this process does not hold it. The restored
// countdown is re-anchored against the Redis-held deadline.
func (e *Engine) Resume(ctx context.Context, attemptID, userID string) (*Session, error) {
	e.mu.RLock()
	s, ok := e.sessions[attemptID]
	e.mu.RUnlock()
	if ok {
		if s.UserID() != userID {
			return nil, ErrAttemptNotFound
		}
		return s, nil
	}

	attempt, err := e.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt == nil || attempt.UserID != userID {
		return nil, ErrAttemptNotFound
	}

	exam, err := e.exams.GetByID(ctx, attempt.ExamID)
	if err != nil {
		return nil, err
	}
	if exam == nil {
		return nil, ErrExamNotFound
	}

	questions, err := e.exams.GetQuestions(ctx, attempt.ExamID)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, ErrEmptyExam
	}

	live := attempt.Status == model.AttemptInProgress
	timed := attempt.Mode == model.ModeExam && attempt.TimeLimitSeconds > 0

	if live && timed {
		remaining, err := e.cache.RemainingSeconds(ctx, attemptID)
		if err != nil {
			// Clock evicted (process restart, TTL); re-anchor from the
			// last persisted remaining time.
			remaining = attempt.TimeRemainingSeconds
			if clockErr := e.cache.StartClock(ctx, attemptID, time.Duration(remaining)*time.Second); clockErr != nil {
				log.Printf("attempt %s: clock re-anchor failed: %v", attemptID, clockErr)
			}
		}
		attempt.TimeRemainingSeconds = remaining
	}

	s = newSession(attempt, exam, questions, e.attempts, e.cache, e.events, e.autosaveCfg)

	if !live {
		// Submitted attempts get a read-only view; keeping them out of
		// the registry is what bounds it to in-progress sessions.
		return s, nil
	}

	s.onStop = func() { e.evict(s) }
	e.mu.Lock()
	if existing, ok := e.sessions[attemptID]; ok {
		// Lost a resume race; use the one that won.
		e.mu.Unlock()
		s.stop()
		return existing, nil
	}
	e.sessions[attemptID] = s
	e.mu.Unlock()

	if live && timed {
		go e.runLoop(s)
		// An attempt resumed with no time left submits immediately.
		if s.Timer().State() == TimerExpired {
			go func() {
				subCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if _, err := s.Submit(subCtx, TriggerTimerExpiry); err != nil {
					log.Printf("attempt %s: expired-on-resume submit failed: %v", attemptID, err)
				}
			}()
		}
	}

	return s, nil
}

func (e *Engine) register(s *Session) {
	s.onStop = func() { e.evict(s) }
	e.mu.Lock()
	e.sessions[s.AttemptID()] = s
	e.mu.Unlock()
}

// evict drops a stopped session from the registry and clears its
// Redis state. A session that never made it into the registry (a lost
// resume race) is a no-op: its attempt's keys belong to the winner.
func (e *Engine) evict(s *Session) {
	e.mu.Lock()
	cur, ok := e.sessions[s.AttemptID()]
	if ok && cur == s {
		delete(e.sessions, s.AttemptID())
	}
	e.mu.Unlock()
	if !ok || cur != s {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.cache.Clear(ctx, s.AttemptID()); err != nil {
		log.Printf("attempt %s: cache clear failed: %v", s.AttemptID(), err)
	}
}

// runLoop drives the session's timer: one tick per second, one
// server-truth resync every 30 ticks. Resync failures are logged and
// ignored; the local countdown carries on and drift stays bounded by
// the resync interval.
func (e *Engine) runLoop(s *Session) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	ticks := 0
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.Timer().Tick()

			ticks++
			if ticks%resyncInterval == 0 {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				remaining, err := e.cache.RemainingSeconds(ctx, s.AttemptID())
				cancel()
				if err != nil {
					log.Printf("attempt %s: resync failed, keeping local countdown: %v", s.AttemptID(), err)
					continue
				}
				s.Timer().Resync(remaining)
			}
		}
	}
}
