package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"certexam/internal/cache"
	"certexam/internal/model"
	"certexam/internal/repository"
	"certexam/internal/scoring"
)

var (
	// ErrRejectedSelection means the selection exceeded the question's
	// required count or referenced an option the question does not
	// have. Prior state stays untouched; the engine rejects, it never
	// truncates.
	ErrRejectedSelection = errors.New("selection rejected")

	// ErrForeignQuestion means the question does not belong to the
	// attempt's exam.
	ErrForeignQuestion = errors.New("question does not belong to this attempt")

	// ErrNotInProgress means the attempt no longer accepts mutation.
	ErrNotInProgress = errors.New("attempt is not in progress")

	// ErrAttemptNotFound means no attempt exists for the given id.
	ErrAttemptNotFound = errors.New("attempt not found")

	// ErrNotEnrolled means the user may not attempt this exam.
	ErrNotEnrolled = errors.New("user is not enrolled for this exam")

	// ErrNotSubmitted means a result or review was requested before
	// the attempt was submitted.
	ErrNotSubmitted = errors.New("attempt has not been submitted")
)

// Broadcaster pushes session events to whoever is watching the attempt
// (implemented by the ws hub; avoids an import cycle with transport).
type Broadcaster interface {
	BroadcastToAttempt(attemptID string, msgType string, payload interface{})
}

// Event message types pushed over the broadcaster.
const (
	EventTimerUpdate  = "timer_update"
	EventTimerExpired = "timer_expired"
	EventSaveStatus   = "save_status"
	EventSubmitted    = "submitted"
)

type submissionState int

const (
	submissionAccepting submissionState = iota
	submissionFinalizing
	submissionDone
)

// Session drives one attempt from start to submission: navigation,
// answer capture, flags, timing, autosave scheduling, and the handoff
// to the submission coordinator. One instance per live attempt; fully
// independent of every other attempt.
type Session struct {
	mu sync.Mutex

	attempt   *model.Attempt
	exam      *model.Exam
	questions []model.Question
	byID      map[string]*model.Question

	// frozen blocks answer/navigation/flag mutation while the
	// submission coordinator is finalizing, before the persisted
	// status flips. Cleared only on finalize rollback.
	frozen bool

	store    *answerStore
	timer    *Timer
	autosave *Autosave

	attempts repository.AttemptRepo
	cache    cache.SessionCache
	events   Broadcaster

	// submission coordinator: accepting -> finalizing -> done
	subMu    sync.Mutex
	subCond  *sync.Cond
	subState submissionState
	result   *model.ScoreResult

	stopOnce sync.Once
	stopCh   chan struct{}
	onStop   func() // set by the engine; evicts the registry entry
}

// CurrentState is the resume view returned to clients.
type CurrentState struct {
	Attempt              *model.Attempt      `json:"attempt"`
	TotalQuestions       int                 `json:"totalQuestions"`
	Answers              map[string][]string `json:"answers"`
	Flags                []int               `json:"flags"`
	TimeRemainingSeconds int                 `json:"timeRemainingSeconds"`
	TimerState           TimerState          `json:"timerState"`
}

func newSession(
	attempt *model.Attempt,
	exam *model.Exam,
	questions []model.Question,
	attempts repository.AttemptRepo,
	sessionCache cache.SessionCache,
	events Broadcaster,
	autosaveCfg AutosaveConfig,
) *Session {
	s := &Session{
		attempt:   attempt,
		exam:      exam,
		questions: questions,
		byID:      make(map[string]*model.Question, len(questions)),
		store:     newAnswerStore(),
		attempts:  attempts,
		cache:     sessionCache,
		events:    events,
		stopCh:    make(chan struct{}),
	}
	s.subCond = sync.NewCond(&s.subMu)
	for i := range s.questions {
		s.byID[s.questions[i].ID] = &s.questions[i]
	}
	s.store.restore(attempt.Answers, attempt.Flags)

	if attempt.Status == model.AttemptSubmitted {
		s.subState = submissionDone
		s.result = attempt.Result
	}

	if autosaveCfg.Save == nil {
		autosaveCfg.Save = s.persistSnapshot
	}
	if autosaveCfg.OnStatus == nil {
		autosaveCfg.OnStatus = s.publishSaveStatus
	}
	s.autosave = NewAutosave(autosaveCfg)

	if attempt.Mode == model.ModeExam && attempt.Status == model.AttemptInProgress {
		s.timer = NewTimer(attempt.TimeRemainingSeconds, s.onTimerUpdate, s.onTimerExpire)
	} else {
		s.timer = NewIdleTimer()
	}
	return s
}

// AttemptID returns the attempt id this session drives.
func (s *Session) AttemptID() string {
	return s.attempt.ID
}

// UserID returns the owning user's opaque id.
func (s *Session) UserID() string {
	return s.attempt.UserID
}

// Mode returns the attempt mode.
func (s *Session) Mode() model.AttemptMode {
	return s.attempt.Mode
}

// Timer exposes the timer controller (read paths and the run loop).
func (s *Session) Timer() *Timer {
	return s.timer
}

// State snapshots the session for resume/inspection.
func (s *Session) State() *CurrentState {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.store.snapshot(s.attempt.CurrentQuestionIndex, s.timer.Remaining())
	attempt := *s.attempt
	attempt.Answers = snap.Answers
	attempt.Flags = snap.Flags
	attempt.TimeRemainingSeconds = snap.TimeRemainingSeconds

	return &CurrentState{
		Attempt:              &attempt,
		TotalQuestions:       len(s.questions),
		Answers:              snap.Answers,
		Flags:                snap.Flags,
		TimeRemainingSeconds: snap.TimeRemainingSeconds,
		TimerState:           s.timer.State(),
	}
}

// Questions returns the attempt's immutable question snapshot.
func (s *Session) Questions() []model.Question {
	return s.questions
}

// Exam returns the exam definition the attempt runs against.
func (s *Session) Exam() *model.Exam {
	return s.exam
}

// SelectAnswers validates and replaces the answer set for a question,
// then schedules an autosave. In practice mode, a selection reaching
// exactly the required count returns immediate per-question feedback
// computed with the same rule final scoring uses.
func (s *Session) SelectAnswers(questionID string, optionIDs []string) (*model.PracticeFeedback, error) {
	s.mu.Lock()

	if s.frozen || s.attempt.Status != model.AttemptInProgress {
		s.mu.Unlock()
		return nil, ErrNotInProgress
	}

	q, ok := s.byID[questionID]
	if !ok {
		s.mu.Unlock()
		return nil, ErrForeignQuestion
	}

	if len(optionIDs) > q.RequiredSelections {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %d selections exceed required %d", ErrRejectedSelection, len(optionIDs), q.RequiredSelections)
	}
	seen := make(map[string]bool, len(optionIDs))
	for _, optID := range optionIDs {
		if !q.HasOption(optID) {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: unknown option %s", ErrRejectedSelection, optID)
		}
		if seen[optID] {
			s.mu.Unlock()
			return nil, fmt.Errorf("%w: duplicate option %s", ErrRejectedSelection, optID)
		}
		seen[optID] = true
	}

	s.store.set(questionID, optionIDs)
	snap := s.store.snapshot(s.attempt.CurrentQuestionIndex, s.timer.Remaining())

	var feedback *model.PracticeFeedback
	if s.attempt.Mode == model.ModePractice && len(optionIDs) == q.RequiredSelections {
		feedback = buildPracticeFeedback(q, optionIDs)
	}
	s.mu.Unlock()

	s.autosave.Schedule(snap)
	return feedback, nil
}

// Navigate moves the current question index, clamping out-of-range
// requests instead of erroring. Navigation never fails and never loses
// answers: the moved-to index rides along on the next autosave.
func (s *Session) Navigate(index int) int {
	s.mu.Lock()

	if index < 0 {
		index = 0
	}
	if max := len(s.questions) - 1; index > max {
		index = max
	}
	if s.frozen || s.attempt.Status != model.AttemptInProgress {
		current := s.attempt.CurrentQuestionIndex
		s.mu.Unlock()
		return current
	}

	s.attempt.CurrentQuestionIndex = index
	snap := s.store.snapshot(index, s.timer.Remaining())
	s.mu.Unlock()

	s.autosave.Schedule(snap)
	return index
}

// ToggleFlag flips the review flag on a question index and reports the
// new state. Flags are advisory and never affect scoring.
func (s *Session) ToggleFlag(index int) bool {
	s.mu.Lock()

	if index < 0 || index >= len(s.questions) || s.frozen || s.attempt.Status != model.AttemptInProgress {
		flagged := s.store.flagged(index)
		s.mu.Unlock()
		return flagged
	}

	flagged := s.store.toggleFlag(index)
	snap := s.store.snapshot(s.attempt.CurrentQuestionIndex, s.timer.Remaining())
	s.mu.Unlock()

	s.autosave.Schedule(snap)
	return flagged
}

// Pause suspends the countdown. In-flight autosave writes are not
// cancelled, only future ticks.
func (s *Session) Pause(ctx context.Context) {
	s.timer.Pause()
	if s.attempt.Mode == model.ModeExam {
		if err := s.cache.Pause(ctx, s.attempt.ID); err != nil {
			log.Printf("attempt %s: pause bookkeeping failed: %v", s.attempt.ID, err)
		}
	}
}

// Resume restarts the countdown after a pause.
func (s *Session) Resume(ctx context.Context) {
	if s.attempt.Mode == model.ModeExam {
		if err := s.cache.Resume(ctx, s.attempt.ID); err != nil {
			log.Printf("attempt %s: resume bookkeeping failed: %v", s.attempt.ID, err)
		}
	}
	s.timer.Resume()
}

// Result returns the stored score for a submitted attempt.
func (s *Session) Result() (*model.ScoreResult, error) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if s.subState != submissionDone || s.result == nil {
		return nil, ErrNotSubmitted
	}
	return s.result, nil
}

// persistSnapshot is the autosave pipeline's write: the durable store
// first, then the Redis mirror kept as the live-state replica.
func (s *Session) persistSnapshot(ctx context.Context, snap *model.AnswerSnapshot) error {
	if err := s.attempts.SaveAnswers(ctx, s.attempt.ID, snap); err != nil {
		return err
	}
	if err := s.cache.SetAnswers(ctx, s.attempt.ID, snap); err != nil {
		// The mirror is best effort; the durable write already landed.
		log.Printf("attempt %s: answer mirror write failed: %v", s.attempt.ID, err)
	}
	return nil
}

// publishSaveStatus surfaces autosave health without ever blocking
// editing. Losing a user's in-progress exam is the worst failure mode
// there is; a degraded save is a status line, not an abort.
func (s *Session) publishSaveStatus(status model.SaveStatus, err error) {
	if err != nil {
		log.Printf("attempt %s: autosave degraded: %v", s.attempt.ID, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if cacheErr := s.cache.SetSaveStatus(ctx, s.attempt.ID, status); cacheErr != nil {
		log.Printf("attempt %s: save status cache write failed: %v", s.attempt.ID, cacheErr)
	}

	if s.events != nil {
		payload := map[string]interface{}{"status": status}
		if err != nil {
			payload["error"] = err.Error()
		}
		s.events.BroadcastToAttempt(s.attempt.ID, EventSaveStatus, payload)
	}
}

func (s *Session) onTimerUpdate(remaining int) {
	s.mu.Lock()
	s.attempt.TimeRemainingSeconds = remaining
	s.mu.Unlock()

	if s.events != nil {
		s.events.BroadcastToAttempt(s.attempt.ID, EventTimerUpdate, map[string]interface{}{
			"remainingSeconds": remaining,
		})
	}
}

func (s *Session) onTimerExpire() {
	if s.events != nil {
		s.events.BroadcastToAttempt(s.attempt.ID, EventTimerExpired, map[string]interface{}{
			"remainingSeconds": 0,
		})
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := s.Submit(ctx, TriggerTimerExpiry); err != nil {
			log.Printf("attempt %s: timer-expiry submit failed: %v", s.attempt.ID, err)
		}
	}()
}

// stop ends the background run loop and hands the session back to the
// engine for eviction (after submission).
func (s *Session) stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if s.onStop != nil {
			s.onStop()
		}
	})
}

func buildPracticeFeedback(q *model.Question, selected []string) *model.PracticeFeedback {
	selectedSet := make(map[string]bool, len(selected))
	for _, id := range selected {
		selectedSet[id] = true
	}

	fb := &model.PracticeFeedback{
		QuestionID:       q.ID,
		Correct:          scoring.QuestionCorrect(q, selected),
		CorrectOptionIDs: q.CorrectOptionIDs(),
	}
	for _, opt := range q.LetteredOptions() {
		fb.Options = append(fb.Options, model.ReviewOption{
			ID:          opt.ID,
			Letter:      opt.Letter,
			Text:        opt.Text,
			Correct:     opt.IsCorrect,
			Selected:    selectedSet[opt.ID],
			Explanation: opt.Explanation,
		})
	}
	return fb
}
