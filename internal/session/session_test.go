package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"certexam/internal/model"
)

// --- fakes ---

type fakeExamRepo struct {
	exam      *model.Exam
	questions []model.Question
}

func (r *fakeExamRepo) GetByID(ctx context.Context, examID string) (*model.Exam, error) {
	if r.exam != nil && r.exam.ID == examID {
		e := *r.exam
		return &e, nil
	}
	return nil, nil
}

func (r *fakeExamRepo) GetQuestions(ctx context.Context, examID string) ([]model.Question, error) {
	return append([]model.Question(nil), r.questions...), nil
}

type fakeEnrollmentRepo struct{ allowed bool }

func (r *fakeEnrollmentRepo) CanAttempt(ctx context.Context, userID, examID string) (bool, error) {
	return r.allowed, nil
}

type fakeAttemptRepo struct {
	mu            sync.Mutex
	attempts      map[string]*model.Attempt
	saveCount     int
	finalizeCount int

	// finalizeEnter/finalizeRelease simulate slow persistence:
	// FinalizeSubmission signals finalizeEnter and then blocks until
	// finalizeRelease is closed. finalizeErr fails the next call once.
	finalizeEnter   chan struct{}
	finalizeRelease chan struct{}
	finalizeErr     error
}

func newFakeAttemptRepo() *fakeAttemptRepo {
	return &fakeAttemptRepo{attempts: make(map[string]*model.Attempt)}
}

func copyAttempt(a *model.Attempt) *model.Attempt {
	cp := *a
	cp.Answers = make(map[string][]string, len(a.Answers))
	for k, v := range a.Answers {
		cp.Answers[k] = append([]string(nil), v...)
	}
	cp.Flags = append([]int(nil), a.Flags...)
	return &cp
}

func (r *fakeAttemptRepo) Create(ctx context.Context, attempt *model.Attempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[attempt.ID] = copyAttempt(attempt)
	return nil
}

func (r *fakeAttemptRepo) GetByID(ctx context.Context, attemptID string) (*model.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[attemptID]
	if !ok {
		return nil, nil
	}
	return copyAttempt(a), nil
}

func (r *fakeAttemptRepo) ListByUser(ctx context.Context, userID string) ([]*model.Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Attempt
	for _, a := range r.attempts {
		if a.UserID == userID {
			out = append(out, copyAttempt(a))
		}
	}
	return out, nil
}

func (r *fakeAttemptRepo) SetInProgress(ctx context.Context, attemptID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[attemptID]
	if !ok || a.Status != model.AttemptNotStarted {
		return errors.New("bad transition")
	}
	a.Status = model.AttemptInProgress
	return nil
}

func (r *fakeAttemptRepo) SaveAnswers(ctx context.Context, attemptID string, snap *model.AnswerSnapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[attemptID]
	if !ok || a.Status != model.AttemptInProgress {
		return errors.New("attempt not in progress")
	}
	a.Answers = make(map[string][]string, len(snap.Answers))
	for k, v := range snap.Answers {
		a.Answers[k] = append([]string(nil), v...)
	}
	a.Flags = append([]int(nil), snap.Flags...)
	a.CurrentQuestionIndex = snap.CurrentQuestionIndex
	a.TimeRemainingSeconds = snap.TimeRemainingSeconds
	r.saveCount++
	return nil
}

func (r *fakeAttemptRepo) FinalizeSubmission(ctx context.Context, attemptID string, result *model.ScoreResult, submittedAt time.Time) (bool, error) {
	if r.finalizeEnter != nil {
		r.finalizeEnter <- struct{}{}
	}
	if r.finalizeRelease != nil {
		<-r.finalizeRelease
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finalizeErr != nil {
		err := r.finalizeErr
		r.finalizeErr = nil
		return false, err
	}
	a, ok := r.attempts[attemptID]
	if !ok {
		return false, errors.New("attempt not found")
	}
	if a.Status != model.AttemptInProgress {
		return false, nil
	}
	a.Status = model.AttemptSubmitted
	a.SubmittedAt = &submittedAt
	a.Result = result
	r.finalizeCount++
	return true, nil
}

func (r *fakeAttemptRepo) finalizations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finalizeCount
}

type fakeSessionCache struct {
	mu        sync.Mutex
	remaining int
	hasClock  bool
	statuses  []model.SaveStatus
	cleared   []string
}

func (c *fakeSessionCache) StartClock(ctx context.Context, attemptID string, limit time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remaining = int(limit.Seconds())
	c.hasClock = true
	return nil
}

func (c *fakeSessionCache) RemainingSeconds(ctx context.Context, attemptID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasClock {
		return 0, errors.New("no clock")
	}
	return c.remaining, nil
}

func (c *fakeSessionCache) Pause(ctx context.Context, attemptID string) error  { return nil }
func (c *fakeSessionCache) Resume(ctx context.Context, attemptID string) error { return nil }

func (c *fakeSessionCache) SetAnswers(ctx context.Context, attemptID string, snap *model.AnswerSnapshot) error {
	return nil
}

func (c *fakeSessionCache) SetSaveStatus(ctx context.Context, attemptID string, status model.SaveStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.statuses = append(c.statuses, status)
	return nil
}

func (c *fakeSessionCache) Clear(ctx context.Context, attemptID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hasClock = false
	c.cleared = append(c.cleared, attemptID)
	return nil
}

func (c *fakeSessionCache) clearedFor(attemptID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range c.cleared {
		if id == attemptID {
			return true
		}
	}
	return false
}

type fakeBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (b *fakeBroadcaster) BroadcastToAttempt(attemptID, msgType string, payload interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, msgType)
}

// --- fixtures ---

func testQuestions() []model.Question {
	return []model.Question{
		{
			ID: "q1", ExamID: "exam-1", Position: 0, KnowledgeAreaID: "ka-1", RequiredSelections: 1,
			Options: []model.Option{
				{ID: "q1a", Text: "alpha", IsCorrect: true},
				{ID: "q1b", Text: "bravo"},
			},
		},
		{
			ID: "q2", ExamID: "exam-1", Position: 1, KnowledgeAreaID: "ka-1", RequiredSelections: 2,
			Options: []model.Option{
				{ID: "q2a", Text: "alpha", IsCorrect: true},
				{ID: "q2b", Text: "bravo"},
				{ID: "q2c", Text: "charlie", IsCorrect: true},
			},
		},
		{
			ID: "q3", ExamID: "exam-1", Position: 2, KnowledgeAreaID: "ka-2", RequiredSelections: 1,
			Options: []model.Option{
				{ID: "q3a", Text: "alpha"},
				{ID: "q3b", Text: "bravo", IsCorrect: true},
			},
		},
	}
}

func testExam() *model.Exam {
	return &model.Exam{
		ID:                         "exam-1",
		Title:                      "Sample Certification",
		PassingThresholdPercentage: 70,
		TimeLimitSeconds:           600,
		KnowledgeAreas: []model.KnowledgeArea{
			{ID: "ka-1", Name: "Fundamentals", WeightPercentage: 60},
			{ID: "ka-2", Name: "Operations", WeightPercentage: 40},
		},
	}
}

type harness struct {
	engine   *Engine
	attempts *fakeAttemptRepo
	cache    *fakeSessionCache
	events   *fakeBroadcaster
}

func newHarness(t *testing.T, allowed bool) *harness {
	t.Helper()
	attempts := newFakeAttemptRepo()
	c := &fakeSessionCache{}
	events := &fakeBroadcaster{}

	engine := NewEngine(
		&fakeExamRepo{exam: testExam(), questions: testQuestions()},
		attempts,
		&fakeEnrollmentRepo{allowed: allowed},
		c,
	)
	engine.SetBroadcaster(events)
	engine.SetAutosaveConfig(AutosaveConfig{
		Debounce:   5 * time.Millisecond,
		MaxRetries: 2,
		Backoff:    time.Millisecond,
	})
	return &harness{engine: engine, attempts: attempts, cache: c, events: events}
}

func (h *harness) startExam(t *testing.T) *Session {
	t.Helper()
	s, err := h.engine.Start(context.Background(), "user-1", "exam-1", model.ModeExam)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.stop)
	return s
}

// --- tests ---

func TestEngine_StartRequiresEnrollment(t *testing.T) {
	h := newHarness(t, false)
	_, err := h.engine.Start(context.Background(), "user-1", "exam-1", model.ModeExam)
	if !errors.Is(err, ErrNotEnrolled) {
		t.Fatalf("expected ErrNotEnrolled, got %v", err)
	}
}

func TestEngine_StartUnknownExam(t *testing.T) {
	h := newHarness(t, true)
	_, err := h.engine.Start(context.Background(), "user-1", "no-such-exam", model.ModeExam)
	if !errors.Is(err, ErrExamNotFound) {
		t.Fatalf("expected ErrExamNotFound, got %v", err)
	}
}

func TestSession_SelectAnswersRejectsOverLimit(t *testing.T) {
	h := newHarness(t, true)
	s := h.startExam(t)

	if _, err := s.SelectAnswers("q1", []string{"q1a"}); err != nil {
		t.Fatal(err)
	}

	// q1 requires 1 selection; two must be rejected, not truncated,
	// and the prior selection must survive.
	_, err := s.SelectAnswers("q1", []string{"q1a", "q1b"})
	if !errors.Is(err, ErrRejectedSelection) {
		t.Fatalf("expected ErrRejectedSelection, got %v", err)
	}

	state := s.State()
	if got := state.Answers["q1"]; len(got) != 1 || got[0] != "q1a" {
		t.Errorf("answers[q1] = %v, want prior selection [q1a] untouched", got)
	}
}

func TestSession_SelectAnswersRejectsUnknownOption(t *testing.T) {
	h := newHarness(t, true)
	s := h.startExam(t)

	_, err := s.SelectAnswers("q1", []string{"q2a"})
	if !errors.Is(err, ErrRejectedSelection) {
		t.Fatalf("expected ErrRejectedSelection for option from another question, got %v", err)
	}
}

func TestSession_SelectAnswersRejectsForeignQuestion(t *testing.T) {
	h := newHarness(t, true)
	s := h.startExam(t)

	_, err := s.SelectAnswers("not-in-this-exam", []string{"x"})
	if !errors.Is(err, ErrForeignQuestion) {
		t.Fatalf("expected ErrForeignQuestion, got %v", err)
	}
}

func TestSession_NavigateClamps(t *testing.T) {
	h := newHarness(t, true)
	s := h.startExam(t)

	tests := []struct {
		request, want int
	}{
		{1, 1},
		{-5, 0},
		{99, 2},
		{0, 0},
	}
	for _, tc := range tests {
		if got := s.Navigate(tc.request); got != tc.want {
			t.Errorf("Navigate(%d) = %d, want %d", tc.request, got, tc.want)
		}
	}
}

func TestSession_ToggleFlag(t *testing.T) {
	h := newHarness(t, true)
	s := h.startExam(t)

	if !s.ToggleFlag(1) {
		t.Error("first toggle should flag the question")
	}
	if s.ToggleFlag(1) {
		t.Error("second toggle should clear the flag")
	}

	// Out of range is a no-op.
	if s.ToggleFlag(99) {
		t.Error("out-of-range toggle should not flag anything")
	}
}

func TestSession_ExamModeGivesNoImmediateFeedback(t *testing.T) {
	h := newHarness(t, true)
	s := h.startExam(t)

	fb, err := s.SelectAnswers("q1", []string{"q1a"})
	if err != nil {
		t.Fatal(err)
	}
	if fb != nil {
		t.Error("exam mode must not expose per-question feedback")
	}
}

func TestSession_PracticeFeedback(t *testing.T) {
	h := newHarness(t, true)
	s, err := h.engine.Start(context.Background(), "user-1", "exam-1", model.ModePractice)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.stop)

	if got := s.Timer().State(); got != TimerIdle {
		t.Fatalf("practice timer state = %s, want idle", got)
	}

	// One of two required selections: no feedback yet.
	fb, err := s.SelectAnswers("q2", []string{"q2a"})
	if err != nil {
		t.Fatal(err)
	}
	if fb != nil {
		t.Fatal("feedback before reaching required selections")
	}

	// Reaching exactly the required count evaluates immediately.
	fb, err = s.SelectAnswers("q2", []string{"q2a", "q2c"})
	if err != nil {
		t.Fatal(err)
	}
	if fb == nil || !fb.Correct {
		t.Fatalf("feedback = %+v, want correct for exact set", fb)
	}

	fb, err = s.SelectAnswers("q2", []string{"q2a", "q2b"})
	if err != nil {
		t.Fatal(err)
	}
	if fb == nil || fb.Correct {
		t.Fatalf("feedback = %+v, want incorrect for partial overlap", fb)
	}

	// Question-level feedback never produces a ScoreResult.
	if _, err := s.Result(); !errors.Is(err, ErrNotSubmitted) {
		t.Errorf("expected ErrNotSubmitted, got %v", err)
	}
	if h.attempts.finalizations() != 0 {
		t.Errorf("feedback caused %d finalizations, want 0", h.attempts.finalizations())
	}
}

func TestSession_SubmitIdempotent(t *testing.T) {
	h := newHarness(t, true)
	s := h.startExam(t)

	s.SelectAnswers("q1", []string{"q1a"})
	s.SelectAnswers("q2", []string{"q2a", "q2c"})
	s.SelectAnswers("q3", []string{"q3a"}) // wrong

	first, err := s.Submit(context.Background(), TriggerUser)
	if err != nil {
		t.Fatal(err)
	}
	if first.CorrectAnswers != 2 || first.TotalQuestions != 3 {
		t.Fatalf("correct/total = %d/%d, want 2/3", first.CorrectAnswers, first.TotalQuestions)
	}
	if first.ScorePercentage != 67 {
		t.Errorf("ScorePercentage = %d, want 67", first.ScorePercentage)
	}
	if first.Passed {
		t.Error("67 < 70 threshold, want Passed = false")
	}

	second, err := s.Submit(context.Background(), TriggerUser)
	if err != nil {
		t.Fatal(err)
	}
	if second != first {
		t.Error("re-submit returned a different result; want the stored one")
	}
	if h.attempts.finalizations() != 1 {
		t.Errorf("finalizations = %d, want exactly 1", h.attempts.finalizations())
	}

	// Mutation is frozen after submission.
	if _, err := s.SelectAnswers("q3", []string{"q3b"}); !errors.Is(err, ErrNotInProgress) {
		t.Errorf("expected ErrNotInProgress after submit, got %v", err)
	}
}

func TestSession_ConcurrentSubmitSingleWinner(t *testing.T) {
	h := newHarness(t, true)
	s := h.startExam(t)
	s.SelectAnswers("q1", []string{"q1a"})

	var wg sync.WaitGroup
	results := make([]*model.ScoreResult, 2)
	errs := make([]error, 2)
	triggers := []SubmitTrigger{TriggerUser, TriggerTimerExpiry}

	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = s.Submit(context.Background(), triggers[i])
		}(i)
	}
	wg.Wait()

	for i := 0; i < 2; i++ {
		if errs[i] != nil {
			t.Fatalf("submit %d failed: %v", i, errs[i])
		}
	}
	if results[0] != results[1] {
		t.Error("concurrent submits observed different results")
	}
	if h.attempts.finalizations() != 1 {
		t.Errorf("finalizations = %d, want exactly 1 winner", h.attempts.finalizations())
	}
}

func TestSession_MutationFrozenWhileFinalizing(t *testing.T) {
	h := newHarness(t, true)
	s := h.startExam(t)
	s.SelectAnswers("q1", []string{"q1a"})

	h.attempts.finalizeEnter = make(chan struct{})
	h.attempts.finalizeRelease = make(chan struct{})

	type submitOutcome struct {
		result *model.ScoreResult
		err    error
	}
	done := make(chan submitOutcome, 1)
	go func() {
		result, err := s.Submit(context.Background(), TriggerUser)
		done <- submitOutcome{result, err}
	}()

	// Persistence is now in flight; the scoring snapshot is already
	// taken. An answer accepted here would be lost from both the score
	// and storage, so it must be rejected instead.
	<-h.attempts.finalizeEnter

	if _, err := s.SelectAnswers("q2", []string{"q2a", "q2c"}); !errors.Is(err, ErrNotInProgress) {
		t.Errorf("SelectAnswers mid-finalize: got %v, want ErrNotInProgress", err)
	}
	if got := s.Navigate(2); got != 0 {
		t.Errorf("Navigate mid-finalize moved to %d, want frozen at 0", got)
	}
	if s.ToggleFlag(1) {
		t.Error("ToggleFlag mid-finalize flipped a flag")
	}

	close(h.attempts.finalizeRelease)
	outcome := <-done
	if outcome.err != nil {
		t.Fatal(outcome.err)
	}
	if outcome.result.CorrectAnswers != 1 {
		t.Errorf("CorrectAnswers = %d, want 1 (only the pre-submit answer)", outcome.result.CorrectAnswers)
	}

	stored, err := h.attempts.GetByID(context.Background(), s.AttemptID())
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := stored.Answers["q2"]; ok {
		t.Error("rejected mid-finalize answer reached storage")
	}
}

func TestSession_FinalizeFailureUnfreezesMutation(t *testing.T) {
	h := newHarness(t, true)
	s := h.startExam(t)
	s.SelectAnswers("q1", []string{"q1a"})

	h.attempts.finalizeErr = errors.New("store unavailable")
	if _, err := s.Submit(context.Background(), TriggerUser); err == nil {
		t.Fatal("expected submit to fail while the store is down")
	}

	// The coordinator rolled back to accepting: edits and a retried
	// submit must both work.
	if _, err := s.SelectAnswers("q2", []string{"q2a", "q2c"}); err != nil {
		t.Fatalf("SelectAnswers after rollback: %v", err)
	}

	result, err := s.Submit(context.Background(), TriggerUser)
	if err != nil {
		t.Fatal(err)
	}
	if result.CorrectAnswers != 2 {
		t.Errorf("CorrectAnswers = %d, want 2 (post-rollback answer counted)", result.CorrectAnswers)
	}
}

func TestEngine_EvictsSessionAfterSubmission(t *testing.T) {
	h := newHarness(t, true)
	s := h.startExam(t)
	s.SelectAnswers("q1", []string{"q1a"})

	if _, err := s.Submit(context.Background(), TriggerUser); err != nil {
		t.Fatal(err)
	}

	h.engine.mu.RLock()
	_, held := h.engine.sessions[s.AttemptID()]
	h.engine.mu.RUnlock()
	if held {
		t.Error("submitted session still in the registry")
	}
	if !h.cache.clearedFor(s.AttemptID()) {
		t.Error("attempt's cache keys not cleared after submission")
	}

	// A later lookup rebuilds a read-only view from the store without
	// re-entering the registry.
	resumed, err := h.engine.Resume(context.Background(), s.AttemptID(), "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if result, err := resumed.Result(); err != nil || result == nil {
		t.Fatalf("stored result unavailable after eviction: %v", err)
	}
	h.engine.mu.RLock()
	_, held = h.engine.sessions[s.AttemptID()]
	h.engine.mu.RUnlock()
	if held {
		t.Error("read-only view of a submitted attempt re-entered the registry")
	}
}

func TestEngine_ResumeEmptyBank(t *testing.T) {
	h := newHarness(t, true)
	s := h.startExam(t)

	// The bank vanished between start and resume (exam unpublished);
	// a fresh process must refuse to bring the session up.
	engine2 := NewEngine(
		&fakeExamRepo{exam: testExam()},
		h.attempts,
		&fakeEnrollmentRepo{allowed: true},
		h.cache,
	)
	if _, err := engine2.Resume(context.Background(), s.AttemptID(), "user-1"); !errors.Is(err, ErrEmptyExam) {
		t.Fatalf("expected ErrEmptyExam, got %v", err)
	}
}

func TestSession_TimerExpiryAutoSubmits(t *testing.T) {
	h := newHarness(t, true)
	s := h.startExam(t)
	s.SelectAnswers("q1", []string{"q1a"})

	// Drive the countdown to zero by hand instead of waiting wall time.
	for i := 0; i < 600; i++ {
		s.Timer().Tick()
	}

	deadline := time.After(2 * time.Second)
	var result *model.ScoreResult
	var err error
	for {
		if result, err = s.Result(); err == nil {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timer expiry did not trigger a submission")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if result.TimeSpentSeconds != 600 {
		t.Errorf("TimeSpentSeconds = %d, want full limit 600", result.TimeSpentSeconds)
	}
	if h.attempts.finalizations() != 1 {
		t.Errorf("finalizations = %d, want 1", h.attempts.finalizations())
	}
}

func TestEngine_ResumeRestoresState(t *testing.T) {
	h := newHarness(t, true)
	s := h.startExam(t)
	attemptID := s.AttemptID()

	s.SelectAnswers("q1", []string{"q1a"})
	s.Navigate(2)
	s.ToggleFlag(1)

	// Let the debounced autosave land.
	time.Sleep(100 * time.Millisecond)
	s.stop()

	// Fresh engine over the same stores stands in for a new process.
	engine2 := NewEngine(
		&fakeExamRepo{exam: testExam(), questions: testQuestions()},
		h.attempts,
		&fakeEnrollmentRepo{allowed: true},
		h.cache,
	)
	resumed, err := engine2.Resume(context.Background(), attemptID, "user-1")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(resumed.stop)

	state := resumed.State()
	if got := state.Answers["q1"]; len(got) != 1 || got[0] != "q1a" {
		t.Errorf("restored answers[q1] = %v, want [q1a]", got)
	}
	if state.Attempt.CurrentQuestionIndex != 2 {
		t.Errorf("restored index = %d, want 2", state.Attempt.CurrentQuestionIndex)
	}
	if len(state.Flags) != 1 || state.Flags[0] != 1 {
		t.Errorf("restored flags = %v, want [1]", state.Flags)
	}
	if state.TimerState != TimerRunning {
		t.Errorf("restored timer state = %s, want running", state.TimerState)
	}
}

func TestEngine_ResumeRejectsForeignUser(t *testing.T) {
	h := newHarness(t, true)
	s := h.startExam(t)

	_, err := h.engine.Resume(context.Background(), s.AttemptID(), "someone-else")
	if !errors.Is(err, ErrAttemptNotFound) {
		t.Fatalf("expected ErrAttemptNotFound for foreign user, got %v", err)
	}
}
