package session

import (
	"context"
	"fmt"
	"time"

	"certexam/internal/model"
	"certexam/internal/scoring"
)

// SubmitTrigger records what initiated a submission.
type SubmitTrigger string

const (
	TriggerUser        SubmitTrigger = "user"
	TriggerTimerExpiry SubmitTrigger = "timer_expiry"
)

// Submit finalizes the attempt: freeze mutation, flush the autosave
// pipeline, score exactly once, persist status and result atomically.
// Safe to call from a user request and the timer-expiry path at the
// same instant: the accepting -> finalizing transition picks a single
// winner and every other caller gets the winner's result. Calling
// again after submission returns the stored result, never a rescore.
func (s *Session) Submit(ctx context.Context, trigger SubmitTrigger) (*model.ScoreResult, error) {
	s.subMu.Lock()
	for s.subState == submissionFinalizing {
		s.subCond.Wait()
	}
	if s.subState == submissionDone {
		result := s.result
		s.subMu.Unlock()
		return result, nil
	}
	s.subState = submissionFinalizing
	s.subMu.Unlock()

	// Freeze mutation before the snapshot is taken: an answer accepted
	// after this point would miss the score and then fail its own
	// status-filtered autosave, vanishing while the caller saw success.
	s.mu.Lock()
	s.frozen = true
	s.mu.Unlock()

	result, err := s.finalize(ctx, trigger)

	s.subMu.Lock()
	if err != nil {
		// Roll back to accepting so the caller can retry; nothing was
		// persisted. Mutation unfreezes with the rollback.
		s.mu.Lock()
		s.frozen = false
		s.mu.Unlock()
		s.subState = submissionAccepting
		s.subCond.Broadcast()
		s.subMu.Unlock()
		return nil, err
	}
	s.result = result
	s.subState = submissionDone
	s.subCond.Broadcast()
	s.subMu.Unlock()

	s.timer.Pause()
	s.stop()

	if s.events != nil {
		s.events.BroadcastToAttempt(s.attempt.ID, EventSubmitted, map[string]interface{}{
			"trigger": trigger,
			"result":  result,
		})
	}
	return result, nil
}

func (s *Session) finalize(ctx context.Context, trigger SubmitTrigger) (*model.ScoreResult, error) {
	s.mu.Lock()
	snap := s.store.snapshot(s.attempt.CurrentQuestionIndex, s.timer.Remaining())
	timeSpent := s.timeSpentLocked()
	s.mu.Unlock()

	// No answer entered within the debounce window may be lost: the
	// flush carries the newest snapshot and waits for the write.
	if err := s.autosave.Flush(ctx, snap); err != nil {
		return nil, fmt.Errorf("final flush failed: %w", err)
	}

	result, err := scoring.Score(scoring.Input{
		Questions:                  s.questions,
		Areas:                      s.exam.KnowledgeAreas,
		Answers:                    snap.Answers,
		PassingThresholdPercentage: s.exam.PassingThresholdPercentage,
		TimeSpentSeconds:           timeSpent,
		TimeLimitSeconds:           s.attempt.TimeLimitSeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("scoring failed: %w", err)
	}

	submittedAt := time.Now()
	won, err := s.attempts.FinalizeSubmission(ctx, s.attempt.ID, result, submittedAt)
	if err != nil {
		return nil, err
	}
	if !won {
		// Another writer (a concurrent instance) already submitted this
		// attempt. Adopt its stored result rather than double-scoring.
		existing, err := s.attempts.GetByID(ctx, s.attempt.ID)
		if err != nil {
			return nil, err
		}
		if existing == nil || existing.Result == nil {
			return nil, fmt.Errorf("attempt %s submitted elsewhere without a result", s.attempt.ID)
		}
		result = existing.Result
		submittedAt = *existing.SubmittedAt
	}

	s.mu.Lock()
	s.attempt.Status = model.AttemptSubmitted
	s.attempt.SubmittedAt = &submittedAt
	s.attempt.Result = result
	s.mu.Unlock()

	return result, nil
}

// timeSpentLocked derives elapsed exam time. Timed attempts count down
// from the limit; practice attempts use wall-clock since start.
func (s *Session) timeSpentLocked() int {
	if s.attempt.Mode == model.ModeExam && s.attempt.TimeLimitSeconds > 0 {
		spent := s.attempt.TimeLimitSeconds - s.timer.Remaining()
		if spent < 0 {
			spent = 0
		}
		return spent
	}
	return int(time.Since(s.attempt.StartedAt).Seconds())
}
