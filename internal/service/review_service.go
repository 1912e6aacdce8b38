package service

import (
	"context"
	"fmt"

	"certexam/internal/model"
	"certexam/internal/repository"
	"certexam/internal/scoring"
	"certexam/internal/session"
)

// ReviewService assembles the read-only post-submission views: the
// per-question review and the attempt history list. It never mutates
// an attempt.
type ReviewService struct {
	attempts repository.AttemptRepo
	exams    repository.ExamRepo
}

// NewReviewService creates a new review service
func NewReviewService(attempts repository.AttemptRepo, exams repository.ExamRepo) *ReviewService {
	return &ReviewService{
		attempts: attempts,
		exams:    exams,
	}
}

// BuildReview produces the full review for a submitted attempt owned
// by the given user. Per-question correctness reuses the same rule the
// final score was computed with.
func (s *ReviewService) BuildReview(ctx context.Context, attemptID, userID string) (*model.ExamReviewData, error) {
	attempt, err := s.attempts.GetByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt == nil || attempt.UserID != userID {
		return nil, session.ErrAttemptNotFound
	}
	if attempt.Status != model.AttemptSubmitted || attempt.Result == nil {
		return nil, session.ErrNotSubmitted
	}

	exam, err := s.exams.GetByID(ctx, attempt.ExamID)
	if err != nil {
		return nil, err
	}
	if exam == nil {
		return nil, fmt.Errorf("exam %s no longer exists", attempt.ExamID)
	}

	questions, err := s.exams.GetQuestions(ctx, attempt.ExamID)
	if err != nil {
		return nil, err
	}

	review := &model.ExamReviewData{
		AttemptID: attempt.ID,
		ExamID:    exam.ID,
		ExamTitle: exam.Title,
		Result:    attempt.Result,
	}

	areaCounts := make(map[string]int)
	for i := range questions {
		q := &questions[i]
		areaCounts[q.KnowledgeAreaID]++
		selected := attempt.Answers[q.ID]
		selectedSet := make(map[string]bool, len(selected))
		for _, id := range selected {
			selectedSet[id] = true
		}

		rq := model.ReviewQuestion{
			QuestionID: q.ID,
			Position:   q.Position,
			Text:       q.Text,
			Difficulty: q.Difficulty,
			Answered:   len(selected) > 0,
			Correct:    scoring.QuestionCorrect(q, selected),
		}
		for _, opt := range q.LetteredOptions() {
			rq.Options = append(rq.Options, model.ReviewOption{
				ID:          opt.ID,
				Letter:      opt.Letter,
				Text:        opt.Text,
				Correct:     opt.IsCorrect,
				Selected:    selectedSet[opt.ID],
				Explanation: opt.Explanation,
			})
		}
		review.Questions = append(review.Questions, rq)
	}

	// Expected counts are the weight-derived display approximation;
	// actual counts are what scoring used. Both are shown so the two
	// never get conflated.
	for _, area := range exam.KnowledgeAreas {
		review.Areas = append(review.Areas, model.AreaOutline{
			KnowledgeAreaID:   area.ID,
			Name:              area.Name,
			WeightPercentage:  area.WeightPercentage,
			ExpectedQuestions: scoring.ExpectedAreaQuestions(area.WeightPercentage, len(questions)),
			ActualQuestions:   areaCounts[area.ID],
		})
	}

	return review, nil
}

// History lists a user's attempts, newest first, for results UIs.
// Correct-option data never rides along; only stored results do.
func (s *ReviewService) History(ctx context.Context, userID string) ([]*model.Attempt, error) {
	return s.attempts.ListByUser(ctx, userID)
}
