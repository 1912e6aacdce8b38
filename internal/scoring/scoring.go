// Package scoring turns a finished answer set into a ScoreResult. It
// is pure: no storage, no clocks, no shared state. The submission
// coordinator is the only caller for final scores; practice-mode
// feedback reuses QuestionCorrect so the two paths cannot drift apart.
package scoring

import (
	"errors"
	"math"

	"certexam/internal/model"
)

// ErrEmptyBank is returned when scoring is asked to grade an attempt
// with no questions. That is a programming error upstream, not a
// degenerate score.
var ErrEmptyBank = errors.New("scoring: question bank is empty")

// Input is the validated triple the submission coordinator feeds in.
type Input struct {
	Questions                  []model.Question
	Areas                      []model.KnowledgeArea
	Answers                    map[string][]string
	PassingThresholdPercentage int
	TimeSpentSeconds           int
	TimeLimitSeconds           int // 0 means untimed (practice)
}

// QuestionCorrect applies the per-question rule: the selected set must
// equal the correct-option set exactly. All correct options selected,
// no incorrect option selected, no partial credit. An empty selection
// is always incorrect. Stored answers may carry duplicates, so the
// selection is deduplicated here rather than trusted.
func QuestionCorrect(q *model.Question, selected []string) bool {
	selectedSet := make(map[string]bool, len(selected))
	for _, id := range selected {
		selectedSet[id] = true
	}
	if len(selectedSet) == 0 {
		return false
	}
	correct := q.CorrectOptionIDs()
	if len(selectedSet) != len(correct) {
		return false
	}
	for _, id := range correct {
		if !selectedSet[id] {
			return false
		}
	}
	return true
}

// Score computes the full result for a submitted attempt.
func Score(in Input) (*model.ScoreResult, error) {
	if len(in.Questions) == 0 {
		return nil, ErrEmptyBank
	}

	correctCount := 0
	areaCorrect := make(map[string]int)
	areaTotal := make(map[string]int)

	for i := range in.Questions {
		q := &in.Questions[i]
		areaTotal[q.KnowledgeAreaID]++
		if QuestionCorrect(q, in.Answers[q.ID]) {
			correctCount++
			areaCorrect[q.KnowledgeAreaID]++
		}
	}

	pct := RoundPercentage(correctCount, len(in.Questions))

	breakdown := make([]model.AreaBreakdown, 0, len(in.Areas))
	for _, area := range in.Areas {
		total := areaTotal[area.ID]
		breakdown = append(breakdown, model.AreaBreakdown{
			KnowledgeAreaID:  area.ID,
			Name:             area.Name,
			Correct:          areaCorrect[area.ID],
			Total:            total,
			Percentage:       RoundPercentage(areaCorrect[area.ID], total),
			WeightPercentage: area.WeightPercentage,
		})
	}

	return &model.ScoreResult{
		ScorePercentage:    pct,
		CorrectAnswers:     correctCount,
		TotalQuestions:     len(in.Questions),
		Passed:             pct >= in.PassingThresholdPercentage,
		Breakdown:          breakdown,
		OverallPerformance: PerformanceLevel(pct),
		TimeEfficiency:     TimeEfficiency(in.TimeSpentSeconds, in.TimeLimitSeconds),
		TimeSpentSeconds:   in.TimeSpentSeconds,
	}, nil
}

// RoundPercentage computes round-half-up 100*correct/total, returning
// 0 when total is 0 (an area with no questions scores 0, not NaN).
func RoundPercentage(correct, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(correct) / float64(total)))
}

// PerformanceLevel maps a score percentage to its band. Bounds are
// inclusive on the lower edge: 90 is excellent, 80 is good, 60 is
// needs_improvement.
func PerformanceLevel(scorePercentage int) model.PerformanceLevel {
	switch {
	case scorePercentage >= 90:
		return model.PerformanceExcellent
	case scorePercentage >= 80:
		return model.PerformanceGood
	case scorePercentage >= 60:
		return model.PerformanceNeedsImprovement
	default:
		return model.PerformancePoor
	}
}

// TimeEfficiency buckets the spent/limit ratio. The first bucket the
// ratio is strictly less than wins, so exactly 50% is "good" and 100%
// or more is always "rushed". An untimed attempt is "excellent".
func TimeEfficiency(timeSpentSeconds, timeLimitSeconds int) model.TimeEfficiency {
	if timeLimitSeconds <= 0 {
		return model.TimeEfficiencyExcellent
	}
	ratio := float64(timeSpentSeconds) / float64(timeLimitSeconds)
	switch {
	case ratio < 0.5:
		return model.TimeEfficiencyExcellent
	case ratio < 0.8:
		return model.TimeEfficiencyGood
	case ratio < 0.95:
		return model.TimeEfficiencyAdequate
	default:
		return model.TimeEfficiencyRushed
	}
}

// ExpectedAreaQuestions is the weight-derived question count shown in
// review UIs. Display-only: real per-area counts drive scoring and the
// two can legitimately diverge when the bank does not match the
// declared weights.
func ExpectedAreaQuestions(weightPercentage, totalQuestions int) int {
	return int(math.Round(float64(weightPercentage) / 100 * float64(totalQuestions)))
}
