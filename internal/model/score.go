package model

// PerformanceLevel is the qualitative band for the overall score.
// Thresholds are inclusive on the lower bound of each band.
type PerformanceLevel string

const (
	PerformanceExcellent        PerformanceLevel = "excellent"
	PerformanceGood             PerformanceLevel = "good"
	PerformanceNeedsImprovement PerformanceLevel = "needs_improvement"
	PerformancePoor             PerformanceLevel = "poor"
)

// TimeEfficiency buckets time spent against the time limit
type TimeEfficiency string

const (
	TimeEfficiencyExcellent TimeEfficiency = "excellent"
	TimeEfficiencyGood      TimeEfficiency = "good"
	TimeEfficiencyAdequate  TimeEfficiency = "adequate"
	TimeEfficiencyRushed    TimeEfficiency = "rushed"
)

// AreaBreakdown is the per-knowledge-area slice of a score. Percentage
// comes from actual answered/correct counts; WeightPercentage is copied
// from the area definition unmodified.
type AreaBreakdown struct {
	KnowledgeAreaID  string `json:"knowledgeAreaId" bson:"knowledgeAreaId"`
	Name             string `json:"name" bson:"name"`
	Correct          int    `json:"correct" bson:"correct"`
	Total            int    `json:"total" bson:"total"`
	Percentage       int    `json:"percentage" bson:"percentage"`
	WeightPercentage int    `json:"weightPercentage" bson:"weightPercentage"`
}

// ScoreResult is produced exactly once per submitted attempt and is
// immutable afterward.
type ScoreResult struct {
	ScorePercentage    int              `json:"scorePercentage" bson:"scorePercentage"`
	CorrectAnswers     int              `json:"correctAnswers" bson:"correctAnswers"`
	TotalQuestions     int              `json:"totalQuestions" bson:"totalQuestions"`
	Passed             bool             `json:"passed" bson:"passed"`
	Breakdown          []AreaBreakdown  `json:"breakdown" bson:"breakdown"`
	OverallPerformance PerformanceLevel `json:"overallPerformance" bson:"overallPerformance"`
	TimeEfficiency     TimeEfficiency   `json:"timeEfficiency" bson:"timeEfficiency"`
	TimeSpentSeconds   int              `json:"timeSpentSeconds" bson:"timeSpentSeconds"`
}
