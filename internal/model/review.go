package model

// ReviewOption is one answer choice in the post-submission review,
// with the derived display letter and full correctness information.
type ReviewOption struct {
	ID          string `json:"id"`
	Letter      string `json:"letter"`
	Text        string `json:"text"`
	Correct     bool   `json:"correct"`
	Selected    bool   `json:"selected"`
	Explanation string `json:"explanation,omitempty"`
}

// ReviewQuestion shows the user's selection against the correct one
type ReviewQuestion struct {
	QuestionID string         `json:"questionId"`
	Position   int            `json:"position"`
	Text       string         `json:"text"`
	Difficulty Difficulty     `json:"difficulty"`
	Answered   bool           `json:"answered"`
	Correct    bool           `json:"correct"`
	Options    []ReviewOption `json:"options"`
}

// AreaOutline carries the weight-derived expected question count
// alongside the actual count. The expected count is a display-only
// approximation; scoring always uses actual counts.
type AreaOutline struct {
	KnowledgeAreaID   string `json:"knowledgeAreaId"`
	Name              string `json:"name"`
	WeightPercentage  int    `json:"weightPercentage"`
	ExpectedQuestions int    `json:"expectedQuestions"`
	ActualQuestions   int    `json:"actualQuestions"`
}

// ExamReviewData is the read-only view assembled after submission for
// review UIs. No mutation entry points hang off it.
type ExamReviewData struct {
	AttemptID string           `json:"attemptId"`
	ExamID    string           `json:"examId"`
	ExamTitle string           `json:"examTitle"`
	Questions []ReviewQuestion `json:"questions"`
	Areas     []AreaOutline    `json:"areas"`
	Result    *ScoreResult     `json:"result"`
}

// PracticeFeedback is the transient single-question feedback returned
// in practice mode once a selection reaches the required count. It
// never touches the attempt's ScoreResult.
type PracticeFeedback struct {
	QuestionID       string         `json:"questionId"`
	Correct          bool           `json:"correct"`
	CorrectOptionIDs []string       `json:"correctOptionIds"`
	Options          []ReviewOption `json:"options"`
}
