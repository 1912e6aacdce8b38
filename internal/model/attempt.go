package model

import "time"

// AttemptMode distinguishes a timed exam from untimed practice
type AttemptMode string

const (
	ModeExam     AttemptMode = "exam"
	ModePractice AttemptMode = "practice"
)

// AttemptStatus transitions monotonically:
// not_started -> in_progress -> submitted
type AttemptStatus string

const (
	AttemptNotStarted AttemptStatus = "not_started"
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptSubmitted  AttemptStatus = "submitted"
)

// Attempt is one user's run at one exam. Answers map question id to
// the set of selected option ids; Flags holds question indices marked
// for review (advisory only, never affects scoring).
type Attempt struct {
	ID                   string              `json:"id" bson:"_id"`
	ExamID               string              `json:"examId" bson:"examId"`
	UserID               string              `json:"userId" bson:"userId"`
	Mode                 AttemptMode         `json:"mode" bson:"mode"`
	Status               AttemptStatus       `json:"status" bson:"status"`
	StartedAt            time.Time           `json:"startedAt" bson:"startedAt"`
	SubmittedAt          *time.Time          `json:"submittedAt,omitempty" bson:"submittedAt,omitempty"`
	TimeLimitSeconds     int                 `json:"timeLimitSeconds" bson:"timeLimitSeconds"`
	TimeRemainingSeconds int                 `json:"timeRemainingSeconds" bson:"timeRemainingSeconds"`
	CurrentQuestionIndex int                 `json:"currentQuestionIndex" bson:"currentQuestionIndex"`
	Answers              map[string][]string `json:"answers" bson:"answers"`
	Flags                []int               `json:"flags" bson:"flags"`
	Result               *ScoreResult        `json:"result,omitempty" bson:"result,omitempty"`
}

// AnswerSnapshot is the full autosave payload. Writes always carry the
// complete latest state, never a diff, so replays are harmless.
type AnswerSnapshot struct {
	Answers              map[string][]string `json:"answers" bson:"answers"`
	Flags                []int               `json:"flags" bson:"flags"`
	CurrentQuestionIndex int                 `json:"currentQuestionIndex" bson:"currentQuestionIndex"`
	TimeRemainingSeconds int                 `json:"timeRemainingSeconds" bson:"timeRemainingSeconds"`
}

// SaveStatus is pushed to the client when autosave state changes
type SaveStatus string

const (
	SaveStatusSaved    SaveStatus = "saved"
	SaveStatusDegraded SaveStatus = "degraded"
)
