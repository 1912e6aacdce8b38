package model

import "sort"

// Difficulty classifies a question
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Option is a single answer choice. Display letters are derived from
// stable sort order at render time, never stored.
type Option struct {
	ID          string `json:"id" bson:"_id"`
	Text        string `json:"text" bson:"text"`
	IsCorrect   bool   `json:"-" bson:"isCorrect"`
	Explanation string `json:"explanation,omitempty" bson:"explanation,omitempty"`
}

// Question is immutable once an attempt starts; sessions hold a
// snapshot copied from the bank at start.
type Question struct {
	ID                 string     `json:"id" bson:"_id"`
	ExamID             string     `json:"examId" bson:"examId"`
	Position           int        `json:"position" bson:"position"`
	Text               string     `json:"text" bson:"text"`
	Difficulty         Difficulty `json:"difficulty" bson:"difficulty"`
	KnowledgeAreaID    string     `json:"knowledgeAreaId" bson:"knowledgeAreaId"`
	RequiredSelections int        `json:"requiredSelections" bson:"requiredSelections"`
	Options            []Option   `json:"options" bson:"options"`
}

// HasOption reports whether the option id belongs to this question
func (q *Question) HasOption(optionID string) bool {
	for _, opt := range q.Options {
		if opt.ID == optionID {
			return true
		}
	}
	return false
}

// CorrectOptionIDs returns the ids of all correct options
func (q *Question) CorrectOptionIDs() []string {
	var ids []string
	for _, opt := range q.Options {
		if opt.IsCorrect {
			ids = append(ids, opt.ID)
		}
	}
	return ids
}

// LetteredOption pairs an option with its derived display letter
type LetteredOption struct {
	Letter string `json:"letter"`
	Option
}

// LetteredOptions assigns display letters A, B, C... by stable sort on
// (text, id) so rendering is deterministic regardless of the order the
// options were inserted in.
func (q *Question) LetteredOptions() []LetteredOption {
	sorted := make([]Option, len(q.Options))
	copy(sorted, q.Options)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Text != sorted[j].Text {
			return sorted[i].Text < sorted[j].Text
		}
		return sorted[i].ID < sorted[j].ID
	})

	lettered := make([]LetteredOption, len(sorted))
	for i, opt := range sorted {
		lettered[i] = LetteredOption{
			Letter: string(rune('A' + i)),
			Option: opt,
		}
	}
	return lettered
}

// KnowledgeArea is a weighted topic grouping used for score breakdown
type KnowledgeArea struct {
	ID               string `json:"id" bson:"_id"`
	Name             string `json:"name" bson:"name"`
	WeightPercentage int    `json:"weightPercentage" bson:"weightPercentage"`
}

// Exam is the definition an attempt runs against
type Exam struct {
	ID                         string          `json:"id" bson:"_id"`
	Title                      string          `json:"title" bson:"title"`
	PassingThresholdPercentage int             `json:"passingThresholdPercentage" bson:"passingThresholdPercentage"`
	TimeLimitSeconds           int             `json:"timeLimitSeconds" bson:"timeLimitSeconds"`
	KnowledgeAreas             []KnowledgeArea `json:"knowledgeAreas" bson:"knowledgeAreas"`
}
