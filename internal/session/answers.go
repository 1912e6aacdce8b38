package session

import (
	"sort"

	"certexam/internal/model"
)

// answerStore is the in-memory answer and flag state for one attempt.
// Not safe for concurrent use on its own; the owning Session locks
// around every access.
type answerStore struct {
	selections map[string][]string
	flags      map[int]bool
}

func newAnswerStore() *answerStore {
	return &answerStore{
		selections: make(map[string][]string),
		flags:      make(map[int]bool),
	}
}

// restore loads persisted state when resuming an attempt.
func (s *answerStore) restore(answers map[string][]string, flags []int) {
	for qid, opts := range answers {
		s.selections[qid] = append([]string(nil), opts...)
	}
	for _, idx := range flags {
		s.flags[idx] = true
	}
}

// set replaces the selection for a question wholesale.
func (s *answerStore) set(questionID string, optionIDs []string) {
	if len(optionIDs) == 0 {
		delete(s.selections, questionID)
		return
	}
	s.selections[questionID] = append([]string(nil), optionIDs...)
}

func (s *answerStore) get(questionID string) []string {
	return s.selections[questionID]
}

// toggleFlag flips review-flag membership and reports the new state.
func (s *answerStore) toggleFlag(index int) bool {
	if s.flags[index] {
		delete(s.flags, index)
		return false
	}
	s.flags[index] = true
	return true
}

func (s *answerStore) flagged(index int) bool {
	return s.flags[index]
}

// snapshot deep-copies the current state for the autosave pipeline so
// later mutations cannot race an in-flight write.
func (s *answerStore) snapshot(currentIndex, remaining int) *model.AnswerSnapshot {
	answers := make(map[string][]string, len(s.selections))
	for qid, opts := range s.selections {
		answers[qid] = append([]string(nil), opts...)
	}
	flags := make([]int, 0, len(s.flags))
	for idx := range s.flags {
		flags = append(flags, idx)
	}
	sort.Ints(flags)

	return &model.AnswerSnapshot{
		Answers:              answers,
		Flags:                flags,
		CurrentQuestionIndex: currentIndex,
		TimeRemainingSeconds: remaining,
	}
}
