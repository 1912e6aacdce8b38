package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"certexam/internal/model"
	"certexam/internal/session"
	"certexam/internal/transport/rest/middleware"
)

// AttemptHandler exposes the session engine's operations
type AttemptHandler struct {
	engine *session.Engine
}

// NewAttemptHandler creates a new attempt handler
func NewAttemptHandler(engine *session.Engine) *AttemptHandler {
	return &AttemptHandler{engine: engine}
}

// StartAttemptRequest is the request body for starting an attempt
type StartAttemptRequest struct {
	Mode model.AttemptMode `json:"mode"`
}

// SelectAnswersRequest is the request body for answering a question
type SelectAnswersRequest struct {
	OptionIDs []string `json:"optionIds"`
}

// NavigateRequest is the request body for moving between questions
type NavigateRequest struct {
	Index int `json:"index"`
}

// Start handles POST /v1/exams/{examId}/attempts
func (h *AttemptHandler) Start(w http.ResponseWriter, r *http.Request) {
	examID := mux.Vars(r)["examId"]
	userID := middleware.GetUserID(r.Context())

	var req StartAttemptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Mode != model.ModeExam && req.Mode != model.ModePractice {
		writeError(w, http.StatusBadRequest, "mode must be exam or practice")
		return
	}

	s, err := h.engine.Start(r.Context(), userID, examID, req.Mode)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, h.sessionPayload(s))
}

// Get handles GET /v1/attempts/{attemptId} — the resume view.
func (h *AttemptHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.resolve(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.sessionPayload(s))
}

// SelectAnswers handles PUT /v1/attempts/{attemptId}/answers/{questionId}
func (h *AttemptHandler) SelectAnswers(w http.ResponseWriter, r *http.Request) {
	s, ok := h.resolve(w, r)
	if !ok {
		return
	}
	questionID := mux.Vars(r)["questionId"]

	var req SelectAnswersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	feedback, err := s.SelectAnswers(questionID, req.OptionIDs)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	response := map[string]interface{}{"status": "accepted"}
	if feedback != nil {
		response["feedback"] = feedback
	}
	writeJSON(w, http.StatusOK, response)
}

// Navigate handles POST /v1/attempts/{attemptId}/navigate
func (h *AttemptHandler) Navigate(w http.ResponseWriter, r *http.Request) {
	s, ok := h.resolve(w, r)
	if !ok {
		return
	}

	var req NavigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	index := s.Navigate(req.Index)
	writeJSON(w, http.StatusOK, map[string]int{"currentQuestionIndex": index})
}

// ToggleFlag handles POST /v1/attempts/{attemptId}/flags/{index}
func (h *AttemptHandler) ToggleFlag(w http.ResponseWriter, r *http.Request) {
	s, ok := h.resolve(w, r)
	if !ok {
		return
	}

	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		writeError(w, http.StatusBadRequest, "index must be an integer")
		return
	}

	flagged := s.ToggleFlag(index)
	writeJSON(w, http.StatusOK, map[string]interface{}{"index": index, "flagged": flagged})
}

// Pause handles POST /v1/attempts/{attemptId}/pause
func (h *AttemptHandler) Pause(w http.ResponseWriter, r *http.Request) {
	s, ok := h.resolve(w, r)
	if !ok {
		return
	}
	s.Pause(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"timerState": string(s.Timer().State())})
}

// Resume handles POST /v1/attempts/{attemptId}/resume
func (h *AttemptHandler) Resume(w http.ResponseWriter, r *http.Request) {
	s, ok := h.resolve(w, r)
	if !ok {
		return
	}
	s.Resume(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"timerState": string(s.Timer().State())})
}

// Submit handles POST /v1/attempts/{attemptId}/submit
func (h *AttemptHandler) Submit(w http.ResponseWriter, r *http.Request) {
	s, ok := h.resolve(w, r)
	if !ok {
		return
	}

	result, err := s.Submit(r.Context(), session.TriggerUser)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Result handles GET /v1/attempts/{attemptId}/result
func (h *AttemptHandler) Result(w http.ResponseWriter, r *http.Request) {
	s, ok := h.resolve(w, r)
	if !ok {
		return
	}

	result, err := s.Result()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// resolve loads the caller's live session or writes the error.
func (h *AttemptHandler) resolve(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	attemptID := mux.Vars(r)["attemptId"]
	userID := middleware.GetUserID(r.Context())

	s, err := h.engine.Resume(r.Context(), attemptID, userID)
	if err != nil {
		writeEngineError(w, err)
		return nil, false
	}
	return s, true
}

// questionView is the mid-attempt rendering of a question: no
// correctness flags, no explanations. Those only appear in practice
// feedback and post-submission review.
type questionView struct {
	ID                 string           `json:"id"`
	Position           int              `json:"position"`
	Text               string           `json:"text"`
	Difficulty         model.Difficulty `json:"difficulty"`
	KnowledgeAreaID    string           `json:"knowledgeAreaId"`
	RequiredSelections int              `json:"requiredSelections"`
	Options            []optionView     `json:"options"`
}

type optionView struct {
	ID     string `json:"id"`
	Letter string `json:"letter"`
	Text   string `json:"text"`
}

func (h *AttemptHandler) sessionPayload(s *session.Session) map[string]interface{} {
	state := s.State()

	questions := make([]questionView, 0, len(s.Questions()))
	for i := range s.Questions() {
		q := &s.Questions()[i]
		qv := questionView{
			ID:                 q.ID,
			Position:           q.Position,
			Text:               q.Text,
			Difficulty:         q.Difficulty,
			KnowledgeAreaID:    q.KnowledgeAreaID,
			RequiredSelections: q.RequiredSelections,
		}
		for _, opt := range q.LetteredOptions() {
			qv.Options = append(qv.Options, optionView{ID: opt.ID, Letter: opt.Letter, Text: opt.Text})
		}
		questions = append(questions, qv)
	}

	return map[string]interface{}{
		"questions": questions,
		"state":     state,
	}
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrAttemptNotFound), errors.Is(err, session.ErrExamNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrNotEnrolled):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, session.ErrRejectedSelection), errors.Is(err, session.ErrForeignQuestion):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, session.ErrNotInProgress), errors.Is(err, session.ErrNotSubmitted):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrEmptyExam):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
