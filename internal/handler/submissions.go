package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/proctorly/proctord/internal/apperr"
	"github.com/proctorly/proctord/internal/exam"
	"github.com/proctorly/proctord/internal/model"
)

func (h *Handler) handleGetSubmission(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	sub, err := h.svc.ViewSubmission(chi.URLParam(r, "submissionID"), *user)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, sub)
}

func (h *Handler) handleListSubmissions(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	examModel, err := h.loadExam(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	if !canManage(user, examModel) {
		respondErr(w, apperr.Forbidden("not the exam creator"))
		return
	}
	subs, err := h.store.ListSubmissionsByExam(examModel.ID)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, subs)
}

func (h *Handler) handleRevise(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	var in exam.RevisionInput
	if err := h.decode(r, &in); err != nil {
		respondErr(w, err)
		return
	}
	sub, err := h.svc.Revise(chi.URLParam(r, "submissionID"), *user, in)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, sub)
}

// handleAssist returns model-suggested scores for the submission's free-text
// answers. Suggestions never touch the stored grades.
func (h *Handler) handleAssist(w http.ResponseWriter, r *http.Request) {
	if h.assist == nil {
		respondErr(w, apperr.InvalidState("review assistant is not configured"))
		return
	}
	user := model.UserFromContext(r.Context())
	sub, err := h.svc.ViewSubmission(chi.URLParam(r, "submissionID"), *user)
	if err != nil {
		respondErr(w, err)
		return
	}
	attempt, err := h.store.GetAttempt(sub.AttemptID)
	if err != nil {
		respondErr(w, err)
		return
	}
	questions, err := h.store.GetExamQuestions(attempt.ExamID)
	if err != nil {
		respondErr(w, err)
		return
	}

	suggestions := make(map[string]any)
	for _, q := range questions {
		if !q.Type.FreeText() {
			continue
		}
		answer, err := h.store.GetAnswer(attempt.ID, q.ID)
		if err != nil {
			respondErr(w, err)
			return
		}
		if answer == nil {
			continue
		}
		text, ok := answer.Value.(string)
		if !ok || text == "" {
			continue
		}
		suggestion, err := h.assist.SuggestScore(r.Context(), q, text)
		if err != nil {
			respondErr(w, err)
			return
		}
		suggestions[q.ID] = suggestion
	}
	respond(w, http.StatusOK, suggestions)
}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	examModel, err := h.loadExam(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	if !canManage(user, examModel) {
		respondErr(w, apperr.Forbidden("not the exam creator"))
		return
	}
	events, err := h.store.ListMonitoringEvents(examModel.ID)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, events)
}
