package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/proctorly/proctord/internal/apperr"
	"github.com/proctorly/proctord/internal/exam"
	"github.com/proctorly/proctord/internal/model"
)

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	res, err := h.svc.Start(chi.URLParam(r, "examID"), user.ID)
	if err != nil {
		respondErr(w, err)
		return
	}
	status := http.StatusCreated
	if res.Resumed {
		status = http.StatusOK
	}
	respond(w, status, res)
}

func (h *Handler) handleSaveAnswer(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	var in exam.AnswerInput
	if err := h.decode(r, &in); err != nil {
		respondErr(w, err)
		return
	}
	answer, err := h.svc.SaveAnswer(chi.URLParam(r, "attemptID"), user.ID, in)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, answer)
}

func (h *Handler) handleListAnswers(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	answers, err := h.svc.Answers(chi.URLParam(r, "attemptID"), user.ID)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, answers)
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	var req exam.SubmitRequest
	if err := h.decode(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	res, err := h.svc.Submit(chi.URLParam(r, "attemptID"), user.ID, req)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, res)
}

// handleSubmitForExam submits the caller's active attempt for the exam, so a
// client that lost the attempt ID can still finish.
func (h *Handler) handleSubmitForExam(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	var req exam.SubmitRequest
	if err := h.decode(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	res, err := h.svc.SubmitForExam(chi.URLParam(r, "examID"), user.ID, req)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, res)
}

type terminateRequest struct {
	Reason    string `json:"reason" validate:"required"`
	StudentID string `json:"studentId"`
}

func (h *Handler) handleTerminate(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	var req terminateRequest
	if err := h.decode(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	attempt, err := h.svc.Terminate(chi.URLParam(r, "attemptID"), *user, req.Reason)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, attempt)
}

// handleTerminateActive terminates a student's in-progress attempt addressed
// by exam, for proctoring tools that track students rather than attempts.
func (h *Handler) handleTerminateActive(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	var req terminateRequest
	if err := h.decode(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	if req.StudentID == "" {
		respondErr(w, apperr.Invalid("studentId is required"))
		return
	}
	attempt, err := h.svc.TerminateActive(chi.URLParam(r, "examID"), req.StudentID, *user, req.Reason)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, attempt)
}
