package handler

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/proctorly/proctord/internal/apperr"
	"github.com/proctorly/proctord/internal/grading"
	"github.com/proctorly/proctord/internal/model"
)

type questionRequest struct {
	Title         string             `json:"title"`
	Prompt        string             `json:"prompt" validate:"required"`
	Type          model.QuestionType `json:"type" validate:"required,oneof=MCQ TRUE_FALSE MULTIPLE_SELECT SHORT_ANSWER ESSAY"`
	Options       []string           `json:"options"`
	CorrectAnswer string             `json:"correctAnswer"`
	Points        float64            `json:"points" validate:"required,gt=0"`
}

// validateQuestion enforces the per-type content rules that struct tags
// cannot express.
func validateQuestion(req questionRequest) error {
	if grading.AutoGradable(req.Type) && req.CorrectAnswer == "" {
		return apperr.Invalid("%s questions require a correct answer", req.Type)
	}
	if req.Type == model.TypeMCQ && len(req.Options) < 2 {
		return apperr.Invalid("MCQ questions require at least two options")
	}
	return nil
}

func (h *Handler) handleCreateQuestion(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	var req questionRequest
	if err := h.decode(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	if err := validateQuestion(req); err != nil {
		respondErr(w, err)
		return
	}

	id, err := h.store.CreateQuestion(model.Question{
		Title:         req.Title,
		Prompt:        req.Prompt,
		Type:          req.Type,
		Options:       req.Options,
		CorrectAnswer: req.CorrectAnswer,
		Points:        req.Points,
		CreatedBy:     user.ID,
	})
	if err != nil {
		respondErr(w, err)
		return
	}
	q, err := h.store.GetQuestion(id)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusCreated, q)
}

func (h *Handler) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	questions, err := h.store.ListQuestionsByCreator(user.ID)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, questions)
}

func (h *Handler) handleUpdateQuestion(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	q, err := h.loadQuestion(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	if user.Role != model.RoleAdmin && q.CreatedBy != user.ID {
		respondErr(w, apperr.Forbidden("not the question creator"))
		return
	}

	var req questionRequest
	if err := h.decode(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	if err := validateQuestion(req); err != nil {
		respondErr(w, err)
		return
	}

	q.Title = req.Title
	q.Prompt = req.Prompt
	q.Type = req.Type
	q.Options = req.Options
	q.CorrectAnswer = req.CorrectAnswer
	q.Points = req.Points
	if err := h.store.UpdateQuestion(q); err != nil {
		respondErr(w, err)
		return
	}
	updated, err := h.store.GetQuestion(q.ID)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, updated)
}

func (h *Handler) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	q, err := h.loadQuestion(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	if user.Role != model.RoleAdmin && q.CreatedBy != user.ID {
		respondErr(w, apperr.Forbidden("not the question creator"))
		return
	}
	referenced, err := h.store.QuestionReferenced(q.ID)
	if err != nil {
		respondErr(w, err)
		return
	}
	if referenced {
		respondErr(w, apperr.InvalidState("question is used by an exam or has answers"))
		return
	}
	if err := h.store.DeleteQuestion(q.ID); err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, nil)
}

func (h *Handler) loadQuestion(r *http.Request) (model.Question, error) {
	questionID := chi.URLParam(r, "questionID")
	q, err := h.store.GetQuestion(questionID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Question{}, apperr.NotFound("question %s not found", questionID)
	}
	return q, err
}
