package handler

import (
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/proctorly/proctord/internal/apperr"
	"github.com/proctorly/proctord/internal/model"
)

type examRequest struct {
	Title       string             `json:"title" validate:"required"`
	Description string             `json:"description"`
	Duration    int                `json:"duration" validate:"required,gte=1"`
	StartTime   *time.Time         `json:"startTime"`
	EndTime     *time.Time         `json:"endTime"`
	MaxAttempts int                `json:"maxAttempts" validate:"gte=0"`
	QuestionIDs []string           `json:"questionIds"`
	Settings    model.ExamSettings `json:"settings"`
}

func (h *Handler) handleCreateExam(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	var req examRequest
	if err := h.decode(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	if req.StartTime != nil && req.EndTime != nil && !req.EndTime.After(*req.StartTime) {
		respondErr(w, apperr.Invalid("endTime must be after startTime"))
		return
	}
	maxAttempts := req.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 1
	}

	id, err := h.store.CreateExam(model.Exam{
		Title:       req.Title,
		Description: req.Description,
		CreatedBy:   user.ID,
		Duration:    req.Duration,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		MaxAttempts: maxAttempts,
		Status:      model.ExamDraft,
		Settings:    req.Settings,
	}, req.QuestionIDs)
	if err != nil {
		respondErr(w, err)
		return
	}
	exam, err := h.store.GetExam(id)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusCreated, exam)
}

func (h *Handler) handleListExams(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	var (
		exams []model.Exam
		err   error
	)
	if user.Role == model.RoleStudent {
		exams, err = h.store.ListExamsForStudent(user.ID)
	} else {
		exams, err = h.store.ListExamsByCreator(user.ID)
	}
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, exams)
}

func (h *Handler) handleGetExam(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	exam, err := h.loadExam(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	questions, err := h.store.GetExamQuestions(exam.ID)
	if err != nil {
		respondErr(w, err)
		return
	}

	if !canManage(user, exam) {
		enrolled, err := h.store.IsEnrolled(exam.ID, user.ID)
		if err != nil {
			respondErr(w, err)
			return
		}
		if !enrolled {
			respondErr(w, apperr.Forbidden("not enrolled in this exam"))
			return
		}
		// Students never see the answer key.
		for i := range questions {
			questions[i] = questions[i].StudentView()
		}
	}

	respond(w, http.StatusOK, map[string]any{
		"exam":      exam,
		"questions": questions,
	})
}

func (h *Handler) handleUpdateExam(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	exam, err := h.loadExam(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	if !canManage(user, exam) {
		respondErr(w, apperr.Forbidden("not the exam creator"))
		return
	}
	// Published exams are immutable; students may already hold attempts.
	if exam.Status != model.ExamDraft {
		respondErr(w, apperr.InvalidState("only draft exams can be edited"))
		return
	}

	var req examRequest
	if err := h.decode(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	exam.Title = req.Title
	exam.Description = req.Description
	exam.Duration = req.Duration
	exam.StartTime = req.StartTime
	exam.EndTime = req.EndTime
	exam.Settings = req.Settings
	if req.MaxAttempts > 0 {
		exam.MaxAttempts = req.MaxAttempts
	}
	if err := h.store.UpdateExam(exam, req.QuestionIDs); err != nil {
		respondErr(w, err)
		return
	}
	updated, err := h.store.GetExam(exam.ID)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, updated)
}

func (h *Handler) handleDeleteExam(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	exam, err := h.loadExam(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	if !canManage(user, exam) {
		respondErr(w, apperr.Forbidden("not the exam creator"))
		return
	}
	if exam.Status != model.ExamDraft {
		respondErr(w, apperr.InvalidState("only draft exams can be deleted"))
		return
	}
	if err := h.store.DeleteExam(exam.ID); err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, nil)
}

func (h *Handler) handlePublishExam(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	exam, err := h.loadExam(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	if !canManage(user, exam) {
		respondErr(w, apperr.Forbidden("not the exam creator"))
		return
	}
	if exam.Status != model.ExamDraft {
		respondErr(w, apperr.InvalidState("exam is already %s", exam.Status))
		return
	}
	questions, err := h.store.GetExamQuestions(exam.ID)
	if err != nil {
		respondErr(w, err)
		return
	}
	if len(questions) == 0 {
		respondErr(w, apperr.InvalidState("cannot publish an exam without questions"))
		return
	}
	if err := h.store.SetExamStatus(exam.ID, model.ExamPublished); err != nil {
		respondErr(w, err)
		return
	}
	updated, err := h.store.GetExam(exam.ID)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, updated)
}

type enrollRequest struct {
	StudentIDs []string `json:"studentIds" validate:"required,min=1"`
}

func (h *Handler) handleEnroll(w http.ResponseWriter, r *http.Request) {
	user := model.UserFromContext(r.Context())
	exam, err := h.loadExam(r)
	if err != nil {
		respondErr(w, err)
		return
	}
	if !canManage(user, exam) {
		respondErr(w, apperr.Forbidden("not the exam creator"))
		return
	}

	var req enrollRequest
	if err := h.decode(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	for _, studentID := range req.StudentIDs {
		student, err := h.store.GetUserByID(studentID)
		if err != nil {
			respondErr(w, err)
			return
		}
		if student == nil || student.Role != model.RoleStudent {
			respondErr(w, apperr.Invalid("%s is not a student", studentID))
			return
		}
		if err := h.store.Enroll(exam.ID, studentID); err != nil {
			respondErr(w, err)
			return
		}
	}
	respond(w, http.StatusOK, nil)
}

// loadExam fetches the exam named in the URL, mapping missing rows to NotFound.
func (h *Handler) loadExam(r *http.Request) (model.Exam, error) {
	examID := chi.URLParam(r, "examID")
	exam, err := h.store.GetExam(examID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Exam{}, apperr.NotFound("exam %s not found", examID)
	}
	return exam, err
}

func canManage(user *model.User, exam model.Exam) bool {
	return user.Role == model.RoleAdmin || exam.CreatedBy == user.ID
}
