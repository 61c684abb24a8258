// Package handler exposes the JSON HTTP API: authentication, exam and
// question management, the attempt lifecycle, and grading review.
package handler

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/proctorly/proctord/internal/assist"
	"github.com/proctorly/proctord/internal/exam"
	"github.com/proctorly/proctord/internal/model"
	"github.com/proctorly/proctord/internal/store"
)

// Config holds runtime handler options.
type Config struct {
	SecureCookies bool // Set Secure flag on session cookies (disable for local dev)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	svc      *exam.Service
	assist   *assist.Client // nil when no review assistant is configured
	validate *validator.Validate
	config   Config
}

// New creates a new Handler.
func New(s *store.Store, svc *exam.Service, ai *assist.Client, cfg Config) *Handler {
	return &Handler{
		store:    s,
		svc:      svc,
		assist:   ai,
		validate: validator.New(),
		config:   cfg,
	}
}

// Routes registers all API routes.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/login", h.handleLogin)
		r.Post("/auth/register", h.handleRegister)

		r.Group(func(r chi.Router) {
			r.Use(h.requireAuth)

			r.Post("/auth/logout", h.handleLogout)
			r.Get("/auth/me", h.handleMe)

			r.Get("/exams", h.handleListExams)
			r.Get("/exams/{examID}", h.handleGetExam)
			r.Post("/exams/{examID}/start", h.handleStart)
			r.Post("/exams/{examID}/submit", h.handleSubmitForExam)

			r.Post("/attempts/{attemptID}/answers", h.handleSaveAnswer)
			r.Get("/attempts/{attemptID}/answers", h.handleListAnswers)
			r.Post("/attempts/{attemptID}/submit", h.handleSubmit)

			r.Get("/submissions/{submissionID}", h.handleGetSubmission)

			r.Group(func(r chi.Router) {
				r.Use(requireRole(model.RoleTeacher, model.RoleAdmin))

				r.Post("/exams", h.handleCreateExam)
				r.Patch("/exams/{examID}", h.handleUpdateExam)
				r.Delete("/exams/{examID}", h.handleDeleteExam)
				r.Post("/exams/{examID}/publish", h.handlePublishExam)
				r.Post("/exams/{examID}/enroll", h.handleEnroll)
				r.Get("/exams/{examID}/submissions", h.handleListSubmissions)
				r.Get("/exams/{examID}/events", h.handleListEvents)
				r.Post("/exams/{examID}/terminate", h.handleTerminateActive)

				r.Post("/questions", h.handleCreateQuestion)
				r.Get("/questions", h.handleListQuestions)
				r.Patch("/questions/{questionID}", h.handleUpdateQuestion)
				r.Delete("/questions/{questionID}", h.handleDeleteQuestion)

				r.Post("/attempts/{attemptID}/terminate", h.handleTerminate)

				r.Patch("/submissions/{submissionID}", h.handleRevise)
				r.Get("/submissions/{submissionID}/assist", h.handleAssist)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireRole(model.RoleAdmin))

				r.Get("/admin/users", h.handleListUsers)
				r.Post("/admin/users", h.handleCreateUser)
				r.Post("/admin/users/{userID}/toggle", h.handleToggleUser)
			})
		})
	})
}
