package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/proctorly/proctord/internal/apperr"
	"github.com/proctorly/proctord/internal/model"
)

func (h *Handler) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.store.ListUsers()
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, users)
}

type createUserRequest struct {
	Email    string         `json:"email" validate:"required,email"`
	Name     string         `json:"name" validate:"required"`
	Password string         `json:"password" validate:"required,min=8"`
	Role     model.UserRole `json:"role" validate:"required,oneof=STUDENT TEACHER ADMIN"`
}

func (h *Handler) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := h.decode(r, &req); err != nil {
		respondErr(w, err)
		return
	}
	existing, err := h.store.GetUserByEmail(req.Email)
	if err != nil {
		respondErr(w, err)
		return
	}
	if existing != nil {
		respondErr(w, apperr.Invalid("email already registered"))
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		respondErr(w, err)
		return
	}
	id, err := h.store.CreateUser(model.User{
		Email:        req.Email,
		Name:         req.Name,
		PasswordHash: string(hash),
		Role:         req.Role,
		Active:       true,
	})
	if err != nil {
		respondErr(w, err)
		return
	}
	user, err := h.store.GetUserByID(id)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusCreated, user)
}

func (h *Handler) handleToggleUser(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	target, err := h.store.GetUserByID(userID)
	if err != nil {
		respondErr(w, err)
		return
	}
	if target == nil {
		respondErr(w, apperr.NotFound("user %s not found", userID))
		return
	}
	caller := model.UserFromContext(r.Context())
	if caller.ID == target.ID {
		respondErr(w, apperr.Invalid("cannot deactivate your own account"))
		return
	}
	if err := h.store.ToggleUserActive(userID); err != nil {
		respondErr(w, err)
		return
	}
	updated, err := h.store.GetUserByID(userID)
	if err != nil {
		respondErr(w, err)
		return
	}
	respond(w, http.StatusOK, updated)
}
