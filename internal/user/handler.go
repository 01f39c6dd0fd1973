package user

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"litlink/internal/logging"
)

// Notifier is the slice of the notification fan-out the user feature
// triggers. Calls happen after the corresponding database commit, so the
// dependency is visible in the call graph instead of hidden in a model hook.
type Notifier interface {
	NotifyNewSignup(ctx context.Context, userID uuid.UUID, username string) error
	NotifyUserBanned(ctx context.Context, userID uuid.UUID, reason string) error
	NotifyUserSuspended(ctx context.Context, userID uuid.UUID, reason string) error
}

type Handler struct {
	service  *Service
	notifier Notifier
	validate *validator.Validate
}

func NewHandler(s *Service, n Notifier) *Handler {
	return &Handler{
		service:  s,
		notifier: n,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	u, err := h.service.Register(r.Context(), &req)
	if err != nil {
		logging.Error().Err(err).Str("username", req.Username).Msg("registration failed")
		http.Error(w, "could not create account", http.StatusInternalServerError)
		return
	}

	if err := h.notifier.NotifyNewSignup(r.Context(), u.ID, u.Username); err != nil {
		// The account exists; admins just miss the live announcement.
		logging.Warn().Err(err).Str("user_id", u.ID.String()).Msg("signup fan-out failed")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(u)
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	res, err := h.service.Login(r.Context(), &req)
	if err != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res)
}

func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		http.Error(w, "q is required", http.StatusBadRequest)
		return
	}

	users, err := h.service.SearchUsers(r.Context(), query)
	if err != nil {
		logging.Error().Err(err).Msg("user search failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(users)
}

type moderationRequest struct {
	Reason string `json:"reason" validate:"required"`
}

// Ban handles POST /api/admin/users/{id}/ban. Admin-only (enforced by
// middleware); notifies the affected account after the status commit.
func (h *Handler) Ban(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, StatusBanned)
}

// Suspend handles POST /api/admin/users/{id}/suspend.
func (h *Handler) Suspend(w http.ResponseWriter, r *http.Request) {
	h.moderate(w, r, StatusSuspended)
}

func (h *Handler) moderate(w http.ResponseWriter, r *http.Request, status string) {
	targetID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid user id", http.StatusBadRequest)
		return
	}

	var req moderationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.service.SetStatus(r.Context(), targetID, status); err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		logging.Error().Err(err).Str("user_id", targetID.String()).Msg("status change failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	var notifyErr error
	switch status {
	case StatusBanned:
		notifyErr = h.notifier.NotifyUserBanned(r.Context(), targetID, req.Reason)
	case StatusSuspended:
		notifyErr = h.notifier.NotifyUserSuspended(r.Context(), targetID, req.Reason)
	}
	if notifyErr != nil {
		logging.Warn().Err(notifyErr).Str("user_id", targetID.String()).Msg("moderation fan-out failed")
	}

	w.WriteHeader(http.StatusNoContent)
}
