package notification

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"litlink/internal/logging"
	"litlink/internal/middleware"
)

// Handler exposes a user's own notifications over REST. It shares the Store
// the socket layer queries, so both surfaces agree on unread counts.
type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// List handles GET /api/notifications.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	rows, err := h.store.ListByRecipient(r.Context(), identity.ID, limit)
	if err != nil {
		logging.Error().Err(err).Msg("listing notifications failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(rows)
}

// UnreadCount handles GET /api/notifications/unread-count, scoped by the
// caller's role prefix.
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	prefix := PrefixUser
	if identity.IsAdmin {
		prefix = PrefixAdmin
	}

	count, err := h.store.CountUnread(r.Context(), identity.ID, prefix)
	if err != nil {
		logging.Error().Err(err).Msg("counting notifications failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]int{"count": count})
}

// MarkRead handles POST /api/notifications/{id}/read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	h.flag(w, r, h.store.MarkRead)
}

// Archive handles POST /api/notifications/{id}/archive. Archive is the only
// removal: rows are never deleted.
func (h *Handler) Archive(w http.ResponseWriter, r *http.Request) {
	h.flag(w, r, h.store.Archive)
}

func (h *Handler) flag(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, recipientID, id uuid.UUID) error) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid notification id", http.StatusBadRequest)
		return
	}

	if err := op(r.Context(), identity.ID, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			http.Error(w, "notification not found", http.StatusNotFound)
			return
		}
		logging.Error().Err(err).Msg("updating notification failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
