package chat

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"litlink/internal/logging"
	"litlink/internal/middleware"
	"litlink/internal/user"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: restrict to the configured frontend origin once it is settled.
	},
}

// TokenValidator is what the gate needs from the user service.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*user.Identity, error)
}

type Handler struct {
	hub       *Hub
	validator TokenValidator
}

func NewHandler(hub *Hub, validator TokenValidator) *Handler {
	return &Handler{hub: hub, validator: validator}
}

// ServeWs is the authentication gate in front of the hub. The credential
// comes from the "token" query parameter or the Authorization header, in
// that order. Every failure path closes the already-upgraded socket with a
// policy-violation code instead of leaving it open.
func (h *Handler) ServeWs(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	if token == "" {
		refuse(conn, "missing authentication token")
		return
	}

	identity, err := h.validator.ValidateToken(r.Context(), token)
	if err != nil {
		refuse(conn, "invalid credentials")
		return
	}

	role := RoleUser
	if identity.IsAdmin {
		role = RoleAdmin
	}

	client := newClient(h.hub, conn, identity.ID, identity.Username, role)
	select {
	case h.hub.register <- client:
	case <-h.hub.done:
		client.closeSocket(websocket.CloseGoingAway, "server shutting down")
		return
	}

	go client.writePump()
	go client.readPump()
}

// bearerToken extracts the credential: query parameter first, then the
// Authorization header.
func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		if parts := strings.SplitN(auth, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return parts[1]
		}
	}
	return ""
}

func refuse(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = conn.WriteMessage(websocket.CloseMessage, msg)
	_ = conn.Close()
}

// ListConversations answers GET /api/conversations for the authenticated
// user.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	convs, err := h.hub.store.ListConversations(r.Context(), identity.ID)
	if err != nil {
		logging.Error().Err(err).Msg("listing conversations failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, convs)
}

// GetChatHistory answers GET /api/messages?conversation_id=...&limit=...&before=...
// with the same semantics as the chat:history socket message.
func (h *Handler) GetChatHistory(w http.ResponseWriter, r *http.Request) {
	identity, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	convID, err := uuid.Parse(r.URL.Query().Get("conversation_id"))
	if err != nil {
		http.Error(w, "conversation_id is required", http.StatusBadRequest)
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
	}

	var before uuid.UUID
	if raw := r.URL.Query().Get("before"); raw != "" {
		before, err = uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid cursor", http.StatusBadRequest)
			return
		}
	}

	msgs, err := h.hub.store.History(r.Context(), convID, identity.ID, limit, before)
	if err != nil {
		logging.Error().Err(err).Msg("loading chat history failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, toWireMsgs(msgs))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
