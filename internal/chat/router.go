package chat

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"litlink/internal/logging"
	"litlink/internal/notification"
)

// route dispatches one inbound frame on its type tag. Malformed input never
// terminates the connection: handler failures answer with a generic error
// frame and the connection stays open. Unknown tags are logged and ignored.
func (h *Hub) route(c *Client, raw []byte) {
	var in inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		h.replyError(c, "malformed payload")
		return
	}

	ctx := context.Background()

	switch in.Type {
	case TypePing:
		h.metrics.MessagesInbound.WithLabelValues(in.Type).Inc()
		c.enqueue(encode(pongReply{Type: TypePong, Timestamp: time.Now().UTC()}))

	case TypeGetUnreadCount:
		h.metrics.MessagesInbound.WithLabelValues(in.Type).Inc()
		h.handleUnreadCount(ctx, c)

	case TypeChatMessage:
		h.metrics.MessagesInbound.WithLabelValues(in.Type).Inc()
		h.handleChatMessage(ctx, c, in)

	case TypeChatTyping:
		h.metrics.MessagesInbound.WithLabelValues(in.Type).Inc()
		h.handleTyping(c, in)

	case TypeChatRead:
		h.metrics.MessagesInbound.WithLabelValues(in.Type).Inc()
		h.handleRead(ctx, c, in)

	case TypeChatHistory:
		h.metrics.MessagesInbound.WithLabelValues(in.Type).Inc()
		h.handleHistory(ctx, c, in)

	case TypeChatOnline:
		h.metrics.MessagesInbound.WithLabelValues(in.Type).Inc()
		h.handleOnline(c, in)

	default:
		h.metrics.MessagesInbound.WithLabelValues("unknown").Inc()
		logging.Debug().
			Str("user_id", c.UserID.String()).
			Str("type", in.Type).
			Msg("ignoring unrecognized message type")
	}
}

func (h *Hub) replyError(c *Client, msg string) {
	c.enqueue(encode(errorReply{Type: TypeError, Message: msg}))
}

func (h *Hub) handleUnreadCount(ctx context.Context, c *Client) {
	prefix := notification.PrefixUser
	if c.Role == RoleAdmin {
		prefix = notification.PrefixAdmin
	}

	count, err := h.notifications.CountUnread(ctx, c.UserID, prefix)
	if err != nil {
		logging.Error().Err(err).Str("user_id", c.UserID.String()).Msg("counting unread notifications failed")
		h.replyError(c, "could not fetch unread count")
		return
	}
	c.enqueue(encode(unreadCountReply{Type: TypeUnreadCount, Count: count}))
}

func (h *Hub) handleChatMessage(ctx context.Context, c *Client, in inbound) {
	recipientID, err := uuid.Parse(in.RecipientID)
	if err != nil || in.Content == "" {
		h.replyError(c, "content and recipientId are required")
		return
	}

	req := SendRequest{
		SenderID:    c.UserID,
		RecipientID: recipientID,
		Content:     in.Content,
		Kind:        in.Kind,
	}
	if in.ConversationID != "" {
		convID, err := uuid.Parse(in.ConversationID)
		if err != nil {
			h.replyError(c, "invalid conversationId")
			return
		}
		req.ConversationID = convID
	}

	msg, err := h.store.SendMessage(ctx, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidRequest):
			h.replyError(c, "invalid request")
		default:
			logging.Error().Err(err).Str("user_id", c.UserID.String()).Msg("sending chat message failed")
			h.replyError(c, "could not send message")
		}
		return
	}
	h.metrics.ChatMessagesSaved.Inc()

	// Best-effort push to the recipient; the row is already durable, so a
	// failed push is never surfaced to the sender.
	h.SendToUser(recipientID, encode(chatMessageEvent{
		Type:           TypeChatMessage,
		ConversationID: msg.ConversationID.String(),
		Message:        toWireMsg(*msg),
		SenderID:       c.UserID.String(),
		SenderUsername: c.Username,
		Timestamp:      msg.CreatedAt,
	}))

	c.enqueue(encode(messageSentReply{
		Type:           TypeChatMessageSent,
		MessageID:      msg.ID.String(),
		ConversationID: msg.ConversationID.String(),
		Timestamp:      msg.CreatedAt,
	}))
}

// handleTyping forwards the ephemeral typing flag; nothing is persisted.
func (h *Hub) handleTyping(c *Client, in inbound) {
	recipientID, err := uuid.Parse(in.RecipientID)
	if err != nil {
		h.replyError(c, "recipientId is required")
		return
	}

	h.SendToUser(recipientID, encode(typingEvent{
		Type:           TypeChatTyping,
		SenderID:       c.UserID.String(),
		SenderUsername: c.Username,
		IsTyping:       in.IsTyping,
	}))
}

func (h *Hub) handleRead(ctx context.Context, c *Client, in inbound) {
	convID, err := uuid.Parse(in.ConversationID)
	if err != nil {
		h.replyError(c, "conversationId is required")
		return
	}

	var messageIDs []uuid.UUID
	for _, raw := range in.MessageIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			h.replyError(c, "invalid messageIds")
			return
		}
		messageIDs = append(messageIDs, id)
	}

	res, err := h.store.MarkRead(ctx, convID, c.UserID, messageIDs)
	if err != nil {
		logging.Error().Err(err).Str("user_id", c.UserID.String()).Msg("marking messages read failed")
		h.replyError(c, "could not mark messages read")
		return
	}
	if res.OtherParticipant == uuid.Nil {
		// Non-participant or absent conversation: silent no-op so the
		// conversation's existence is not leaked.
		return
	}

	h.SendToUser(res.OtherParticipant, encode(readEvent{
		Type:           TypeChatRead,
		ConversationID: convID.String(),
		ReaderID:       c.UserID.String(),
	}))
}

func (h *Hub) handleHistory(ctx context.Context, c *Client, in inbound) {
	convID, err := uuid.Parse(in.ConversationID)
	if err != nil {
		h.replyError(c, "conversationId is required")
		return
	}

	var before uuid.UUID
	if in.Before != "" {
		before, err = uuid.Parse(in.Before)
		if err != nil {
			h.replyError(c, "invalid cursor")
			return
		}
	}

	msgs, err := h.store.History(ctx, convID, c.UserID, in.Limit, before)
	if err != nil {
		logging.Error().Err(err).Str("user_id", c.UserID.String()).Msg("loading chat history failed")
		h.replyError(c, "could not load history")
		return
	}

	c.enqueue(encode(historyReply{
		Type:           TypeChatHistory,
		ConversationID: convID.String(),
		Messages:       toWireMsgs(msgs),
	}))
}

// handleOnline answers a presence query from the registry alone: presence
// means "currently has an open connection", nothing more durable.
func (h *Hub) handleOnline(c *Client, in inbound) {
	presence := make(map[string]bool, len(in.UserIDs))
	for _, raw := range in.UserIDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			presence[raw] = false
			continue
		}
		presence[raw] = h.registry.IsOnline(id)
	}
	c.enqueue(encode(onlineReply{Type: TypeChatOnline, Presence: presence}))
}
