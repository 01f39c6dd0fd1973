package chat

import (
	"time"

	"github.com/goccy/go-json"

	"litlink/internal/logging"
)

// Wire message type tags. Every frame carries a mandatory "type" field; the
// router switches over this closed set with an explicit fallback arm for
// unknown tags.
const (
	TypePing           = "ping"
	TypePong           = "pong"
	TypeError          = "error"
	TypeGetUnreadCount = "get-unread-count"
	TypeUnreadCount    = "unread-count"

	TypeChatMessage     = "chat:message"
	TypeChatMessageSent = "chat:message:sent"
	TypeChatTyping      = "chat:typing"
	TypeChatRead        = "chat:read"
	TypeChatHistory     = "chat:history"
	TypeChatOnline      = "chat:online"

	TypeNotification = "notification"
)

// inbound is the decoded shape of a client frame. Fields beyond Type are
// payload-specific; the router validates per tag.
type inbound struct {
	Type           string   `json:"type"`
	Content        string   `json:"content"`
	Kind           string   `json:"kind"`
	RecipientID    string   `json:"recipientId"`
	ConversationID string   `json:"conversationId"`
	MessageIDs     []string `json:"messageIds"`
	Limit          int      `json:"limit"`
	Before         string   `json:"before"`
	UserIDs        []string `json:"userIds"`
	IsTyping       bool     `json:"isTyping"`
}

type pongReply struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
}

type errorReply struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type unreadCountReply struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

type messageSentReply struct {
	Type           string    `json:"type"`
	MessageID      string    `json:"messageId"`
	ConversationID string    `json:"conversationId"`
	Timestamp      time.Time `json:"timestamp"`
}

type chatMessageEvent struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversationId"`
	Message        wireMsg   `json:"message"`
	SenderID       string    `json:"senderId"`
	SenderUsername string    `json:"senderUsername"`
	Timestamp      time.Time `json:"timestamp"`
}

type typingEvent struct {
	Type           string `json:"type"`
	SenderID       string `json:"senderId"`
	SenderUsername string `json:"senderUsername"`
	IsTyping       bool   `json:"isTyping"`
}

type readEvent struct {
	Type           string `json:"type"`
	ConversationID string `json:"conversationId"`
	ReaderID       string `json:"readerId"`
}

type historyReply struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversationId"`
	Messages       []wireMsg `json:"messages"`
}

type onlineReply struct {
	Type     string          `json:"type"`
	Presence map[string]bool `json:"presence"`
}

// wireMsg is the wire shape of a persisted chat message.
type wireMsg struct {
	ID        string     `json:"id"`
	SenderID  string     `json:"senderId"`
	Content   string     `json:"content"`
	Kind      string     `json:"kind"`
	Read      bool       `json:"read"`
	ReadAt    *time.Time `json:"readAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

func toWireMsg(m Message) wireMsg {
	return wireMsg{
		ID:        m.ID.String(),
		SenderID:  m.SenderID.String(),
		Content:   m.Content,
		Kind:      m.Kind,
		Read:      m.Read,
		ReadAt:    m.ReadAt,
		CreatedAt: m.CreatedAt,
	}
}

func toWireMsgs(msgs []Message) []wireMsg {
	out := make([]wireMsg, len(msgs))
	for i, m := range msgs {
		out[i] = toWireMsg(m)
	}
	return out
}

// encode marshals an outbound frame. Encoding failures are programming
// errors; they are logged and yield nil, which enqueue treats as a no-op.
func encode(v any) []byte {
	payload, err := json.Marshal(v)
	if err != nil {
		logging.Error().Err(err).Msg("encoding outbound frame failed")
		return nil
	}
	return payload
}
