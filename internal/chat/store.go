package chat

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// previewLen bounds the conversation's last-message preview.
const previewLen = 80

// defaultHistoryLimit applies when a history request names no limit.
const defaultHistoryLimit = 50

var (
	// ErrInvalidRequest flags a malformed payload (empty content, missing
	// recipient). The caller answers with an error frame; the connection
	// stays open.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotFound flags an absent conversation or participant mismatch where
	// the operation cannot silently no-op.
	ErrNotFound = errors.New("not found")
)

// Conversation is a two-party thread. Participants are stored canonically
// (A < B) so lookup is order-independent. Unread maps participant id to a
// non-negative counter.
type Conversation struct {
	ID                 uuid.UUID         `json:"id"`
	ParticipantA       uuid.UUID         `json:"participantA"`
	ParticipantB       uuid.UUID         `json:"participantB"`
	LastMessageAt      *time.Time        `json:"lastMessageAt"`
	LastMessagePreview string            `json:"lastMessagePreview"`
	Unread             map[uuid.UUID]int `json:"-"`
	CreatedAt          time.Time         `json:"createdAt"`
}

// Other returns the participant that is not the given user.
func (c *Conversation) Other(userID uuid.UUID) uuid.UUID {
	if c.ParticipantA == userID {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// HasParticipant reports whether the user belongs to the conversation.
func (c *Conversation) HasParticipant(userID uuid.UUID) bool {
	return c.ParticipantA == userID || c.ParticipantB == userID
}

// Message is an entry in a conversation's append-only log. Only the read
// flags are ever mutated after insertion.
type Message struct {
	ID             uuid.UUID  `json:"id"`
	ConversationID uuid.UUID  `json:"conversationId"`
	SenderID       uuid.UUID  `json:"senderId"`
	Kind           string     `json:"kind"`
	Content        string     `json:"content"`
	Read           bool       `json:"read"`
	ReadAt         *time.Time `json:"readAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// SendRequest carries the chat-send parameters. ConversationID is optional;
// when absent the conversation is resolved (or lazily created) from the
// canonical participant pair.
type SendRequest struct {
	SenderID       uuid.UUID
	RecipientID    uuid.UUID
	ConversationID uuid.UUID
	Content        string
	Kind           string
}

func (r *SendRequest) validate() error {
	if r.Content == "" || r.RecipientID == uuid.Nil {
		return ErrInvalidRequest
	}
	if r.Kind == "" {
		r.Kind = "text"
	}
	switch r.Kind {
	case "text", "image", "file":
	default:
		return ErrInvalidRequest
	}
	return nil
}

// ReadResult reports the outcome of a mark-read call. A zero value means the
// caller was not a participant (or the conversation is absent) and nothing
// changed; that case is deliberately indistinguishable from an empty update.
type ReadResult struct {
	OtherParticipant uuid.UUID
	Updated          int
}

// ConversationStore persists conversations and their unread state. Every
// multi-step mutation runs as one atomic persistence operation so concurrent
// sends into the same conversation cannot lose updates.
type ConversationStore interface {
	// SendMessage runs the full send algorithm: resolve or create the
	// conversation, append the message, refresh preview/last-message-at and
	// bump the recipient's unread counter, all atomically.
	SendMessage(ctx context.Context, req SendRequest) (*Message, error)

	// MarkRead marks the given messages (or, with no ids, every message not
	// sent by the reader) as read and zeroes the reader's unread counter.
	// Calls by non-participants are a silent no-op.
	MarkRead(ctx context.Context, conversationID, readerID uuid.UUID, messageIDs []uuid.UUID) (ReadResult, error)

	// History returns up to limit messages before the optional cursor
	// message id, in chronological order. Non-participants get an empty
	// result, never an error.
	History(ctx context.Context, conversationID, callerID uuid.UUID, limit int, before uuid.UUID) ([]Message, error)

	// FindByParticipants resolves a conversation by its canonical pair.
	FindByParticipants(ctx context.Context, a, b uuid.UUID) (*Conversation, error)

	// ListConversations returns the user's conversations, most recent first.
	ListConversations(ctx context.Context, userID uuid.UUID) ([]Conversation, error)
}

// canonicalPair orders two participant ids so that the pair key is
// independent of who sent first. Byte-wise ordering matches Postgres uuid
// comparison.
func canonicalPair(x, y uuid.UUID) (uuid.UUID, uuid.UUID) {
	if bytes.Compare(x[:], y[:]) < 0 {
		return x, y
	}
	return y, x
}

// truncatePreview bounds the preview without splitting a rune.
func truncatePreview(content string) string {
	runes := []rune(content)
	if len(runes) <= previewLen {
		return content
	}
	return string(runes[:previewLen])
}
