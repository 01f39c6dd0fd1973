package notification

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a referenced notification does not exist for
// the given recipient.
var ErrNotFound = errors.New("notification not found")

// Store persists notification rows. Implementations: Postgres for
// production, memory for tests.
type Store interface {
	Insert(ctx context.Context, n *Notification) error
	// CountUnread counts unarchived unread rows for the recipient whose type
	// carries the given role prefix.
	CountUnread(ctx context.Context, recipientID uuid.UUID, typePrefix string) (int, error)
	ListByRecipient(ctx context.Context, recipientID uuid.UUID, limit int) ([]Notification, error)
	// MarkRead and Archive are scoped by recipient so one user cannot touch
	// another's rows.
	MarkRead(ctx context.Context, recipientID, id uuid.UUID) error
	Archive(ctx context.Context, recipientID, id uuid.UUID) error
}
