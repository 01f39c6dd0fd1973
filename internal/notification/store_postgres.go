package notification

import (
	"context"
	"database/sql"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ Store = (*PostgresStore)(nil)

func (s *PostgresStore) Insert(ctx context.Context, n *Notification) error {
	if n.Metadata == nil {
		n.Metadata = map[string]any{}
	}
	meta, err := json.Marshal(n.Metadata)
	if err != nil {
		return err
	}

	query := `INSERT INTO notifications (recipient_id, type, title, message, priority, metadata)
	          VALUES ($1, $2, $3, $4, $5, $6)
	          RETURNING id, created_at`
	return s.db.QueryRowContext(ctx, query,
		n.RecipientID, n.Type, n.Title, n.Message, n.Priority, meta).
		Scan(&n.ID, &n.CreatedAt)
}

func (s *PostgresStore) CountUnread(ctx context.Context, recipientID uuid.UUID, typePrefix string) (int, error) {
	query := `SELECT COUNT(*) FROM notifications
	          WHERE recipient_id = $1 AND NOT read AND NOT archived AND type LIKE $2`
	var count int
	err := s.db.QueryRowContext(ctx, query, recipientID, typePrefix+"%").Scan(&count)
	return count, err
}

func (s *PostgresStore) ListByRecipient(ctx context.Context, recipientID uuid.UUID, limit int) ([]Notification, error) {
	query := `SELECT id, recipient_id, type, title, message, priority, metadata, read, archived, created_at
	          FROM notifications
	          WHERE recipient_id = $1 AND NOT archived
	          ORDER BY created_at DESC
	          LIMIT $2`
	rows, err := s.db.QueryContext(ctx, query, recipientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		var meta []byte
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.Type, &n.Title, &n.Message,
			&n.Priority, &meta, &n.Read, &n.Archived, &n.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(meta, &n.Metadata); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkRead(ctx context.Context, recipientID, id uuid.UUID) error {
	return s.flag(ctx, `UPDATE notifications SET read = TRUE WHERE id = $1 AND recipient_id = $2`, id, recipientID)
}

func (s *PostgresStore) Archive(ctx context.Context, recipientID, id uuid.UUID) error {
	return s.flag(ctx, `UPDATE notifications SET archived = TRUE WHERE id = $1 AND recipient_id = $2`, id, recipientID)
}

func (s *PostgresStore) flag(ctx context.Context, query string, id, recipientID uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, query, id, recipientID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}
