package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// PostgresStore implements ConversationStore on the litlink schema. Each
// operation is a single transaction; unread counters move by relative
// increments so two concurrent sends into one conversation never lose an
// update.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ ConversationStore = (*PostgresStore)(nil)

func (s *PostgresStore) SendMessage(ctx context.Context, req SendRequest) (*Message, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	convID := req.ConversationID
	if convID == uuid.Nil {
		convID, err = s.resolveConversation(ctx, tx, req.SenderID, req.RecipientID)
		if err != nil {
			return nil, err
		}
	} else {
		// Caller-supplied id still has to belong to the sender.
		var a, b uuid.UUID
		err = tx.QueryRowContext(ctx,
			`SELECT participant_a, participant_b FROM conversations WHERE id = $1`, convID).
			Scan(&a, &b)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		if err != nil {
			return nil, err
		}
		if a != req.SenderID && b != req.SenderID {
			return nil, ErrNotFound
		}
		other := a
		if a == req.SenderID {
			other = b
		}
		// The named recipient has to be the conversation's other
		// participant, or the unread bump and the push would diverge.
		if req.RecipientID != other {
			return nil, ErrInvalidRequest
		}
	}

	msg := &Message{
		ConversationID: convID,
		SenderID:       req.SenderID,
		Kind:           req.Kind,
		Content:        req.Content,
	}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO messages (conversation_id, sender_id, kind, content)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		convID, req.SenderID, req.Kind, req.Content).
		Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("appending message: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE conversations
		 SET last_message_at = $2, last_message_preview = $3
		 WHERE id = $1`,
		convID, msg.CreatedAt, truncatePreview(req.Content))
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE conversation_participants
		 SET unread_count = unread_count + 1
		 WHERE conversation_id = $1 AND user_id = $2`,
		convID, req.RecipientID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return msg, nil
}

// resolveConversation finds or lazily creates the conversation for the
// canonical pair, including both participant counter rows.
func (s *PostgresStore) resolveConversation(ctx context.Context, tx *sql.Tx, sender, recipient uuid.UUID) (uuid.UUID, error) {
	a, b := canonicalPair(sender, recipient)

	var convID uuid.UUID
	// The no-op DO UPDATE makes RETURNING yield the id on conflict too.
	err := tx.QueryRowContext(ctx,
		`INSERT INTO conversations (participant_a, participant_b)
		 VALUES ($1, $2)
		 ON CONFLICT (participant_a, participant_b)
		 DO UPDATE SET participant_a = EXCLUDED.participant_a
		 RETURNING id`,
		a, b).Scan(&convID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("resolving conversation: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO conversation_participants (conversation_id, user_id)
		 VALUES ($1, $2), ($1, $3)
		 ON CONFLICT DO NOTHING`,
		convID, a, b)
	if err != nil {
		return uuid.Nil, err
	}
	return convID, nil
}

func (s *PostgresStore) MarkRead(ctx context.Context, conversationID, readerID uuid.UUID, messageIDs []uuid.UUID) (ReadResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ReadResult{}, err
	}
	defer tx.Rollback()

	var a, b uuid.UUID
	err = tx.QueryRowContext(ctx,
		`SELECT participant_a, participant_b FROM conversations WHERE id = $1`, conversationID).
		Scan(&a, &b)
	if errors.Is(err, sql.ErrNoRows) {
		// Absent conversation and non-participant callers get the same
		// silent no-op, so existence is not leaked.
		return ReadResult{}, nil
	}
	if err != nil {
		return ReadResult{}, err
	}
	if a != readerID && b != readerID {
		return ReadResult{}, nil
	}

	var res sql.Result
	if len(messageIDs) > 0 {
		ids := make([]string, len(messageIDs))
		for i, id := range messageIDs {
			ids[i] = id.String()
		}
		res, err = tx.ExecContext(ctx,
			`UPDATE messages SET read = TRUE, read_at = NOW()
			 WHERE conversation_id = $1 AND sender_id <> $2 AND NOT read
			   AND id = ANY($3::uuid[])`,
			conversationID, readerID, ids)
	} else {
		res, err = tx.ExecContext(ctx,
			`UPDATE messages SET read = TRUE, read_at = NOW()
			 WHERE conversation_id = $1 AND sender_id <> $2 AND NOT read`,
			conversationID, readerID)
	}
	if err != nil {
		return ReadResult{}, err
	}
	updated, _ := res.RowsAffected()

	_, err = tx.ExecContext(ctx,
		`UPDATE conversation_participants SET unread_count = 0
		 WHERE conversation_id = $1 AND user_id = $2`,
		conversationID, readerID)
	if err != nil {
		return ReadResult{}, err
	}

	if err := tx.Commit(); err != nil {
		return ReadResult{}, err
	}

	other := a
	if a == readerID {
		other = b
	}
	return ReadResult{OtherParticipant: other, Updated: int(updated)}, nil
}

func (s *PostgresStore) History(ctx context.Context, conversationID, callerID uuid.UUID, limit int, before uuid.UUID) ([]Message, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	var member bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM conversation_participants
		     WHERE conversation_id = $1 AND user_id = $2
		 )`, conversationID, callerID).Scan(&member)
	if err != nil {
		return nil, err
	}
	if !member {
		return nil, nil
	}

	query := `SELECT id, conversation_id, sender_id, kind, content, read, read_at, created_at
	          FROM messages
	          WHERE conversation_id = $1`
	args := []any{conversationID}
	if before != uuid.Nil {
		query += ` AND (created_at, id) < (SELECT created_at, id FROM messages WHERE id = $2)`
		args = append(args, before)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Kind,
			&m.Content, &m.Read, &m.ReadAt, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Query walks newest-first for the cursor; callers get chronological
	// order.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

func (s *PostgresStore) FindByParticipants(ctx context.Context, x, y uuid.UUID) (*Conversation, error) {
	a, b := canonicalPair(x, y)

	c := &Conversation{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, participant_a, participant_b, last_message_at, last_message_preview, created_at
		 FROM conversations
		 WHERE participant_a = $1 AND participant_b = $2`,
		a, b).
		Scan(&c.ID, &c.ParticipantA, &c.ParticipantB, &c.LastMessageAt, &c.LastMessagePreview, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := s.loadUnread(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *PostgresStore) ListConversations(ctx context.Context, userID uuid.UUID) ([]Conversation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT c.id, c.participant_a, c.participant_b, c.last_message_at, c.last_message_preview, c.created_at
		 FROM conversations c
		 JOIN conversation_participants p ON p.conversation_id = c.id
		 WHERE p.user_id = $1
		 ORDER BY c.last_message_at DESC NULLS LAST`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		if err := rows.Scan(&c.ID, &c.ParticipantA, &c.ParticipantB,
			&c.LastMessageAt, &c.LastMessagePreview, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if err := s.loadUnread(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *PostgresStore) loadUnread(ctx context.Context, c *Conversation) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, unread_count FROM conversation_participants WHERE conversation_id = $1`,
		c.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	c.Unread = make(map[uuid.UUID]int, 2)
	for rows.Next() {
		var id uuid.UUID
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return err
		}
		c.Unread[id] = n
	}
	return rows.Err()
}
