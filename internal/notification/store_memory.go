package notification

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store used by tests and local development.
type MemoryStore struct {
	mu   sync.RWMutex
	rows map[uuid.UUID]*Notification
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[uuid.UUID]*Notification)}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) Insert(_ context.Context, n *Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n.ID = uuid.New()
	n.CreatedAt = time.Now().UTC()
	if n.Metadata == nil {
		n.Metadata = map[string]any{}
	}
	clone := *n
	s.rows[n.ID] = &clone
	return nil
}

func (s *MemoryStore) CountUnread(_ context.Context, recipientID uuid.UUID, typePrefix string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, n := range s.rows {
		if n.RecipientID == recipientID && !n.Read && !n.Archived && strings.HasPrefix(n.Type, typePrefix) {
			count++
		}
	}
	return count, nil
}

func (s *MemoryStore) ListByRecipient(_ context.Context, recipientID uuid.UUID, limit int) ([]Notification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Notification
	for _, n := range s.rows {
		if n.RecipientID == recipientID && !n.Archived {
			out = append(out, *n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, recipientID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.rows[id]
	if !ok || n.RecipientID != recipientID {
		return ErrNotFound
	}
	n.Read = true
	return nil
}

func (s *MemoryStore) Archive(_ context.Context, recipientID, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.rows[id]
	if !ok || n.RecipientID != recipientID {
		return ErrNotFound
	}
	n.Archived = true
	return nil
}
