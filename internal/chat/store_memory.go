package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory ConversationStore with the same semantics as
// the Postgres implementation. Used by tests and local development.
type MemoryStore struct {
	mu            sync.Mutex
	conversations map[uuid.UUID]*Conversation
	byPair        map[[2]uuid.UUID]uuid.UUID
	messages      map[uuid.UUID][]*Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[uuid.UUID]*Conversation),
		byPair:        make(map[[2]uuid.UUID]uuid.UUID),
		messages:      make(map[uuid.UUID][]*Message),
	}
}

var _ ConversationStore = (*MemoryStore)(nil)

func (s *MemoryStore) SendMessage(_ context.Context, req SendRequest) (*Message, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var conv *Conversation
	if req.ConversationID != uuid.Nil {
		c, ok := s.conversations[req.ConversationID]
		if !ok || !c.HasParticipant(req.SenderID) {
			return nil, ErrNotFound
		}
		// The named recipient has to be the conversation's other
		// participant, or the unread bump and the push would diverge.
		if c.Other(req.SenderID) != req.RecipientID {
			return nil, ErrInvalidRequest
		}
		conv = c
	} else {
		conv = s.ensureConversation(req.SenderID, req.RecipientID)
	}

	now := time.Now().UTC()
	msg := &Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		SenderID:       req.SenderID,
		Kind:           req.Kind,
		Content:        req.Content,
		CreatedAt:      now,
	}
	s.messages[conv.ID] = append(s.messages[conv.ID], msg)

	conv.LastMessageAt = &now
	conv.LastMessagePreview = truncatePreview(req.Content)
	conv.Unread[conv.Other(req.SenderID)]++

	clone := *msg
	return &clone, nil
}

func (s *MemoryStore) ensureConversation(sender, recipient uuid.UUID) *Conversation {
	a, b := canonicalPair(sender, recipient)
	if id, ok := s.byPair[[2]uuid.UUID{a, b}]; ok {
		return s.conversations[id]
	}

	conv := &Conversation{
		ID:           uuid.New(),
		ParticipantA: a,
		ParticipantB: b,
		Unread:       map[uuid.UUID]int{a: 0, b: 0},
		CreatedAt:    time.Now().UTC(),
	}
	s.conversations[conv.ID] = conv
	s.byPair[[2]uuid.UUID{a, b}] = conv.ID
	return conv
}

func (s *MemoryStore) MarkRead(_ context.Context, conversationID, readerID uuid.UUID, messageIDs []uuid.UUID) (ReadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok || !conv.HasParticipant(readerID) {
		return ReadResult{}, nil
	}

	wanted := make(map[uuid.UUID]bool, len(messageIDs))
	for _, id := range messageIDs {
		wanted[id] = true
	}

	now := time.Now().UTC()
	updated := 0
	for _, m := range s.messages[conversationID] {
		if m.SenderID == readerID || m.Read {
			continue
		}
		if len(wanted) > 0 && !wanted[m.ID] {
			continue
		}
		m.Read = true
		readAt := now
		m.ReadAt = &readAt
		updated++
	}
	conv.Unread[readerID] = 0

	return ReadResult{OtherParticipant: conv.Other(readerID), Updated: updated}, nil
}

func (s *MemoryStore) History(_ context.Context, conversationID, callerID uuid.UUID, limit int, before uuid.UUID) ([]Message, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok || !conv.HasParticipant(callerID) {
		return nil, nil
	}

	msgs := s.messages[conversationID]
	end := len(msgs)
	if before != uuid.Nil {
		// An unknown cursor yields an empty page, same as the SQL
		// row-comparison against a missing message.
		end = 0
		for i, m := range msgs {
			if m.ID == before {
				end = i
				break
			}
		}
	}

	start := end - limit
	if start < 0 {
		start = 0
	}
	out := make([]Message, 0, end-start)
	for _, m := range msgs[start:end] {
		out = append(out, *m)
	}
	return out, nil
}

func (s *MemoryStore) FindByParticipants(_ context.Context, x, y uuid.UUID) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, b := canonicalPair(x, y)
	id, ok := s.byPair[[2]uuid.UUID{a, b}]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *s.conversations[id]
	clone.Unread = make(map[uuid.UUID]int, len(s.conversations[id].Unread))
	for k, v := range s.conversations[id].Unread {
		clone.Unread[k] = v
	}
	return &clone, nil
}

func (s *MemoryStore) ListConversations(_ context.Context, userID uuid.UUID) ([]Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []Conversation
	for _, c := range s.conversations {
		if c.HasParticipant(userID) {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].LastMessageAt, out[j].LastMessageAt
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})
	return out, nil
}
