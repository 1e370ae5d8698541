package memstore

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/fathima-sithara/realtime-service/internal/apperr"
	"github.com/fathima-sithara/realtime-service/internal/domain"
)

// Messages is an in-memory message store used for local runs and tests.
// Values are copied in and out so callers never share state with the store.
type Messages struct {
	mu   sync.RWMutex
	rows map[string]*domain.Message
}

func NewMessages() *Messages {
	return &Messages{rows: make(map[string]*domain.Message)}
}

func clone(m *domain.Message) *domain.Message {
	c := *m
	c.Reactions = slices.Clone(m.Reactions)
	c.DeletedBy = slices.Clone(m.DeletedBy)
	c.PinnedBy = slices.Clone(m.PinnedBy)
	if m.Attachment != nil {
		a := *m.Attachment
		c.Attachment = &a
	}
	if m.ReadAt != nil {
		t := *m.ReadAt
		c.ReadAt = &t
	}
	c.EnsureSlices()
	return &c
}

func inConversation(m *domain.Message, conv domain.ConversationKey) bool {
	if conv.IsGroup() {
		return m.GroupID == conv.GroupID
	}
	return !m.IsGroup() && m.Conversation() == conv
}

func (s *Messages) Insert(_ context.Context, m *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[m.ID] = clone(m)
	return nil
}

func (s *Messages) Get(_ context.Context, id string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.rows[id]
	if !ok {
		return nil, apperr.NotFound("message not found")
	}
	return clone(m), nil
}

func (s *Messages) MarkDelivered(_ context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if m, ok := s.rows[id]; ok {
			m.Delivered = true
		}
	}
	return nil
}

func (s *Messages) PendingFor(_ context.Context, recipientID string) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Message
	for _, m := range s.rows {
		if m.RecipientID == recipientID && !m.Delivered {
			out = append(out, clone(m))
		}
	}
	sortByCreated(out, false)
	return out, nil
}

func (s *Messages) MarkRead(_ context.Context, id string, at time.Time) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[id]
	if !ok {
		return nil, apperr.NotFound("message not found")
	}
	m.Read, m.Delivered = true, true
	m.ReadAt = &at
	return clone(m), nil
}

func (s *Messages) MarkAllRead(_ context.Context, senderID, recipientID string, at time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for _, m := range s.rows {
		if m.SenderID == senderID && m.RecipientID == recipientID && !m.Read {
			m.Read, m.Delivered = true, true
			t := at
			m.ReadAt = &t
			ids = append(ids, m.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *Messages) AddDeletedBy(_ context.Context, id, userID string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[id]
	if !ok {
		return nil, apperr.NotFound("message not found")
	}
	if !slices.Contains(m.DeletedBy, userID) {
		m.DeletedBy = append(m.DeletedBy, userID)
	}
	return clone(m), nil
}

func (s *Messages) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, id)
	return nil
}

func (s *Messages) Tombstone(_ context.Context, id, text string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[id]
	if !ok {
		return nil, apperr.NotFound("message not found")
	}
	m.Content = text
	m.Encrypted = false
	m.Attachment = nil
	m.DeletedForEveryone = true
	m.Version++
	return clone(m), nil
}

func (s *Messages) ReplaceReactions(_ context.Context, id string, version int64, reactions []domain.Reaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[id]
	if !ok {
		return apperr.NotFound("message not found")
	}
	if m.Version != version {
		return apperr.ErrConflict
	}
	m.Reactions = slices.Clone(reactions)
	m.Version++
	return nil
}

func (s *Messages) ReplacePins(_ context.Context, id string, version int64, pins []domain.PinEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.rows[id]
	if !ok {
		return apperr.NotFound("message not found")
	}
	if m.Version != version {
		return apperr.ErrConflict
	}
	m.PinnedBy = slices.Clone(pins)
	m.Version++
	return nil
}

func (s *Messages) Pinned(_ context.Context, conv domain.ConversationKey) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Message
	for _, m := range s.rows {
		if len(m.PinnedBy) > 0 && inConversation(m, conv) {
			out = append(out, clone(m))
		}
	}
	sortByCreated(out, true)
	return out, nil
}

func (s *Messages) History(_ context.Context, conv domain.ConversationKey, viewerID string, limit int, before time.Time) ([]*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Message
	for _, m := range s.rows {
		if !inConversation(m, conv) || m.DeletedFor(viewerID) {
			continue
		}
		if !before.IsZero() && !m.CreatedAt.Before(before) {
			continue
		}
		out = append(out, clone(m))
	}
	sortByCreated(out, true)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Len is the number of stored rows.
func (s *Messages) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

func sortByCreated(ms []*domain.Message, desc bool) {
	sort.SliceStable(ms, func(i, j int) bool {
		if desc {
			return ms[i].CreatedAt.After(ms[j].CreatedAt)
		}
		return ms[i].CreatedAt.Before(ms[j].CreatedAt)
	})
}
