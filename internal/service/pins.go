package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-service/internal/apperr"
	"github.com/fathima-sithara/realtime-service/internal/domain"
	"github.com/fathima-sithara/realtime-service/internal/metrics"
)

// Pin adds or refreshes the requester's pin on a message. A conversation
// holds at most five valid pins; refreshing one's own pin does not count
// against the limit.
func (s *Service) Pin(ctx context.Context, requesterID, messageID string, hours int) (*domain.PinEntry, error) {
	if messageID == "" {
		return nil, apperr.Validation("message id required")
	}
	if hours < 1 || hours > maxPinHours {
		return nil, apperr.Validation(fmt.Sprintf("duration must be between 1 and %d hours", maxPinHours))
	}
	for attempt := 0; attempt < versionedRetries; attempt++ {
		m, err := s.msgs.Get(ctx, messageID)
		if err != nil {
			return nil, storageErr(err)
		}
		if attempt == 0 {
			if err := s.authorizeParticipant(ctx, m, requesterID); err != nil {
				return nil, err
			}
		}
		now := s.now()
		valid, err := s.validPinCount(ctx, m, requesterID, now)
		if err != nil {
			return nil, err
		}
		if valid >= maxPins {
			return nil, apperr.Limit(fmt.Sprintf("a conversation can hold at most %d pinned messages", maxPins))
		}

		entry := domain.PinEntry{UserID: requesterID, ExpiresAt: now.Add(time.Duration(hours) * time.Hour)}
		next := withoutPin(m.PinnedBy, requesterID)
		next = append(next, entry)
		err = s.msgs.ReplacePins(ctx, m.ID, m.Version, next)
		if errors.Is(err, apperr.ErrConflict) {
			metrics.VersionConflicts.WithLabelValues("pinned_by").Inc()
			continue
		}
		if err != nil {
			return nil, storageErr(err)
		}
		s.notifyPin(ctx, m, PinEvent{MessageID: m.ID, UserID: requesterID, Pinned: true, ExpiresAt: &entry.ExpiresAt})
		return &entry, nil
	}
	return nil, apperr.Persistence("message is busy, try again", apperr.ErrConflict)
}

// validPinCount counts valid pin entries across the conversation of m,
// leaving out the requester's own entry on m since a pin replaces it.
func (s *Service) validPinCount(ctx context.Context, m *domain.Message, requesterID string, now time.Time) (int, error) {
	pinned, err := s.msgs.Pinned(ctx, m.Conversation())
	if err != nil {
		return 0, storageErr(err)
	}
	n := 0
	for _, pm := range pinned {
		for _, p := range pm.ValidPins(now) {
			if pm.ID == m.ID && p.UserID == requesterID {
				continue
			}
			n++
		}
	}
	return n, nil
}

// Unpin removes only the requester's entry.
func (s *Service) Unpin(ctx context.Context, requesterID, messageID string) error {
	if messageID == "" {
		return apperr.Validation("message id required")
	}
	for attempt := 0; attempt < versionedRetries; attempt++ {
		m, err := s.msgs.Get(ctx, messageID)
		if err != nil {
			return storageErr(err)
		}
		if attempt == 0 {
			if err := s.authorizeParticipant(ctx, m, requesterID); err != nil {
				return err
			}
		}
		next := withoutPin(m.PinnedBy, requesterID)
		if len(next) == len(m.PinnedBy) {
			return nil
		}
		err = s.msgs.ReplacePins(ctx, m.ID, m.Version, next)
		if errors.Is(err, apperr.ErrConflict) {
			metrics.VersionConflicts.WithLabelValues("pinned_by").Inc()
			continue
		}
		if err != nil {
			return storageErr(err)
		}
		s.notifyPin(ctx, m, PinEvent{MessageID: m.ID, UserID: requesterID, Pinned: false})
		return nil
	}
	return apperr.Persistence("message is busy, try again", apperr.ErrConflict)
}

func withoutPin(pins []domain.PinEntry, userID string) []domain.PinEntry {
	out := slices.Clone(pins)
	return slices.DeleteFunc(out, func(p domain.PinEntry) bool { return p.UserID == userID })
}

// notifyPin tells the other side of the conversation that a pin changed.
func (s *Service) notifyPin(ctx context.Context, m *domain.Message, ev PinEvent) {
	users, err := s.audience(ctx, m)
	if err != nil {
		s.log.Warn("resolve audience failed", zap.String("message", m.ID), zap.Error(err))
		return
	}
	s.fanout(users, ev.UserID, EventPin, ev)
}

// ListPinned returns up to five valid pin entries of a conversation, latest
// expiry first. Messages whose entries have all expired get their pin list
// cleared on the way.
func (s *Service) ListPinned(ctx context.Context, viewerID string, conv domain.ConversationKey) ([]PinnedItem, error) {
	if err := s.authorizeConversation(ctx, conv, viewerID); err != nil {
		return nil, err
	}
	msgs, err := s.msgs.Pinned(ctx, conv)
	if err != nil {
		return nil, storageErr(err)
	}
	now := s.now()
	items := []PinnedItem{}
	for _, m := range msgs {
		valid := m.ValidPins(now)
		if len(valid) == 0 {
			if err := s.msgs.ReplacePins(ctx, m.ID, m.Version, []domain.PinEntry{}); err != nil {
				s.log.Debug("clear expired pins skipped", zap.String("message", m.ID), zap.Error(err))
			}
			continue
		}
		v := s.view(m)
		for _, p := range valid {
			items = append(items, PinnedItem{Message: v, UserID: p.UserID, ExpiresAt: p.ExpiresAt})
		}
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].ExpiresAt.After(items[j].ExpiresAt) })
	if len(items) > maxPins {
		items = items[:maxPins]
	}
	return items, nil
}
