package service

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/fathima-sithara/realtime-service/internal/apperr"
	"github.com/fathima-sithara/realtime-service/internal/domain"
	"github.com/fathima-sithara/realtime-service/internal/metrics"
)

// SetReaction replaces the user's emoji in place or appends a new entry.
func (s *Service) SetReaction(ctx context.Context, userID, messageID, emoji string) ([]domain.Reaction, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, apperr.Validation("emoji required")
	}
	return s.updateReactions(ctx, userID, messageID, func(list []domain.Reaction) []domain.Reaction {
		if i := indexReaction(list, userID); i >= 0 {
			list[i].Emoji = emoji
			return list
		}
		return append(list, domain.Reaction{UserID: userID, Emoji: emoji, CreatedAt: s.now()})
	})
}

// ClearReaction removes the user's entry. Clearing an absent reaction is a no-op.
func (s *Service) ClearReaction(ctx context.Context, userID, messageID string) ([]domain.Reaction, error) {
	return s.updateReactions(ctx, userID, messageID, func(list []domain.Reaction) []domain.Reaction {
		if i := indexReaction(list, userID); i >= 0 {
			return slices.Delete(list, i, i+1)
		}
		return list
	})
}

func indexReaction(list []domain.Reaction, userID string) int {
	return slices.IndexFunc(list, func(r domain.Reaction) bool { return r.UserID == userID })
}

// updateReactions applies fn against the latest version of the message and
// retries when a concurrent writer got there first. The full resulting list
// goes to everyone in the conversation.
func (s *Service) updateReactions(ctx context.Context, userID, messageID string, fn func([]domain.Reaction) []domain.Reaction) ([]domain.Reaction, error) {
	if messageID == "" {
		return nil, apperr.Validation("message id required")
	}
	for attempt := 0; attempt < versionedRetries; attempt++ {
		m, err := s.msgs.Get(ctx, messageID)
		if err != nil {
			return nil, storageErr(err)
		}
		if attempt == 0 {
			if err := s.authorizeParticipant(ctx, m, userID); err != nil {
				return nil, err
			}
		}
		next := fn(slices.Clone(m.Reactions))
		if next == nil {
			next = []domain.Reaction{}
		}
		if !slices.Equal(next, m.Reactions) {
			err = s.msgs.ReplaceReactions(ctx, m.ID, m.Version, next)
			if errors.Is(err, apperr.ErrConflict) {
				metrics.VersionConflicts.WithLabelValues("reactions").Inc()
				continue
			}
			if err != nil {
				return nil, storageErr(err)
			}
		}
		if users, err := s.audience(ctx, m); err == nil {
			s.fanout(users, "", EventReactions, ReactionsEvent{MessageID: m.ID, Reactions: next})
		}
		return next, nil
	}
	return nil, apperr.Persistence("message is busy, try again", apperr.ErrConflict)
}
