package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-service/internal/domain"
)

// NotifyIfAway records a message alert for recipientID unless they are
// looking at the chat screen, and signals it when they are connected.
// Alert failures are logged; they never fail the send that caused them.
func (s *Service) NotifyIfAway(ctx context.Context, recipientID, fromID, title, excerpt string) *domain.Alert {
	if route, ok := s.reg.Route(recipientID); ok && s.onChatScreen(route) {
		return nil
	}
	a := &domain.Alert{
		ID:        uuid.NewString(),
		UserID:    recipientID,
		FromID:    fromID,
		Title:     title,
		Message:   excerpt,
		Type:      domain.AlertMessage,
		CreatedAt: s.now(),
	}
	if err := s.alerts.Create(ctx, a); err != nil {
		s.log.Warn("create alert failed", zap.String("user", recipientID), zap.Error(err))
		return nil
	}
	s.push(recipientID, EventNotification, NotificationEvent{ID: a.ID, From: fromID, Title: title, Excerpt: excerpt})
	return a
}

// ClearOnEntry purges the user's message alerts and asks the client to refresh.
func (s *Service) ClearOnEntry(ctx context.Context, userID string) error {
	n, err := s.alerts.ClearMessageAlerts(ctx, userID)
	if err != nil {
		return storageErr(err)
	}
	s.log.Debug("message alerts cleared", zap.String("user", userID), zap.Int64("count", n))
	s.push(userID, EventNotificationsRefresh, map[string]int64{"cleared": n})
	return nil
}

func excerpt(text string) string {
	r := []rune(text)
	if len(r) <= excerptRunes {
		return text
	}
	return string(r[:excerptRunes]) + "…"
}
