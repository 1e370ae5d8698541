package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-service/internal/apperr"
	"github.com/fathima-sithara/realtime-service/internal/presence"
)

// Connect registers h as the user's connection, flips every message waiting
// for them to delivered and announces them online. If the pending messages
// cannot be reconciled the registration is rolled back.
func (s *Service) Connect(ctx context.Context, userID string, h presence.Handle) error {
	if userID == "" {
		return apperr.Validation("user id required")
	}
	if prev := s.reg.Register(userID, h); prev != nil && prev != h {
		s.log.Info("connection replaced", zap.String("user", userID))
	}
	if err := s.reconcile(ctx, userID); err != nil {
		s.reg.Unregister(userID, h)
		return err
	}
	if s.mirror != nil {
		if err := s.mirror.MarkOnline(ctx, userID); err != nil {
			s.log.Warn("presence mirror online failed", zap.String("user", userID), zap.Error(err))
		}
	}
	s.reg.Broadcast(userID, EventPresence, PresenceEvent{UserID: userID, Status: StatusOnline})
	return nil
}

// Owns reports whether h is the user's live connection.
func (s *Service) Owns(userID string, h presence.Handle) bool {
	cur, ok := s.reg.Lookup(userID)
	return ok && cur == h
}

// reconcile marks pending direct messages delivered and tells each sender
// which of theirs went through.
func (s *Service) reconcile(ctx context.Context, userID string) error {
	pending, err := s.msgs.PendingFor(ctx, userID)
	if err != nil {
		return storageErr(err)
	}
	if len(pending) == 0 {
		return nil
	}
	ids := make([]string, 0, len(pending))
	bySender := make(map[string][]string)
	for _, m := range pending {
		ids = append(ids, m.ID)
		bySender[m.SenderID] = append(bySender[m.SenderID], m.ID)
	}
	if err := s.msgs.MarkDelivered(ctx, ids); err != nil {
		return storageErr(err)
	}
	for sender, mids := range bySender {
		s.push(sender, EventStatus, StatusEvent{MessageIDs: mids, Delivered: true})
	}
	s.log.Debug("pending messages delivered", zap.String("user", userID), zap.Int("count", len(ids)))
	return nil
}

// Disconnect removes the entry if it still belongs to h. It returns false
// when a newer connection has taken over, in which case nothing is announced.
func (s *Service) Disconnect(ctx context.Context, userID string, h presence.Handle) bool {
	if !s.reg.Unregister(userID, h) {
		return false
	}
	at := s.now()
	if err := s.profiles.SetLastSeen(ctx, userID, at); err != nil {
		s.log.Warn("set last seen failed", zap.String("user", userID), zap.Error(err))
	}
	if s.mirror != nil {
		if err := s.mirror.MarkOffline(ctx, userID, at); err != nil {
			s.log.Warn("presence mirror offline failed", zap.String("user", userID), zap.Error(err))
		}
	}
	s.reg.Broadcast(userID, EventPresence, PresenceEvent{UserID: userID, Status: StatusOffline, LastSeen: &at})
	return true
}

// ChangeRoute records the user's current screen. Entering the chat screen
// clears their pending message alerts.
func (s *Service) ChangeRoute(ctx context.Context, userID, route string) error {
	prev, ok := s.reg.UpdateRoute(userID, route)
	if !ok {
		return apperr.Validation("register-online required")
	}
	if s.onChatScreen(route) && !s.onChatScreen(prev) {
		return s.ClearOnEntry(ctx, userID)
	}
	return nil
}

func (s *Service) onChatScreen(route string) bool {
	return route == s.chatRoute || strings.HasPrefix(route, s.chatRoute+"/")
}
