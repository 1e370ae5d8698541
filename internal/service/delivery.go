package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-service/internal/apperr"
	"github.com/fathima-sithara/realtime-service/internal/domain"
	"github.com/fathima-sithara/realtime-service/internal/events"
	"github.com/fathima-sithara/realtime-service/internal/metrics"
)

type SendRequest struct {
	SenderID    string
	RecipientID string
	GroupID     string
	Content     string
	ReplyTo     string
	Attachment  *domain.Attachment
	// SkipEcho leaves the sent event to the caller, which answers on the
	// sending connection itself.
	SkipEcho bool
}

func (r SendRequest) validate() error {
	switch {
	case r.SenderID == "":
		return apperr.Validation("sender required")
	case r.RecipientID == "" && r.GroupID == "":
		return apperr.Validation("recipient or group required")
	case r.RecipientID != "" && r.GroupID != "":
		return apperr.Validation("recipient and group are mutually exclusive")
	case r.RecipientID == r.SenderID:
		return apperr.Validation("cannot send a message to yourself")
	}
	if r.Attachment != nil {
		if r.Attachment.Key == "" || !r.Attachment.Type.Valid() {
			return apperr.Validation("attachment needs a key and a type of image, file or voice")
		}
		return nil
	}
	if strings.TrimSpace(r.Content) == "" {
		return apperr.Validation("content required")
	}
	return nil
}

type DeleteMode string

const (
	DeleteForSelf     DeleteMode = "self"
	DeleteForEveryone DeleteMode = "everyone"
)

// Send stores a message and delivers it to whoever is connected.
// Text is encrypted at rest; attachment placeholders are stored as is.
func (s *Service) Send(ctx context.Context, req SendRequest) (*MessageView, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}

	sender, err := s.profiles.Profile(ctx, req.SenderID)
	if err != nil {
		return nil, storageErr(err)
	}

	var (
		recipient *domain.Profile
		group     *domain.Group
		conv      domain.ConversationKey
	)
	if req.GroupID != "" {
		group, err = s.groups.Group(ctx, req.GroupID)
		if err != nil {
			return nil, storageErr(err)
		}
		if !group.IsMember(req.SenderID) {
			return nil, apperr.Unauthorized("not a member of this group")
		}
		if !group.CanSend(req.SenderID) {
			return nil, apperr.Unauthorized("only admins can send to this group")
		}
		conv = domain.GroupConversation(group.ID)
	} else {
		recipient, err = s.profiles.Profile(ctx, req.RecipientID)
		if err != nil {
			return nil, storageErr(err)
		}
		if domain.EitherBlocked(sender, recipient) {
			return nil, apperr.Unauthorized("messaging is blocked between these users")
		}
		conv = domain.DirectConversation(sender.ID, recipient.ID)
	}

	if req.ReplyTo != "" {
		parent, err := s.msgs.Get(ctx, req.ReplyTo)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				return nil, apperr.NotFound("reply target not found")
			}
			return nil, storageErr(err)
		}
		if parent.Conversation() != conv {
			return nil, apperr.Validation("reply target belongs to another conversation")
		}
	}

	m := &domain.Message{
		ID:          uuid.NewString(),
		SenderID:    req.SenderID,
		RecipientID: req.RecipientID,
		GroupID:     req.GroupID,
		ReplyTo:     req.ReplyTo,
		CreatedAt:   s.now(),
	}
	plain := req.Content
	if req.Attachment != nil {
		att := *req.Attachment
		m.Attachment = &att
		m.Content = att.Type.Placeholder()
		plain = m.Content
	} else {
		ct, err := s.cipher.Encrypt(req.Content)
		if err != nil {
			return nil, fmt.Errorf("encrypt message: %w", err)
		}
		m.Content = ct
		m.Encrypted = true
	}
	m.EnsureSlices()

	if err := s.msgs.Insert(ctx, m); err != nil {
		return nil, storageErr(err)
	}

	var delivered bool
	if group != nil {
		delivered = s.deliverGroup(ctx, m, group, sender, plain)
	} else {
		delivered = s.deliverDirect(ctx, m, sender, recipient, plain)
	}
	m.Delivered = delivered

	v := s.view(m)
	if !req.SkipEcho {
		s.push(req.SenderID, EventSent, v)
	}

	kind := "direct"
	if group != nil {
		kind = "group"
	}
	metrics.MessagesSent.WithLabelValues(kind, strconv.FormatBool(delivered)).Inc()
	s.publish(ctx, events.MessageSent, conv.String(), map[string]any{
		"id": m.ID, "sender_id": m.SenderID, "recipient_id": m.RecipientID, "group_id": m.GroupID,
		"delivered": delivered, "attachment": m.Attachment != nil, "created_at": m.CreatedAt,
	})
	return &v, nil
}

// deliverDirect pushes to a connected recipient and persists the delivered
// flag. An absent recipient leaves the message pending until they register.
func (s *Service) deliverDirect(ctx context.Context, m *domain.Message, sender, recipient *domain.Profile, plain string) bool {
	delivered := false
	if _, online := s.reg.Lookup(recipient.ID); online {
		out := *m
		out.Delivered = true
		if s.push(recipient.ID, EventReceive, s.view(&out)) {
			if err := s.msgs.MarkDelivered(ctx, []string{m.ID}); err != nil {
				s.log.Warn("mark delivered failed", zap.String("message", m.ID), zap.Error(err))
			} else {
				delivered = true
			}
		}
	}
	if !recipient.HasMuted(sender.ID) {
		s.NotifyIfAway(ctx, recipient.ID, sender.ID, sender.Username, excerpt(plain))
	}
	return delivered
}

func (s *Service) deliverGroup(ctx context.Context, m *domain.Message, g *domain.Group, sender *domain.Profile, plain string) bool {
	out := *m
	out.Delivered = true
	v := s.view(&out)
	title := g.Name
	if title == "" {
		title = sender.Username
	}
	reached := 0
	for _, member := range g.AllMembers() {
		if member == sender.ID {
			continue
		}
		if s.push(member, EventReceive, v) {
			reached++
		}
		s.NotifyIfAway(ctx, member, sender.ID, title, excerpt(plain))
	}
	if reached == 0 {
		return false
	}
	if err := s.msgs.MarkDelivered(ctx, []string{m.ID}); err != nil {
		s.log.Warn("mark delivered failed", zap.String("message", m.ID), zap.Error(err))
		return false
	}
	return true
}

// MarkRead marks one direct message read by its recipient and tells the sender.
func (s *Service) MarkRead(ctx context.Context, readerID, messageID string) (*StatusEvent, error) {
	if messageID == "" {
		return nil, apperr.Validation("message id required")
	}
	m, err := s.msgs.Get(ctx, messageID)
	if err != nil {
		return nil, storageErr(err)
	}
	if m.IsGroup() {
		return nil, apperr.Validation("read receipts are tracked for direct messages only")
	}
	if m.RecipientID != readerID {
		return nil, apperr.Unauthorized("only the recipient can mark a message read")
	}
	if m.Read {
		return &StatusEvent{MessageIDs: []string{m.ID}, Delivered: true, Read: true, ReadAt: m.ReadAt}, nil
	}
	updated, err := s.msgs.MarkRead(ctx, m.ID, s.now())
	if err != nil {
		return nil, storageErr(err)
	}
	st := StatusEvent{MessageIDs: []string{updated.ID}, Delivered: updated.Delivered, Read: updated.Read, ReadAt: updated.ReadAt}
	s.push(updated.SenderID, EventStatus, st)
	s.publish(ctx, events.MessageRead, m.Conversation().String(), st)
	return &st, nil
}

// MarkAllRead marks everything senderID sent to readerID as read.
func (s *Service) MarkAllRead(ctx context.Context, readerID, senderID string) (*StatusEvent, error) {
	if senderID == "" || senderID == readerID {
		return nil, apperr.Validation("sender required")
	}
	at := s.now()
	ids, err := s.msgs.MarkAllRead(ctx, senderID, readerID, at)
	if err != nil {
		return nil, storageErr(err)
	}
	st := StatusEvent{MessageIDs: ids, Delivered: true, Read: true, ReadAt: &at}
	if st.MessageIDs == nil {
		st.MessageIDs = []string{}
	}
	if len(ids) > 0 {
		s.push(senderID, EventStatus, st)
		s.publish(ctx, events.MessageRead, domain.DirectConversation(senderID, readerID).String(), st)
	}
	return &st, nil
}

// Delete hides a message for the requester or tombstones it for everyone.
// It reports whether the row was removed from storage.
func (s *Service) Delete(ctx context.Context, requesterID, messageID string, mode DeleteMode) (bool, error) {
	if messageID == "" {
		return false, apperr.Validation("message id required")
	}
	m, err := s.msgs.Get(ctx, messageID)
	if err != nil {
		return false, storageErr(err)
	}
	if err := s.authorizeParticipant(ctx, m, requesterID); err != nil {
		return false, err
	}

	switch mode {
	case DeleteForSelf:
		updated, err := s.msgs.AddDeletedBy(ctx, m.ID, requesterID)
		if err != nil {
			return false, storageErr(err)
		}
		removed := false
		if !updated.IsGroup() && updated.DeletedFor(updated.SenderID) && updated.DeletedFor(updated.RecipientID) {
			if err := s.msgs.Delete(ctx, m.ID); err != nil {
				return false, storageErr(err)
			}
			removed = true
			s.cleanMedia(ctx, m.Attachment)
		}
		s.push(requesterID, EventDeleted, DeletedEvent{MessageID: m.ID, Mode: DeleteForSelf})
		s.publish(ctx, events.MessageDeleted, m.Conversation().String(), map[string]any{
			"id": m.ID, "mode": DeleteForSelf, "by": requesterID, "removed": removed,
		})
		return removed, nil

	case DeleteForEveryone:
		if m.SenderID != requesterID {
			return false, apperr.Unauthorized("only the sender can delete for everyone")
		}
		updated, err := s.msgs.Tombstone(ctx, m.ID, domain.TombstoneText)
		if err != nil {
			return false, storageErr(err)
		}
		s.cleanMedia(ctx, m.Attachment)
		v := s.view(updated)
		users, err := s.audience(ctx, m)
		if err != nil {
			s.log.Warn("resolve audience failed", zap.String("message", m.ID), zap.Error(err))
			users = []string{requesterID}
		}
		s.fanout(users, "", EventDeleted, DeletedEvent{MessageID: m.ID, Mode: DeleteForEveryone, Message: &v})
		s.publish(ctx, events.MessageDeleted, m.Conversation().String(), map[string]any{
			"id": m.ID, "mode": DeleteForEveryone, "by": requesterID,
		})
		return false, nil
	}
	return false, apperr.Validation("mode must be self or everyone")
}

// cleanMedia removes an attachment object. Failures are logged and counted,
// never returned.
func (s *Service) cleanMedia(ctx context.Context, att *domain.Attachment) {
	if att == nil || att.Key == "" || s.media == nil {
		return
	}
	if err := s.media.RemoveObject(ctx, att.Key); err != nil {
		metrics.MediaCleanupFailures.Inc()
		s.log.Warn("media cleanup failed", zap.String("key", att.Key), zap.Error(err))
	}
}

// Typing forwards a typing indicator to a peer or to the members of a group.
func (s *Service) Typing(ctx context.Context, fromID, toID, groupID string, active bool) error {
	if groupID != "" {
		g, err := s.groups.Group(ctx, groupID)
		if err != nil {
			return storageErr(err)
		}
		if !g.IsMember(fromID) {
			return apperr.Unauthorized("not a member of this group")
		}
		s.fanout(g.AllMembers(), fromID, EventTyping, TypingEvent{From: fromID, GroupID: groupID, Active: active})
		return nil
	}
	if toID == "" || toID == fromID {
		return apperr.Validation("recipient required")
	}
	s.push(toID, EventTyping, TypingEvent{From: fromID, Active: active})
	return nil
}

// History returns the newest messages of a conversation that the viewer has
// not deleted for themselves, newest first.
func (s *Service) History(ctx context.Context, viewerID string, conv domain.ConversationKey, limit int, before time.Time) ([]MessageView, error) {
	if err := s.authorizeConversation(ctx, conv, viewerID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultHistory
	}
	if limit > maxHistory {
		limit = maxHistory
	}
	msgs, err := s.msgs.History(ctx, conv, viewerID, limit, before)
	if err != nil {
		return nil, storageErr(err)
	}
	out := make([]MessageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, s.view(m))
	}
	return out, nil
}
