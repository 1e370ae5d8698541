package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-service/internal/apperr"
	"github.com/fathima-sithara/realtime-service/internal/domain"
	"github.com/fathima-sithara/realtime-service/internal/presence"
)

const (
	maxPins          = 5
	maxPinHours      = 720
	defaultHistory   = 50
	maxHistory       = 200
	excerptRunes     = 80
	versionedRetries = 8
)

type Deps struct {
	Messages MessageStore
	Profiles Profiles
	Groups   Groups
	Alerts   Alerts
	Cipher   Cipher
	Registry *presence.Registry
	Logger   *zap.Logger

	// optional
	Media  MediaRemover
	Events EventSink
	Mirror PresenceMirror

	// ChatRoute is the screen on which incoming messages are already visible.
	ChatRoute string
	Now       func() time.Time
}

// Service is the messaging core: presence lifecycle, delivery, reactions,
// pins and message notifications.
type Service struct {
	msgs      MessageStore
	profiles  Profiles
	groups    Groups
	alerts    Alerts
	cipher    Cipher
	reg       *presence.Registry
	log       *zap.Logger
	media     MediaRemover
	events    EventSink
	mirror    PresenceMirror
	chatRoute string
	now       func() time.Time
}

func New(d Deps) *Service {
	s := &Service{
		msgs:      d.Messages,
		profiles:  d.Profiles,
		groups:    d.Groups,
		alerts:    d.Alerts,
		cipher:    d.Cipher,
		reg:       d.Registry,
		log:       d.Logger,
		media:     d.Media,
		events:    d.Events,
		mirror:    d.Mirror,
		chatRoute: d.ChatRoute,
		now:       d.Now,
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.chatRoute == "" {
		s.chatRoute = "/messages"
	}
	return s
}

func (s *Service) Registry() *presence.Registry { return s.reg }

// storageErr turns a raw store error into a generic persistence failure.
// Typed errors (not found, limit, ...) pass through unchanged.
func storageErr(err error) error {
	if err == nil {
		return nil
	}
	if apperr.KindOf(err) == apperr.KindInternal {
		return apperr.Persistence("storage failure", err)
	}
	return err
}

// push delivers to userID if connected. Failures are logged only: a dead
// handle is cleaned up by its own read loop.
func (s *Service) push(userID, event string, payload any) bool {
	ok, err := s.reg.Push(userID, event, payload)
	if err != nil {
		s.log.Warn("push failed", zap.String("user", userID), zap.String("event", event), zap.Error(err))
		return false
	}
	return ok
}

func (s *Service) publish(ctx context.Context, eventType, key string, data any) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, eventType, key, data); err != nil {
		s.log.Warn("publish event failed", zap.String("type", eventType), zap.Error(err))
	}
}

func (s *Service) view(m *domain.Message) MessageView {
	v := MessageView{
		ID:                 m.ID,
		SenderID:           m.SenderID,
		RecipientID:        m.RecipientID,
		GroupID:            m.GroupID,
		Content:            m.Content,
		Attachment:         m.Attachment,
		Delivered:          m.Delivered,
		Read:               m.Read,
		ReadAt:             m.ReadAt,
		Reactions:          m.Reactions,
		ReplyTo:            m.ReplyTo,
		DeletedForEveryone: m.DeletedForEveryone,
		PinnedBy:           m.PinnedBy,
		CreatedAt:          m.CreatedAt,
	}
	if m.Encrypted {
		plain, err := s.cipher.Decrypt(m.Content)
		if err != nil {
			s.log.Warn("decrypt failed", zap.String("message", m.ID), zap.Error(err))
			v.Content = ""
		} else {
			v.Content = plain
		}
	}
	if v.Reactions == nil {
		v.Reactions = []domain.Reaction{}
	}
	if v.PinnedBy == nil {
		v.PinnedBy = []domain.PinEntry{}
	}
	return v
}

// audience lists who should see changes to m: both sides of a direct
// message or every member of its group.
func (s *Service) audience(ctx context.Context, m *domain.Message) ([]string, error) {
	if !m.IsGroup() {
		return []string{m.SenderID, m.RecipientID}, nil
	}
	g, err := s.groups.Group(ctx, m.GroupID)
	if err != nil {
		return nil, storageErr(err)
	}
	return g.AllMembers(), nil
}

// authorizeParticipant checks that userID belongs to the conversation of m.
func (s *Service) authorizeParticipant(ctx context.Context, m *domain.Message, userID string) error {
	if !m.IsGroup() {
		if !m.IsDirectParticipant(userID) {
			return apperr.Unauthorized("not a participant of this conversation")
		}
		return nil
	}
	g, err := s.groups.Group(ctx, m.GroupID)
	if err != nil {
		return storageErr(err)
	}
	if !g.IsMember(userID) {
		return apperr.Unauthorized("not a member of this group")
	}
	return nil
}

func (s *Service) authorizeConversation(ctx context.Context, conv domain.ConversationKey, userID string) error {
	if !conv.IsGroup() {
		if !conv.Includes(userID) {
			return apperr.Unauthorized("not a participant of this conversation")
		}
		return nil
	}
	g, err := s.groups.Group(ctx, conv.GroupID)
	if err != nil {
		return storageErr(err)
	}
	if !g.IsMember(userID) {
		return apperr.Unauthorized("not a member of this group")
	}
	return nil
}

func (s *Service) fanout(users []string, except, event string, payload any) {
	for _, id := range users {
		if id != except {
			s.push(id, event, payload)
		}
	}
}
