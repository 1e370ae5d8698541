package ws

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-service/internal/apperr"
	"github.com/fathima-sithara/realtime-service/internal/domain"
	"github.com/fathima-sithara/realtime-service/internal/service"
	"github.com/fathima-sithara/realtime-service/internal/utils"
)

const eventError = service.EventError

var errReplaced = apperr.Validation("connection replaced")

// Client to server signals.
const (
	SignalRegisterOnline = "register-online"
	SignalSend           = "send"
	SignalMarkRead       = "mark-read"
	SignalMarkAllRead    = "mark-all-read"
	SignalTypingStart    = "typing-start"
	SignalTypingStop     = "typing-stop"
	SignalReact          = "react"
	SignalUnreact        = "unreact"
	SignalPin            = "pin"
	SignalUnpin          = "unpin"
	SignalDelete         = "delete"
	SignalRouteChange    = "route-change"
	SignalHistory        = "history"

	SignalCallInitiate = "call:initiate"
	SignalCallAccept   = "call:accept"
	SignalCallReject   = "call:reject"
	SignalCallEnd      = "call:end"
	SignalCallLog      = "call:log"
)

type sendPayload struct {
	RecipientID string             `json:"recipient_id"`
	GroupID     string             `json:"group_id"`
	Content     string             `json:"content"`
	ReplyTo     string             `json:"reply_to"`
	Attachment  *domain.Attachment `json:"attachment"`
}

type messageRef struct {
	MessageID string `json:"message_id" validate:"required"`
}

type reactPayload struct {
	MessageID string `json:"message_id" validate:"required"`
	Emoji     string `json:"emoji" validate:"required"`
}

type pinPayload struct {
	MessageID string `json:"message_id" validate:"required"`
	Hours     int    `json:"hours"`
}

type deletePayload struct {
	MessageID string             `json:"message_id" validate:"required"`
	Mode      service.DeleteMode `json:"mode" validate:"omitempty,oneof=self everyone"`
}

type peerPayload struct {
	RecipientID string `json:"recipient_id"`
	GroupID     string `json:"group_id"`
	SenderID    string `json:"sender_id"`
}

type routePayload struct {
	Route string `json:"route" validate:"required"`
}

type historyPayload struct {
	PeerID  string    `json:"peer_id"`
	GroupID string    `json:"group_id"`
	Limit   int       `json:"limit"`
	Before  time.Time `json:"before"`
}

type callPayload struct {
	CallID   string          `json:"call_id"`
	CalleeID string          `json:"callee_id"`
	Type     domain.CallType `json:"type"`
	Payload  json.RawMessage `json:"payload"`
}

type callLogPayload struct {
	LogID    string            `json:"log_id" validate:"required"`
	Status   domain.CallStatus `json:"status" validate:"required"`
	Duration int               `json:"duration" validate:"gte=0"`
}

type deleteAck struct {
	MessageID string `json:"message_id"`
	Removed   bool   `json:"removed"`
}

// Dispatcher maps inbound signals onto the messaging and call services.
type Dispatcher struct {
	svc   *service.Service
	calls *service.CallRelay
	log   *zap.Logger
}

func NewDispatcher(svc *service.Service, calls *service.CallRelay, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{svc: svc, calls: calls, log: log}
}

// Dispatch handles one envelope. Every failure is reported to the sender as
// an error event carrying the envelope ref.
func (d *Dispatcher) Dispatch(ctx context.Context, c *Client, env Envelope) {
	if err := d.dispatch(ctx, c, env); err != nil {
		d.fail(c, env, err)
		if errors.Is(err, errReplaced) {
			c.Close()
		}
	}
}

func (d *Dispatcher) fail(c *Client, env Envelope, err error) {
	kind := apperr.KindOf(err)
	if kind == apperr.KindInternal || kind == apperr.KindPersistence {
		d.log.Error("signal failed", zap.String("user", c.userID), zap.String("type", env.Type), zap.Error(err))
	}
	_ = c.reply(eventError, env.Ref, ErrorEvent{Code: string(kind), Message: apperr.Public(err), Ref: env.Ref})
}

func decode(env Envelope, v any) error {
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, v); err != nil {
			return apperr.Validation("malformed payload")
		}
	}
	return utils.ValidateStruct(v)
}

func (d *Dispatcher) dispatch(ctx context.Context, c *Client, env Envelope) error {
	if env.Type == SignalRegisterOnline {
		if c.registered {
			return nil
		}
		if err := d.svc.Connect(ctx, c.userID, c); err != nil {
			return err
		}
		c.registered = true
		return c.reply(service.EventPresence, env.Ref, service.PresenceEvent{UserID: c.userID, Status: service.StatusOnline})
	}
	if !c.registered {
		return apperr.Validation("register-online required")
	}
	if !d.svc.Owns(c.userID, c) {
		return errReplaced
	}

	if strings.HasPrefix(env.Type, "call:") {
		return d.dispatchCall(ctx, c, env)
	}

	switch env.Type {
	case SignalSend:
		var p sendPayload
		if err := decode(env, &p); err != nil {
			return err
		}
		v, err := d.svc.Send(ctx, service.SendRequest{
			SenderID:    c.userID,
			RecipientID: p.RecipientID,
			GroupID:     p.GroupID,
			Content:     p.Content,
			ReplyTo:     p.ReplyTo,
			Attachment:  p.Attachment,
			SkipEcho:    true,
		})
		if err != nil {
			return err
		}
		return c.reply(service.EventSent, env.Ref, v)

	case SignalMarkRead:
		var p messageRef
		if err := decode(env, &p); err != nil {
			return err
		}
		st, err := d.svc.MarkRead(ctx, c.userID, p.MessageID)
		if err != nil {
			return err
		}
		return c.reply(service.EventStatus, env.Ref, st)

	case SignalMarkAllRead:
		var p peerPayload
		if err := decode(env, &p); err != nil {
			return err
		}
		st, err := d.svc.MarkAllRead(ctx, c.userID, p.SenderID)
		if err != nil {
			return err
		}
		return c.reply(service.EventStatus, env.Ref, st)

	case SignalTypingStart, SignalTypingStop:
		var p peerPayload
		if err := decode(env, &p); err != nil {
			return err
		}
		return d.svc.Typing(ctx, c.userID, p.RecipientID, p.GroupID, env.Type == SignalTypingStart)

	case SignalReact:
		var p reactPayload
		if err := decode(env, &p); err != nil {
			return err
		}
		_, err := d.svc.SetReaction(ctx, c.userID, p.MessageID, p.Emoji)
		return err

	case SignalUnreact:
		var p messageRef
		if err := decode(env, &p); err != nil {
			return err
		}
		_, err := d.svc.ClearReaction(ctx, c.userID, p.MessageID)
		return err

	case SignalPin:
		var p pinPayload
		if err := decode(env, &p); err != nil {
			return err
		}
		entry, err := d.svc.Pin(ctx, c.userID, p.MessageID, p.Hours)
		if err != nil {
			return err
		}
		exp := entry.ExpiresAt
		return c.reply(service.EventPin, env.Ref, service.PinEvent{MessageID: p.MessageID, UserID: c.userID, Pinned: true, ExpiresAt: &exp})

	case SignalUnpin:
		var p messageRef
		if err := decode(env, &p); err != nil {
			return err
		}
		if err := d.svc.Unpin(ctx, c.userID, p.MessageID); err != nil {
			return err
		}
		return c.reply(service.EventPin, env.Ref, service.PinEvent{MessageID: p.MessageID, UserID: c.userID})

	case SignalDelete:
		var p deletePayload
		if err := decode(env, &p); err != nil {
			return err
		}
		if p.Mode == "" {
			p.Mode = service.DeleteForSelf
		}
		removed, err := d.svc.Delete(ctx, c.userID, p.MessageID, p.Mode)
		if err != nil {
			return err
		}
		return c.reply(service.EventDeleted, env.Ref, deleteAck{MessageID: p.MessageID, Removed: removed})

	case SignalRouteChange:
		var p routePayload
		if err := decode(env, &p); err != nil {
			return err
		}
		return d.svc.ChangeRoute(ctx, c.userID, p.Route)

	case SignalHistory:
		var p historyPayload
		if err := decode(env, &p); err != nil {
			return err
		}
		conv := domain.DirectConversation(c.userID, p.PeerID)
		if p.GroupID != "" {
			conv = domain.GroupConversation(p.GroupID)
		} else if p.PeerID == "" {
			return apperr.Validation("peer or group required")
		}
		list, err := d.svc.History(ctx, c.userID, conv, p.Limit, p.Before)
		if err != nil {
			return err
		}
		return c.reply(SignalHistory, env.Ref, list)
	}
	return apperr.Validation("unknown signal " + env.Type)
}

func (d *Dispatcher) dispatchCall(ctx context.Context, c *Client, env Envelope) error {
	if env.Type == SignalCallLog {
		var p callLogPayload
		if err := decode(env, &p); err != nil {
			return err
		}
		l, err := d.calls.FinalizeLog(ctx, c.userID, p.LogID, p.Status, p.Duration)
		if err != nil {
			return err
		}
		return c.reply(SignalCallLog, env.Ref, l)
	}

	var p callPayload
	if err := decode(env, &p); err != nil {
		return err
	}
	switch env.Type {
	case SignalCallInitiate:
		start, err := d.calls.Initiate(ctx, c.userID, p.CalleeID, p.Type)
		if err != nil {
			return err
		}
		return c.reply(SignalCallInitiate, env.Ref, start)
	case SignalCallAccept:
		return d.calls.Accept(ctx, c.userID, p.CallID)
	case SignalCallReject:
		return d.calls.Reject(ctx, c.userID, p.CallID)
	case SignalCallEnd:
		return d.calls.End(ctx, c.userID, p.CallID)
	}
	// offer, answer and ice-candidate go through verbatim; Relay rejects
	// anything else.
	return d.calls.Relay(ctx, c.userID, p.CallID, strings.TrimPrefix(env.Type, "call:"), p.Payload)
}
