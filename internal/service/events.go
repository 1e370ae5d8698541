package service

import (
	"encoding/json"
	"time"

	"github.com/fathima-sithara/realtime-service/internal/domain"
)

// Server to client event names.
const (
	EventPresence             = "presence"
	EventSent                 = "sent"
	EventReceive              = "receive"
	EventStatus               = "status"
	EventTyping               = "typing"
	EventReactions            = "reactions"
	EventPin                  = "pin"
	EventNotification         = "notification"
	EventNotificationsRefresh = "notifications:refresh"
	EventDeleted              = "deleted"
	EventError                = "error"

	EventCallIncoming = "call:incoming"
	EventCallAccept   = "call:accept"
	EventCallReject   = "call:reject"
	EventCallEnd      = "call:end"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// MessageView is a message as clients see it, with content decrypted.
type MessageView struct {
	ID                 string             `json:"id"`
	SenderID           string             `json:"sender_id"`
	RecipientID        string             `json:"recipient_id,omitempty"`
	GroupID            string             `json:"group_id,omitempty"`
	Content            string             `json:"content"`
	Attachment         *domain.Attachment `json:"attachment,omitempty"`
	Delivered          bool               `json:"delivered"`
	Read               bool               `json:"read"`
	ReadAt             *time.Time         `json:"read_at,omitempty"`
	Reactions          []domain.Reaction  `json:"reactions"`
	ReplyTo            string             `json:"reply_to,omitempty"`
	DeletedForEveryone bool               `json:"deleted_for_everyone"`
	PinnedBy           []domain.PinEntry  `json:"pinned_by"`
	CreatedAt          time.Time          `json:"created_at"`
}

type PresenceEvent struct {
	UserID   string     `json:"user_id"`
	Status   string     `json:"status"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}

type StatusEvent struct {
	MessageIDs []string   `json:"message_ids"`
	Delivered  bool       `json:"delivered"`
	Read       bool       `json:"read"`
	ReadAt     *time.Time `json:"read_at,omitempty"`
}

type TypingEvent struct {
	From    string `json:"from"`
	GroupID string `json:"group_id,omitempty"`
	Active  bool   `json:"active"`
}

type ReactionsEvent struct {
	MessageID string            `json:"message_id"`
	Reactions []domain.Reaction `json:"reactions"`
}

type PinEvent struct {
	MessageID string     `json:"message_id"`
	UserID    string     `json:"user_id"`
	Pinned    bool       `json:"pinned"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type NotificationEvent struct {
	ID      string `json:"id"`
	From    string `json:"from"`
	Title   string `json:"title"`
	Excerpt string `json:"excerpt"`
}

type DeletedEvent struct {
	MessageID string       `json:"message_id"`
	Mode      DeleteMode   `json:"mode"`
	Message   *MessageView `json:"message,omitempty"`
}

// CallEvent carries call signaling. Payload is forwarded as received.
type CallEvent struct {
	CallID  string          `json:"call_id"`
	From    string          `json:"from"`
	Type    domain.CallType `json:"type,omitempty"`
	LogID   string          `json:"log_id,omitempty"`
	Reason  string          `json:"reason,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// PinnedItem is one valid pin entry together with its message.
type PinnedItem struct {
	Message   MessageView `json:"message"`
	UserID    string      `json:"user_id"`
	ExpiresAt time.Time   `json:"expires_at"`
}
