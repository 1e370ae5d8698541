package service

import (
	"context"
	"time"

	"github.com/fathima-sithara/realtime-service/internal/domain"
)

// MessageStore persists messages. Missing rows are reported as apperr.ErrNotFound,
// a lost versioned write as apperr.ErrConflict.
type MessageStore interface {
	Insert(ctx context.Context, m *domain.Message) error
	Get(ctx context.Context, id string) (*domain.Message, error)
	MarkDelivered(ctx context.Context, ids []string) error
	PendingFor(ctx context.Context, recipientID string) ([]*domain.Message, error)
	MarkRead(ctx context.Context, id string, at time.Time) (*domain.Message, error)
	MarkAllRead(ctx context.Context, senderID, recipientID string, at time.Time) ([]string, error)
	AddDeletedBy(ctx context.Context, id, userID string) (*domain.Message, error)
	Delete(ctx context.Context, id string) error
	Tombstone(ctx context.Context, id, text string) (*domain.Message, error)
	ReplaceReactions(ctx context.Context, id string, version int64, reactions []domain.Reaction) error
	ReplacePins(ctx context.Context, id string, version int64, pins []domain.PinEntry) error
	Pinned(ctx context.Context, conv domain.ConversationKey) ([]*domain.Message, error)
	History(ctx context.Context, conv domain.ConversationKey, viewerID string, limit int, before time.Time) ([]*domain.Message, error)
}

type Profiles interface {
	Profile(ctx context.Context, userID string) (*domain.Profile, error)
	SetLastSeen(ctx context.Context, userID string, at time.Time) error
}

type Groups interface {
	Group(ctx context.Context, groupID string) (*domain.Group, error)
}

type Alerts interface {
	Create(ctx context.Context, a *domain.Alert) error
	ClearMessageAlerts(ctx context.Context, userID string) (int64, error)
}

type CallLogs interface {
	Create(ctx context.Context, l *domain.CallLog) error
	Get(ctx context.Context, id string) (*domain.CallLog, error)
	Finalize(ctx context.Context, id string, status domain.CallStatus, duration int, endedAt time.Time) (*domain.CallLog, error)
}

// MediaRemover deletes attachment objects from external storage.
type MediaRemover interface {
	RemoveObject(ctx context.Context, key string) error
}

// EventSink publishes domain events for downstream consumers.
type EventSink interface {
	Publish(ctx context.Context, eventType, key string, data any) error
}

// PresenceMirror shares presence beyond this process.
type PresenceMirror interface {
	MarkOnline(ctx context.Context, userID string) error
	MarkOffline(ctx context.Context, userID string, at time.Time) error
}

// Cipher is the at-rest codec for message text.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}
