package domain

import (
	"slices"
	"time"
)

// TombstoneText replaces the content of a message deleted for everyone.
const TombstoneText = "This message was deleted"

type MediaType string

const (
	MediaImage MediaType = "image"
	MediaFile  MediaType = "file"
	MediaVoice MediaType = "voice"
)

func (t MediaType) Valid() bool {
	switch t {
	case MediaImage, MediaFile, MediaVoice:
		return true
	}
	return false
}

// Placeholder is the unencrypted content stored for an attachment message.
func (t MediaType) Placeholder() string { return "[" + string(t) + "]" }

// Attachment points at an object kept in external storage.
type Attachment struct {
	Key  string    `bson:"key" json:"key"`
	URL  string    `bson:"url" json:"url"`
	Type MediaType `bson:"type" json:"type"`
	Name string    `bson:"name,omitempty" json:"name,omitempty"`
}

type Reaction struct {
	UserID    string    `bson:"user_id" json:"user_id"`
	Emoji     string    `bson:"emoji" json:"emoji"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

type PinEntry struct {
	UserID    string    `bson:"user_id" json:"user_id"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
}

func (p PinEntry) ValidAt(now time.Time) bool { return p.ExpiresAt.After(now) }

type Message struct {
	ID                 string      `bson:"_id" json:"id"`
	SenderID           string      `bson:"sender_id" json:"sender_id"`
	RecipientID        string      `bson:"recipient_id,omitempty" json:"recipient_id,omitempty"`
	GroupID            string      `bson:"group_id,omitempty" json:"group_id,omitempty"`
	Content            string      `bson:"content" json:"content"`
	Encrypted          bool        `bson:"encrypted" json:"encrypted"`
	Attachment         *Attachment `bson:"attachment,omitempty" json:"attachment,omitempty"`
	Delivered          bool        `bson:"delivered" json:"delivered"`
	Read               bool        `bson:"read" json:"read"`
	ReadAt             *time.Time  `bson:"read_at,omitempty" json:"read_at,omitempty"`
	Reactions          []Reaction  `bson:"reactions" json:"reactions"`
	ReplyTo            string      `bson:"reply_to,omitempty" json:"reply_to,omitempty"`
	DeletedBy          []string    `bson:"deleted_by" json:"deleted_by"`
	DeletedForEveryone bool        `bson:"deleted_for_everyone" json:"deleted_for_everyone"`
	PinnedBy           []PinEntry  `bson:"pinned_by" json:"pinned_by"`
	Version            int64       `bson:"version" json:"-"`
	CreatedAt          time.Time   `bson:"created_at" json:"created_at"`
}

func (m *Message) IsGroup() bool { return m.GroupID != "" }

func (m *Message) Conversation() ConversationKey {
	if m.IsGroup() {
		return GroupConversation(m.GroupID)
	}
	return DirectConversation(m.SenderID, m.RecipientID)
}

// IsDirectParticipant reports whether user is the sender or recipient of a direct message.
func (m *Message) IsDirectParticipant(userID string) bool {
	return !m.IsGroup() && (m.SenderID == userID || m.RecipientID == userID)
}

// Counterpart returns the other side of a direct message.
func (m *Message) Counterpart(userID string) string {
	if m.IsGroup() {
		return ""
	}
	if m.SenderID == userID {
		return m.RecipientID
	}
	return m.SenderID
}

func (m *Message) DeletedFor(userID string) bool { return slices.Contains(m.DeletedBy, userID) }

// EnsureSlices replaces nil sub-lists so documents always carry arrays.
func (m *Message) EnsureSlices() {
	if m.Reactions == nil {
		m.Reactions = []Reaction{}
	}
	if m.DeletedBy == nil {
		m.DeletedBy = []string{}
	}
	if m.PinnedBy == nil {
		m.PinnedBy = []PinEntry{}
	}
}

// ValidPins returns the entries still valid at now.
func (m *Message) ValidPins(now time.Time) []PinEntry {
	out := make([]PinEntry, 0, len(m.PinnedBy))
	for _, p := range m.PinnedBy {
		if p.ValidAt(now) {
			out = append(out, p)
		}
	}
	return out
}
