package domain

import "time"

type CallType string

const (
	CallAudio CallType = "audio"
	CallVideo CallType = "video"
)

func (t CallType) Valid() bool { return t == CallAudio || t == CallVideo }

type CallStatus string

const (
	CallInitiated CallStatus = "initiated"
	CallCompleted CallStatus = "completed"
	CallMissed    CallStatus = "missed"
	CallRejected  CallStatus = "rejected"
	CallFailed    CallStatus = "failed"
)

// Final reports whether a client may finalize a log with this status.
func (s CallStatus) Final() bool {
	switch s {
	case CallCompleted, CallMissed, CallRejected, CallFailed:
		return true
	}
	return false
}

// CallLog is the audit record of a call. It is not linked to the signaling relay.
type CallLog struct {
	ID         string     `bson:"_id" json:"id"`
	CallerID   string     `bson:"caller_id" json:"caller_id"`
	ReceiverID string     `bson:"receiver_id" json:"receiver_id"`
	Type       CallType   `bson:"type" json:"type"`
	Status     CallStatus `bson:"status" json:"status"`
	Duration   int        `bson:"duration" json:"duration"`
	StartedAt  time.Time  `bson:"started_at" json:"started_at"`
	EndedAt    *time.Time `bson:"ended_at,omitempty" json:"ended_at,omitempty"`
}

func (l *CallLog) IsParticipant(userID string) bool {
	return l.CallerID == userID || l.ReceiverID == userID
}
