package service

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fathima-sithara/realtime-service/internal/apperr"
	"github.com/fathima-sithara/realtime-service/internal/domain"
	"github.com/fathima-sithara/realtime-service/internal/events"
	"github.com/fathima-sithara/realtime-service/internal/metrics"
	"github.com/fathima-sithara/realtime-service/internal/presence"
)

type CallState string

const (
	CallIdle    CallState = "idle"
	CallRinging CallState = "ringing"
	CallActive  CallState = "active"
	CallEnded   CallState = "ended"
)

// Negotiation signals relayed without inspection.
var relaySignals = map[string]bool{"offer": true, "answer": true, "ice-candidate": true}

type CallSession struct {
	ID        string
	CallerID  string
	CalleeID  string
	Type      domain.CallType
	State     CallState
	LogID     string
	StartedAt time.Time
}

func (c *CallSession) counterpart(userID string) string {
	if userID == c.CallerID {
		return c.CalleeID
	}
	return c.CallerID
}

func (c *CallSession) has(userID string) bool { return userID == c.CallerID || userID == c.CalleeID }

type CallStart struct {
	CallID  string `json:"call_id"`
	LogID   string `json:"log_id"`
	Ringing bool   `json:"ringing"`
}

// CallRelay forwards call signaling between two connected users. Only
// ringing and active calls are tracked; payloads are never stored.
type CallRelay struct {
	mu       sync.Mutex
	sessions map[string]*CallSession
	byUser   map[string]string

	reg      *presence.Registry
	profiles Profiles
	logs     CallLogs
	events   EventSink
	log      *zap.Logger
	now      func() time.Time
}

func NewCallRelay(reg *presence.Registry, profiles Profiles, logs CallLogs, sink EventSink, log *zap.Logger, now func() time.Time) *CallRelay {
	if log == nil {
		log = zap.NewNop()
	}
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &CallRelay{
		sessions: make(map[string]*CallSession),
		byUser:   make(map[string]string),
		reg:      reg,
		profiles: profiles,
		logs:     logs,
		events:   sink,
		log:      log,
		now:      now,
	}
}

// Initiate opens a call log and rings the callee if they are connected.
// An absent callee is not rung and no missed call is recorded; the caller
// times out on its own.
func (r *CallRelay) Initiate(ctx context.Context, callerID, calleeID string, typ domain.CallType) (*CallStart, error) {
	if calleeID == "" || calleeID == callerID {
		return nil, apperr.Validation("callee required")
	}
	if !typ.Valid() {
		return nil, apperr.Validation("call type must be audio or video")
	}
	caller, err := r.profiles.Profile(ctx, callerID)
	if err != nil {
		return nil, storageErr(err)
	}
	callee, err := r.profiles.Profile(ctx, calleeID)
	if err != nil {
		return nil, storageErr(err)
	}
	if domain.EitherBlocked(caller, callee) {
		return nil, apperr.Unauthorized("calling is blocked between these users")
	}
	if r.busy(callerID) || r.busy(calleeID) {
		return nil, apperr.Validation("user is already in a call")
	}

	now := r.now()
	l := &domain.CallLog{
		ID:         uuid.NewString(),
		CallerID:   callerID,
		ReceiverID: calleeID,
		Type:       typ,
		Status:     domain.CallInitiated,
		StartedAt:  now,
	}
	if err := r.logs.Create(ctx, l); err != nil {
		return nil, storageErr(err)
	}

	sess := &CallSession{ID: uuid.NewString(), CallerID: callerID, CalleeID: calleeID, Type: typ, State: CallIdle, LogID: l.ID, StartedAt: now}
	start := &CallStart{CallID: sess.ID, LogID: l.ID}

	r.mu.Lock()
	if _, busy := r.byUser[callerID]; busy {
		r.mu.Unlock()
		return nil, apperr.Validation("user is already in a call")
	}
	if _, busy := r.byUser[calleeID]; busy {
		r.mu.Unlock()
		return nil, apperr.Validation("user is already in a call")
	}
	h, present := r.reg.Lookup(calleeID)
	if present {
		sess.State = CallRinging
		r.sessions[sess.ID] = sess
		r.byUser[callerID] = sess.ID
		r.byUser[calleeID] = sess.ID
	}
	r.mu.Unlock()

	if !present {
		return start, nil
	}
	if err := h.Push(EventCallIncoming, CallEvent{CallID: sess.ID, From: callerID, Type: typ, LogID: l.ID}); err != nil {
		r.log.Warn("ring failed", zap.String("call", sess.ID), zap.Error(err))
		r.remove(sess.ID)
		return start, nil
	}
	start.Ringing = true
	return start, nil
}

func (r *CallRelay) busy(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byUser[userID]
	return ok
}

// transition moves a session the user takes part in from one of the allowed
// states to next. Ended sessions are dropped from tracking.
func (r *CallRelay) transition(callID, userID string, onlyCallee bool, next CallState, from ...CallState) (*CallSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[callID]
	if !ok {
		return nil, apperr.NotFound("call not found")
	}
	if !sess.has(userID) || (onlyCallee && sess.CalleeID != userID) {
		return nil, apperr.Unauthorized("not a participant of this call")
	}
	allowed := false
	for _, st := range from {
		if sess.State == st {
			allowed = true
		}
	}
	if !allowed {
		return nil, apperr.Validation("call is " + string(sess.State))
	}
	sess.State = next
	snapshot := *sess
	if next == CallEnded {
		r.removeLocked(callID)
	}
	return &snapshot, nil
}

func (r *CallRelay) Accept(_ context.Context, userID, callID string) error {
	sess, err := r.transition(callID, userID, true, CallActive, CallRinging)
	if err != nil {
		return err
	}
	r.forward(sess.CallerID, EventCallAccept, CallEvent{CallID: callID, From: userID})
	return nil
}

func (r *CallRelay) Reject(_ context.Context, userID, callID string) error {
	sess, err := r.transition(callID, userID, true, CallEnded, CallRinging)
	if err != nil {
		return err
	}
	r.forward(sess.CallerID, EventCallReject, CallEvent{CallID: callID, From: userID})
	return nil
}

func (r *CallRelay) End(_ context.Context, userID, callID string) error {
	sess, err := r.transition(callID, userID, false, CallEnded, CallRinging, CallActive)
	if err != nil {
		return err
	}
	r.forward(sess.counterpart(userID), EventCallEnd, CallEvent{CallID: callID, From: userID})
	return nil
}

// Relay forwards an offer, answer or ice-candidate payload verbatim.
func (r *CallRelay) Relay(_ context.Context, userID, callID, signal string, payload json.RawMessage) error {
	if !relaySignals[signal] {
		return apperr.Validation("unknown call signal " + signal)
	}
	r.mu.Lock()
	sess, ok := r.sessions[callID]
	var to string
	if ok && sess.has(userID) {
		to = sess.counterpart(userID)
	}
	r.mu.Unlock()
	if !ok {
		return apperr.NotFound("call not found")
	}
	if to == "" {
		return apperr.Unauthorized("not a participant of this call")
	}
	r.forward(to, "call:"+signal, CallEvent{CallID: callID, From: userID, Payload: payload})
	return nil
}

// Drop ends any call the user is in, telling the counterpart. Called when
// the user's connection goes away.
func (r *CallRelay) Drop(userID string) {
	r.mu.Lock()
	callID, ok := r.byUser[userID]
	var sess CallSession
	if ok {
		sess = *r.sessions[callID]
		r.removeLocked(callID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	r.forward(sess.counterpart(userID), EventCallEnd, CallEvent{CallID: callID, From: userID, Reason: "disconnected"})
}

// Session returns a copy of a tracked call.
func (r *CallRelay) Session(callID string) (CallSession, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[callID]
	if !ok {
		return CallSession{}, false
	}
	return *sess, true
}

func (r *CallRelay) remove(callID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(callID)
}

func (r *CallRelay) removeLocked(callID string) {
	sess, ok := r.sessions[callID]
	if !ok {
		return
	}
	delete(r.sessions, callID)
	if r.byUser[sess.CallerID] == callID {
		delete(r.byUser, sess.CallerID)
	}
	if r.byUser[sess.CalleeID] == callID {
		delete(r.byUser, sess.CalleeID)
	}
}

func (r *CallRelay) forward(to, event string, ev CallEvent) {
	ok, err := r.reg.Push(to, event, ev)
	if err != nil {
		r.log.Warn("call signal push failed", zap.String("to", to), zap.String("event", event), zap.Error(err))
		return
	}
	if ok {
		metrics.SignalsRelayed.WithLabelValues(event).Inc()
	}
}

// FinalizeLog records the outcome a participant reports after the call.
func (r *CallRelay) FinalizeLog(ctx context.Context, requesterID, logID string, status domain.CallStatus, duration int) (*domain.CallLog, error) {
	if !status.Final() {
		return nil, apperr.Validation("status must be completed, missed, rejected or failed")
	}
	if duration < 0 {
		return nil, apperr.Validation("duration cannot be negative")
	}
	l, err := r.logs.Get(ctx, logID)
	if err != nil {
		return nil, storageErr(err)
	}
	if !l.IsParticipant(requesterID) {
		return nil, apperr.Unauthorized("not a participant of this call")
	}
	updated, err := r.logs.Finalize(ctx, logID, status, duration, r.now())
	if err != nil {
		return nil, storageErr(err)
	}
	if r.events != nil {
		if err := r.events.Publish(ctx, events.CallLogged, updated.ID, updated); err != nil {
			r.log.Warn("publish event failed", zap.String("type", events.CallLogged), zap.Error(err))
		}
	}
	return updated, nil
}
