package ws

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/realtime-service/internal/domain"
	"github.com/fathima-sithara/realtime-service/internal/service"
)

// drain returns every queued frame on c.
func drain(t *testing.T, c *Client) []outboundFrame {
	t.Helper()
	var out []outboundFrame
	for {
		select {
		case b, ok := <-c.send:
			if !ok {
				return out
			}
			var fr outboundFrame
			require.NoError(t, json.Unmarshal(b, &fr))
			out = append(out, fr)
		default:
			return out
		}
	}
}

func only(frames []outboundFrame, typ string) []outboundFrame {
	var out []outboundFrame
	for _, fr := range frames {
		if fr.Type == typ {
			out = append(out, fr)
		}
	}
	return out
}

func (e *env) client(t *testing.T, userID string) *Client {
	t.Helper()
	c := NewClient(newFakeConn(), userID, Options{}, nil)
	e.srv.disp.Dispatch(t.Context(), c, Envelope{Type: SignalRegisterOnline})
	require.True(t, c.registered)
	return c
}

func dispatch(t *testing.T, e *env, c *Client, typ, ref string, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	e.srv.disp.Dispatch(t.Context(), c, Envelope{Type: typ, Ref: ref, Payload: raw})
}

func TestPinAndReactThroughDispatcher(t *testing.T) {
	e := newEnv(t)
	alice := e.client(t, "alice")
	bob := e.client(t, "bob")

	dispatch(t, e, alice, SignalSend, "s", sendPayload{RecipientID: "bob", Content: "pin me"})
	recv := only(drain(t, bob), service.EventReceive)
	require.Len(t, recv, 1)
	var m service.MessageView
	require.NoError(t, json.Unmarshal(recv[0].Payload, &m))
	drain(t, alice)

	dispatch(t, e, bob, SignalPin, "p1", pinPayload{MessageID: m.ID, Hours: 3})
	acks := only(drain(t, bob), service.EventPin)
	require.Len(t, acks, 1)
	assert.Equal(t, "p1", acks[0].Ref)
	assert.Len(t, only(drain(t, alice), service.EventPin), 1)

	dispatch(t, e, alice, SignalReact, "r1", reactPayload{MessageID: m.ID, Emoji: "👍"})
	for _, c := range []*Client{alice, bob} {
		got := only(drain(t, c), service.EventReactions)
		require.Len(t, got, 1)
		var ev service.ReactionsEvent
		require.NoError(t, json.Unmarshal(got[0].Payload, &ev))
		assert.Equal(t, "alice", ev.Reactions[0].UserID)
	}

	dispatch(t, e, bob, SignalPin, "p2", pinPayload{MessageID: m.ID, Hours: 0})
	errs := only(drain(t, bob), eventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "p2", errs[0].Ref)
}

func TestSendRepliesWithRef(t *testing.T) {
	e := newEnv(t)
	alice := e.client(t, "alice")
	bob := e.client(t, "bob")
	drain(t, alice)

	dispatch(t, e, alice, SignalSend, "s1", sendPayload{RecipientID: "bob", Content: "hello"})
	sent := only(drain(t, alice), service.EventSent)
	require.Len(t, sent, 1)
	assert.Equal(t, "s1", sent[0].Ref)
	var m service.MessageView
	require.NoError(t, json.Unmarshal(sent[0].Payload, &m))
	assert.Equal(t, "hello", m.Content)
	assert.Len(t, only(drain(t, bob), service.EventReceive), 1)
}

func TestStaleClientIsRejectedAndClosed(t *testing.T) {
	e := newEnv(t)
	old := e.client(t, "alice")
	e.client(t, "alice")

	dispatch(t, e, old, SignalRouteChange, "rc", routePayload{Route: "/messages"})
	errs := only(drain(t, old), eventError)
	require.Len(t, errs, 1)
	assert.Equal(t, "rc", errs[0].Ref)
	assert.True(t, old.closed)
	route, _ := e.reg.Route("alice")
	assert.Empty(t, route)
}

func TestCallSignalsThroughDispatcher(t *testing.T) {
	e := newEnv(t)
	alice := e.client(t, "alice")
	bob := e.client(t, "bob")
	drain(t, alice)
	drain(t, bob)

	dispatch(t, e, alice, SignalCallInitiate, "c1", callPayload{CalleeID: "bob", Type: domain.CallVideo})
	acks := only(drain(t, alice), SignalCallInitiate)
	require.Len(t, acks, 1)
	var start service.CallStart
	require.NoError(t, json.Unmarshal(acks[0].Payload, &start))
	assert.True(t, start.Ringing)
	require.Len(t, only(drain(t, bob), service.EventCallIncoming), 1)

	dispatch(t, e, bob, SignalCallAccept, "", callPayload{CallID: start.CallID})
	require.Len(t, only(drain(t, alice), service.EventCallAccept), 1)

	sdp := json.RawMessage(`{"type":"answer","sdp":"v=0"}`)
	dispatch(t, e, bob, "call:answer", "", callPayload{CallID: start.CallID, Payload: sdp})
	answers := only(drain(t, alice), "call:answer")
	require.Len(t, answers, 1)
	var ev service.CallEvent
	require.NoError(t, json.Unmarshal(answers[0].Payload, &ev))
	assert.JSONEq(t, string(sdp), string(ev.Payload))

	dispatch(t, e, alice, "call:mute", "m1", callPayload{CallID: start.CallID})
	assert.Len(t, only(drain(t, alice), eventError), 1)

	dispatch(t, e, alice, SignalCallEnd, "", callPayload{CallID: start.CallID})
	assert.Len(t, only(drain(t, bob), service.EventCallEnd), 1)
}
