package service

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/realtime-service/internal/crypto"
	"github.com/fathima-sithara/realtime-service/internal/domain"
	"github.com/fathima-sithara/realtime-service/internal/memstore"
	"github.com/fathima-sithara/realtime-service/internal/presence"
)

type pushed struct {
	Event   string
	Payload any
}

type fakeHandle struct {
	mu     sync.Mutex
	events []pushed
	err    error
}

func (h *fakeHandle) Push(event string, payload any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return h.err
	}
	h.events = append(h.events, pushed{event, payload})
	return nil
}

func (h *fakeHandle) named(event string) []any {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []any
	for _, e := range h.events {
		if e.Event == event {
			out = append(out, e.Payload)
		}
	}
	return out
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fakeMedia struct {
	mu   sync.Mutex
	keys []string
	err  error
}

func (f *fakeMedia) RemoveObject(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return f.err
}

type fakeSink struct {
	mu    sync.Mutex
	types []string
}

func (f *fakeSink) Publish(_ context.Context, eventType, _ string, _ any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.types = append(f.types, eventType)
	return nil
}

type fakeMirror struct {
	mu      sync.Mutex
	online  map[string]bool
	failing bool
}

func (f *fakeMirror) MarkOnline(_ context.Context, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return errors.New("redis down")
	}
	f.online[userID] = true
	return nil
}

func (f *fakeMirror) MarkOffline(_ context.Context, userID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online[userID] = false
	return nil
}

type fixture struct {
	svc    *Service
	calls  *CallRelay
	msgs   *memstore.Messages
	users  *memstore.Users
	alerts *memstore.Alerts
	logs   *memstore.CallLogs
	reg    *presence.Registry
	media  *fakeMedia
	sink   *fakeSink
	mirror *fakeMirror
	clock  *clock
	codec  *crypto.Codec
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	codec, err := crypto.NewCodecFromBase64(base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef")))
	require.NoError(t, err)

	f := &fixture{
		msgs:   memstore.NewMessages(),
		users:  memstore.NewUsers(),
		alerts: memstore.NewAlerts(),
		logs:   memstore.NewCallLogs(),
		reg:    presence.NewRegistry(),
		media:  &fakeMedia{},
		sink:   &fakeSink{},
		mirror: &fakeMirror{online: map[string]bool{}},
		clock:  &clock{t: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)},
		codec:  codec,
	}
	for _, id := range []string{"alice", "bob", "carol", "dave"} {
		f.users.PutProfile(&domain.Profile{ID: id, Username: id})
	}
	f.users.PutGroup(&domain.Group{ID: "g1", Name: "Team", Members: []string{"alice", "bob", "carol"}, Admins: []string{"alice"}})

	f.svc = New(Deps{
		Messages:  f.msgs,
		Profiles:  f.users,
		Groups:    f.users,
		Alerts:    f.alerts,
		Cipher:    codec,
		Registry:  f.reg,
		Media:     f.media,
		Events:    f.sink,
		Mirror:    f.mirror,
		ChatRoute: "/messages",
		Now:       f.clock.Now,
	})
	f.calls = NewCallRelay(f.reg, f.users, f.logs, f.sink, nil, f.clock.Now)
	return f
}

func (f *fixture) connect(t *testing.T, userID string) *fakeHandle {
	t.Helper()
	h := &fakeHandle{}
	require.NoError(t, f.svc.Connect(context.Background(), userID, h))
	return h
}

func (f *fixture) send(t *testing.T, from, to, text string) *MessageView {
	t.Helper()
	v, err := f.svc.Send(context.Background(), SendRequest{SenderID: from, RecipientID: to, Content: text})
	require.NoError(t, err)
	return v
}
