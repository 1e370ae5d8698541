package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/realtime-service/internal/auth"
	"github.com/fathima-sithara/realtime-service/internal/crypto"
	"github.com/fathima-sithara/realtime-service/internal/domain"
	"github.com/fathima-sithara/realtime-service/internal/memstore"
	"github.com/fathima-sithara/realtime-service/internal/presence"
	"github.com/fathima-sithara/realtime-service/internal/service"
	"github.com/fathima-sithara/realtime-service/internal/ws"
)

const secret = "test-secret"

type nopHandle struct{}

func (nopHandle) Push(string, any) error { return nil }

type testApp struct {
	app   *fiber.App
	svc   *service.Service
	calls *service.CallRelay
	users *memstore.Users
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	codec, err := crypto.NewCodecFromBase64(base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef")))
	require.NoError(t, err)

	users := memstore.NewUsers()
	for _, id := range []string{"alice", "bob", "carol"} {
		users.PutProfile(&domain.Profile{ID: id, Username: id})
	}
	users.PutGroup(&domain.Group{ID: "g1", Members: []string{"alice", "bob"}, Admins: []string{"alice"}})

	reg := presence.NewRegistry()
	svc := service.New(service.Deps{
		Messages: memstore.NewMessages(),
		Profiles: users,
		Groups:   users,
		Alerts:   memstore.NewAlerts(),
		Cipher:   codec,
		Registry: reg,
	})
	calls := service.NewCallRelay(reg, users, memstore.NewCallLogs(), nil, nil, nil)
	app := NewApp(RouterDeps{
		Handler:   NewHandler(svc, calls, users, nil, time.Second, nil),
		WS:        ws.NewServer(svc, calls, ws.Options{}, nil),
		Validator: auth.NewHMACValidator(secret),
	})
	return &testApp{app: app, svc: svc, calls: calls, users: users}
}

func token(t *testing.T, sub string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": sub,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (a *testApp) do(t *testing.T, method, path, user string, body string) (int, envelope) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if user != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token(t, user))
	}
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	var env envelope
	b, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(b, &env)
	return resp.StatusCode, env
}

func TestHealthIsPublic(t *testing.T) {
	a := newTestApp(t)
	code, _ := a.do(t, http.MethodGet, "/v1/health", "", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestAuthRequired(t *testing.T) {
	a := newTestApp(t)
	code, env := a.do(t, http.MethodGet, "/v1/presence/bob", "", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "error", env.Status)

	req := httptest.NewRequest(http.MethodGet, "/v1/presence/bob", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer not-a-jwt")
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTokenQueryParameter(t *testing.T) {
	a := newTestApp(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/presence/bob?token="+token(t, "alice"), nil)
	resp, err := a.app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPresence(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	seen := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	require.NoError(t, a.users.SetLastSeen(ctx, "bob", seen))

	code, env := a.do(t, http.MethodGet, "/v1/presence/bob", "alice", "")
	require.Equal(t, http.StatusOK, code)
	var st struct {
		Online   bool       `json:"online"`
		LastSeen *time.Time `json:"last_seen"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.False(t, st.Online)
	require.NotNil(t, st.LastSeen)
	assert.True(t, seen.Equal(*st.LastSeen))

	require.NoError(t, a.svc.Connect(ctx, "bob", nopHandle{}))
	_, env = a.do(t, http.MethodGet, "/v1/presence/bob", "alice", "")
	require.NoError(t, json.Unmarshal(env.Data, &st))
	assert.True(t, st.Online)

	code, _ = a.do(t, http.MethodGet, "/v1/presence/ghost", "alice", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestHistoryAndPins(t *testing.T) {
	a := newTestApp(t)
	ctx := context.Background()
	m, err := a.svc.Send(ctx, service.SendRequest{SenderID: "alice", RecipientID: "bob", Content: "pinned note"})
	require.NoError(t, err)
	_, err = a.svc.Pin(ctx, "bob", m.ID, 2)
	require.NoError(t, err)

	code, env := a.do(t, http.MethodGet, "/v1/conversations/alice/messages?limit=10", "bob", "")
	require.Equal(t, http.StatusOK, code)
	var msgs []service.MessageView
	require.NoError(t, json.Unmarshal(env.Data, &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "pinned note", msgs[0].Content)

	code, env = a.do(t, http.MethodGet, "/v1/conversations/bob/pins", "alice", "")
	require.Equal(t, http.StatusOK, code)
	var pins []service.PinnedItem
	require.NoError(t, json.Unmarshal(env.Data, &pins))
	require.Len(t, pins, 1)
	assert.Equal(t, "bob", pins[0].UserID)

	code, _ = a.do(t, http.MethodGet, "/v1/conversations/alice/messages?limit=x", "bob", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = a.do(t, http.MethodGet, "/v1/groups/g1/pins", "carol", "")
	assert.Equal(t, http.StatusForbidden, code)
}

func TestFinalizeCall(t *testing.T) {
	a := newTestApp(t)
	start, err := a.calls.Initiate(context.Background(), "alice", "bob", domain.CallAudio)
	require.NoError(t, err)

	path := "/v1/calls/" + start.LogID + "/finalize"
	code, _ := a.do(t, http.MethodPost, path, "carol", `{"status":"completed","duration":5}`)
	assert.Equal(t, http.StatusForbidden, code)

	code, env := a.do(t, http.MethodPost, path, "alice", `{"status":"completed","duration":42}`)
	require.Equal(t, http.StatusOK, code)
	var l domain.CallLog
	require.NoError(t, json.Unmarshal(env.Data, &l))
	assert.Equal(t, domain.CallCompleted, l.Status)
	assert.Equal(t, 42, l.Duration)
}

func TestWebsocketRouteRejectsPlainRequests(t *testing.T) {
	a := newTestApp(t)
	code, _ := a.do(t, http.MethodGet, "/ws", "alice", "")
	assert.Equal(t, http.StatusUpgradeRequired, code)
}
