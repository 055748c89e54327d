package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/friendchat/internal/auth"
	"github.com/Tyrowin/friendchat/internal/identity"
	"github.com/Tyrowin/friendchat/internal/room"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const (
	testOrigin  = "http://chat.test"
	readTimeout = 2 * time.Second
)

type testEnv struct {
	srv    *Server
	store  *identity.Store
	tokens *auth.Tokens
	http   *httptest.Server
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEnv starts a Server backed by an in-memory store behind httptest.
func newTestEnv(t *testing.T, customize func(cfg *Config)) *testEnv {
	t.Helper()

	cfg := NewConfig()
	cfg.AllowedOrigins = testOrigin
	cfg.DatabasePath = ":memory:"
	cfg.RateLimitBurst = 100
	if customize != nil {
		customize(&cfg)
	}

	log := discardLogger()
	store, err := identity.Open(":memory:", log)
	require.NoError(t, err)

	tokens, err := auth.NewTokens("server-test-secret", time.Hour)
	require.NoError(t, err)

	srv := New(cfg, store, tokens, log)
	go srv.hub.Run()
	ts := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		_ = srv.hub.Shutdown(2 * time.Second)
		ts.Close()
		_ = store.Close()
	})

	return &testEnv{srv: srv, store: store, tokens: tokens, http: ts}
}

func (e *testEnv) addUsers(t *testing.T, usernames ...string) {
	t.Helper()
	for _, username := range usernames {
		require.NoError(t, e.store.CreateUser(context.Background(), username, "unused-hash"))
	}
}

func (e *testEnv) befriend(t *testing.T, a, b string) {
	t.Helper()
	require.NoError(t, e.store.AddFriendship(context.Background(), a, b))
}

func (e *testEnv) token(t *testing.T, username string) string {
	t.Helper()
	token, err := e.tokens.Issue(username)
	require.NoError(t, err)
	return token
}

func (e *testEnv) wsURL(token string, id room.ID) string {
	u := "ws" + strings.TrimPrefix(e.http.URL, "http") + "/ws"
	q := url.Values{}
	if token != "" {
		q.Set("token", token)
	}
	if id.Valid() {
		q.Set("room_id", strconv.FormatInt(int64(id), 10))
	}
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func originHeader(origin string) http.Header {
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	return header
}

// dial connects username and waits until the hub has registered the
// connection.
func (e *testEnv) dial(t *testing.T, username string, id room.ID) *websocket.Conn {
	t.Helper()

	before := e.srv.hub.ConnectionCount()
	conn, resp, err := websocket.DefaultDialer.Dial(e.wsURL(e.token(t, username), id), originHeader(testOrigin))
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	require.Eventually(t, func() bool {
		return e.srv.hub.ConnectionCount() > before
	}, readTimeout, 5*time.Millisecond)
	return conn
}

func writeFrame(t *testing.T, conn *websocket.Conn, frame InboundFrame) {
	t.Helper()
	payload, err := json.Marshal(frame)
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))
}

func readFrame(t *testing.T, conn *websocket.Conn) OutboundFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame OutboundFrame
	require.NoError(t, json.Unmarshal(payload, &frame))
	return frame
}

// readUntil skips frames until one satisfies match.
func readUntil(t *testing.T, conn *websocket.Conn, match func(OutboundFrame) bool) OutboundFrame {
	t.Helper()
	deadline := time.Now().Add(readTimeout)
	for time.Now().Before(deadline) {
		frame := readFrame(t, conn)
		if match(frame) {
			return frame
		}
	}
	t.Fatalf("no matching frame within %s", readTimeout)
	return OutboundFrame{}
}

func expectNotice(t *testing.T, conn *websocket.Conn, text string) OutboundFrame {
	t.Helper()
	return readUntil(t, conn, func(f OutboundFrame) bool {
		return f.Event == eventIncoming && f.Text == text
	})
}

func expectAck(t *testing.T, conn *websocket.Conn, request string) OutboundFrame {
	t.Helper()
	return readUntil(t, conn, func(f OutboundFrame) bool {
		return f.Event == eventAck && f.Request == request
	})
}

// expectSilence asserts that nothing arrives on conn for a short while.
func expectSilence(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	_, payload, err := conn.ReadMessage()
	require.Error(t, err, "unexpected frame %s", payload)
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = strings.NewReader(string(payload))
	}

	req, err := http.NewRequest(method, e.http.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := e.http.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}
