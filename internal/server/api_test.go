package server

import (
	"context"
	"io"
	"net/http"
	"testing"

	"github.com/Tyrowin/friendchat/internal/identity"
	"github.com/stretchr/testify/require"
)

type errorBody struct {
	Error string `json:"error"`
}

func (e *testEnv) signup(t *testing.T, username string) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/signup", "", map[string]string{
		"username": username,
		"password": "password123",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeBody[tokenResponse](t, resp).Token
}

func TestAPI_Health(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, http.MethodGet, "/", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "friendchat server is running!", string(body))

	resp = env.do(t, http.MethodGet, "/nope", "", nil)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/test", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/html", resp.Header.Get("Content-Type"))
}

func TestAPI_SignupAndLogin(t *testing.T) {
	env := newTestEnv(t, nil)

	t.Run("should sign up and return a usable token", func(t *testing.T) {
		token := env.signup(t, "alice")
		claims, err := env.tokens.Verify(token)
		require.NoError(t, err)
		require.Equal(t, "alice", claims.Username())
	})

	t.Run("should refuse a taken username", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/signup", "", map[string]string{
			"username": "alice",
			"password": "password123",
		})
		require.Equal(t, http.StatusConflict, resp.StatusCode)
	})

	t.Run("should refuse invalid credentials", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/signup", "", map[string]string{
			"username": "a!",
			"password": "password123",
		})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.NotEmpty(t, decodeBody[errorBody](t, resp).Error)
	})

	t.Run("should refuse unknown fields", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/signup", "", map[string]string{
			"username": "dave",
			"password": "password123",
			"admin":    "yes",
		})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("should log in with the right password", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/login", "", map[string]string{
			"username": "alice",
			"password": "password123",
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.NotEmpty(t, decodeBody[tokenResponse](t, resp).Token)
	})

	t.Run("should refuse a wrong password", func(t *testing.T) {
		resp := env.do(t, http.MethodPost, "/api/login", "", map[string]string{
			"username": "alice",
			"password": "password124",
		})
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestAPI_RequiresBearerToken(t *testing.T) {
	env := newTestEnv(t, nil)

	for _, path := range []string{"/api/friends", "/api/friends/requests", "/api/messages", "/api/rooms/stats"} {
		t.Run(path, func(t *testing.T) {
			resp := env.do(t, http.MethodGet, path, "", nil)
			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

			resp = env.do(t, http.MethodGet, path, "garbage", nil)
			require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		})
	}
}

func TestAPI_FriendRequestFlow(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, nil)
	alice := env.signup(t, "alice")
	bob := env.signup(t, "bob")

	resp := env.do(t, http.MethodPost, "/api/friends/requests", alice, map[string]string{"to": "bob"})
	req.Equal(http.StatusCreated, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/friends/requests", alice, map[string]string{"to": "bob"})
	req.Equal(http.StatusConflict, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/friends/requests", alice, map[string]string{"to": "alice"})
	req.Equal(http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/friends/requests", alice, map[string]string{"to": "ghost"})
	req.Equal(http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/friends/requests", bob, nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	pending := decodeBody[struct {
		Requests []identity.FriendRequest `json:"requests"`
	}](t, resp)
	req.Len(pending.Requests, 1)
	req.Equal("alice", pending.Requests[0].From)

	resp = env.do(t, http.MethodGet, "/api/chat-request?receiver=bob", alice, nil)
	req.Equal(http.StatusForbidden, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/friends/requests/accept", bob, map[string]string{"from": "alice"})
	req.Equal(http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/friends/requests/accept", bob, map[string]string{"from": "alice"})
	req.Equal(http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/friends", alice, nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	friends := decodeBody[struct {
		Friends []string `json:"friends"`
	}](t, resp)
	req.Equal([]string{"bob"}, friends.Friends)

	resp = env.do(t, http.MethodGet, "/api/chat-request?receiver=bob", alice, nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	req.Equal(chatRequestResponse{Receiver: "bob"}, decodeBody[chatRequestResponse](t, resp))

	resp = env.do(t, http.MethodDelete, "/api/friends?username=bob", alice, nil)
	req.Equal(http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/api/friends?username=bob", alice, nil)
	req.Equal(http.StatusNotFound, resp.StatusCode)
}

func TestAPI_DeclineFriendRequest(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.signup(t, "alice")
	bob := env.signup(t, "bob")

	resp := env.do(t, http.MethodPost, "/api/friends/requests", alice, map[string]string{"to": "bob"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/friends/requests/decline", bob, map[string]string{"from": "alice"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/friends/requests", bob, nil)
	pending := decodeBody[struct {
		Requests []identity.FriendRequest `json:"requests"`
	}](t, resp)
	require.Empty(t, pending.Requests)
	require.NotNil(t, pending.Requests)
}

func TestAPI_ChatRequest(t *testing.T) {
	env := newTestEnv(t, nil)
	alice := env.signup(t, "alice")
	env.signup(t, "bob")
	env.befriend(t, "alice", "bob")

	t.Run("should require a receiver", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/chat-request", alice, nil)
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("should report unknown receivers", func(t *testing.T) {
		resp := env.do(t, http.MethodGet, "/api/chat-request?receiver=ghost", alice, nil)
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("should include the receiver's room", func(t *testing.T) {
		id := env.srv.rooms.CreateRoom("bob", "carol")
		resp := env.do(t, http.MethodGet, "/api/chat-request?receiver=bob", alice, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, id, decodeBody[chatRequestResponse](t, resp).RoomID)
	})
}

func TestAPI_MessagesAndStats(t *testing.T) {
	req := require.New(t)
	env := newTestEnv(t, nil)
	alice := env.signup(t, "alice")
	env.signup(t, "bob")
	env.befriend(t, "alice", "bob")

	ctx := context.Background()
	for _, text := range []string{"one", "two", "three"} {
		req.NoError(env.store.SaveMessage(ctx, "bob", "alice", text))
	}

	resp := env.do(t, http.MethodGet, "/api/messages?limit=2", alice, nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	history := decodeBody[struct {
		Messages []identity.Message `json:"messages"`
	}](t, resp)
	req.Len(history.Messages, 2)
	req.Equal("two", history.Messages[0].Body)
	req.Equal("three", history.Messages[1].Body)

	resp = env.do(t, http.MethodGet, "/api/messages?limit=zero", alice, nil)
	req.Equal(http.StatusBadRequest, resp.StatusCode)

	env.srv.rooms.CreateRoom("alice", "bob")
	resp = env.do(t, http.MethodGet, "/api/rooms/stats", alice, nil)
	req.Equal(http.StatusOK, resp.StatusCode)
	stats := decodeBody[roomStats](t, resp)
	req.Equal(2, stats.Members)
	req.EqualValues(1, stats.LastRoomID)
}
