package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Tyrowin/friendchat/internal/account"
	"github.com/Tyrowin/friendchat/internal/auth"
	"github.com/Tyrowin/friendchat/internal/identity"
	"github.com/Tyrowin/friendchat/internal/room"
	"github.com/Tyrowin/friendchat/internal/session"
)

const (
	maxBodyBytes        = 1 << 16
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type contextKey struct{}

type tokenResponse struct {
	Token string `json:"token"`
}

type usernameRequest struct {
	To       string `json:"to,omitempty"`
	From     string `json:"from,omitempty"`
	Username string `json:"username,omitempty"`
}

type chatRequestResponse struct {
	Receiver string  `json:"receiver"`
	RoomID   room.ID `json:"room_id,omitempty"`
}

type roomStats struct {
	Members     int     `json:"members"`
	LastRoomID  room.ID `json:"last_room_id"`
	Connections int     `json:"connections"`
	Groups      int     `json:"groups"`
}

// requireAuth rejects requests without a valid bearer token and stores the
// caller's username in the request context.
func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}
		claims, err := s.tokens.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, auth.ErrInvalidToken)
			return
		}
		ctx := context.WithValue(r.Context(), contextKey{}, claims.Username())
		next(w, r.WithContext(ctx))
	}
}

func caller(r *http.Request) string {
	username, _ := r.Context().Value(contextKey{}).(string)
	return username
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var creds auth.Credentials
	if !decodeJSON(w, r, &creds) {
		return
	}

	token, err := s.accounts.Register(r.Context(), creds)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{Token: token})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds auth.Credentials
	if !decodeJSON(w, r, &creds) {
		return
	}

	token, err := s.accounts.Login(r.Context(), creds)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, auth.ErrInvalidCredentials)
			return
		}
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token})
}

func (s *Server) handleSendFriendRequest(w http.ResponseWriter, r *http.Request) {
	var req usernameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.store.SendFriendRequest(r.Context(), caller(r), req.To); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handlePendingRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := s.store.PendingRequests(r.Context(), caller(r))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if requests == nil {
		requests = []identity.FriendRequest{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"requests": requests})
}

func (s *Server) handleAcceptFriendRequest(w http.ResponseWriter, r *http.Request) {
	var req usernameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.store.AcceptFriendRequest(r.Context(), req.From, caller(r)); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeclineFriendRequest(w http.ResponseWriter, r *http.Request) {
	var req usernameRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := s.store.DeclineFriendRequest(r.Context(), req.From, caller(r)); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFriends(w http.ResponseWriter, r *http.Request) {
	friends, err := s.store.Friends(r.Context(), caller(r))
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if friends == nil {
		friends = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"friends": friends})
}

func (s *Server) handleRemoveFriend(w http.ResponseWriter, r *http.Request) {
	username := strings.TrimSpace(r.URL.Query().Get("username"))
	if username == "" {
		writeError(w, http.StatusBadRequest, errors.New("username is required"))
		return
	}
	if err := s.store.RemoveFriend(r.Context(), caller(r), username); err != nil {
		s.writeStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleChatRequest runs the join prechecks without touching any room, so a
// client can find out whether a chat would be allowed.
func (s *Server) handleChatRequest(w http.ResponseWriter, r *http.Request) {
	receiver := strings.TrimSpace(r.URL.Query().Get("receiver"))
	if receiver == "" {
		writeError(w, http.StatusBadRequest, errors.New("receiver is required"))
		return
	}
	if err := s.router.Authorize(r.Context(), caller(r), receiver); err != nil {
		s.writeStoreError(w, err)
		return
	}

	resp := chatRequestResponse{Receiver: receiver}
	if id, ok := s.rooms.RoomID(receiver); ok {
		resp.RoomID = id
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	messages, err := s.store.ReceivedMessages(r.Context(), caller(r), limit)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if messages == nil {
		messages = []identity.Message{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func (s *Server) handleRoomStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, roomStats{
		Members:     s.rooms.Len(),
		LastRoomID:  s.rooms.LastID(),
		Connections: s.hub.ConnectionCount(),
		Groups:      s.hub.GroupCount(),
	})
}

// writeStoreError maps domain errors to HTTP statuses and hides anything
// unexpected behind a 500.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, identity.ErrSelfRequest):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, identity.ErrNotFound),
		errors.Is(err, session.ErrUnknownUser):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, session.ErrNotFriends):
		writeError(w, http.StatusForbidden, err)
	case errors.Is(err, account.ErrUsernameTaken),
		errors.Is(err, identity.ErrAlreadyExists),
		errors.Is(err, identity.ErrAlreadyFriends):
		writeError(w, http.StatusConflict, err)
	default:
		s.log.Error("request failed", "err", err)
		writeError(w, http.StatusInternalServerError, errors.New("internal error"))
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("malformed JSON body"))
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
