// Package server wires HTTP handlers into a ServeMux for the friendchat
// application via routing helpers.
package server

import "net/http"

// Handler returns the ServeMux with every application route.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", s.handleHealth)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	mux.HandleFunc("GET /test", s.handleTestPage)

	mux.HandleFunc("POST /api/signup", s.handleSignup)
	mux.HandleFunc("POST /api/login", s.handleLogin)

	mux.HandleFunc("POST /api/friends/requests", s.requireAuth(s.handleSendFriendRequest))
	mux.HandleFunc("GET /api/friends/requests", s.requireAuth(s.handlePendingRequests))
	mux.HandleFunc("POST /api/friends/requests/accept", s.requireAuth(s.handleAcceptFriendRequest))
	mux.HandleFunc("POST /api/friends/requests/decline", s.requireAuth(s.handleDeclineFriendRequest))
	mux.HandleFunc("GET /api/friends", s.requireAuth(s.handleFriends))
	mux.HandleFunc("DELETE /api/friends", s.requireAuth(s.handleRemoveFriend))
	mux.HandleFunc("GET /api/chat-request", s.requireAuth(s.handleChatRequest))
	mux.HandleFunc("GET /api/messages", s.requireAuth(s.handleMessages))
	mux.HandleFunc("GET /api/rooms/stats", s.requireAuth(s.handleRoomStats))

	return mux
}
