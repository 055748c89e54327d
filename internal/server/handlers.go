// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package server

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/Tyrowin/friendchat/internal/room"
)

// handleWebSocket authenticates the caller, upgrades the connection and hands
// the new client to the hub. The optional room_id query parameter is the room
// a reconnecting client was in.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = bearerToken(r)
	}
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}
	claims, err := s.tokens.Verify(token)
	if err != nil {
		http.Error(w, "invalid token", http.StatusUnauthorized)
		return
	}

	roomID, err := parseRoomID(r.URL.Query().Get("room_id"))
	if err != nil {
		http.Error(w, "invalid room_id", http.StatusBadRequest)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "addr", r.RemoteAddr, "err", err)
		return
	}

	client := NewClient(conn, s.hub, s.router, claims.Username(), roomID, r.RemoteAddr, s.cfg)

	// The hub launches the pump goroutines once the client is registered.
	if !s.hub.Register(client) {
		_ = conn.Close()
	}
}

func parseRoomID(raw string) (room.ID, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("parse room id %q: %w", raw, strconv.ErrSyntax)
	}
	return room.ID(n), nil
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// handleHealth reports whether the server and its store are reachable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	if err := s.store.Ping(r.Context()); err != nil {
		s.log.Error("health check failed", "err", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = fmt.Fprint(w, "friendchat store unavailable")
		return
	}
	_, _ = fmt.Fprint(w, "friendchat server is running!")
}

// handleTestPage serves a small HTML client for trying the chat by hand.
func (s *Server) handleTestPage(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		s.log.Warn("error writing HTML response", "err", err)
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>friendchat test client</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #messages { border: 1px solid #ccc; height: 300px; padding: 10px; overflow-y: scroll; margin: 10px 0; background-color: #f9f9f9; }
        input[type="text"], input[type="password"] { width: 180px; padding: 5px; margin-right: 6px; }
        button { padding: 5px 15px; background-color: #007cba; color: white; border: none; cursor: pointer; }
        button:hover { background-color: #005a87; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
        .green { color: green; }
        .red { color: #b00; }
        .info { color: #333; }
    </style>
</head>
<body>
    <h1>friendchat</h1>

    <div>
        <input type="text" id="username" placeholder="username">
        <input type="password" id="password" placeholder="password">
        <button onclick="auth('login')">Login</button>
        <button onclick="auth('signup')">Sign up</button>
    </div>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="receiver" placeholder="friend to talk to">
        <button onclick="join()">Join</button>
        <button onclick="leave()">Leave</button>
    </div>
    <div>
        <input type="text" id="messageInput" placeholder="Type a message...">
        <button onclick="sendMessage()">Send</button>
    </div>

    <div id="messages"></div>

    <script>
        let ws = null;
        let token = null;
        let roomId = 0;
        const messagesDiv = document.getElementById('messages');
        const statusDiv = document.getElementById('status');

        function addLine(text, cls) {
            const el = document.createElement('div');
            el.className = cls || 'info';
            el.textContent = text;
            messagesDiv.appendChild(el);
            messagesDiv.scrollTop = messagesDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
        }

        async function auth(kind) {
            const res = await fetch('/api/' + kind, {
                method: 'POST',
                headers: { 'Content-Type': 'application/json' },
                body: JSON.stringify({
                    username: document.getElementById('username').value,
                    password: document.getElementById('password').value,
                }),
            });
            const body = await res.json();
            if (!res.ok) {
                addLine(body.error, 'red');
                return;
            }
            token = body.token;
            connect();
        }

        function connect() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            let url = scheme + location.host + '/ws?token=' + encodeURIComponent(token);
            if (roomId) {
                url += '&room_id=' + roomId;
            }
            ws = new WebSocket(url);
            ws.onopen = () => updateStatus(true);
            ws.onmessage = (event) => {
                const frame = JSON.parse(event.data);
                if (frame.event === 'incoming') {
                    addLine(frame.text, frame.severity);
                } else if (frame.event === 'ack') {
                    if (frame.error) {
                        addLine(frame.request + ': ' + frame.error, 'red');
                    } else if (frame.request === 'join') {
                        roomId = frame.room_id;
                    } else if (frame.request === 'leave') {
                        roomId = 0;
                    }
                }
            };
            ws.onclose = () => { updateStatus(false); ws = null; };
        }

        function emit(frame) {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify(frame));
            }
        }

        function join() {
            emit({ event: 'join', receiver: document.getElementById('receiver').value });
        }

        function leave() {
            emit({ event: 'leave', room_id: roomId });
        }

        function sendMessage() {
            const input = document.getElementById('messageInput');
            const message = input.value.trim();
            if (message) {
                emit({ event: 'send', message: message, room_id: roomId });
                input.value = '';
            }
        }

        document.getElementById('messageInput').addEventListener('keypress', (e) => {
            if (e.key === 'Enter') {
                sendMessage();
            }
        });
    </script>
</body>
</html>`
