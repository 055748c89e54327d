// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, frame dispatch and lifecycle control for each
// connection.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Tyrowin/friendchat/internal/room"
	"github.com/Tyrowin/friendchat/internal/session"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	pongWait     = 60 * time.Second
	pingPeriod   = 54 * time.Second
	writeWait    = 10 * time.Second
	requestLimit = 5 * time.Second
)

var (
	errNotInRoom    = errors.New("not in a room")
	errEmptyMessage = errors.New("message is empty")
	errNoReceiver   = errors.New("receiver is required")
	errUnknownEvent = errors.New("unknown event")
)

// Client is one authenticated WebSocket connection. The hub owns its
// registration and group subscriptions; the client owns its pumps and the
// room it currently talks in.
type Client struct {
	id       string
	identity string
	conn     *websocket.Conn
	send     chan []byte
	hub      *Hub
	router   *session.Router
	addr     string
	log      *slog.Logger

	// closed and subscriptions are guarded by hub.mutex.
	closed        bool
	subscriptions map[room.ID]struct{}

	maxMessageSize int64
	limiter        *rate.Limiter
	rateLimit      RateLimitConfig

	mu   sync.Mutex
	room room.ID

	disconnectOnce sync.Once
}

// NewClient builds a client for identity on conn. A valid roomID is the room
// the connection remembers from before a reconnect.
func NewClient(conn *websocket.Conn, hub *Hub, router *session.Router, identity string, roomID room.ID, addr string, cfg Config) *Client {
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}

	id := uuid.NewString()
	limits := cfg.RateLimit()

	return &Client{
		id:             id,
		identity:       identity,
		conn:           conn,
		send:           make(chan []byte, cfg.SendBuffer),
		hub:            hub,
		router:         router,
		addr:           addr,
		log:            hub.log.With("conn", id, "identity", identity, "addr", addr),
		subscriptions:  make(map[room.ID]struct{}),
		maxMessageSize: cfg.MaxMessageSize,
		limiter:        newRateLimiter(limits.Burst, limits.RefillInterval),
		rateLimit:      limits,
		room:           roomID,
	}
}

// ID returns the connection identifier used for group subscriptions.
func (c *Client) ID() string {
	return c.id
}

// GetSendChan returns the client's outgoing queue.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

func (c *Client) currentRoom() room.ID {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Client) setRoom(id room.ID) {
	c.mu.Lock()
	c.room = id
	c.mu.Unlock()
}

func (c *Client) connected() {
	if c.router != nil {
		c.router.Connect(c.id, c.identity, c.currentRoom())
	}
}

func (c *Client) disconnected() {
	c.disconnectOnce.Do(func() {
		if c.router != nil {
			c.router.Disconnect(c.id, c.identity, c.currentRoom())
		}
	})
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn("error setting initial read deadline", "err", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Warn("error setting read deadline in pong handler", "err", err)
		}
		return nil
	})
}

// handleReadError logs the read failure and reports whether the read loop
// should stop.
func (c *Client) handleReadError(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("message exceeded maximum size", "limit", c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		c.log.Info("client disconnected", "err", err)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Info("client connection closed", "err", err)
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		c.log.Warn("unexpected websocket error", "err", err)
	default:
		c.log.Warn("websocket read error", "err", err)
	}
	return true
}

func (c *Client) checkRateLimit() bool {
	if c.limiter != nil && !c.limiter.Allow() {
		c.log.Warn("rate limit exceeded; discarding frame",
			"burst", c.rateLimit.Burst, "interval", c.rateLimit.RefillInterval)
		return false
	}
	return true
}

// processFrame decodes one inbound frame and dispatches it to the router.
func (c *Client) processFrame(raw []byte) {
	var frame InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		c.log.Warn("invalid frame", "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(c.hub.ctx, requestLimit)
	defer cancel()

	switch frame.Event {
	case eventSend:
		c.handleSend(ctx, frame)
	case eventJoin:
		c.handleJoin(ctx, frame)
	case eventLeave:
		c.handleLeave(frame)
	default:
		c.ack(frame.Event, 0, errUnknownEvent)
	}
}

func (c *Client) handleSend(ctx context.Context, frame InboundFrame) {
	if strings.TrimSpace(frame.Message) == "" {
		c.ack(eventSend, 0, errEmptyMessage)
		return
	}
	id := c.targetRoom(frame.RoomID)
	if !id.Valid() {
		c.ack(eventSend, 0, errNotInRoom)
		return
	}
	c.router.Send(ctx, c.identity, frame.Message, id)
}

func (c *Client) handleJoin(ctx context.Context, frame InboundFrame) {
	receiver := strings.TrimSpace(frame.Receiver)
	if receiver == "" {
		c.ack(eventJoin, 0, errNoReceiver)
		return
	}

	id, err := c.router.Join(ctx, c.id, c.identity, receiver)
	if err != nil {
		c.log.Info("join rejected", "receiver", receiver, "err", err)
		c.ack(eventJoin, 0, err)
		return
	}
	c.setRoom(id)
	c.ack(eventJoin, id, nil)
}

func (c *Client) handleLeave(frame InboundFrame) {
	id := c.targetRoom(frame.RoomID)
	if !id.Valid() {
		c.ack(eventLeave, 0, errNotInRoom)
		return
	}
	c.router.Leave(c.id, c.identity, id)
	if c.currentRoom() == id {
		c.setRoom(0)
	}
	c.ack(eventLeave, id, nil)
}

// targetRoom prefers the room named in the frame and falls back to the room
// the connection last joined.
func (c *Client) targetRoom(requested room.ID) room.ID {
	if requested.Valid() {
		return requested
	}
	return c.currentRoom()
}

func (c *Client) ack(request string, id room.ID, err error) {
	c.hub.SendFrame(c.id, ackFrame(request, id, err))
}

func (c *Client) readPump() {
	defer func() {
		c.hub.leave(c)
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.log.Warn("error closing connection in readPump", "err", err)
		}
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if c.handleReadError(err) {
			return
		}

		if !c.checkRateLimit() {
			continue
		}

		c.processFrame(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Warn("error closing connection in writePump", "err", err)
	}
}

// handleMessage writes one outgoing frame and returns false if the
// connection should be closed.
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn("error setting write deadline", "err", err)
		return false
	}

	if !ok {
		return c.writeCloseMessage()
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("error writing frame", "err", err)
		}
		return false
	}
	return true
}

func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
		c.log.Warn("error writing close message", "err", err)
	}
	return false
}

func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn("error setting write deadline for ping", "err", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.log.Warn("error writing ping", "err", err)
		return false
	}
	return true
}
