// Package server coordinates client registration, room group fan-out, and
// connection cleanup for the friendchat WebSocket system via the Hub type.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/friendchat/internal/room"
	"github.com/Tyrowin/friendchat/internal/session"
	"github.com/samber/lo"
)

// Hub manages all WebSocket client connections and the room groups they are
// subscribed to. Registration goes through the Run loop; group membership and
// delivery are guarded by the mutex so the router can call in from any
// client goroutine.
type Hub struct {
	clients    map[*Client]struct{}
	byID       map[string]*Client
	online     map[string]int
	groups     map[room.ID]map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	log        *slog.Logger
}

var (
	_ session.Broadcaster = (*Hub)(nil)
	_ session.Presence    = (*Hub)(nil)
)

// NewHub creates a Hub ready to accept clients once Run is started.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]struct{}),
		byID:       make(map[string]*Client),
		online:     make(map[string]int),
		groups:     make(map[room.ID]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		log:        log,
	}
}

// Register hands a client to the Run loop. It returns false once the hub has
// stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) leave(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Run starts the hub's event loop. It returns when Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.log.Warn("received nil client registration; skipping")
				continue
			}
			h.add(client)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

			client.connected()

		case client := <-h.unregister:
			h.remove(client)
			client.disconnected()
		}
	}
}

func (h *Hub) add(client *Client) {
	h.mutex.Lock()
	client.closed = false
	h.clients[client] = struct{}{}
	h.byID[client.id] = client
	h.online[client.identity]++
	count := len(h.clients)
	h.mutex.Unlock()

	h.log.Info("client registered", "conn", client.id, "identity", client.identity, "addr", client.addr, "clients", count)
}

func (h *Hub) remove(client *Client) {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return
	}
	h.detachLocked(client)
	count := len(h.clients)
	h.mutex.Unlock()

	close(client.send)
	h.log.Info("client unregistered", "conn", client.id, "identity", client.identity, "addr", client.addr, "clients", count)
}

// detachLocked drops every trace of client from the hub. The caller holds the
// write lock and is responsible for closing client.send.
func (h *Hub) detachLocked(client *Client) {
	delete(h.clients, client)
	delete(h.byID, client.id)
	client.closed = true

	if n := h.online[client.identity] - 1; n > 0 {
		h.online[client.identity] = n
	} else {
		delete(h.online, client.identity)
	}

	for id := range client.subscriptions {
		h.dropFromGroupLocked(client, id)
	}
}

func (h *Hub) dropFromGroupLocked(client *Client, id room.ID) {
	delete(client.subscriptions, id)
	group, ok := h.groups[id]
	if !ok {
		return
	}
	delete(group, client)
	if len(group) == 0 {
		delete(h.groups, id)
	}
}

// Subscribe adds the connection to the room's broadcast group.
func (h *Hub) Subscribe(conn string, id room.ID) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	client, ok := h.byID[conn]
	if !ok || client.closed {
		return
	}
	group, ok := h.groups[id]
	if !ok {
		group = make(map[*Client]struct{})
		h.groups[id] = group
	}
	group[client] = struct{}{}
	client.subscriptions[id] = struct{}{}
}

// Unsubscribe removes the connection from the room's broadcast group.
func (h *Hub) Unsubscribe(conn string, id room.ID) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	if client, ok := h.byID[conn]; ok {
		h.dropFromGroupLocked(client, id)
	}
}

// Emit delivers n to every connection in the room's group except the one
// named by except.
func (h *Hub) Emit(id room.ID, n session.Notice, except string) {
	payload, ok := h.encode(noticeFrame(n))
	if !ok {
		return
	}

	recipients := lo.Filter(h.groupSnapshot(id), func(c *Client, _ int) bool {
		return c.id != except
	})
	h.log.Debug("emitting notice", "room", id, "recipients", len(recipients))

	h.removeFailedClients(h.deliver(recipients, payload))
}

// EmitTo delivers n to a single connection.
func (h *Hub) EmitTo(conn string, n session.Notice) {
	h.SendFrame(conn, noticeFrame(n))
}

// SendFrame queues an arbitrary outbound frame for a single connection.
func (h *Hub) SendFrame(conn string, frame OutboundFrame) {
	payload, ok := h.encode(frame)
	if !ok {
		return
	}

	h.mutex.RLock()
	client, exists := h.byID[conn]
	h.mutex.RUnlock()
	if !exists {
		return
	}
	h.removeFailedClients(h.deliver([]*Client{client}, payload))
}

// Online reports whether identity has at least one registered connection.
func (h *Hub) Online(identity string) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.online[identity] > 0
}

// ConnectionCount returns the number of registered clients.
func (h *Hub) ConnectionCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// GroupCount returns the number of rooms with at least one subscriber.
func (h *Hub) GroupCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.groups)
}

func (h *Hub) encode(frame OutboundFrame) ([]byte, bool) {
	payload, err := json.Marshal(frame)
	if err != nil {
		h.log.Error("failed to encode outbound frame", "event", frame.Event, "err", err)
		return nil, false
	}
	return payload, true
}

func (h *Hub) groupSnapshot(id room.ID) []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return lo.Keys(h.groups[id])
}

// deliver queues payload for every client and returns those whose buffer was
// full or already closed.
func (h *Hub) deliver(clients []*Client, payload []byte) []*Client {
	var failed []*Client
	for _, client := range clients {
		if !h.safeSend(client, payload) {
			failed = append(failed, client)
		}
	}
	return failed
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("recovered from panic in safeSend", "conn", client.id, "panic", r)
		}
	}()

	// The read lock keeps remove from closing the channel mid-send.
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if _, exists := h.clients[client]; !exists || client.closed {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// removeFailedClients drops clients that could not keep up and closes their
// send channels, which makes their write pump hang up.
func (h *Hub) removeFailedClients(clientsToRemove []*Client) {
	if len(clientsToRemove) == 0 {
		return
	}

	h.mutex.Lock()
	var channelsToClose []chan []byte
	for _, client := range clientsToRemove {
		if _, exists := h.clients[client]; exists {
			h.detachLocked(client)
			channelsToClose = append(channelsToClose, client.send)
			h.log.Warn("client removed due to full send buffer", "conn", client.id, "addr", client.addr)
		}
	}
	h.mutex.Unlock()

	for _, ch := range channelsToClose {
		close(ch)
	}
}

func (h *Hub) shutdownClients() {
	h.mutex.Lock()
	clients := lo.Keys(h.clients)
	for _, client := range clients {
		h.detachLocked(client)
	}
	h.mutex.Unlock()

	for _, client := range clients {
		close(client.send)
	}
	for _, client := range clients {
		if client.conn == nil {
			continue
		}
		if err := client.conn.Close(); err != nil && !isExpectedCloseError(err) {
			h.log.Warn("error closing client connection", "conn", client.id, "addr", client.addr, "err", err)
		}
	}

	h.log.Info("closed client connections", "count", len(clients))
}

// Shutdown stops the Run loop, closes every connection and waits for the
// client goroutines to finish or for timeout to elapse.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("initiating hub shutdown")
	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.log.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
