package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Tyrowin/friendchat/internal/room"
)

// Broadcaster delivers notices to the connections subscribed to a room.
// Implementations must not block on delivery; a failed delivery to one
// connection must not stop delivery to the others.
type Broadcaster interface {
	Subscribe(conn string, id room.ID)
	Unsubscribe(conn string, id room.ID)
	// Emit sends n to every connection subscribed to id except the one
	// named by except. An empty except reaches everyone.
	Emit(id room.ID, n Notice, except string)
	EmitTo(conn string, n Notice)
}

// Router translates connection events into registry mutations and notices.
type Router struct {
	rooms     *room.Registry
	directory Directory
	groups    Broadcaster
	history   History
	capacity  int
	log       *slog.Logger
}

// Option configures optional Router behaviour.
type Option func(*Router)

// WithCapacity caps the number of participants that may share a room when a
// third party joins an existing one. Zero keeps rooms unbounded.
func WithCapacity(capacity int) Option {
	return func(r *Router) {
		r.capacity = capacity
	}
}

// WithHistory records every message sent in a two-party room.
func WithHistory(h History) Option {
	return func(r *Router) {
		r.history = h
	}
}

// NewRouter wires a Router to its registry, directory and broadcaster.
func NewRouter(rooms *room.Registry, directory Directory, groups Broadcaster, log *slog.Logger, opts ...Option) *Router {
	if log == nil {
		log = slog.Default()
	}
	r := &Router{
		rooms:     rooms,
		directory: directory,
		groups:    groups,
		log:       log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Connect resubscribes a reconnecting connection to the room it remembers
// and announces it. Without both an identity and a room this is a no-op.
func (r *Router) Connect(conn, identity string, id room.ID) {
	if identity == "" || !id.Valid() {
		return
	}

	r.groups.Subscribe(conn, id)
	r.groups.Emit(id, connectedNotice(identity), "")
	r.log.Debug("connection rejoined room", "conn", conn, "identity", identity, "room", id)
}

// Disconnect announces that a connection went away. Membership is left as it
// is; Leave is the only authoritative way out of a room.
func (r *Router) Disconnect(conn, identity string, id room.ID) {
	if identity == "" || !id.Valid() {
		return
	}

	r.groups.Emit(id, disconnectedNotice(identity), "")
	r.log.Debug("connection dropped", "conn", conn, "identity", identity, "room", id)
}

// Send broadcasts a chat message to everyone subscribed to the room.
func (r *Router) Send(ctx context.Context, sender, message string, id room.ID) {
	r.groups.Emit(id, messageNotice(sender, message), "")

	if r.history == nil {
		return
	}
	receiver, ok := r.rooms.OtherParticipant(sender, id)
	if !ok {
		return
	}
	if err := r.history.SaveMessage(ctx, sender, receiver, message); err != nil {
		r.log.Warn("failed to record message", "identity", sender, "room", id, "err", err)
	}
}

// Join puts sender in a room with receiver, creating the room when receiver
// has none, and returns the room ID. conn is the sender's connection.
func (r *Router) Join(ctx context.Context, conn, sender, receiver string) (room.ID, error) {
	if err := r.Authorize(ctx, sender, receiver); err != nil {
		return 0, err
	}

	previous, hadPrevious := r.rooms.RoomID(sender)

	if id, ok := r.rooms.RoomID(receiver); ok {
		if !r.rooms.TryJoinRoom(sender, id, r.capacity) {
			return 0, ErrRoomFull
		}
		r.moveConnection(conn, previous, hadPrevious, id)
		r.groups.Emit(id, joinedNotice(sender), conn)
		r.groups.EmitTo(conn, talkingToNotice(sender, receiver))
		r.log.Info("joined room", "conn", conn, "identity", sender, "receiver", receiver, "room", id)
		return id, nil
	}

	id := r.rooms.CreateRoom(sender, receiver)
	r.moveConnection(conn, previous, hadPrevious, id)
	r.groups.Emit(id, talkingToNotice(sender, receiver), "")
	r.log.Info("created room", "conn", conn, "identity", sender, "receiver", receiver, "room", id)
	return id, nil
}

// Leave announces the departure, unsubscribes the connection and drops the
// membership. Leaving twice is harmless.
func (r *Router) Leave(conn, identity string, id room.ID) {
	r.groups.Emit(id, leftNotice(identity), "")
	r.groups.Unsubscribe(conn, id)
	r.rooms.LeaveRoom(identity)
	r.log.Info("left room", "conn", conn, "identity", identity, "room", id)
}

// Authorize checks that both users exist and are friends, in that order.
func (r *Router) Authorize(ctx context.Context, sender, receiver string) error {
	exists, err := r.directory.UserExists(ctx, receiver)
	if err != nil {
		return fmt.Errorf("lookup receiver: %w", err)
	}
	if !exists {
		return unknownUser("receiver", receiver)
	}

	exists, err = r.directory.UserExists(ctx, sender)
	if err != nil {
		return fmt.Errorf("lookup sender: %w", err)
	}
	if !exists {
		return unknownUser("sender", sender)
	}

	friends, err := r.directory.AreFriends(ctx, sender, receiver)
	if err != nil {
		return fmt.Errorf("check friendship: %w", err)
	}
	if !friends {
		return ErrNotFriends
	}
	return nil
}

func (r *Router) moveConnection(conn string, previous room.ID, hadPrevious bool, next room.ID) {
	if hadPrevious && previous != next {
		r.groups.Unsubscribe(conn, previous)
	}
	r.groups.Subscribe(conn, next)
}
