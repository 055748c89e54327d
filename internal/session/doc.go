// Package session routes real-time connection events to chat rooms.
//
// The Router turns connect, disconnect, send, join and leave events into
// Room Registry mutations and outbound notices. Authorization for joins is
// delegated to a Directory, delivery to a Broadcaster owned by the transport
// layer. The Sweeper is an optional maintenance task that reclaims the rooms
// of participants that went away without leaving.
package session
