// Package room keeps the in-memory mapping between chat participants and the
// rooms they currently occupy.
package room

import (
	"sort"
	"sync"
)

// ID identifies a chat room. IDs are allocated from a single counter and are
// never reused for the lifetime of the process.
type ID int64

// Valid reports whether id could have been allocated by a Registry. The zero
// ID stands for "no room".
func (id ID) Valid() bool {
	return id > 0
}

// Registry maps each participant identity to at most one room ID and
// allocates new room IDs. All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	lastID  ID
	members map[string]ID
}

// NewRegistry returns an empty Registry. The first room it creates has ID 1.
func NewRegistry() *Registry {
	return &Registry{
		members: make(map[string]ID),
	}
}

// CreateRoom allocates a fresh room ID and moves both participants into it.
// Any previous membership of either participant is overwritten.
func (r *Registry) CreateRoom(a, b string) ID {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.lastID++
	id := r.lastID
	r.members[a] = id
	r.members[b] = id
	return id
}

// JoinRoom sets the participant's membership to id, silently abandoning any
// room the participant was in before. The ID is not checked against active
// rooms; callers are expected to have obtained it from RoomID.
func (r *Registry) JoinRoom(participant string, id ID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.members[participant] = id
}

// TryJoinRoom behaves like JoinRoom unless the room already holds capacity
// participants other than this one, in which case it reports false and leaves
// the registry unchanged. A capacity of zero or less means unlimited.
func (r *Registry) TryJoinRoom(participant string, id ID, capacity int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if capacity > 0 {
		others := 0
		for member, current := range r.members {
			if current == id && member != participant {
				others++
			}
		}
		if others >= capacity {
			return false
		}
	}

	r.members[participant] = id
	return true
}

// LeaveRoom removes the participant's membership. Leaving when not in a room
// is a no-op.
func (r *Registry) LeaveRoom(participant string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.members, participant)
}

// Evict removes the participant's membership only if it still points at id,
// and reports whether it did.
func (r *Registry) Evict(participant string, id ID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.members[participant]; !ok || current != id {
		return false
	}
	delete(r.members, participant)
	return true
}

// RoomID returns the room the participant is currently in.
func (r *Registry) RoomID(participant string) (ID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.members[participant]
	return id, ok
}

// OtherParticipant returns a participant other than the given one that
// currently maps to id. When more than one candidate exists the choice is
// unspecified.
func (r *Registry) OtherParticipant(participant string, id ID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for member, current := range r.members {
		if current == id && member != participant {
			return member, true
		}
	}
	return "", false
}

// Occupants returns the participants currently mapped to id, sorted by name.
func (r *Registry) Occupants(id ID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var occupants []string
	for member, current := range r.members {
		if current == id {
			occupants = append(occupants, member)
		}
	}
	sort.Strings(occupants)
	return occupants
}

// Members returns a copy of every membership entry.
func (r *Registry) Members() map[string]ID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(map[string]ID, len(r.members))
	for member, id := range r.members {
		snapshot[member] = id
	}
	return snapshot
}

// Len returns the number of membership entries.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.members)
}

// LastID returns the most recently allocated room ID, or zero if no room has
// been created yet.
func (r *Registry) LastID() ID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.lastID
}
