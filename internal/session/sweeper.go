package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/friendchat/internal/room"
)

// Presence reports whether an identity currently holds a live connection.
type Presence interface {
	Online(identity string) bool
}

// Sweeper periodically removes the memberships of participants that have
// been without a live connection for longer than a grace period. It is the
// maintenance counterpart to Disconnect, which never touches membership.
type Sweeper struct {
	rooms    *room.Registry
	presence Presence
	interval time.Duration
	grace    time.Duration
	log      *slog.Logger

	mu           sync.Mutex
	offlineSince map[string]time.Time
}

// NewSweeper builds a Sweeper. An interval of zero or less disables Run.
func NewSweeper(rooms *room.Registry, presence Presence, interval, grace time.Duration, log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{
		rooms:        rooms,
		presence:     presence,
		interval:     interval,
		grace:        grace,
		log:          log,
		offlineSince: make(map[string]time.Time),
	}
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) error {
	if s.interval <= 0 {
		s.log.Info("liveness sweep disabled")
		return nil
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if removed := s.Sweep(now); removed > 0 {
				s.log.Info("liveness sweep reclaimed memberships", "removed", removed, "remaining", s.rooms.Len())
			}
		}
	}
}

// Sweep runs one pass at the given instant and returns how many memberships
// were removed. A participant first seen offline is only marked; removal
// happens on a later pass once the grace period has elapsed.
func (s *Sweeper) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	members := s.rooms.Members()
	for identity := range s.offlineSince {
		if _, ok := members[identity]; !ok {
			delete(s.offlineSince, identity)
		}
	}

	removed := 0
	for identity, id := range members {
		if s.presence.Online(identity) {
			delete(s.offlineSince, identity)
			continue
		}

		since, seen := s.offlineSince[identity]
		if !seen {
			s.offlineSince[identity] = now
			continue
		}
		if now.Sub(since) < s.grace {
			continue
		}

		delete(s.offlineSince, identity)
		if s.rooms.Evict(identity, id) {
			removed++
			s.log.Debug("reclaimed membership", "identity", identity, "room", id)
		}
	}
	return removed
}
