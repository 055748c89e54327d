package session

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownUser is returned when a join names an identity the Directory
	// does not know.
	ErrUnknownUser = errors.New("unknown user")
	// ErrNotFriends is returned when a join is attempted between two users
	// without a confirmed friendship.
	ErrNotFriends = errors.New("you are not friends with this user")
	// ErrRoomFull is returned when the receiver's room is at capacity.
	ErrRoomFull = errors.New("room is full")
)

func unknownUser(role, identity string) error {
	return fmt.Errorf("%w: unknown %s %q", ErrUnknownUser, role, identity)
}
