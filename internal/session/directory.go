//go:generate go run go.uber.org/mock/mockgen -source=directory.go -destination=mocks/mock_directory.go -package=mocks
package session

import "context"

// Directory answers identity and friendship questions for the Router.
type Directory interface {
	UserExists(ctx context.Context, username string) (bool, error)
	AreFriends(ctx context.Context, a, b string) (bool, error)
}

// History records chat messages exchanged inside a room.
type History interface {
	SaveMessage(ctx context.Context, sender, receiver, text string) error
}
