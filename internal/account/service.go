// Package account implements signup and login on top of the identity store.
package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Tyrowin/friendchat/internal/auth"
	"github.com/Tyrowin/friendchat/internal/identity"
)

// ErrUsernameTaken is returned by Register when the username already exists.
var ErrUsernameTaken = errors.New("user already exists")

// Users is the slice of the identity store the service depends on.
type Users interface {
	CreateUser(ctx context.Context, username, passwordHash string) error
	GetUser(ctx context.Context, username string) (identity.User, error)
}

// Service registers and authenticates users.
type Service struct {
	users  Users
	tokens *auth.Tokens
	log    *slog.Logger
}

func NewService(users Users, tokens *auth.Tokens, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{users: users, tokens: tokens, log: log}
}

// Register creates an account and returns a session token for it.
func (s *Service) Register(ctx context.Context, creds auth.Credentials) (string, error) {
	if err := creds.Validate(); err != nil {
		return "", err
	}

	hash, err := auth.HashPassword(creds.Password)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}

	if err := s.users.CreateUser(ctx, creds.Username, hash); err != nil {
		if errors.Is(err, identity.ErrAlreadyExists) {
			return "", ErrUsernameTaken
		}
		return "", err
	}

	s.log.Info("user registered", "identity", creds.Username)
	return s.tokens.Issue(creds.Username)
}

// Login checks the password and returns a fresh session token. Unknown users
// and wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, creds auth.Credentials) (string, error) {
	user, err := s.users.GetUser(ctx, creds.Username)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			return "", auth.ErrInvalidCredentials
		}
		return "", err
	}

	ok, err := auth.ComparePassword(creds.Password, user.PasswordHash)
	if err != nil || !ok {
		return "", auth.ErrInvalidCredentials
	}

	return s.tokens.Issue(user.Username)
}
