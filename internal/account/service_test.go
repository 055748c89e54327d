package account

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Tyrowin/friendchat/internal/auth"
	"github.com/Tyrowin/friendchat/internal/identity"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*Service, *identity.Store, *auth.Tokens) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := identity.Open(":memory:", log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	tokens, err := auth.NewTokens("account-test-secret", time.Hour)
	require.NoError(t, err)
	return NewService(store, tokens, log), store, tokens
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()

	t.Run("should register and issue a token", func(t *testing.T) {
		req := require.New(t)
		svc, store, tokens := newTestService(t)

		token, err := svc.Register(ctx, auth.Credentials{Username: "alice", Password: "password123"})

		req.NoError(err)
		claims, err := tokens.Verify(token)
		req.NoError(err)
		req.Equal("alice", claims.Username())

		user, err := store.GetUser(ctx, "alice")
		req.NoError(err)
		req.NotEqual("password123", user.PasswordHash)
	})

	t.Run("should reject invalid input before touching the store", func(t *testing.T) {
		req := require.New(t)
		svc, store, _ := newTestService(t)

		_, err := svc.Register(ctx, auth.Credentials{Username: "alice", Password: "short"})

		req.ErrorIs(err, auth.ErrInvalidCredentials)
		n, err := store.CountUsers(ctx)
		req.NoError(err)
		req.Zero(n)
	})

	t.Run("should refuse a taken username", func(t *testing.T) {
		svc, _, _ := newTestService(t)
		creds := auth.Credentials{Username: "alice", Password: "password123"}

		_, err := svc.Register(ctx, creds)
		require.NoError(t, err)
		_, err = svc.Register(ctx, creds)

		require.ErrorIs(t, err, ErrUsernameTaken)
	})
}

func TestService_Login(t *testing.T) {
	ctx := context.Background()
	svc, _, tokens := newTestService(t)
	_, err := svc.Register(ctx, auth.Credentials{Username: "alice", Password: "password123"})
	require.NoError(t, err)

	t.Run("should login with the right password", func(t *testing.T) {
		req := require.New(t)

		token, err := svc.Login(ctx, auth.Credentials{Username: "alice", Password: "password123"})

		req.NoError(err)
		claims, err := tokens.Verify(token)
		req.NoError(err)
		req.Equal("alice", claims.Username())
	})

	t.Run("should reject a wrong password", func(t *testing.T) {
		_, err := svc.Login(ctx, auth.Credentials{Username: "alice", Password: "password124"})
		require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})

	t.Run("should reject an unknown user the same way", func(t *testing.T) {
		_, err := svc.Login(ctx, auth.Credentials{Username: "ghost", Password: "password123"})
		require.ErrorIs(t, err, auth.ErrInvalidCredentials)
	})
}
