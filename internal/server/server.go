package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Tyrowin/friendchat/internal/account"
	"github.com/Tyrowin/friendchat/internal/auth"
	"github.com/Tyrowin/friendchat/internal/identity"
	"github.com/Tyrowin/friendchat/internal/room"
	"github.com/Tyrowin/friendchat/internal/session"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"
)

// Store is everything the HTTP surface needs from the identity store.
type Store interface {
	session.Directory
	session.History
	account.Users

	SendFriendRequest(ctx context.Context, from, to string) error
	PendingRequests(ctx context.Context, username string) ([]identity.FriendRequest, error)
	AcceptFriendRequest(ctx context.Context, from, to string) error
	DeclineFriendRequest(ctx context.Context, from, to string) error
	Friends(ctx context.Context, username string) ([]string, error)
	RemoveFriend(ctx context.Context, a, b string) error
	ReceivedMessages(ctx context.Context, username string, limit int) ([]identity.Message, error)
	Ping(ctx context.Context) error
}

// Server owns the room registry, the hub and the HTTP listener of one
// friendchat instance.
type Server struct {
	cfg      Config
	log      *slog.Logger
	store    Store
	tokens   *auth.Tokens
	accounts *account.Service
	rooms    *room.Registry
	hub      *Hub
	router   *session.Router
	sweeper  *session.Sweeper
	origins  *originPolicy
	upgrader websocket.Upgrader
	http     *http.Server
}

// New wires a Server from its configuration and collaborators.
func New(cfg Config, store Store, tokens *auth.Tokens, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	cfg = sanitizeConfig(cfg)

	rooms := room.NewRegistry()
	hub := NewHub(log.With("component", "hub"))
	router := session.NewRouter(rooms, store, hub, log.With("component", "router"),
		session.WithCapacity(cfg.RoomCapacity),
		session.WithHistory(store),
	)

	s := &Server{
		cfg:      cfg,
		log:      log,
		store:    store,
		tokens:   tokens,
		accounts: account.NewService(store, tokens, log.With("component", "account")),
		rooms:    rooms,
		hub:      hub,
		router:   router,
		sweeper:  session.NewSweeper(rooms, hub, cfg.SweepInterval, cfg.SweepGrace, log.With("component", "sweeper")),
		origins:  newOriginPolicy(cfg.Origins(), log),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.origins.check,
	}
	s.http = CreateServer(cfg.Port, s.Handler())
	return s
}

// Hub returns the connection hub.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Rooms returns the room registry.
func (s *Server) Rooms() *room.Registry {
	return s.rooms
}

// Run starts the hub, the liveness sweep and the HTTP listener, and blocks
// until ctx is cancelled or the listener fails. Everything is shut down
// before Run returns.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.hub.Run()
		return nil
	})
	g.Go(func() error {
		return s.sweeper.Run(gctx)
	})
	g.Go(func() error {
		if err := StartServer(s.http, s.log); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return s.shutdown()
	})

	return g.Wait()
}

func (s *Server) shutdown() error {
	httpErr := ShutdownServer(s.http, s.cfg.ShutdownTimeout, s.log)
	hubErr := s.hub.Shutdown(s.cfg.ShutdownTimeout)
	return errors.Join(httpErr, hubErr)
}
