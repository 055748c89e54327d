package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/Tyrowin/friendchat/internal/auth"
	"github.com/Tyrowin/friendchat/internal/identity"
	"github.com/Tyrowin/friendchat/internal/server"
	"github.com/spf13/cobra"
)

// app carries what every subcommand needs once configuration is loaded.
type app struct {
	envFile string
	cfg     server.Config
	log     *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "friendchat",
		Short:         "Friends-only chat server",
		Long:          "friendchat serves a WebSocket chat where friends talk in rooms, plus a small JSON API for accounts and friendships.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load(cmd.ErrOrStderr())
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before the environment")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Run the chat server (default)",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.serve(cmd)
			},
		},
		newUserCmd(a),
		newFriendCmd(a),
	)
	return root
}

func (a *app) load(stderr io.Writer) error {
	cfg, err := server.LoadConfig(a.envFile)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = newLogger(stderr, cfg.LogLevel, cfg.LogFormat)
	return nil
}

func (a *app) openStore() (*identity.Store, error) {
	return identity.Open(a.cfg.DatabasePath, a.log.With("component", "store"))
}

func (a *app) serve(cmd *cobra.Command) error {
	store, err := a.openStore()
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			a.log.Warn("closing store", "err", err)
		}
	}()

	secret := a.cfg.TokenSecret
	if secret == "" {
		secret, err = randomSecret()
		if err != nil {
			return err
		}
		a.log.Warn("TOKEN_SECRET is not set; using a random secret, issued tokens will not survive a restart")
	}
	tokens, err := auth.NewTokens(secret, a.cfg.TokenTTL)
	if err != nil {
		return err
	}

	a.log.Info("starting friendchat",
		"addr", a.cfg.Port,
		"database", a.cfg.DatabasePath,
		"room_capacity", a.cfg.RoomCapacity,
		"sweep_interval", a.cfg.SweepInterval,
	)
	return server.New(a.cfg, store, tokens, a.log).Run(cmd.Context())
}

func newUserCmd(a *app) *cobra.Command {
	user := &cobra.Command{
		Use:   "user",
		Short: "Manage user accounts",
	}
	user.AddCommand(&cobra.Command{
		Use:   "add <username> <password>",
		Short: "Create an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			creds := auth.Credentials{Username: args[0], Password: args[1]}
			if err := creds.Validate(); err != nil {
				return err
			}
			hash, err := auth.HashPassword(creds.Password)
			if err != nil {
				return err
			}
			if err := store.CreateUser(cmd.Context(), creds.Username, hash); err != nil {
				return fmt.Errorf("create user %s: %w", creds.Username, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created user %s\n", creds.Username)
			return nil
		},
	})
	return user
}

func newFriendCmd(a *app) *cobra.Command {
	friend := &cobra.Command{
		Use:   "friend",
		Short: "Manage friendships",
	}
	friend.AddCommand(
		&cobra.Command{
			Use:   "add <username> <username>",
			Short: "Make two users friends without a request",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := a.openStore()
				if err != nil {
					return err
				}
				defer store.Close()

				if err := store.AddFriendship(cmd.Context(), args[0], args[1]); err != nil {
					return fmt.Errorf("add friendship %s<->%s: %w", args[0], args[1], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s and %s are now friends\n", args[0], args[1])
				return nil
			},
		},
		&cobra.Command{
			Use:   "list <username>",
			Short: "List the friends of a user",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				store, err := a.openStore()
				if err != nil {
					return err
				}
				defer store.Close()

				friends, err := store.Friends(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if len(friends) > 0 {
					fmt.Fprintln(cmd.OutOrStdout(), strings.Join(friends, "\n"))
				}
				return nil
			},
		},
	)
	return friend
}

func newLogger(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
