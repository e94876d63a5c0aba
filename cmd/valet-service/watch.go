package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/kushalX13/CurbKey/internal/config"
	"github.com/kushalX13/CurbKey/internal/console"
	"github.com/kushalX13/CurbKey/internal/lifecycle"
	"github.com/kushalX13/CurbKey/internal/models"
	"github.com/kushalX13/CurbKey/internal/syncengine"
	"github.com/kushalX13/CurbKey/internal/telemetry"
)

// newWatchCmd renders to stdout, so its logs go to stderr.
func newWatchCmd(ctx context.Context, cfg config.Config) *cobra.Command {
	var (
		server    string
		session   string
		role      string
		venueID   int64
		token     string
		scope     string
		transport string
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow a venue queue or a guest ticket in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := lifecycle.ParseScope(scope)
			if err != nil {
				return err
			}
			client := syncengine.NewClient(server, syncengine.ClientOptions{Session: session})
			c, err := console.New(client, console.Options{
				Role:      role,
				VenueID:   venueID,
				Token:     token,
				Scope:     parsed,
				Transport: transport,
				Threshold: cfg.SyncFailureThreshold,
				Backoff:   cfg.SyncBackoff,
				Logger:    telemetry.NewLogger(os.Stderr, cfg.LogLevel),
				Out:       os.Stdout,
			})
			if err != nil {
				return err
			}
			return c.Run(ctx)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&server, "server", "http://localhost:8080", "API base URL")
	flags.StringVar(&session, "session", os.Getenv("CURBKEY_SESSION"), "staff session id")
	flags.StringVar(&role, "role", models.RoleValet, "GUEST, VALET or MANAGER")
	flags.Int64Var(&venueID, "venue", 0, "venue id to watch")
	flags.StringVar(&token, "token", "", "guest ticket token")
	flags.StringVar(&scope, "scope", string(lifecycle.ScopeActive), "active or history")
	flags.StringVar(&transport, "transport", console.TransportPoll, "poll or stream")
	return cmd
}
