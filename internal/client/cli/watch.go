package cli

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/iudanet/pidash/internal/client/app"
	"github.com/iudanet/pidash/internal/client/auth"
	"github.com/iudanet/pidash/pkg/api"
)

func (c *Cli) newWatchCmd() *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream live samples until interrupted",
		Long: "Stream live samples until interrupted. Without a stored session the\n" +
			"command asks for credentials first, which is how cookie mode is used.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runWatch(cmd.Context(), username)
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "username for the interactive login")

	return cmd
}

func (c *Cli) runWatch(ctx context.Context, username string) error {
	if c.app.Session.Restore(ctx) != auth.StateAuthenticated {
		if err := c.runLogin(ctx, username); err != nil {
			return err
		}
	}

	err := c.app.Watch(ctx, func(s api.SystemStats) {
		c.io.Println(formatSampleLine(s))
	})
	if errors.Is(err, app.ErrNotAuthenticated) {
		return notLoggedIn()
	}
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
