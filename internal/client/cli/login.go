package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iudanet/pidash/internal/client/auth"
)

func (c *Cli) newLoginCmd() *cobra.Command {
	var username string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to the dashboard server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.runLogin(cmd.Context(), username)
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "username (prompted when empty)")

	return cmd
}

func (c *Cli) runLogin(ctx context.Context, username string) error {
	if username == "" {
		var err error
		username, err = c.io.ReadInput("Username: ")
		if err != nil {
			return fmt.Errorf("failed to read username: %w", err)
		}
	}

	password, err := c.io.ReadPassword("Password: ")
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	if err := c.app.Session.Login(ctx, username, password); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return fmt.Errorf("login failed: invalid username or password")
		}
		return fmt.Errorf("login failed: %w", err)
	}

	c.io.Printf("Logged in as %s (%s mode)\n", username, c.cfg.Auth.Mode)
	return nil
}
