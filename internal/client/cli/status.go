package cli

import (
	"github.com/spf13/cobra"

	"github.com/iudanet/pidash/internal/client/config"
)

func (c *Cli) newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			state := c.app.Session.Restore(cmd.Context())

			c.io.Printf("Server:   %s\n", c.cfg.Server.URL)
			c.io.Printf("Mode:     %s\n", c.cfg.Auth.Mode)
			if c.cfg.Auth.Mode == config.ModeDurable {
				c.io.Printf("Storage:  %s\n", c.cfg.Auth.Storage)
			}
			c.io.Printf("Session:  %s\n", state)
			return nil
		},
	}
}
