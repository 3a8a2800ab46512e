package cli

import (
	"github.com/spf13/cobra"
)

func (c *Cli) newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Log out and forget stored credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// серверная часть best-effort, локальная очистка всегда
			if err := c.app.Session.Logout(cmd.Context()); err != nil {
				return err
			}
			c.io.Println("Logged out")
			return nil
		},
	}
}
