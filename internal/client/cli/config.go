package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/iudanet/pidash/internal/client/config"
)

func (c *Cli) newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:         "config",
		Short:       "Inspect or write the client configuration",
		Annotations: map[string]string{skipApp: "true"},
	}

	show := &cobra.Command{
		Use:         "show",
		Short:       "Print the effective configuration",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipApp: "true"},
		RunE: func(*cobra.Command, []string) error {
			redacted := *c.cfg
			if redacted.Auth.Passphrase != "" {
				redacted.Auth.Passphrase = "***"
			}
			data, err := yaml.Marshal(&redacted)
			if err != nil {
				return err
			}
			_, err = c.io.Write(data)
			return err
		},
	}

	initCmd := &cobra.Command{
		Use:         "init",
		Short:       "Write the effective configuration to the config file",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipApp: "true"},
		RunE: func(*cobra.Command, []string) error {
			path := c.flags.configPath
			if path == "" {
				p, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("failed to resolve config path: %w", err)
				}
				path = p
			}

			if err := c.cfg.SaveToPath(path); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}
			c.io.Printf("Config written to %s\n", path)
			return nil
		},
	}

	cmd.AddCommand(show, initCmd)
	return cmd
}
