// Package cli implements the pidash command line client.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/iudanet/pidash/internal/client/app"
	"github.com/iudanet/pidash/internal/client/auth"
	"github.com/iudanet/pidash/internal/client/config"
	"github.com/iudanet/pidash/internal/client/iocli"
)

// annotation: команда не требует App (config, version)
const skipApp = "pidash/skip-app"

type globalFlags struct {
	configPath string
	server     string
	authMode   string
	storage    string
	logLevel   string
}

// Cli holds state shared by all commands of one invocation
type Cli struct {
	io      iocli.IO
	stderr  io.Writer
	cfg     *config.Config
	app     *app.App
	appOpts []app.Option
	version string
	flags   globalFlags
}

// New creates a Cli. appOpts are passed to app.New (tests).
func New(stdio iocli.IO, stderr io.Writer, version string, appOpts ...app.Option) *Cli {
	return &Cli{
		io:      stdio,
		stderr:  stderr,
		version: version,
		appOpts: appOpts,
	}
}

// Execute runs the command tree with args and releases resources
func (c *Cli) Execute(ctx context.Context, args []string) error {
	root := c.NewRootCmd()
	root.SetArgs(args)
	root.SetOut(c.io)
	root.SetErr(c.stderr)

	err := root.ExecuteContext(ctx)

	if c.app != nil {
		if closeErr := c.app.Close(); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
		c.app = nil
	}
	return err
}

// NewRootCmd builds the command tree
func (c *Cli) NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "pidash",
		Short:         "Terminal client for the pidash system dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       c.version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.loadConfig(); err != nil {
				return err
			}
			if cmd.Annotations[skipApp] != "" {
				return nil
			}
			return c.openApp(cmd.Context())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&c.flags.configPath, "config", "", "config file (default ~/.config/pidash/config.yaml)")
	pf.StringVar(&c.flags.server, "server", "", "dashboard server URL")
	pf.StringVar(&c.flags.authMode, "auth-mode", "", "credential policy: cookie or durable")
	pf.StringVar(&c.flags.storage, "storage", "", "durable storage backend: bolt or keyring")
	pf.StringVar(&c.flags.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		c.newLoginCmd(),
		c.newLogoutCmd(),
		c.newStatusCmd(),
		c.newStatsCmd(),
		c.newHistoryCmd(),
		c.newWatchCmd(),
		c.newConfigCmd(),
	)

	return root
}

// loadConfig: файл -> env -> флаги
func (c *Cli) loadConfig() error {
	cfg, err := config.Load(c.flags.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	override := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	override(&cfg.Server.URL, c.flags.server)
	override(&cfg.Auth.Mode, c.flags.authMode)
	override(&cfg.Auth.Storage, c.flags.storage)
	override(&cfg.Log.Level, c.flags.logLevel)

	if err := cfg.Validate(); err != nil {
		return err
	}

	c.cfg = cfg
	return nil
}

func (c *Cli) openApp(ctx context.Context) error {
	level, err := config.ParseLevel(c.cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(c.stderr, &slog.HandlerOptions{Level: level}))

	a, err := app.New(ctx, c.cfg, logger, c.appOpts...)
	if err != nil {
		return err
	}
	c.app = a
	return nil
}

// requireSession восстанавливает сессию или возвращает ErrNotAuthenticated
func (c *Cli) requireSession(ctx context.Context) error {
	if c.app.Session.Restore(ctx) != auth.StateAuthenticated {
		return notLoggedIn()
	}
	return nil
}

func notLoggedIn() error {
	return fmt.Errorf("%w: run 'pidash login' first", app.ErrNotAuthenticated)
}
