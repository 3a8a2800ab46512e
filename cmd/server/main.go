package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/iudanet/pidash/internal/server"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := server.DefaultConfig()
	cfg.Version = Version

	port := envInt("PIDASH_PORT", 3300)

	showVersion := flag.Bool("version", false, "Show version information")
	flag.IntVar(&port, "port", port, "HTTP port (env PIDASH_PORT)")
	flag.StringVar(&cfg.DBPath, "db", envString("PIDASH_DB", cfg.DBPath), "SQLite database path (env PIDASH_DB)")
	flag.StringVar(&cfg.Username, "user", envString("PIDASH_USER", cfg.Username), "Dashboard username (env PIDASH_USER)")
	flag.StringVar(&cfg.DiskPath, "disk", envString("PIDASH_DISK", cfg.DiskPath), "Filesystem to report disk usage for")
	flag.DurationVar(&cfg.AccessTokenTTL, "access-ttl", cfg.AccessTokenTTL, "Access token lifetime")
	flag.DurationVar(&cfg.RefreshTokenTTL, "refresh-ttl", cfg.RefreshTokenTTL, "Refresh token lifetime")
	logLevel := flag.String("log-level", envString("PIDASH_LOG_LEVEL", "info"), "Log level: debug, info, warn, error")
	flag.Parse()

	if *showVersion {
		printVersion()
		return nil
	}

	// пароль и секрет только из env, не светим в ps
	cfg.Password = envString("PIDASH_PASS", cfg.Password)
	cfg.Secret = []byte(os.Getenv("PIDASH_SECRET"))
	cfg.Addr = fmt.Sprintf(":%d", port)

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", *logLevel, err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if os.Getenv("PIDASH_PASS") == "" {
		logger.Warn("PIDASH_PASS not set, using default password")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := srv.Close(); err != nil {
			logger.Error("failed to close server", "error", err)
		}
	}()

	start := time.Now()
	err = srv.Run(ctx)
	logger.Info("uptime", "duration", time.Since(start).Round(time.Second))
	return err
}

func envString(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func printVersion() {
	fmt.Printf("pidash server\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
