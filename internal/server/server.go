// Package server собирает dev backend: auth, метрики хоста, websocket stream.
package server

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/iudanet/pidash/internal/server/collector"
	"github.com/iudanet/pidash/internal/server/handlers"
	"github.com/iudanet/pidash/internal/server/metrics"
	"github.com/iudanet/pidash/internal/server/middleware"
	"github.com/iudanet/pidash/internal/server/storage/sqlite"
)

const (
	shutdownTimeout = 10 * time.Second
	tokenGCInterval = time.Hour
)

// Config описывает dev backend
type Config struct {
	Addr            string
	DBPath          string
	DiskPath        string
	Username        string
	Password        string
	Version         string
	Secret          []byte
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	LoginRateLimit  int
	LoginRateWindow time.Duration
}

// DefaultConfig returns the defaults used by cmd/server
func DefaultConfig() Config {
	return Config{
		Addr:            ":3300",
		DBPath:          "pidash.db",
		DiskPath:        "/",
		Username:        "admin",
		Password:        "admin",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 30 * 24 * time.Hour,
		LoginRateLimit:  10,
		LoginRateWindow: time.Minute,
	}
}

// Option configures a Server
type Option func(*Server)

// WithSource replaces the gopsutil host source
func WithSource(src collector.Source) Option {
	return func(s *Server) {
		s.source = src
	}
}

// Server is the dev backend
type Server struct {
	logger  *slog.Logger
	store   *sqlite.Storage
	source  collector.Source
	sampler *collector.Sampler
	metrics *metrics.Metrics
	limiter *middleware.RateLimiter
	handler http.Handler
	cfg     Config
}

// New opens storage and builds the HTTP handler. Empty Secret is replaced with a random one.
func New(ctx context.Context, cfg Config, logger *slog.Logger, opts ...Option) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if len(cfg.Secret) == 0 {
		cfg.Secret = make([]byte, 32)
		if _, err := rand.Read(cfg.Secret); err != nil {
			return nil, fmt.Errorf("failed to generate jwt secret: %w", err)
		}
		logger.Warn("no jwt secret configured, tokens will not survive a restart")
	}

	account, err := handlers.NewAccount(cfg.Username, cfg.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	store, err := sqlite.New(ctx, cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		metrics: metrics.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.source == nil {
		s.source = collector.NewHostSource(cfg.DiskPath, logger)
	}

	s.sampler = collector.NewSampler(s.source, store, s.metrics, logger)
	s.limiter = middleware.NewRateLimiter(cfg.LoginRateLimit, cfg.LoginRateWindow, logger)
	s.handler = s.routes(account)

	return s, nil
}

func (s *Server) routes(account handlers.Account) http.Handler {
	jwtConfig := handlers.JWTConfig{
		Secret:          s.cfg.Secret,
		AccessTokenTTL:  s.cfg.AccessTokenTTL,
		RefreshTokenTTL: s.cfg.RefreshTokenTTL,
	}

	authHandler := handlers.NewAuthHandler(s.logger, s.store, jwtConfig, account, s.metrics)
	statsHandler := handlers.NewStatsHandler(s.logger, s.sampler)
	streamHandler := handlers.NewStreamHandler(s.logger, s.sampler, s.metrics)
	healthHandler := handlers.NewHealthHandler(s.logger, s.store, s.cfg.Version)

	requireAuth := middleware.AuthMiddleware(s.logger, jwtConfig)

	mux := http.NewServeMux()

	// публичные
	mux.Handle("POST /api/login", s.limiter.Middleware(http.HandlerFunc(authHandler.Login)))
	mux.HandleFunc("POST /api/refresh", authHandler.Refresh)
	mux.HandleFunc("POST /api/logout", authHandler.Logout)
	mux.HandleFunc("GET /api/auth", authHandler.Check)
	mux.HandleFunc("GET /healthz", healthHandler.Health)
	mux.Handle("GET /metrics", s.metrics.Handler())

	// защищенные
	mux.Handle("GET /api/stats", requireAuth(http.HandlerFunc(statsHandler.Stats)))
	mux.Handle("GET /api/history", requireAuth(http.HandlerFunc(statsHandler.History)))
	mux.Handle("GET /ws", requireAuth(http.HandlerFunc(streamHandler.Stream)))

	var handler http.Handler = mux
	handler = middleware.LoggingWithSkip(s.logger, []string{"/healthz", "/metrics"})(handler)
	handler = middleware.MetricsMiddleware(s.metrics)(handler)
	handler = middleware.RecoveryMiddleware(s.logger)(handler)
	return handler
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Sampler returns the metrics sampler
func (s *Server) Sampler() *collector.Sampler {
	return s.sampler
}

// Run serves on cfg.Addr until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled, then shuts down gracefully
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.sampler.Run(ctx)
	go s.collectGarbage(ctx)

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		// stream handlers завершаются вместе с ctx
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	s.logger.Info("server started", "addr", ln.Addr().String(), "version", s.cfg.Version)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("server stopping")
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("server stopped")
	return nil
}

// collectGarbage периодически удаляет просроченные refresh tokens
func (s *Server) collectGarbage(ctx context.Context) {
	ticker := time.NewTicker(tokenGCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.store.DeleteExpiredTokens(ctx, time.Now())
			if err != nil {
				s.logger.WarnContext(ctx, "failed to delete expired tokens", "error", err)
				continue
			}
			if n > 0 {
				s.logger.DebugContext(ctx, "deleted expired refresh tokens", "count", n)
			}
		}
	}
}

// Close releases storage and background resources
func (s *Server) Close() error {
	s.limiter.Stop()
	return s.store.Close()
}
