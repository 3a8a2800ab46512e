package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/iudanet/pidash/internal/server/metrics"
)

const streamWriteTimeout = 5 * time.Second

// StreamHandler пушит сэмплы в websocket
type StreamHandler struct {
	logger  *slog.Logger
	source  StatsSource
	metrics *metrics.Metrics
	origins []string
}

// NewStreamHandler создает handler для GET /ws. m may be nil.
func NewStreamHandler(logger *slog.Logger, source StatsSource, m *metrics.Metrics, originPatterns ...string) *StreamHandler {
	return &StreamHandler{
		logger:  logger,
		source:  source,
		metrics: m,
		origins: originPatterns,
	}
}

// Stream обрабатывает GET /ws?token=...
// Аутентификация выполняется middleware до upgrade.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.logger.WarnContext(r.Context(), "websocket upgrade failed", slog.Any("error", err))
		return
	}
	defer func() {
		_ = conn.CloseNow()
	}()

	if h.metrics != nil {
		h.metrics.StreamConnected()
		defer h.metrics.StreamDisconnected()
	}

	samples, unsubscribe := h.source.Subscribe()
	defer unsubscribe()

	// клиент ничего не шлет; CloseRead отменяет ctx при закрытии
	ctx := conn.CloseRead(r.Context())

	username, _ := GetUsername(r.Context())
	h.logger.DebugContext(ctx, "stream client connected", slog.String("username", username))

	if latest, ok := h.source.Latest(); ok {
		if err := h.write(ctx, conn, latest); err != nil {
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			h.logger.DebugContext(r.Context(), "stream client disconnected", slog.String("username", username))
			return
		case stats := <-samples:
			if err := h.write(ctx, conn, stats); err != nil {
				h.logger.DebugContext(r.Context(), "stream write failed", slog.Any("error", err))
				return
			}
		}
	}
}

// write отправляет сэмпл с таймаутом
func (h *StreamHandler) write(ctx context.Context, conn *websocket.Conn, v any) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, v)
}
