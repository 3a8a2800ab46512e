// Package realtime keeps the server metrics stream open across network
// interruptions and token expiry.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iudanet/pidash/internal/ring"
	pkgapi "github.com/iudanet/pidash/pkg/api"
)

const (
	// DefaultReconnectDelay is the pause between a close and the next dial
	DefaultReconnectDelay = 2 * time.Second
	// SampleCapacity is the number of recent samples kept
	SampleCapacity = 60
)

// ErrClosed is returned by Start after Close
var ErrClosed = errors.New("realtime manager closed")

// State of the stream connection
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// TokenSource отдает текущий access token
type TokenSource interface {
	AccessToken() string
}

// Renewer обновляет access token; результат менеджеру не нужен
type Renewer interface {
	Renew(ctx context.Context) (string, error)
}

// URLBuilder строит адрес потока для токена
type URLBuilder interface {
	StreamURL(accessToken string) (string, error)
}

// Snapshot is a consistent copy of the manager state
type Snapshot struct {
	Latest    *pkgapi.SystemStats
	Recent    []pkgapi.SystemStats
	State     State
	Connected bool
}

// Option настраивает Manager
type Option func(*Manager)

// WithDialer задает транспорт (по умолчанию coder/websocket)
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// WithScheduler задает планировщик переподключений
func WithScheduler(s Scheduler) Option {
	return func(m *Manager) { m.scheduler = s }
}

// WithReconnectDelay задает паузу перед переподключением
func WithReconnectDelay(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.delay = d
		}
	}
}

// WithLogger задает логгер
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// Manager owns at most one stream transport at a time.
//
// Every dial gets a generation number; callbacks of a transport whose
// generation is no longer current are ignored, so a torn-down or replaced
// transport can never trigger a renewal or a reconnect.
type Manager struct {
	tokens    TokenSource
	renewer   Renewer
	urls      URLBuilder
	dialer    Dialer
	scheduler Scheduler
	logger    *slog.Logger
	samples   *ring.Buffer[pkgapi.SystemStats]
	onSample  func(pkgapi.SystemStats)

	ctx    context.Context
	cancel context.CancelFunc
	conn   Conn
	timer  Timer
	latest *pkgapi.SystemStats

	delay     time.Duration
	gen       uint64
	state     State
	mu        sync.Mutex
	connected bool
	started   bool
	closed    bool
}

// NewManager creates an idle manager
func NewManager(tokens TokenSource, renewer Renewer, urls URLBuilder, opts ...Option) *Manager {
	m := &Manager{
		tokens:    tokens,
		renewer:   renewer,
		urls:      urls,
		dialer:    &WebsocketDialer{},
		scheduler: timeScheduler{},
		logger:    slog.Default(),
		samples:   ring.New[pkgapi.SystemStats](SampleCapacity),
		delay:     DefaultReconnectDelay,
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// OnSample registers a callback for every accepted sample.
// It runs on the read goroutine and must not block.
func (m *Manager) OnSample(fn func(pkgapi.SystemStats)) {
	m.mu.Lock()
	m.onSample = fn
	m.mu.Unlock()
}

// Start opens the stream. Without an access token it does nothing.
// Calling Start on a running manager is a no-op.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.started {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	m.connect()
	return nil
}

// Close tears the stream down: pending reconnect is cancelled, the current
// transport is closed and its close event is ignored. Idempotent.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.cancel != nil {
		m.cancel()
	}
	conn := m.conn
	m.conn = nil
	m.connected = false
	m.state = StateIdle
	m.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			m.logger.Debug("stream close", "error", err)
		}
	}
	return nil
}

// Snapshot returns the current state and samples
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := Snapshot{
		State:     m.state,
		Connected: m.connected,
		Recent:    m.samples.Items(),
	}
	if m.latest != nil {
		latest := *m.latest
		snap.Latest = &latest
	}
	return snap
}

func (m *Manager) connect() {
	token := m.tokens.AccessToken()
	if token == "" {
		m.logger.Debug("no access token, stream not opened")
		m.mu.Lock()
		if !m.closed {
			m.state = StateIdle
		}
		m.mu.Unlock()
		return
	}

	url, err := m.urls.StreamURL(token)
	if err != nil {
		m.logger.Error("failed to build stream url", "error", err)
		m.mu.Lock()
		if !m.closed {
			m.state = StateIdle
		}
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	if m.ctx.Err() != nil {
		m.state = StateIdle
		m.mu.Unlock()
		return
	}
	m.gen++
	gen := m.gen
	ctx := m.ctx
	m.state = StateConnecting
	m.mu.Unlock()

	conn, err := m.dialer.Dial(ctx, url)
	if err != nil {
		m.handleClose(gen, err)
		return
	}

	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		_ = conn.Close()
		return
	}
	m.conn = conn
	m.connected = true
	m.state = StateOpen
	m.mu.Unlock()

	m.logger.Info("stream connected")

	go m.readLoop(ctx, gen, conn)
}

func (m *Manager) readLoop(ctx context.Context, gen uint64, conn Conn) {
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			m.handleClose(gen, err)
			return
		}
		m.handleMessage(gen, data)
	}
}

func (m *Manager) handleMessage(gen uint64, data []byte) {
	var sample pkgapi.SystemStats
	if err := json.Unmarshal(data, &sample); err != nil {
		m.logger.Warn("dropping malformed stream message", "error", err, "size", len(data))
		return
	}

	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.latest = &sample
	m.samples.Push(sample)
	onSample := m.onSample
	m.mu.Unlock()

	if onSample != nil {
		onSample(sample)
	}
}

// handleClose runs once per transport: renew, then schedule one reconnect.
// A close caused by cancellation of the Start context is a teardown.
func (m *Manager) handleClose(gen uint64, cause error) {
	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.connected = false
	ctx := m.ctx
	if ctx.Err() != nil {
		m.state = StateIdle
		m.mu.Unlock()
		m.logger.Debug("stream stopped", "cause", ctx.Err())
		return
	}
	m.state = StateClosed
	m.mu.Unlock()

	m.logger.Warn("stream closed", "error", cause)

	// сервер мог закрыть поток из-за истекшего токена
	if _, err := m.renewer.Renew(ctx); err != nil {
		m.logger.Error("token renewal after stream close failed", "error", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || gen != m.gen {
		return
	}
	if ctx.Err() != nil {
		m.state = StateIdle
		return
	}
	m.timer = m.scheduler.AfterFunc(m.delay, func() {
		m.reconnect(gen)
	})
	m.logger.Debug("stream reconnect scheduled", "delay", m.delay)
}

func (m *Manager) reconnect(gen uint64) {
	m.mu.Lock()
	if m.closed || gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.timer = nil
	m.mu.Unlock()

	m.connect()
}
