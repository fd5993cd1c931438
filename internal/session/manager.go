package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pricerelay/internal/broadcast"
	"pricerelay/internal/logging"
	"pricerelay/internal/provider"
)

// ErrShuttingDown is returned by Open once Shutdown has started.
var ErrShuttingDown = errors.New("session: manager shutting down")

// DefaultInterval is the poll interval used when none is configured.
const DefaultInterval = 15 * time.Second

// Poller runs one polling tick.
type Poller interface {
	PollOnce(ctx context.Context) (provider.Batch, error)
}

// Sink delivers one batch to one connection.
type Sink interface {
	Send(w broadcast.Writer, batch provider.Batch) error
}

// Config holds session manager configuration.
type Config struct {
	Interval  time.Duration // Poll interval (default: 15s)
	NewTicker TickerFunc    // Ticker constructor (default: time.NewTicker)
}

// Manager owns the set of live sessions. All sessions share one Poller and
// therefore one rate budget.
type Manager struct {
	cfg    Config
	poller Poller
	sink   Sink
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session
	shutdown bool
	wg       sync.WaitGroup
}

// NewManager creates a Manager.
func NewManager(cfg Config, p Poller, sink Sink, logger *zap.Logger) *Manager {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.NewTicker == nil {
		cfg.NewTicker = NewTimeTicker
	}
	return &Manager{
		cfg:      cfg,
		poller:   p,
		sink:     sink,
		logger:   logging.OrNop(logger),
		sessions: make(map[string]*Session),
	}
}

// Open registers conn as a new session, moves it to Open and starts its
// loop. The first poll runs immediately so the client does not wait a full
// interval for data.
func (m *Manager) Open(conn Conn) (*Session, error) {
	s := newSession(uuid.NewString(), conn, m)

	m.mu.Lock()
	if m.shutdown {
		m.mu.Unlock()
		_ = conn.Close()
		return nil, ErrShuttingDown
	}
	m.sessions[s.id] = s
	m.wg.Add(1)
	m.mu.Unlock()

	s.open()
	s.logger.Info("client connected", zap.Int("sessions", m.Len()))

	go s.run()
	return s, nil
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Get returns the live session with the given id.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Shutdown closes every session and waits for their loops to exit, or for
// ctx to expire.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.shutdown = true
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()

	// Closes run concurrently so a client stuck in a write cannot hold up
	// the others or outlive ctx.
	for _, s := range live {
		go s.closeWith("server shutdown", nil)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("session manager stopped", zap.Int("closed", len(live)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// release drops a finished session. Called once, from the session loop.
func (m *Manager) release(s *Session) {
	m.mu.Lock()
	delete(m.sessions, s.id)
	m.mu.Unlock()
	m.wg.Done()
}
