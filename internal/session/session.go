package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"pricerelay/internal/broadcast"
	"pricerelay/internal/poller"
	"pricerelay/internal/provider"
)

// State is a session's lifecycle position. Transitions only move forward:
// Connecting -> Open -> Closed.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrSessionClosed is returned when a batch arrives for a session that has
// already closed. The batch is discarded.
var ErrSessionClosed = errors.New("session: closed")

// errPeerClosed is returned by deliver when the transport went away while
// the session was still Open.
var errPeerClosed = fmt.Errorf("%w: peer closed", ErrSessionClosed)

// Conn is one live client connection as handed over by the acceptor.
type Conn interface {
	broadcast.Writer
	// Done is closed once the peer is gone or the connection was closed.
	Done() <-chan struct{}
	Close() error
}

// Session is one connected client and the ticker loop that feeds it.
// The session owns its ticker; nothing else starts or stops it.
type Session struct {
	id     string
	conn   Conn
	m      *Manager
	logger *zap.Logger

	// ctx is cancelled on close; it stops the loop but is detached from
	// in-flight fetches.
	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	state State

	closeOnce sync.Once
	done      chan struct{}
}

func newSession(id string, conn Conn, m *Manager) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:     id,
		conn:   conn,
		m:      m,
		logger: m.logger.With(zap.String("session", id)),
		ctx:    ctx,
		cancel: cancel,
		state:  StateConnecting,
		done:   make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed after the loop has exited and the ticker is stopped.
func (s *Session) Done() <-chan struct{} { return s.done }

// Close moves the session to Closed and closes the connection. Once Close
// returns no further batch is written to the connection. Safe to call
// more than once.
func (s *Session) Close() error {
	return s.closeWith("closed", nil)
}

func (s *Session) open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateConnecting {
		return false
	}
	s.state = StateOpen
	return true
}

func (s *Session) closeWith(reason string, cause error) error {
	var err error
	s.closeOnce.Do(func() {
		// Closing the connection first fails a write that is already in
		// progress, so the wait on mu below stays short.
		err = s.conn.Close()
		s.cancel()

		s.mu.Lock()
		s.state = StateClosed
		s.mu.Unlock()

		fields := []zap.Field{zap.String("reason", reason)}
		if cause != nil {
			fields = append(fields, zap.Error(cause))
		}
		s.logger.Info("client disconnected", fields...)
	})
	return err
}

// run is the session loop: one immediate poll, then one per interval until
// the session closes.
func (s *Session) run() {
	defer close(s.done)
	defer s.m.release(s)

	ticker := s.m.cfg.NewTicker(s.m.cfg.Interval)
	defer ticker.Stop()

	s.tick()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.conn.Done():
			s.closeWith("peer closed", nil)
			return
		case <-ticker.C():
			s.tick()
		}
	}
}

func (s *Session) tick() {
	if s.State() != StateOpen {
		return
	}

	// In-flight fetches are never cancelled; a late result is discarded by
	// deliver instead.
	batch, err := s.m.poller.PollOnce(context.WithoutCancel(s.ctx))
	if err != nil {
		if errors.Is(err, poller.ErrBudgetExhausted) {
			s.logger.Debug("tick skipped", zap.Error(err))
		} else {
			s.logger.Warn("tick failed", zap.Error(err))
		}
		return
	}
	if len(batch) == 0 {
		return
	}

	if err := s.deliver(batch); err != nil {
		if errors.Is(err, errPeerClosed) {
			s.closeWith("peer closed", nil)
			return
		}
		if errors.Is(err, ErrSessionClosed) {
			s.logger.Debug("discarding batch for closed session", zap.Int("quotes", len(batch)))
			return
		}
		s.closeWith("send failed", err)
	}
}

// deliver sends batch while holding mu, so it cannot interleave with Close.
func (s *Session) deliver(batch provider.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateOpen {
		return ErrSessionClosed
	}
	select {
	case <-s.conn.Done():
		return errPeerClosed
	default:
	}
	return s.m.sink.Send(s.conn, batch)
}

// Ticker is the recurring timer a session owns.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFunc creates a Ticker firing every d.
type TickerFunc func(d time.Duration) Ticker

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// NewTimeTicker is the TickerFunc backed by time.NewTicker.
func NewTimeTicker(d time.Duration) Ticker { return timeTicker{t: time.NewTicker(d)} }
