// Package wsconn adapts server-side gorilla/websocket connections to the
// session.Conn contract.
package wsconn

import (
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"pricerelay/internal/logging"
)

// ErrClosed is returned by WriteFrame after the connection has closed.
var ErrClosed = errors.New("wsconn: connection closed")

// Options tunes the keepalive behaviour of a connection.
type Options struct {
	WriteTimeout time.Duration // Per-frame write deadline (default: 10s)
	PongWait     time.Duration // Read deadline, extended on every pong (default: 60s)
	PingPeriod   time.Duration // Ping interval, must be below PongWait (default: 54s)
}

func (o Options) withDefaults() Options {
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	return o
}

// NewUpgrader returns an upgrader that accepts the listed origins. "*"
// accepts any origin; requests without an Origin header are always accepted.
func NewUpgrader(origins []string) *websocket.Upgrader {
	allowAll := slices.Contains(origins, "*")
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || allowAll {
				return true
			}
			return slices.Contains(origins, origin)
		},
	}
}

// Conn is one accepted client. Client messages are read and discarded; the
// read loop exists to process control frames and to notice the peer going
// away.
type Conn struct {
	ws     *websocket.Conn
	opts   Options
	logger *zap.Logger

	writeMu sync.Mutex

	done      chan struct{}
	stopOnce  sync.Once
	closeOnce sync.Once
	closeErr  error
}

// Accept upgrades the request and starts the connection's background loops.
func Accept(w http.ResponseWriter, r *http.Request, up *websocket.Upgrader, opts Options, logger *zap.Logger) (*Conn, error) {
	ws, err := up.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return Wrap(ws, opts, logger), nil
}

// Wrap takes ownership of an upgraded connection.
func Wrap(ws *websocket.Conn, opts Options, logger *zap.Logger) *Conn {
	c := &Conn{
		ws:     ws,
		opts:   opts.withDefaults(),
		logger: logging.OrNop(logger).With(zap.String("remote", ws.RemoteAddr().String())),
		done:   make(chan struct{}),
	}

	_ = ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(c.opts.PongWait))
	})

	go c.readLoop()
	go c.pingLoop()
	return c
}

// WriteFrame sends data as a single text message.
func (c *Conn) WriteFrame(data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// Done is closed once the peer is gone or Close was called.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Close sends a normal-closure frame and closes the socket. Safe to call
// more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.stop()
		_ = c.ws.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

func (c *Conn) stop() { c.stopOnce.Do(func() { close(c.done) }) }

func (c *Conn) readLoop() {
	defer c.stop()

	for {
		if _, _, err := c.ws.ReadMessage(); err != nil {
			select {
			case <-c.done:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
					c.logger.Debug("websocket read failed", zap.Error(err))
				}
			}
			return
		}
	}
}

func (c *Conn) pingLoop() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.opts.WriteTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.logger.Debug("failed to send ping", zap.Error(err))
				c.stop()
				return
			}
		}
	}
}
