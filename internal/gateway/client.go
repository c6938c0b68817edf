// File: internal/gateway/client.go

// Package gateway maintains the websocket connection to the run bridge and
// feeds parsed frames into the state store in arrival order.
package gateway

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/api/schemas"
	"github.com/xkilldash9x/lancet/internal/config"
	"github.com/xkilldash9x/lancet/internal/state"
)

// State is the connection lifecycle phase. The client cycles
// connecting -> open -> waitingRetry -> connecting forever; there is no
// terminal failure state.
type State int32

const (
	StateConnecting State = iota
	StateOpen
	StateWaitingRetry
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateWaitingRetry:
		return "waiting_retry"
	default:
		return "unknown"
	}
}

// Conn is the subset of a websocket connection the read loop needs.
// *websocket.Conn satisfies it; tests substitute their own.
type Conn interface {
	ReadMessage() (int, []byte, error)
	SetReadDeadline(t time.Time) error
	SetReadLimit(limit int64)
	Close() error
}

// Dialer opens one connection attempt. Injected so reconnect behavior is
// testable without a server.
type Dialer interface {
	DialContext(ctx context.Context, url string) (Conn, error)
}

type wsDialer struct {
	handshakeTimeout time.Duration
}

func (d wsDialer) DialContext(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            websocket.DefaultDialer.Proxy,
		HandshakeTimeout: d.handshakeTimeout,
	}
	conn, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Client owns the receive-dominant socket. It is the sole writer into the
// store; every inbound frame is fully applied before the next is read, so
// delta batches are atomic with respect to snapshot readers.
type Client struct {
	cfg    config.GatewayConfig
	dialer Dialer
	store  *state.Store
	logger *zap.Logger

	phase    atomic.Int32
	attempts atomic.Int64

	// notify coalesces change signals: a slow consumer sees at least one
	// pending signal, never a backlog.
	notify chan struct{}
}

// NewClient creates a Client using the real websocket dialer.
func NewClient(cfg config.GatewayConfig, store *state.Store, logger *zap.Logger) *Client {
	return NewClientWithDialer(cfg, store, logger, wsDialer{handshakeTimeout: cfg.HandshakeTimeout})
}

// NewClientWithDialer creates a Client with an injected dialer.
func NewClientWithDialer(cfg config.GatewayConfig, store *state.Store, logger *zap.Logger, dialer Dialer) *Client {
	return &Client{
		cfg:    cfg,
		dialer: dialer,
		store:  store,
		logger: logger.Named("gateway"),
		notify: make(chan struct{}, 1),
	}
}

// Changes returns the coalesced change channel. A receive means the store
// (or the connection phase) moved since the last receive.
func (c *Client) Changes() <-chan struct{} {
	return c.notify
}

// Phase returns the current connection phase.
func (c *Client) Phase() State {
	return State(c.phase.Load())
}

// Attempts returns how many dials have been started.
func (c *Client) Attempts() int64 {
	return c.attempts.Load()
}

// Run drives the connect/read/retry loop until ctx is canceled. Every
// close, clean or not, schedules exactly one reconnect after the fixed
// delay; there is no backoff and no retry cap.
func (c *Client) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		c.setPhase(StateConnecting)
		attempt := c.attempts.Add(1)
		connID := uuid.NewString()

		conn, err := c.dialer.DialContext(ctx, c.cfg.URL)
		if err != nil {
			c.logger.Warn("Dial failed.",
				zap.String("conn_id", connID),
				zap.Int64("attempt", attempt),
				zap.Error(err))
		} else {
			c.setPhase(StateOpen)
			c.logger.Info("Connected.",
				zap.String("conn_id", connID),
				zap.String("url", c.cfg.URL),
				zap.Int64("attempt", attempt))
			err = c.readLoop(ctx, conn)
			conn.Close()
			c.logger.Info("Connection closed.", zap.String("conn_id", connID), zap.Error(err))
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.setPhase(StateWaitingRetry)
		timer := time.NewTimer(c.cfg.ReconnectDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// readLoop pumps frames until the connection dies. The read deadline is
// refreshed per frame; the bridge heartbeats well inside the idle timeout,
// so an expiry means the link is gone.
func (c *Client) readLoop(ctx context.Context, conn Conn) error {
	if c.cfg.MaxMessageSize > 0 {
		conn.SetReadLimit(c.cfg.MaxMessageSize)
	}

	// Unblock the read when the caller shuts down.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		if c.cfg.IdleTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(c.cfg.IdleTimeout)); err != nil {
				return err
			}
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.handleFrame(data)
	}
}

// handleFrame classifies and applies one inbound frame. Malformed payloads
// are dropped without closing the connection; the next full snapshot
// restores correctness.
func (c *Client) handleFrame(data []byte) {
	msgType, err := schemas.ParseEnvelope(data)
	if err != nil {
		c.logger.Debug("Dropping undecodable frame.", zap.Error(err))
		return
	}

	switch msgType {
	case schemas.MessageFullState:
		fs, err := schemas.ParseFullState(data)
		if err != nil {
			c.logger.Debug("Dropping malformed full_state.", zap.Error(err))
			return
		}
		c.store.ApplyFull(fs)
		c.signal()

	case schemas.MessageDeltaBatch:
		deltas, err := schemas.ParseDeltaBatch(data)
		if err != nil {
			c.logger.Debug("Dropping malformed delta_batch.", zap.Error(err))
			return
		}
		c.store.ApplyDeltas(deltas)
		c.signal()

	case schemas.MessageHeartbeat:
		// Liveness only; the refreshed read deadline is its entire effect.

	default:
		c.logger.Debug("Dropping frame with unknown type.", zap.String("type", string(msgType)))
	}
}

func (c *Client) setPhase(s State) {
	if c.phase.Swap(int32(s)) != int32(s) {
		c.signal()
	}
}

func (c *Client) signal() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}
