// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bureau-foundation/privbridge/lib/clock"
	"github.com/bureau-foundation/privbridge/lib/ids"
	"github.com/bureau-foundation/privbridge/lib/metrics"
	"github.com/bureau-foundation/privbridge/lib/netutil"
	"github.com/bureau-foundation/privbridge/wire"
)

// DefaultAddress is the peer's well-known loopback endpoint.
const DefaultAddress = "127.0.0.1:1720"

var (
	// ErrNotConnected is returned by Send when there is no live
	// connection.
	ErrNotConnected = errors.New("transport: not connected to peer")

	// ErrClientClosed is returned by Connect after Close, and is the
	// cause reported to the delegate for the connection Close tore
	// down.
	ErrClientClosed = errors.New("transport: client closed")
)

// Delegate receives what the read loop produces. Both methods are
// called from the connection's read goroutine and must not block on
// caller code.
type Delegate interface {
	// HandleEnvelope is called once per decoded inbound frame, in
	// stream order.
	HandleEnvelope(envelope wire.Envelope)

	// TransportLost is called exactly once per connection, after its
	// last HandleEnvelope, with the reason it ended.
	TransportLost(err error)
}

// RedialPolicy enables reconnection after a lost connection. The first
// attempt waits InitialDelay; each failure doubles the wait up to
// MaxDelay.
type RedialPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// Client is the bridge's connection to the privileged peer. Configure
// the exported fields before the first call to Connect; they must not
// change afterwards.
type Client struct {
	// Address is the peer's host:port. Defaults to DefaultAddress.
	Address string

	// DialTimeout bounds each dial attempt. Zero means no limit beyond
	// the context passed to Connect.
	DialTimeout time.Duration

	// MaxFrameLength bounds inbound frames. Zero selects
	// wire.DefaultMaxFrameLength.
	MaxFrameLength int

	// Dialer opens connections. Defaults to a TCPDialer with
	// DialTimeout.
	Dialer Dialer

	// Delegate receives inbound envelopes and connection loss.
	Delegate Delegate

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Metrics is optional.
	Metrics *metrics.Bridge

	// Redial, when non-nil, reconnects after the connection is lost
	// and after a failed Connect.
	Redial *RedialPolicy

	// Clock drives redial backoff. Defaults to clock.Real().
	Clock clock.Clock

	initOnce sync.Once
	done     chan struct{}

	// writeMu serializes frame writes. Held for the whole of a Send so
	// frames from concurrent callers never interleave.
	writeMu sync.Mutex

	// mu guards the fields below.
	mu        sync.Mutex
	current   *connection
	closed    bool
	redialing bool

	connected atomic.Bool
	wg        sync.WaitGroup
}

// connection is one dialed socket and the reason it ended.
type connection struct {
	net.Conn
	id        string
	closeOnce sync.Once
	cause     error
}

// fail closes the socket, recording err as the cause if this is the
// first failure. Safe to call from the sender and the reader at once.
func (c *connection) fail(err error) {
	c.closeOnce.Do(func() {
		c.cause = err
		c.Conn.Close()
	})
}

func (c *Client) init() {
	c.initOnce.Do(func() {
		c.done = make(chan struct{})
		if c.Address == "" {
			c.Address = DefaultAddress
		}
		if c.Logger == nil {
			c.Logger = slog.Default()
		}
		if c.Clock == nil {
			c.Clock = clock.Real()
		}
		if c.Dialer == nil {
			c.Dialer = &TCPDialer{Timeout: c.DialTimeout}
		}
	})
}

// Connect dials the peer and starts the read loop. It returns nil if a
// connection is already up. When dialing fails and Redial is set,
// reconnection continues in the background and the dial error is still
// returned.
func (c *Client) Connect(ctx context.Context) error {
	c.init()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClientClosed
	}
	if c.current != nil {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		if c.Redial != nil {
			c.startRedial()
		}
		return err
	}
	c.install(conn)
	return nil
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	if c.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.DialTimeout)
		defer cancel()
	}
	conn, err := c.Dialer.DialContext(ctx, c.Address)
	if err != nil {
		return nil, fmt.Errorf("connecting to peer at %s: %w", c.Address, err)
	}
	return conn, nil
}

// install adopts a freshly dialed socket and starts its read loop. If
// the client was closed, or another connection won a race, the socket
// is discarded.
func (c *Client) install(conn net.Conn) {
	current := &connection{Conn: conn, id: ids.New()}

	c.mu.Lock()
	if c.closed || c.current != nil {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.current = current
	c.connected.Store(true)
	c.wg.Add(1)
	c.mu.Unlock()

	c.Metrics.SetConnected(true)
	c.Logger.Info("connected to peer",
		"connection_id", current.id,
		"address", c.Address,
	)
	go c.readLoop(current)
}

// IsConnected reports whether a connection is currently up.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Send encodes envelope and writes it as one frame. The context's
// deadline, if any, bounds the write. A write error tears the
// connection down; the frame should be treated as not delivered.
func (c *Client) Send(ctx context.Context, envelope wire.Envelope) error {
	c.init()

	kind := envelope.Kind().String()
	frame, err := wire.EncodeFrame(envelope)
	if err != nil {
		c.Metrics.SendFailed(kind)
		return err
	}
	if err := ctx.Err(); err != nil {
		c.Metrics.SendFailed(kind)
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	current := c.current
	c.mu.Unlock()
	if current == nil {
		c.Metrics.SendFailed(kind)
		return ErrNotConnected
	}

	deadline, _ := ctx.Deadline()
	if err := current.SetWriteDeadline(deadline); err != nil {
		c.Metrics.SendFailed(kind)
		return fmt.Errorf("sending %s: %w", kind, err)
	}
	written, err := current.Write(frame)
	if err == nil && written != len(frame) {
		err = fmt.Errorf("short write (%d of %d bytes)", written, len(frame))
	}
	if err != nil {
		c.Metrics.SendFailed(kind)
		err = fmt.Errorf("sending %s: %w", kind, err)
		c.Logger.Warn("write to peer failed, dropping connection",
			"connection_id", current.id,
			"kind", kind,
			"id", envelope.OriginID,
			"error", err,
		)
		current.fail(err)
		return err
	}

	c.Metrics.FrameSent(kind)
	return nil
}

// readLoop decodes frames until the connection fails, then reports the
// loss and, if configured, redials. It owns one wg slot for its whole
// lifetime, including the redial phase.
func (c *Client) readLoop(current *connection) {
	defer c.wg.Done()

	logger := c.Logger.With("connection_id", current.id)
	var readErr error
	for {
		envelope, err := wire.ReadEnvelope(current, c.MaxFrameLength)
		if err != nil {
			var decodeError *wire.DecodeError
			if errors.As(err, &decodeError) {
				c.Metrics.DecodeFailed()
				logger.Warn("skipping undecodable frame",
					"id", decodeError.OriginID,
					"kind", decodeError.Kind.String(),
					"error", err,
				)
				continue
			}
			readErr = err
			break
		}
		c.Metrics.FrameReceived(envelope.Kind().String())
		if c.Delegate != nil {
			c.Delegate.HandleEnvelope(envelope)
		}
	}

	current.fail(readErr)
	cause := current.cause

	c.mu.Lock()
	if c.current == current {
		c.current = nil
		c.connected.Store(false)
	}
	closed := c.closed
	c.mu.Unlock()
	c.Metrics.SetConnected(false)

	if closed || netutil.IsExpectedCloseError(cause) {
		logger.Info("connection to peer ended", "reason", cause)
	} else {
		logger.Error("connection to peer failed", "error", cause)
	}
	if c.Delegate != nil {
		c.Delegate.TransportLost(cause)
	}

	if !closed && c.Redial != nil {
		c.redial()
	}
}

// startRedial runs the redial loop on its own goroutine, unless one is
// already running.
func (c *Client) startRedial() {
	c.mu.Lock()
	if c.closed || c.redialing {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		c.redial()
	}()
}

// redial retries the peer with exponential backoff until a connection
// is installed or the client is closed. At most one redial loop runs.
func (c *Client) redial() {
	c.mu.Lock()
	if c.closed || c.redialing {
		c.mu.Unlock()
		return
	}
	c.redialing = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.redialing = false
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-c.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	delay := c.Redial.InitialDelay
	for attempt := 1; ; attempt++ {
		select {
		case <-c.done:
			return
		case <-c.Clock.After(delay):
		}

		c.Metrics.RedialAttempt()
		conn, err := c.dial(ctx)
		if err == nil {
			c.install(conn)
			return
		}
		if ctx.Err() != nil {
			return
		}

		delay *= 2
		if c.Redial.MaxDelay > 0 && delay > c.Redial.MaxDelay {
			delay = c.Redial.MaxDelay
		}
		c.Logger.Debug("redial failed",
			"attempt", attempt,
			"next_delay", delay,
			"error", err,
		)
	}
}

// Close tears down the connection, stops any redial loop, and waits
// for the read goroutine to finish delivering its last events.
func (c *Client) Close() error {
	c.init()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	current := c.current
	c.mu.Unlock()

	if current != nil {
		current.fail(ErrClientClosed)
	}
	c.wg.Wait()
	c.connected.Store(false)
	return nil
}
