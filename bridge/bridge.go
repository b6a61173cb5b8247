// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/bureau-foundation/privbridge/lib/metrics"
	"github.com/bureau-foundation/privbridge/provider"
	"github.com/bureau-foundation/privbridge/transport"
	"github.com/bureau-foundation/privbridge/wire"
)

// tracerName identifies spans opened by front-end operations.
const tracerName = "privbridge/bridge"

// Transport is the bridge's view of the peer connection.
// *transport.Client satisfies it.
type Transport interface {
	Send(ctx context.Context, envelope wire.Envelope) error
	IsConnected() bool
}

var (
	_ Transport          = (*transport.Client)(nil)
	_ transport.Delegate = (*Bridge)(nil)
)

// Options configures a Bridge. The zero value is usable.
type Options struct {
	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// Providers is the service-provider table. Nil creates an empty
	// one.
	Providers *provider.Registry

	// Metrics is optional.
	Metrics *metrics.Bridge

	// GenericErrorHandler receives callback failures caused by a dead
	// owner. It runs on the failing id's lane and must not block. Nil
	// discards them after logging.
	GenericErrorHandler func(err *CallbackError)

	// Tracer defaults to the global OpenTelemetry tracer provider.
	Tracer trace.Tracer
}

// Bridge routes operations between callers and the peer.
type Bridge struct {
	transport Transport
	logger    *slog.Logger
	providers *provider.Registry
	metrics   *metrics.Bridge
	onGeneric func(*CallbackError)
	tracer    trace.Tracer

	http      *registry[HTTPCallback]
	websocket *registry[WebSocketCallback]
	lanes     *lanes

	closed atomic.Bool
}

// HTTPRequest describes a request for the peer to perform.
type HTTPRequest struct {
	ID     string
	URL    string
	Method string // empty means GET
	Body   []byte
	// Headers are sent sorted by name.
	Headers map[string]string
}

// WebSocketOpen describes a session for the peer to open.
type WebSocketOpen struct {
	ID      string
	URL     string
	Headers map[string]string
}

// New creates a bridge that sends through t. The caller must also make
// the bridge the transport's delegate so inbound frames reach it.
func New(t Transport, options Options) *Bridge {
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}
	providers := options.Providers
	if providers == nil {
		providers = &provider.Registry{Logger: logger}
	}
	tracer := options.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Bridge{
		transport: t,
		logger:    logger,
		providers: providers,
		metrics:   options.Metrics,
		onGeneric: options.GenericErrorHandler,
		tracer:    tracer,
		http:      newRegistry[HTTPCallback](),
		websocket: newRegistry[WebSocketCallback](),
		lanes:     newLanes(),
	}
}

func (b *Bridge) startSpan(ctx context.Context, operation, id string, kind wire.Kind) (context.Context, trace.Span) {
	return b.tracer.Start(ctx, "bridge."+operation, trace.WithAttributes(
		attribute.String("bridge.id", id),
		attribute.String("bridge.kind", kind.String()),
	))
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// MakeHTTPRequest registers callback under request.ID and asks the peer
// to perform the request. Events arrive later on callback.
//
// It returns an error only when the request is rejected locally (empty
// id, nil callback, id already pending, bridge closed); then nothing is
// sent and callback is never invoked. If sending fails the registration
// is removed and callback.OnError(id, reason, -1) runs before
// MakeHTTPRequest returns nil, unless a lost connection already failed
// the request.
func (b *Bridge) MakeHTTPRequest(ctx context.Context, request HTTPRequest, callback HTTPCallback) error {
	if request.ID == "" {
		return ErrEmptyID
	}
	if callback == nil {
		return ErrNilCallback
	}
	if b.closed.Load() {
		return ErrClosed
	}

	ctx, span := b.startSpan(ctx, "MakeHTTPRequest", request.ID, wire.KindHTTPRequest)
	defer span.End()

	entry := b.http.add(request.ID, callback)
	if entry == nil {
		err := fmt.Errorf("%w: HTTP request %q", ErrDuplicateID, request.ID)
		recordSpanError(span, err)
		return err
	}
	b.updatePending(wire.FamilyHTTP)

	method := request.Method
	if method == "" {
		method = "GET"
	}
	err := b.transport.Send(ctx, wire.Envelope{
		OriginID: request.ID,
		Payload: wire.HTTPRequest{
			URL:     request.URL,
			Method:  method,
			Headers: wire.HeadersFromMap(request.Headers),
			Body:    request.Body,
		},
	})
	if err == nil {
		b.logger.Debug("HTTP request sent", "id", request.ID, "method", method)
		return nil
	}

	recordSpanError(span, err)
	b.logger.Warn("HTTP request not delivered", "id", request.ID, "error", err)
	// A connection torn down by this send may already have failed the
	// request through TransportLost.
	if !b.http.remove(entry) {
		return nil
	}
	b.updatePending(wire.FamilyHTTP)
	message := err.Error()
	b.invoke(wire.FamilyHTTP, wire.KindHTTPError, request.ID, func() error {
		return callback.OnError(request.ID, message, -1)
	}, nil)
	return nil
}

// OpenWebSocket registers callback under open.ID and asks the peer to
// open the session. Local rejection and send failure behave as in
// MakeHTTPRequest; on send failure callback.OnError(id, reason) runs
// before OpenWebSocket returns nil.
func (b *Bridge) OpenWebSocket(ctx context.Context, open WebSocketOpen, callback WebSocketCallback) error {
	if open.ID == "" {
		return ErrEmptyID
	}
	if callback == nil {
		return ErrNilCallback
	}
	if b.closed.Load() {
		return ErrClosed
	}

	ctx, span := b.startSpan(ctx, "OpenWebSocket", open.ID, wire.KindWebSocketOpenRequest)
	defer span.End()

	entry := b.websocket.add(open.ID, callback)
	if entry == nil {
		err := fmt.Errorf("%w: WebSocket session %q", ErrDuplicateID, open.ID)
		recordSpanError(span, err)
		return err
	}
	b.updatePending(wire.FamilyWebSocket)

	err := b.transport.Send(ctx, wire.Envelope{
		OriginID: open.ID,
		Payload: wire.WebSocketOpenRequest{
			URL:     open.URL,
			Headers: wire.HeadersFromMap(open.Headers),
		},
	})
	if err == nil {
		b.logger.Debug("WebSocket open sent", "id", open.ID)
		return nil
	}

	recordSpanError(span, err)
	b.logger.Warn("WebSocket open not delivered", "id", open.ID, "error", err)
	if !b.websocket.remove(entry) {
		return nil
	}
	b.updatePending(wire.FamilyWebSocket)
	message := err.Error()
	b.invoke(wire.FamilyWebSocket, wire.KindWebSocketError, open.ID, func() error {
		return callback.OnError(open.ID, message)
	}, nil)
	return nil
}

// SendWebSocketMessage sends one message on an open session. The
// session is not looked up. A send failure is logged and returned, but
// the session stays registered; it ends only when the peer says so or
// the connection is lost.
func (b *Bridge) SendWebSocketMessage(ctx context.Context, id string, messageType wire.MessageType, data []byte) error {
	if id == "" {
		return ErrEmptyID
	}
	if !messageType.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidMessage, uint8(messageType))
	}

	ctx, span := b.startSpan(ctx, "SendWebSocketMessage", id, wire.KindWebSocketMessageToServer)
	defer span.End()

	err := b.transport.Send(ctx, wire.Envelope{
		OriginID: id,
		Payload:  wire.WebSocketMessageToServer{Type: messageType, Data: data},
	})
	if err != nil {
		recordSpanError(span, err)
		b.logger.Warn("WebSocket message not delivered", "id", id, "error", err)
		return err
	}
	return nil
}

// CloseWebSocket asks the peer to close the session. The registration
// stays until the peer's WS_CLOSED_FROM_SERVER or WS_ERROR arrives, so
// messages still in flight are delivered.
func (b *Bridge) CloseWebSocket(ctx context.Context, id string) error {
	if id == "" {
		return ErrEmptyID
	}

	ctx, span := b.startSpan(ctx, "CloseWebSocket", id, wire.KindWebSocketCloseRequest)
	defer span.End()

	err := b.transport.Send(ctx, wire.Envelope{OriginID: id, Payload: wire.WebSocketCloseRequest{}})
	if err != nil {
		recordSpanError(span, err)
		b.logger.Warn("WebSocket close not delivered", "id", id, "error", err)
		return err
	}
	return nil
}

// RegisterServiceProvider installs handler under name in the provider
// table.
func (b *Bridge) RegisterServiceProvider(name string, handler provider.Handler) error {
	return b.providers.Register(name, handler)
}

// SendMessageToServiceProvider delivers message to the named provider.
func (b *Bridge) SendMessageToServiceProvider(name, message string) error {
	return b.providers.Send(name, message)
}

// Ping reports whether the connection to the peer is up.
func (b *Bridge) Ping() bool {
	return b.transport.IsConnected()
}

// Pending returns the number of registered HTTP requests and WebSocket
// sessions.
func (b *Bridge) Pending() (http, websocket int) {
	return b.http.len(), b.websocket.len()
}

// Close rejects new operations and waits for queued deliveries to
// finish. Stop the transport first so no new frames arrive.
func (b *Bridge) Close() {
	b.closed.Store(true)
	b.lanes.wait()
}

func (b *Bridge) updatePending(family wire.Family) {
	switch family {
	case wire.FamilyHTTP:
		b.metrics.SetPending(family.String(), b.http.len())
	case wire.FamilyWebSocket:
		b.metrics.SetPending(family.String(), b.websocket.len())
	}
}
