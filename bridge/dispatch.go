// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"errors"
	"time"

	"github.com/bureau-foundation/privbridge/wire"
)

// HandleEnvelope queues an inbound envelope on its id's lane. Called by
// the transport's read loop; it never runs callbacks itself.
func (b *Bridge) HandleEnvelope(envelope wire.Envelope) {
	if b.closed.Load() {
		b.unroutable(envelope, "bridge closed")
		return
	}
	kind := envelope.Kind()
	if !kind.Inbound() {
		b.unroutable(envelope, "not an inbound kind")
		return
	}

	key := laneKey{family: kind.Family(), id: envelope.OriginID}
	switch key.family {
	case wire.FamilyHTTP:
		b.lanes.enqueue(key, func() { b.deliverHTTP(envelope) })
	case wire.FamilyWebSocket:
		b.lanes.enqueue(key, func() { b.deliverWebSocket(envelope) })
	default:
		b.unroutable(envelope, "unknown family")
	}
}

// TransportLost fails every pending operation. Each failure is queued
// on the operation's lane so it follows frames already received.
func (b *Bridge) TransportLost(err error) {
	message := "transport lost"
	if err != nil {
		message += ": " + err.Error()
	}

	httpPending := b.http.snapshot()
	websocketPending := b.websocket.snapshot()
	b.logger.Warn("peer connection lost, failing pending operations",
		"error", err,
		"http_pending", len(httpPending),
		"websocket_pending", len(websocketPending),
	)

	for _, entry := range httpPending {
		entry := entry
		b.lanes.enqueue(laneKey{family: wire.FamilyHTTP, id: entry.id}, func() {
			// A terminal frame queued before the loss may have
			// finished the request already.
			if !b.http.remove(entry) {
				return
			}
			b.updatePending(wire.FamilyHTTP)
			b.invoke(wire.FamilyHTTP, wire.KindHTTPError, entry.id, func() error {
				return entry.callback.OnError(entry.id, message, -1)
			}, nil)
		})
	}
	for _, entry := range websocketPending {
		entry := entry
		b.lanes.enqueue(laneKey{family: wire.FamilyWebSocket, id: entry.id}, func() {
			if !b.websocket.remove(entry) {
				return
			}
			b.updatePending(wire.FamilyWebSocket)
			b.invoke(wire.FamilyWebSocket, wire.KindWebSocketError, entry.id, func() error {
				return entry.callback.OnError(entry.id, message)
			}, nil)
		})
	}
}

func (b *Bridge) deliverHTTP(envelope wire.Envelope) {
	id, kind := envelope.OriginID, envelope.Kind()

	var entry *pending[HTTPCallback]
	if kind.Terminal() {
		entry = b.http.take(id)
		if entry != nil {
			b.updatePending(wire.FamilyHTTP)
		}
	} else {
		entry = b.http.get(id)
	}
	if entry == nil {
		b.unroutable(envelope, "no pending HTTP request")
		return
	}

	callback := entry.callback
	b.invoke(wire.FamilyHTTP, kind, id, func() error {
		switch payload := envelope.Payload.(type) {
		case wire.HTTPResponseHeaders:
			return callback.OnHeaders(id, payload.Status, wire.HeaderMap(payload.Headers))
		case wire.HTTPBodyChunk:
			return callback.OnData(id, payload.Chunk)
		case wire.HTTPResponseComplete:
			return callback.OnComplete(id)
		case wire.HTTPError:
			return callback.OnError(id, payload.Message, payload.Code)
		}
		return nil
	}, func() {
		if b.http.remove(entry) {
			b.updatePending(wire.FamilyHTTP)
		}
	})
}

func (b *Bridge) deliverWebSocket(envelope wire.Envelope) {
	id, kind := envelope.OriginID, envelope.Kind()

	var entry *pending[WebSocketCallback]
	if kind.Terminal() {
		entry = b.websocket.take(id)
		if entry != nil {
			b.updatePending(wire.FamilyWebSocket)
		}
	} else {
		entry = b.websocket.get(id)
	}
	if entry == nil {
		b.unroutable(envelope, "no pending WebSocket session")
		return
	}

	callback := entry.callback
	b.invoke(wire.FamilyWebSocket, kind, id, func() error {
		switch payload := envelope.Payload.(type) {
		case wire.WebSocketOpened:
			return callback.OnOpen(id, wire.HeaderMap(payload.Headers))
		case wire.WebSocketMessageFromServer:
			return callback.OnMessage(id, payload.Type, payload.Data)
		case wire.WebSocketError:
			return callback.OnError(id, payload.Message)
		case wire.WebSocketClosedFromServer:
			b.logger.Debug("WebSocket closed by server",
				"id", id,
				"code", payload.Code,
				"reason", payload.Reason,
			)
			return callback.OnClose(id)
		}
		return nil
	}, func() {
		if b.websocket.remove(entry) {
			b.updatePending(wire.FamilyWebSocket)
		}
	})
}

// invoke runs one callback with panic recovery and classifies its
// failure. removeDead, if non-nil, drops the registration when the
// callback reports a dead owner.
func (b *Bridge) invoke(family wire.Family, kind wire.Kind, id string, call func() error, removeDead func()) {
	start := time.Now()
	err := safeCall(call)
	b.metrics.ObserveCallback(family.String(), time.Since(start))
	if err == nil {
		return
	}

	var recovered *panicError
	switch {
	case errors.As(err, &recovered):
		b.metrics.CallbackFailed(family.String(), "panic")
		b.logger.Error("callback panicked", "id", id, "kind", kind.String(), "panic", recovered.value)

	case errors.Is(err, ErrDeadReference):
		b.metrics.CallbackFailed(family.String(), "dead_reference")
		if removeDead != nil {
			removeDead()
		}
		callbackError := &CallbackError{ID: id, Kind: kind, Err: err}
		b.logger.Info("callback owner is gone, dropping registration", "id", id, "kind", kind.String(), "error", err)
		if b.onGeneric != nil {
			if err := safeCall(func() error { b.onGeneric(callbackError); return nil }); err != nil {
				b.logger.Error("generic error handler failed", "id", id, "error", err)
			}
		}

	default:
		b.metrics.CallbackFailed(family.String(), "error")
		b.logger.Warn("callback returned an error", "id", id, "kind", kind.String(), "error", err)
	}
}

func safeCall(call func() error) (err error) {
	defer func() {
		if value := recover(); value != nil {
			err = &panicError{value: value}
		}
	}()
	return call()
}

func (b *Bridge) unroutable(envelope wire.Envelope, reason string) {
	b.metrics.Unroutable(envelope.Kind().Family().String())
	b.logger.Debug("dropping unroutable frame",
		"id", envelope.OriginID,
		"kind", envelope.Kind().String(),
		"reason", reason,
	)
}
