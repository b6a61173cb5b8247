// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bridge is the front end that unprivileged callers use to ask
// the privileged peer for HTTP requests and WebSocket sessions.
//
// Each operation carries a caller-chosen id and a callback. The bridge
// records the callback in one of two registries (HTTP or WebSocket),
// sends the request envelope through its [Transport], and later routes
// every inbound envelope with that id to the callback. The two
// registries are separate namespaces: an HTTP id never matches a
// WebSocket id.
//
// # Delivery
//
// The transport's read loop calls [Bridge.HandleEnvelope], which only
// queues the envelope on a lane keyed by (family, id). A lane is a FIFO
// drained by its own goroutine, started when the lane gets work and
// exiting when it is empty. Frames for one id are therefore delivered
// strictly in arrival order, and a slow callback delays only its own
// id.
//
// The registry is consulted on the lane at delivery time. Terminal
// kinds (HTTP_RESPONSE_COMPLETE, HTTP_ERROR, WS_ERROR,
// WS_CLOSED_FROM_SERVER) remove the registration and then invoke the
// callback; other kinds invoke it and leave the registration in place.
// A frame whose id has no registration is unroutable: it is logged at
// debug level, counted, and dropped.
//
// # Failures
//
// A callback that returns an error wrapping [ErrDeadReference] has lost
// its owner. Its registration is removed and a [*CallbackError] naming
// the id and the kind being delivered goes to
// [Options.GenericErrorHandler]. Other callback errors and panics are
// logged and counted. No callback failure stops delivery for other ids.
//
// When a request cannot be sent, MakeHTTPRequest and OpenWebSocket
// remove the registration and call OnError before returning, so the
// caller is never left waiting for a request the peer never saw.
// SendWebSocketMessage and CloseWebSocket only log and return the
// error: the session stays registered until the peer ends it.
//
// When the transport reports the connection lost, every pending
// operation receives OnError on its lane, after any frames already
// queued for it.
package bridge
