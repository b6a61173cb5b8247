// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire defines the protocol spoken between the bridge and the
// privileged peer.
//
// Every message is an [Envelope]: a caller-chosen correlation id (the
// origin id) plus exactly one [Payload] variant. Payload is a closed sum
// type: each concrete struct reports its [Kind], and the kind is the
// discriminant written on the wire next to the encoded variant. Both
// ends must agree on the kind-to-shape mapping; that mapping lives in
// [Kind] and decodePayload and nowhere else.
//
// Envelopes travel as frames:
//
//	[4 bytes payload length, little-endian uint32] [CBOR envelope]
//
// The CBOR envelope is a map {origin_id, kind, payload} where payload is
// the nested CBOR encoding of the variant. The variant is decoded only
// after the discriminant is known, so a reader recovers the frame
// boundary and the origin id even when the variant itself is malformed:
// a single bad frame is reported with its id and skipped rather than
// tearing down the connection.
//
// Outbound variants (bridge to peer): [HTTPRequest],
// [WebSocketOpenRequest], [WebSocketCloseRequest],
// [WebSocketMessageToServer].
//
// Inbound variants (peer to bridge): [HTTPResponseHeaders],
// [HTTPBodyChunk], [HTTPResponseComplete], [HTTPError],
// [WebSocketOpened], [WebSocketMessageFromServer], [WebSocketError],
// [WebSocketClosedFromServer].
//
// [WriteFrame] emits a frame with a single Write call. Callers sharing a
// connection between goroutines must still serialize calls; the
// transport package does that with a send-side mutex.
package wire
