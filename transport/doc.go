// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport owns the single TCP connection between the bridge
// and the privileged peer.
//
// A [Client] dials the peer over loopback, writes envelopes as
// length-prefixed CBOR frames, and runs one read goroutine per
// connection that decodes inbound frames and hands them to a
// [Delegate]. The read goroutine never runs caller code itself: the
// delegate is expected to queue each envelope and return.
//
// Sends are serialized by a mutex and each frame goes out in one Write,
// so concurrent callers never interleave bytes on the stream. There is
// no retry and no acknowledgement; a write error means the frame was
// not delivered and the connection is torn down, because a partially
// written frame leaves the stream unrecoverable.
//
// When the connection ends, for any reason, the delegate receives
// exactly one TransportLost for it. If [Client.Redial] is set, the
// client then redials with exponential backoff until it reconnects or
// is closed. Backoff waits go through a [clock.Clock] so tests can drive
// them with a fake clock.
package transport
