// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts the time operations used by the transport's
// reconnect loop so that backoff can be tested without sleeping.
//
// Production code uses Real. Tests use Fake, whose time moves only when
// Advance is called:
//
//	fake := clock.Fake(time.Unix(0, 0))
//	client := &transport.Client{Clock: fake, ...}
//	fake.WaitForTimers(1)          // reconnect loop is waiting
//	fake.Advance(100 * time.Millisecond)
package clock
