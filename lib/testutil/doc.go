// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for bridge packages.
//
// [RequireReceive], [RequireNoReceive], and [RequireClosed] wrap the
// select-with-timeout pattern so tests that wait on callbacks or peer
// goroutines do not each carry their own time.After. These helpers are
// the only place test code uses real wall-clock timeouts.
// [RequireEventually] polls state that has no channel to wait on.
//
// All helpers call t.Fatalf on failure.
package testutil
