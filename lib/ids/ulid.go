// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package ids generates identifiers for log correlation.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// New returns a ULID string. Values from one process sort in creation
// order, which keeps connection ids in logs chronological.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
