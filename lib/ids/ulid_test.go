// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package ids

import (
	"testing"

	"github.com/oklog/ulid/v2"
)

func TestNewIsParseableAndMonotonic(t *testing.T) {
	previous := New()
	if _, err := ulid.ParseStrict(previous); err != nil {
		t.Fatalf("ParseStrict(%q): %v", previous, err)
	}
	for n := 0; n < 100; n++ {
		next := New()
		if next <= previous {
			t.Fatalf("ids not increasing: %q then %q", previous, next)
		}
		previous = next
	}
}
