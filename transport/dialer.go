// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net"
	"time"
)

// Dialer opens the connection to the peer. Tests substitute a Dialer
// to inject dial failures; production uses TCPDialer.
type Dialer interface {
	DialContext(ctx context.Context, address string) (net.Conn, error)
}

var _ Dialer = (*TCPDialer)(nil)

// TCPDialer dials plain TCP with an optional per-attempt timeout.
type TCPDialer struct {
	// Timeout bounds connection establishment. Zero means no limit
	// beyond the context's deadline.
	Timeout time.Duration
}

// DialContext opens a TCP connection to address.
func (d *TCPDialer) DialContext(ctx context.Context, address string) (net.Conn, error) {
	dialer := net.Dialer{Timeout: d.Timeout}
	return dialer.DialContext(ctx, "tcp", address)
}
