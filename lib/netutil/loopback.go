// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"fmt"
	"net"
)

// RequireLoopback checks that a host:port address names the local
// machine. The host must be "localhost" or a literal loopback IP; other
// names are rejected without resolving them.
func RequireLoopback(address string) error {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("invalid address %q: %w", address, err)
	}
	if port == "" {
		return fmt.Errorf("address %q has no port", address)
	}
	if host == "localhost" {
		return nil
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("address %q: host must be localhost or a loopback IP", address)
	}
	if !ip.IsLoopback() {
		return fmt.Errorf("address %q is not a loopback address", address)
	}
	return nil
}
