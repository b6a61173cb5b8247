// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/bureau-foundation/privbridge/bridge"
	"github.com/bureau-foundation/privbridge/transport"
)

// peerError is an error reported by the peer for a fetch.
type peerError struct {
	message string
	code    int
}

func (e *peerError) Error() string {
	if e.code < 0 {
		return e.message
	}
	return fmt.Sprintf("%s (code %d)", e.message, e.code)
}

// runFetch performs one request through the bridge and copies the body
// to stdout. The timeout is applied here; the bridge itself never times
// out an operation.
func runFetch(ctx context.Context, client *transport.Client, b *bridge.Bridge, opts options, stdout io.Writer, logger *slog.Logger) error {
	headers, err := parseHeaders(opts.headers)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		return err
	}

	id := uuid.NewString()
	done := make(chan error, 1)
	finish := func(err error) {
		select {
		case done <- err:
		default:
		}
	}

	callback := bridge.HTTPCallbackFuncs{
		Headers: func(_ string, status int, headers map[string]string) error {
			logger.Debug("response headers", "id", id, "status", status, "headers", headers)
			return nil
		},
		Data: func(_ string, data []byte) error {
			if _, err := stdout.Write(data); err != nil {
				finish(fmt.Errorf("writing response body: %w", err))
				return bridge.ErrDeadReference
			}
			return nil
		},
		Complete: func(string) error {
			finish(nil)
			return nil
		},
		Error: func(_ string, message string, code int) error {
			finish(&peerError{message: message, code: code})
			return nil
		},
	}

	var body []byte
	if opts.data != "" {
		body = []byte(opts.data)
	}
	logger.Debug("fetching", "id", id, "method", opts.method, "url", opts.fetchURL)
	if err := b.MakeHTTPRequest(ctx, bridge.HTTPRequest{
		ID:      id,
		URL:     opts.fetchURL,
		Method:  opts.method,
		Body:    body,
		Headers: headers,
	}, callback); err != nil {
		return err
	}

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("fetch %s: %w", opts.fetchURL, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("fetch %s: %w", opts.fetchURL, ctx.Err())
	}
}

// parseHeaders turns repeated Name=Value flags into a header map.
// Repeating a name joins the values with ", ".
func parseHeaders(flags []string) (map[string]string, error) {
	headers := make(map[string]string, len(flags))
	for _, flag := range flags {
		name, value, ok := strings.Cut(flag, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --header %q: want Name=Value", flag)
		}
		if existing, repeated := headers[name]; repeated {
			value = existing + ", " + value
		}
		headers[name] = value
	}
	return headers, nil
}
