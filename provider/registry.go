// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package provider keeps the table of named service providers that
// callers can push string messages to through the bridge.
//
// A provider is any component that wants to receive messages by name
// without holding a reference to the sender. The registry is an
// ordinary object owned by whoever constructs the bridge; there is no
// process-wide instance.
package provider

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// ErrUnknownProvider is returned by Send when no provider is
// registered under the name.
var ErrUnknownProvider = errors.New("provider: no provider registered under that name")

// ErrDeadReference is returned (possibly wrapped) by a Handler whose
// owner has gone away. The registry unregisters such a handler.
var ErrDeadReference = errors.New("provider: handler owner is gone")

// Handler receives messages addressed to a provider name.
type Handler interface {
	HandleMessage(message string) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(message string) error

func (f HandlerFunc) HandleMessage(message string) error { return f(message) }

// Registry maps provider names to handlers. Safe for concurrent use.
type Registry struct {
	// Logger defaults to slog.Default().
	Logger *slog.Logger

	mu       sync.RWMutex
	handlers map[string]*entry
}

// entry boxes a handler so removal after a dead-reference error can
// tell whether the name has since been re-registered.
type entry struct {
	handler Handler
}

func (r *Registry) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}

// Register installs handler under name, replacing any previous
// handler.
func (r *Registry) Register(name string, handler Handler) error {
	if name == "" {
		return errors.New("provider: name is required")
	}
	if handler == nil {
		return fmt.Errorf("provider %q: handler is nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handlers == nil {
		r.handlers = make(map[string]*entry)
	}
	if _, replaced := r.handlers[name]; replaced {
		r.logger().Debug("replacing service provider", "provider", name)
	}
	r.handlers[name] = &entry{handler: handler}
	return nil
}

// Unregister removes the handler for name, if any.
func (r *Registry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, name)
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Send delivers message to the provider registered under name. The
// handler runs on the caller's goroutine without the registry lock
// held. If it fails with ErrDeadReference the provider is removed.
func (r *Registry) Send(name, message string) error {
	r.mu.RLock()
	current := r.handlers[name]
	r.mu.RUnlock()
	if current == nil {
		return fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}

	err := current.handler.HandleMessage(message)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrDeadReference) {
		r.mu.Lock()
		if r.handlers[name] == current {
			delete(r.handlers, name)
		}
		r.mu.Unlock()
		r.logger().Info("removed dead service provider", "provider", name, "error", err)
	}
	return fmt.Errorf("provider %q: %w", name, err)
}
