// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/privbridge/provider"
	"github.com/bureau-foundation/privbridge/wire"
)

// ErrDeadReference is returned (possibly wrapped) by a callback whose
// owning caller has gone away. It is the same value as
// provider.ErrDeadReference, so an adapter serving both roles returns
// one sentinel.
var ErrDeadReference = provider.ErrDeadReference

var (
	ErrEmptyID        = errors.New("bridge: operation id is empty")
	ErrNilCallback    = errors.New("bridge: callback is nil")
	ErrDuplicateID    = errors.New("bridge: operation id is already pending")
	ErrClosed         = errors.New("bridge: closed")
	ErrInvalidMessage = errors.New("bridge: invalid WebSocket message type")
)

// CallbackError reports that delivering a frame failed because the
// callback's owner is gone. It is what Options.GenericErrorHandler
// receives; it never represents a network or peer error.
type CallbackError struct {
	ID   string
	Kind wire.Kind
	Err  error
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("callback for %q failed while delivering %s: %v", e.ID, e.Kind, e.Err)
}

func (e *CallbackError) Unwrap() error { return e.Err }

// panicError carries a recovered callback panic through the normal
// error path.
type panicError struct {
	value any
}

func (e *panicError) Error() string { return fmt.Sprintf("callback panicked: %v", e.value) }
