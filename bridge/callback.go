// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import "github.com/bureau-foundation/privbridge/wire"

// HTTPCallback receives the events of one HTTP request. OnHeaders and
// OnData may be called any number of times; exactly one of OnComplete
// or OnError ends the request. Return an error wrapping
// ErrDeadReference when the owner can no longer receive events.
type HTTPCallback interface {
	OnHeaders(id string, status int, headers map[string]string) error
	OnData(id string, data []byte) error
	OnComplete(id string) error

	// OnError reports a failure. Code is the peer's error code, or -1
	// when the failure was local (the request was never delivered or
	// the connection was lost).
	OnError(id, message string, code int) error
}

// WebSocketCallback receives the events of one WebSocket session.
// Exactly one of OnError or OnClose ends the session.
type WebSocketCallback interface {
	OnOpen(id string, headers map[string]string) error
	OnMessage(id string, messageType wire.MessageType, data []byte) error
	OnError(id, message string) error
	OnClose(id string) error
}

var (
	_ HTTPCallback      = HTTPCallbackFuncs{}
	_ WebSocketCallback = WebSocketCallbackFuncs{}
)

// HTTPCallbackFuncs adapts functions to HTTPCallback. Nil fields ignore
// their event.
type HTTPCallbackFuncs struct {
	Headers  func(id string, status int, headers map[string]string) error
	Data     func(id string, data []byte) error
	Complete func(id string) error
	Error    func(id, message string, code int) error
}

func (f HTTPCallbackFuncs) OnHeaders(id string, status int, headers map[string]string) error {
	if f.Headers == nil {
		return nil
	}
	return f.Headers(id, status, headers)
}

func (f HTTPCallbackFuncs) OnData(id string, data []byte) error {
	if f.Data == nil {
		return nil
	}
	return f.Data(id, data)
}

func (f HTTPCallbackFuncs) OnComplete(id string) error {
	if f.Complete == nil {
		return nil
	}
	return f.Complete(id)
}

func (f HTTPCallbackFuncs) OnError(id, message string, code int) error {
	if f.Error == nil {
		return nil
	}
	return f.Error(id, message, code)
}

// WebSocketCallbackFuncs adapts functions to WebSocketCallback. Nil
// fields ignore their event.
type WebSocketCallbackFuncs struct {
	Open    func(id string, headers map[string]string) error
	Message func(id string, messageType wire.MessageType, data []byte) error
	Error   func(id, message string) error
	Close   func(id string) error
}

func (f WebSocketCallbackFuncs) OnOpen(id string, headers map[string]string) error {
	if f.Open == nil {
		return nil
	}
	return f.Open(id, headers)
}

func (f WebSocketCallbackFuncs) OnMessage(id string, messageType wire.MessageType, data []byte) error {
	if f.Message == nil {
		return nil
	}
	return f.Message(id, messageType, data)
}

func (f WebSocketCallbackFuncs) OnError(id, message string) error {
	if f.Error == nil {
		return nil
	}
	return f.Error(id, message)
}

func (f WebSocketCallbackFuncs) OnClose(id string) error {
	if f.Close == nil {
		return nil
	}
	return f.Close(id)
}
