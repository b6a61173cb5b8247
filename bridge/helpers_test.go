// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/bureau-foundation/privbridge/lib/testutil"
	"github.com/bureau-foundation/privbridge/wire"
)

const testTimeout = 5 * time.Second

// quietPeriod is how long tests wait to confirm that nothing more is
// delivered.
const quietPeriod = 50 * time.Millisecond

// fakeTransport records sent envelopes and fails sends on demand.
type fakeTransport struct {
	mu        sync.Mutex
	sent      []wire.Envelope
	sendErr   error
	connected bool

	// onSendError runs, without the lock held, before a failing Send
	// returns. A real client closes its socket on a write error, so its
	// read loop may report the loss before Send returns.
	onSendError func()
}

func (f *fakeTransport) Send(_ context.Context, envelope wire.Envelope) error {
	f.mu.Lock()
	sendErr, onSendError := f.sendErr, f.onSendError
	if sendErr == nil {
		f.sent = append(f.sent, envelope)
	}
	f.mu.Unlock()

	if sendErr != nil && onSendError != nil {
		onSendError()
	}
	return sendErr
}

func (f *fakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeTransport) failSends(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendErr = err
}

func (f *fakeTransport) sentEnvelopes() []wire.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]wire.Envelope(nil), f.sent...)
}

func (f *fakeTransport) lastSent(t *testing.T) wire.Envelope {
	t.Helper()
	sent := f.sentEnvelopes()
	if len(sent) == 0 {
		t.Fatal("nothing was sent")
	}
	return sent[len(sent)-1]
}

// event is one callback invocation.
type event struct {
	method      string
	id          string
	status      int
	headers     map[string]string
	data        []byte
	messageType wire.MessageType
	message     string
	code        int
}

func recordHTTP(events chan<- event) HTTPCallbackFuncs {
	return HTTPCallbackFuncs{
		Headers: func(id string, status int, headers map[string]string) error {
			events <- event{method: "OnHeaders", id: id, status: status, headers: headers}
			return nil
		},
		Data: func(id string, data []byte) error {
			events <- event{method: "OnData", id: id, data: data}
			return nil
		},
		Complete: func(id string) error {
			events <- event{method: "OnComplete", id: id}
			return nil
		},
		Error: func(id, message string, code int) error {
			events <- event{method: "OnError", id: id, message: message, code: code}
			return nil
		},
	}
}

func recordWebSocket(events chan<- event) WebSocketCallbackFuncs {
	return WebSocketCallbackFuncs{
		Open: func(id string, headers map[string]string) error {
			events <- event{method: "OnOpen", id: id, headers: headers}
			return nil
		},
		Message: func(id string, messageType wire.MessageType, data []byte) error {
			events <- event{method: "OnMessage", id: id, messageType: messageType, data: data}
			return nil
		},
		Error: func(id, message string) error {
			events <- event{method: "OnError", id: id, message: message}
			return nil
		},
		Close: func(id string) error {
			events <- event{method: "OnClose", id: id}
			return nil
		},
	}
}

func newEvents() chan event { return make(chan event, 256) }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestBridge(t *testing.T, options Options) (*Bridge, *fakeTransport) {
	t.Helper()
	transport := &fakeTransport{connected: true}
	if options.Logger == nil {
		options.Logger = quietLogger()
	}
	b := New(transport, options)
	t.Cleanup(b.Close)
	return b, transport
}

func requireEvent(t *testing.T, events <-chan event, method, id string) event {
	t.Helper()
	got := testutil.RequireReceive(t, events, testTimeout, "waiting for %s(%s)", method, id)
	if got.method != method || got.id != id {
		t.Fatalf("got %s(%s), want %s(%s)", got.method, got.id, method, id)
	}
	return got
}

func inbound(id string, payload wire.Payload) wire.Envelope {
	return wire.Envelope{OriginID: id, Payload: payload}
}
