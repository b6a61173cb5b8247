// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bridge

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/bureau-foundation/privbridge/lib/testutil"
	"github.com/bureau-foundation/privbridge/provider"
	"github.com/bureau-foundation/privbridge/wire"
)

func TestMakeHTTPRequestSendsEnvelope(t *testing.T) {
	b, transport := newTestBridge(t, Options{})
	events := newEvents()

	err := b.MakeHTTPRequest(context.Background(), HTTPRequest{
		ID:      "t1",
		URL:     "https://example.com",
		Method:  "GET",
		Headers: map[string]string{},
	}, recordHTTP(events))
	if err != nil {
		t.Fatalf("MakeHTTPRequest: %v", err)
	}

	sent := transport.lastSent(t)
	if sent.OriginID != "t1" {
		t.Errorf("OriginID = %q, want t1", sent.OriginID)
	}
	request, ok := sent.Payload.(wire.HTTPRequest)
	if !ok {
		t.Fatalf("payload = %T, want wire.HTTPRequest", sent.Payload)
	}
	if request.URL != "https://example.com" || request.Method != "GET" {
		t.Errorf("request = %+v", request)
	}
	if request.Body != nil || request.Headers != nil {
		t.Errorf("empty body and headers should encode as absent: %+v", request)
	}
	if httpPending, _ := b.Pending(); httpPending != 1 {
		t.Errorf("pending HTTP = %d, want 1", httpPending)
	}
}

func TestMakeHTTPRequestCarriesBodyAndDefaultsMethod(t *testing.T) {
	b, transport := newTestBridge(t, Options{})

	err := b.MakeHTTPRequest(context.Background(), HTTPRequest{
		ID:      "post",
		URL:     "https://example.com/upload",
		Body:    []byte("payload"),
		Headers: map[string]string{"X-B": "2", "X-A": "1"},
	}, recordHTTP(newEvents()))
	if err != nil {
		t.Fatalf("MakeHTTPRequest: %v", err)
	}

	request := transport.lastSent(t).Payload.(wire.HTTPRequest)
	if request.Method != "GET" {
		t.Errorf("Method = %q, want GET default", request.Method)
	}
	if string(request.Body) != "payload" {
		t.Errorf("Body = %q", request.Body)
	}
	want := []wire.Header{{Key: "X-A", Value: "1"}, {Key: "X-B", Value: "2"}}
	if !reflect.DeepEqual(request.Headers, want) {
		t.Errorf("Headers = %v, want %v", request.Headers, want)
	}
}

func TestMakeHTTPRequestSendFailureErrorsSynchronously(t *testing.T) {
	b, transport := newTestBridge(t, Options{})
	transport.failSends(errors.New("Connection failed"))
	events := newEvents()

	err := b.MakeHTTPRequest(context.Background(), HTTPRequest{ID: "t1", URL: "https://example.com", Method: "GET"}, recordHTTP(events))
	if err != nil {
		t.Fatalf("MakeHTTPRequest = %v, want nil (failure goes to the callback)", err)
	}

	// The callback must have run before MakeHTTPRequest returned.
	select {
	case got := <-events:
		want := event{method: "OnError", id: "t1", message: "Connection failed", code: -1}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("event = %+v, want %+v", got, want)
		}
	default:
		t.Fatal("OnError was not invoked within the call")
	}
	if httpPending, _ := b.Pending(); httpPending != 0 {
		t.Errorf("pending HTTP = %d after send failure, want 0", httpPending)
	}
	testutil.RequireNoReceive(t, events, quietPeriod, "only one callback on send failure")
}

func TestSendFailureAfterTransportLostErrorsOnce(t *testing.T) {
	b, transport := newTestBridge(t, Options{})
	transport.failSends(errors.New("broken pipe"))
	transport.onSendError = func() {
		b.TransportLost(errors.New("connection reset"))
		testutil.RequireEventually(t, func() bool {
			httpPending, _ := b.Pending()
			return httpPending == 0
		}, testTimeout, "transport loss failing the request")
	}
	events := newEvents()

	if err := b.MakeHTTPRequest(context.Background(), HTTPRequest{ID: "x", URL: "https://example.com"}, recordHTTP(events)); err != nil {
		t.Fatalf("MakeHTTPRequest = %v, want nil", err)
	}

	got := requireEvent(t, events, "OnError", "x")
	if got.message != "transport lost: connection reset" || got.code != -1 {
		t.Errorf("OnError = %+v", got)
	}
	testutil.RequireNoReceive(t, events, quietPeriod, "second terminal callback")
}

func TestHTTPResponseLifecycle(t *testing.T) {
	b, _ := newTestBridge(t, Options{})
	events := newEvents()
	if err := b.MakeHTTPRequest(context.Background(), HTTPRequest{ID: "r", URL: "https://example.com"}, recordHTTP(events)); err != nil {
		t.Fatalf("MakeHTTPRequest: %v", err)
	}

	b.HandleEnvelope(inbound("r", wire.HTTPResponseHeaders{Status: 200, Headers: []wire.Header{{Key: "Content-Type", Value: "text/plain"}}}))
	b.HandleEnvelope(inbound("r", wire.HTTPBodyChunk{Chunk: []byte("hello ")}))
	b.HandleEnvelope(inbound("r", wire.HTTPBodyChunk{Chunk: []byte("world")}))
	b.HandleEnvelope(inbound("r", wire.HTTPResponseComplete{}))

	headers := requireEvent(t, events, "OnHeaders", "r")
	if headers.status != 200 || headers.headers["Content-Type"] != "text/plain" {
		t.Errorf("OnHeaders = %+v", headers)
	}
	if got := requireEvent(t, events, "OnData", "r"); string(got.data) != "hello " {
		t.Errorf("first chunk = %q", got.data)
	}
	if got := requireEvent(t, events, "OnData", "r"); string(got.data) != "world" {
		t.Errorf("second chunk = %q", got.data)
	}
	requireEvent(t, events, "OnComplete", "r")

	if httpPending, _ := b.Pending(); httpPending != 0 {
		t.Errorf("pending HTTP = %d after completion, want 0", httpPending)
	}
}

func TestHTTPErrorFromPeerIsTerminal(t *testing.T) {
	b, _ := newTestBridge(t, Options{})
	events := newEvents()
	b.MakeHTTPRequest(context.Background(), HTTPRequest{ID: "e", URL: "https://bad.invalid"}, recordHTTP(events))

	b.HandleEnvelope(inbound("e", wire.HTTPError{Message: "dns failure", Code: 500}))
	b.HandleEnvelope(inbound("e", wire.HTTPBodyChunk{Chunk: []byte("late")}))

	got := requireEvent(t, events, "OnError", "e")
	if got.message != "dns failure" || got.code != 500 {
		t.Errorf("OnError = %+v, want peer message and code 500", got)
	}
	testutil.RequireNoReceive(t, events, quietPeriod, "frames after a terminal must be dropped")
}

func TestTerminalFrameTwiceIsUnroutable(t *testing.T) {
	b, _ := newTestBridge(t, Options{})
	events := newEvents()
	b.MakeHTTPRequest(context.Background(), HTTPRequest{ID: "twice", URL: "https://example.com"}, recordHTTP(events))

	b.HandleEnvelope(inbound("twice", wire.HTTPResponseComplete{}))
	b.HandleEnvelope(inbound("twice", wire.HTTPResponseComplete{}))

	requireEvent(t, events, "OnComplete", "twice")
	testutil.RequireNoReceive(t, events, quietPeriod, "second terminal frame")
}

func TestUnregisteredAndOutboundKindsAreDropped(t *testing.T) {
	b, _ := newTestBridge(t, Options{})
	events := newEvents()
	b.MakeHTTPRequest(context.Background(), HTTPRequest{ID: "known", URL: "https://example.com"}, recordHTTP(events))

	b.HandleEnvelope(inbound("unknown", wire.HTTPBodyChunk{Chunk: []byte("x")}))
	b.HandleEnvelope(inbound("known", wire.HTTPRequest{URL: "https://echo"}))
	// An HTTP id does not match a WebSocket frame with the same id.
	b.HandleEnvelope(inbound("known", wire.WebSocketClosedFromServer{Code: 1000}))

	testutil.RequireNoReceive(t, events, quietPeriod, "unroutable frames")
	if httpPending, _ := b.Pending(); httpPending != 1 {
		t.Errorf("pending HTTP = %d, want 1", httpPending)
	}
}

func TestConcurrentRequestsDoNotCrossDeliver(t *testing.T) {
	b, _ := newTestBridge(t, Options{})
	const requests = 32

	var wrong sync.Map
	done := make(chan string, requests)
	var wg sync.WaitGroup
	for i := 0; i < requests; i++ {
		id := fmt.Sprintf("req-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			callback := HTTPCallbackFuncs{
				Data: func(got string, data []byte) error {
					if got != id || string(data) != id {
						wrong.Store(id, fmt.Sprintf("%s/%s", got, data))
					}
					return nil
				},
				Complete: func(got string) error {
					done <- got
					return nil
				},
			}
			if err := b.MakeHTTPRequest(context.Background(), HTTPRequest{ID: id, URL: "https://example.com"}, callback); err != nil {
				t.Errorf("MakeHTTPRequest(%s): %v", id, err)
			}
		}()
	}
	wg.Wait()

	for i := 0; i < requests; i++ {
		id := fmt.Sprintf("req-%d", i)
		b.HandleEnvelope(inbound(id, wire.HTTPBodyChunk{Chunk: []byte(id)}))
	}
	for i := 0; i < requests; i++ {
		b.HandleEnvelope(inbound(fmt.Sprintf("req-%d", i), wire.HTTPResponseComplete{}))
	}

	completed := make(map[string]bool)
	for n := 0; n < requests; n++ {
		completed[testutil.RequireReceive(t, done, testTimeout, "completions")] = true
	}
	if len(completed) != requests {
		t.Errorf("%d distinct completions, want %d", len(completed), requests)
	}
	wrong.Range(func(key, value any) bool {
		t.Errorf("callback for %s received %s", key, value)
		return true
	})
}

func TestPerIDDeliveryIsOrdered(t *testing.T) {
	b, _ := newTestBridge(t, Options{})
	events := newEvents()
	b.MakeHTTPRequest(context.Background(), HTTPRequest{ID: "ordered", URL: "https://example.com"}, recordHTTP(events))

	const chunks = 200
	for i := 0; i < chunks; i++ {
		b.HandleEnvelope(inbound("ordered", wire.HTTPBodyChunk{Chunk: []byte(fmt.Sprint(i))}))
	}
	for i := 0; i < chunks; i++ {
		got := requireEvent(t, events, "OnData", "ordered")
		if string(got.data) != fmt.Sprint(i) {
			t.Fatalf("chunk %d arrived as %q", i, got.data)
		}
	}
}

func TestSlowCallbackDoesNotBlockOtherIDs(t *testing.T) {
	b, _ := newTestBridge(t, Options{})
	release := make(chan struct{})
	slowEntered := make(chan struct{}, 1)
	slowEvents := newEvents()

	slow := recordHTTP(slowEvents)
	slow.Data = func(id string, data []byte) error {
		slowEntered <- struct{}{}
		<-release
		slowEvents <- event{method: "OnData", id: id, data: data}
		return nil
	}
	b.MakeHTTPRequest(context.Background(), HTTPRequest{ID: "slow", URL: "https://example.com"}, slow)

	fastEvents := newEvents()
	b.MakeHTTPRequest(context.Background(), HTTPRequest{ID: "fast", URL: "https://example.com"}, recordHTTP(fastEvents))

	b.HandleEnvelope(inbound("slow", wire.HTTPBodyChunk{Chunk: []byte("1")}))
	b.HandleEnvelope(inbound("slow", wire.HTTPResponseComplete{}))
	testutil.RequireReceive(t, slowEntered, testTimeout, "slow callback entered")

	b.HandleEnvelope(inbound("fast", wire.HTTPResponseComplete{}))
	requireEvent(t, fastEvents, "OnComplete", "fast")

	close(release)
	requireEvent(t, slowEvents, "OnData", "slow")
	requireEvent(t, slowEvents, "OnComplete", "slow")
}

func TestDeadReferenceRemovesRegistration(t *testing.T) {
	generic := make(chan *CallbackError, 4)
	b, _ := newTestBridge(t, Options{
		GenericErrorHandler: func(err *CallbackError) { generic <- err },
	})
	events := newEvents()
	callback := recordHTTP(events)
	callback.Headers = func(string, int, map[string]string) error {
		return fmt.Errorf("binder transaction failed: %w", ErrDeadReference)
	}
	b.MakeHTTPRequest(context.Background(), HTTPRequest{ID: "t1", URL: "https://example.com"}, callback)

	b.HandleEnvelope(inbound("t1", wire.HTTPResponseHeaders{Status: 200}))

	got := testutil.RequireReceive(t, generic, testTimeout, "generic error")
	if got.ID != "t1" || got.Kind != wire.KindHTTPResponseHeaders {
		t.Errorf("CallbackError = {%q, %s}, want {t1, HTTP_HEADERS}", got.ID, got.Kind)
	}
	if !strings.Contains(got.Error(), "HTTP_HEADERS") {
		t.Errorf("Error() = %q, want it to name HTTP_HEADERS", got.Error())
	}
	if !errors.Is(got, ErrDeadReference) {
		t.Error("CallbackError should unwrap to ErrDeadReference")
	}

	// Later frames for the id are unroutable and fail nothing.
	b.HandleEnvelope(inbound("t1", wire.HTTPBodyChunk{Chunk: []byte("x")}))
	b.HandleEnvelope(inbound("t1", wire.HTTPResponseComplete{}))
	testutil.RequireNoReceive(t, generic, quietPeriod, "repeated generic error")
	testutil.RequireNoReceive(t, events, quietPeriod, "delivery after dead reference")
	if httpPending, _ := b.Pending(); httpPending != 0 {
		t.Errorf("pending HTTP = %d, want 0", httpPending)
	}
}

func TestOrdinaryCallbackErrorKeepsRegistration(t *testing.T) {
	generic := make(chan *CallbackError, 4)
	b, _ := newTestBridge(t, Options{
		GenericErrorHandler: func(err *CallbackError) { generic <- err },
	})
	events := newEvents()
	callback := recordHTTP(events)
	callback.Headers = func(string, int, map[string]string) error { return errors.New("caller busy") }
	b.MakeHTTPRequest(context.Background(), HTTPRequest{ID: "busy", URL: "https://example.com"}, callback)

	b.HandleEnvelope(inbound("busy", wire.HTTPResponseHeaders{Status: 204}))
	b.HandleEnvelope(inbound("busy", wire.HTTPResponseComplete{}))

	requireEvent(t, events, "OnComplete", "busy")
	testutil.RequireNoReceive(t, generic, quietPeriod, "ordinary errors are not dead references")
}

func TestCallbackPanicIsContained(t *testing.T) {
	b, _ := newTestBridge(t, Options{})
	events := newEvents()
	callback := recordHTTP(events)
	callback.Headers = func(string, int, map[string]string) error { panic("boom") }
	b.MakeHTTPRequest(context.Background(), HTTPRequest{ID: "p", URL: "https://example.com"}, callback)

	b.HandleEnvelope(inbound("p", wire.HTTPResponseHeaders{Status: 200}))
	b.HandleEnvelope(inbound("p", wire.HTTPBodyChunk{Chunk: []byte("after panic")}))
	b.HandleEnvelope(inbound("p", wire.HTTPResponseComplete{}))

	if got := requireEvent(t, events, "OnData", "p"); string(got.data) != "after panic" {
		t.Errorf("OnData = %q", got.data)
	}
	requireEvent(t, events, "OnComplete", "p")
}

func TestLocalRejection(t *testing.T) {
	b, transport := newTestBridge(t, Options{})
	events := newEvents()
	ctx := context.Background()

	if err := b.MakeHTTPRequest(ctx, HTTPRequest{URL: "https://example.com"}, recordHTTP(events)); !errors.Is(err, ErrEmptyID) {
		t.Errorf("empty id: %v", err)
	}
	if err := b.MakeHTTPRequest(ctx, HTTPRequest{ID: "a"}, nil); !errors.Is(err, ErrNilCallback) {
		t.Errorf("nil callback: %v", err)
	}
	if err := b.OpenWebSocket(ctx, WebSocketOpen{ID: "w"}, nil); !errors.Is(err, ErrNilCallback) {
		t.Errorf("nil WebSocket callback: %v", err)
	}
	if err := b.MakeHTTPRequest(ctx, HTTPRequest{ID: "dup"}, recordHTTP(events)); err != nil {
		t.Fatalf("first request: %v", err)
	}
	if err := b.MakeHTTPRequest(ctx, HTTPRequest{ID: "dup"}, recordHTTP(events)); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("duplicate id: %v", err)
	}
	// The same id is free in the WebSocket namespace.
	if err := b.OpenWebSocket(ctx, WebSocketOpen{ID: "dup", URL: "wss://example.com"}, recordWebSocket(events)); err != nil {
		t.Errorf("WebSocket with an HTTP id: %v", err)
	}
	if err := b.SendWebSocketMessage(ctx, "dup", wire.MessageType(9), nil); !errors.Is(err, ErrInvalidMessage) {
		t.Errorf("invalid message type: %v", err)
	}

	if sent := transport.sentEnvelopes(); len(sent) != 2 {
		t.Errorf("sent %d envelopes, want 2", len(sent))
	}
	testutil.RequireNoReceive(t, events, quietPeriod, "rejected operations must not call back")
}

func TestTransportLostFailsPendingOperations(t *testing.T) {
	b, _ := newTestBridge(t, Options{})
	httpEvents := newEvents()
	websocketEvents := newEvents()
	b.MakeHTTPRequest(context.Background(), HTTPRequest{ID: "h", URL: "https://example.com"}, recordHTTP(httpEvents))
	b.OpenWebSocket(context.Background(), WebSocketOpen{ID: "w", URL: "wss://example.com"}, recordWebSocket(websocketEvents))

	b.TransportLost(errors.New("EOF"))

	httpError := requireEvent(t, httpEvents, "OnError", "h")
	if httpError.message != "transport lost: EOF" || httpError.code != -1 {
		t.Errorf("HTTP OnError = %+v", httpError)
	}
	websocketError := requireEvent(t, websocketEvents, "OnError", "w")
	if websocketError.message != "transport lost: EOF" {
		t.Errorf("WebSocket OnError = %+v", websocketError)
	}

	b.TransportLost(errors.New("EOF"))
	testutil.RequireNoReceive(t, httpEvents, quietPeriod, "second loss")
	if httpPending, websocketPending := b.Pending(); httpPending != 0 || websocketPending != 0 {
		t.Errorf("Pending = %d, %d; want 0, 0", httpPending, websocketPending)
	}
}

func TestTransportLostAfterQueuedTerminal(t *testing.T) {
	b, _ := newTestBridge(t, Options{})
	events := newEvents()
	b.MakeHTTPRequest(context.Background(), HTTPRequest{ID: "done", URL: "https://example.com"}, recordHTTP(events))

	b.HandleEnvelope(inbound("done", wire.HTTPBodyChunk{Chunk: []byte("x")}))
	b.HandleEnvelope(inbound("done", wire.HTTPResponseComplete{}))
	b.TransportLost(errors.New("connection reset"))

	requireEvent(t, events, "OnData", "done")
	requireEvent(t, events, "OnComplete", "done")
	testutil.RequireNoReceive(t, events, quietPeriod, "a completed request must not also fail")
}

func TestPingReflectsTransport(t *testing.T) {
	b, transport := newTestBridge(t, Options{})
	if !b.Ping() {
		t.Error("Ping = false with a connected transport")
	}
	transport.mu.Lock()
	transport.connected = false
	transport.mu.Unlock()
	if b.Ping() {
		t.Error("Ping = true with a disconnected transport")
	}
}

func TestServiceProviders(t *testing.T) {
	providers := &provider.Registry{Logger: quietLogger()}
	b, _ := newTestBridge(t, Options{Providers: providers})

	received := make(chan string, 1)
	if err := b.RegisterServiceProvider("status", provider.HandlerFunc(func(message string) error {
		received <- message
		return nil
	})); err != nil {
		t.Fatalf("RegisterServiceProvider: %v", err)
	}
	if err := b.SendMessageToServiceProvider("status", "ready"); err != nil {
		t.Fatalf("SendMessageToServiceProvider: %v", err)
	}
	if got := testutil.RequireReceive(t, received, testTimeout, "provider message"); got != "ready" {
		t.Errorf("provider received %q", got)
	}
	if err := b.SendMessageToServiceProvider("absent", "x"); !errors.Is(err, provider.ErrUnknownProvider) {
		t.Errorf("unknown provider: %v", err)
	}
	if names := providers.Names(); !reflect.DeepEqual(names, []string{"status"}) {
		t.Errorf("registry names = %v", names)
	}
}

func TestCloseRejectsNewOperations(t *testing.T) {
	b, _ := newTestBridge(t, Options{})
	b.Close()

	if err := b.MakeHTTPRequest(context.Background(), HTTPRequest{ID: "late"}, recordHTTP(newEvents())); !errors.Is(err, ErrClosed) {
		t.Errorf("MakeHTTPRequest after Close = %v, want ErrClosed", err)
	}
	if err := b.OpenWebSocket(context.Background(), WebSocketOpen{ID: "late"}, recordWebSocket(newEvents())); !errors.Is(err, ErrClosed) {
		t.Errorf("OpenWebSocket after Close = %v, want ErrClosed", err)
	}
}

func TestCallbackFuncsIgnoreNilFields(t *testing.T) {
	var httpCallback HTTPCallbackFuncs
	if err := httpCallback.OnHeaders("x", 200, nil); err != nil {
		t.Error(err)
	}
	if err := httpCallback.OnError("x", "m", -1); err != nil {
		t.Error(err)
	}
	var websocketCallback WebSocketCallbackFuncs
	if err := websocketCallback.OnMessage("x", wire.MessageText, nil); err != nil {
		t.Error(err)
	}
	if err := websocketCallback.OnClose("x"); err != nil {
		t.Error(err)
	}
}
