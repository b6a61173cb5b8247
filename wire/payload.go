// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

// Payload is one variant of the envelope's tagged union. The set of
// implementations is closed: only the types in this file satisfy it.
type Payload interface {
	Kind() Kind
	isPayload()
}

// HTTPRequest asks the peer to perform an HTTP request. Body is nil
// when the request carries no body.
type HTTPRequest struct {
	URL     string   `cbor:"url"`
	Method  string   `cbor:"method"`
	Headers []Header `cbor:"headers,omitempty"`
	Body    []byte   `cbor:"body,omitempty"`
}

// WebSocketOpenRequest asks the peer to open a WebSocket session.
type WebSocketOpenRequest struct {
	URL     string   `cbor:"url"`
	Headers []Header `cbor:"headers,omitempty"`
}

// WebSocketCloseRequest asks the peer to close the session named by
// the envelope's origin id.
type WebSocketCloseRequest struct{}

// WebSocketMessageToServer carries one message from the caller to the
// remote WebSocket server.
type WebSocketMessageToServer struct {
	Type MessageType `cbor:"type"`
	Data []byte      `cbor:"data"`
}

// HTTPResponseHeaders reports the status line and headers of a
// response. Sent before any body chunk.
type HTTPResponseHeaders struct {
	Status  int      `cbor:"status"`
	Headers []Header `cbor:"headers,omitempty"`
}

// HTTPBodyChunk carries one slice of the response body.
type HTTPBodyChunk struct {
	Chunk []byte `cbor:"chunk"`
}

// HTTPResponseComplete ends a successful response.
type HTTPResponseComplete struct{}

// HTTPError ends a failed request. Code is the peer's error code (the
// reference peer reports 500 for request failures).
type HTTPError struct {
	Message string `cbor:"message"`
	Code    int    `cbor:"code"`
}

// WebSocketOpened reports that the session is established.
type WebSocketOpened struct {
	Headers []Header `cbor:"headers,omitempty"`
}

// WebSocketMessageFromServer carries one message from the remote
// WebSocket server.
type WebSocketMessageFromServer struct {
	Type MessageType `cbor:"type"`
	Data []byte      `cbor:"data"`
}

// WebSocketError ends a session with a failure.
type WebSocketError struct {
	Message string `cbor:"message"`
}

// WebSocketClosedFromServer ends a session that the remote side closed.
type WebSocketClosedFromServer struct {
	Code   int    `cbor:"code"`
	Reason string `cbor:"reason,omitempty"`
}

func (HTTPRequest) Kind() Kind                { return KindHTTPRequest }
func (WebSocketOpenRequest) Kind() Kind       { return KindWebSocketOpenRequest }
func (WebSocketCloseRequest) Kind() Kind      { return KindWebSocketCloseRequest }
func (WebSocketMessageToServer) Kind() Kind   { return KindWebSocketMessageToServer }
func (HTTPResponseHeaders) Kind() Kind        { return KindHTTPResponseHeaders }
func (HTTPBodyChunk) Kind() Kind              { return KindHTTPBodyChunk }
func (HTTPResponseComplete) Kind() Kind       { return KindHTTPResponseComplete }
func (HTTPError) Kind() Kind                  { return KindHTTPError }
func (WebSocketOpened) Kind() Kind            { return KindWebSocketOpened }
func (WebSocketMessageFromServer) Kind() Kind { return KindWebSocketMessageFromServer }
func (WebSocketError) Kind() Kind             { return KindWebSocketError }
func (WebSocketClosedFromServer) Kind() Kind  { return KindWebSocketClosedFromServer }

func (HTTPRequest) isPayload()                {}
func (WebSocketOpenRequest) isPayload()       {}
func (WebSocketCloseRequest) isPayload()      {}
func (WebSocketMessageToServer) isPayload()   {}
func (HTTPResponseHeaders) isPayload()        {}
func (HTTPBodyChunk) isPayload()              {}
func (HTTPResponseComplete) isPayload()       {}
func (HTTPError) isPayload()                  {}
func (WebSocketOpened) isPayload()            {}
func (WebSocketMessageFromServer) isPayload() {}
func (WebSocketError) isPayload()             {}
func (WebSocketClosedFromServer) isPayload()  {}

// newPayload returns a pointer to a zero value of the variant for kind,
// or nil if the kind is not part of the protocol.
func newPayload(kind Kind) any {
	switch kind {
	case KindHTTPRequest:
		return new(HTTPRequest)
	case KindWebSocketOpenRequest:
		return new(WebSocketOpenRequest)
	case KindWebSocketCloseRequest:
		return new(WebSocketCloseRequest)
	case KindWebSocketMessageToServer:
		return new(WebSocketMessageToServer)
	case KindHTTPResponseHeaders:
		return new(HTTPResponseHeaders)
	case KindHTTPBodyChunk:
		return new(HTTPBodyChunk)
	case KindHTTPResponseComplete:
		return new(HTTPResponseComplete)
	case KindHTTPError:
		return new(HTTPError)
	case KindWebSocketOpened:
		return new(WebSocketOpened)
	case KindWebSocketMessageFromServer:
		return new(WebSocketMessageFromServer)
	case KindWebSocketError:
		return new(WebSocketError)
	case KindWebSocketClosedFromServer:
		return new(WebSocketClosedFromServer)
	default:
		return nil
	}
}

// derefPayload converts the pointer produced by newPayload back into
// the value type that implements Payload.
func derefPayload(pointer any) Payload {
	switch p := pointer.(type) {
	case *HTTPRequest:
		return *p
	case *WebSocketOpenRequest:
		return *p
	case *WebSocketCloseRequest:
		return *p
	case *WebSocketMessageToServer:
		return *p
	case *HTTPResponseHeaders:
		return *p
	case *HTTPBodyChunk:
		return *p
	case *HTTPResponseComplete:
		return *p
	case *HTTPError:
		return *p
	case *WebSocketOpened:
		return *p
	case *WebSocketMessageFromServer:
		return *p
	case *WebSocketError:
		return *p
	case *WebSocketClosedFromServer:
		return *p
	default:
		return nil
	}
}
