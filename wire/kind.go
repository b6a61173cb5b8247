// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import "fmt"

// Kind is the payload discriminant carried in every envelope.
type Kind uint8

// Outbound kinds occupy 1-15; inbound kinds start at 16. The numeric
// values are part of the wire format and must not be renumbered.
const (
	KindHTTPRequest              Kind = 1
	KindWebSocketOpenRequest     Kind = 2
	KindWebSocketCloseRequest    Kind = 3
	KindWebSocketMessageToServer Kind = 4

	KindHTTPResponseHeaders        Kind = 16
	KindHTTPBodyChunk              Kind = 17
	KindHTTPResponseComplete       Kind = 18
	KindHTTPError                  Kind = 19
	KindWebSocketOpened            Kind = 20
	KindWebSocketMessageFromServer Kind = 21
	KindWebSocketError             Kind = 22
	KindWebSocketClosedFromServer  Kind = 23
)

// Family groups kinds by the correlation namespace they belong to.
// HTTP ids and WebSocket ids are independent: the same string may name
// an HTTP request and a WebSocket session at the same time.
type Family uint8

const (
	FamilyUnknown Family = iota
	FamilyHTTP
	FamilyWebSocket
)

func (f Family) String() string {
	switch f {
	case FamilyHTTP:
		return "http"
	case FamilyWebSocket:
		return "websocket"
	default:
		return "unknown"
	}
}

type kindInfo struct {
	name     string
	family   Family
	inbound  bool
	terminal bool
}

var kinds = map[Kind]kindInfo{
	KindHTTPRequest:              {"HTTP_REQUEST", FamilyHTTP, false, false},
	KindWebSocketOpenRequest:     {"WS_OPEN_REQUEST", FamilyWebSocket, false, false},
	KindWebSocketCloseRequest:    {"WS_CLOSE_REQUEST", FamilyWebSocket, false, false},
	KindWebSocketMessageToServer: {"WS_MESSAGE_TO_SERVER", FamilyWebSocket, false, false},

	KindHTTPResponseHeaders:        {"HTTP_HEADERS", FamilyHTTP, true, false},
	KindHTTPBodyChunk:              {"HTTP_BODY_CHUNK", FamilyHTTP, true, false},
	KindHTTPResponseComplete:       {"HTTP_RESPONSE_COMPLETE", FamilyHTTP, true, true},
	KindHTTPError:                  {"HTTP_ERROR", FamilyHTTP, true, true},
	KindWebSocketOpened:            {"WS_OPENED", FamilyWebSocket, true, false},
	KindWebSocketMessageFromServer: {"WS_MESSAGE_FROM_SERVER", FamilyWebSocket, true, false},
	KindWebSocketError:             {"WS_ERROR", FamilyWebSocket, true, true},
	KindWebSocketClosedFromServer:  {"WS_CLOSED_FROM_SERVER", FamilyWebSocket, true, true},
}

// String returns the protocol name of the kind, e.g. "HTTP_HEADERS".
func (k Kind) String() string {
	if info, ok := kinds[k]; ok {
		return info.name
	}
	return fmt.Sprintf("KIND_%d", uint8(k))
}

// Known reports whether k is part of the protocol.
func (k Kind) Known() bool {
	_, ok := kinds[k]
	return ok
}

// Family returns the correlation namespace of the kind.
func (k Kind) Family() Family {
	return kinds[k].family
}

// Inbound reports whether the kind flows from the peer to the bridge.
func (k Kind) Inbound() bool {
	return kinds[k].inbound
}

// Terminal reports whether the kind ends the lifecycle of its origin
// id: HTTP complete/error and WebSocket error/closed.
func (k Kind) Terminal() bool {
	return kinds[k].terminal
}

// MessageType distinguishes text and binary WebSocket messages.
type MessageType uint8

const (
	MessageText   MessageType = 1
	MessageBinary MessageType = 2
)

func (t MessageType) String() string {
	switch t {
	case MessageText:
		return "text"
	case MessageBinary:
		return "binary"
	default:
		return fmt.Sprintf("message-type-%d", uint8(t))
	}
}

// Valid reports whether t is text or binary.
func (t MessageType) Valid() bool {
	return t == MessageText || t == MessageBinary
}
