// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/privbridge/lib/codec"
)

// Envelope is one protocol message: a correlation id and exactly one
// payload variant.
type Envelope struct {
	OriginID string
	Payload  Payload
}

// Kind returns the discriminant of the envelope's payload, or 0 if the
// payload is nil.
func (e Envelope) Kind() Kind {
	if e.Payload == nil {
		return 0
	}
	return e.Payload.Kind()
}

// envelopeFrame is the CBOR layout of an envelope. The payload is
// encoded on its own so that a reader can recover the id and kind of a
// frame whose variant fails to decode.
type envelopeFrame struct {
	OriginID string           `cbor:"origin_id"`
	Kind     Kind             `cbor:"kind"`
	Payload  codec.RawMessage `cbor:"payload"`
}

// ErrMissingOriginID is returned when an envelope has an empty origin
// id. Every frame must be attributable to an operation.
var ErrMissingOriginID = errors.New("wire: envelope has no origin id")

// ErrMissingPayload is returned when encoding an envelope whose payload
// is nil.
var ErrMissingPayload = errors.New("wire: envelope has no payload")

// DecodeError describes an envelope that could not be decoded. OriginID
// and Kind are populated as far as decoding got, so a caller can log
// which operation the bad frame belonged to.
type DecodeError struct {
	OriginID string
	Kind     Kind
	Err      error
}

func (e *DecodeError) Error() string {
	if e.OriginID == "" {
		return fmt.Sprintf("wire: decoding envelope: %v", e.Err)
	}
	return fmt.Sprintf("wire: decoding %s payload for %q: %v", e.Kind, e.OriginID, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Marshal encodes an envelope to CBOR (without the frame header).
func Marshal(envelope Envelope) ([]byte, error) {
	if envelope.OriginID == "" {
		return nil, ErrMissingOriginID
	}
	if envelope.Payload == nil {
		return nil, ErrMissingPayload
	}

	payload, err := codec.Marshal(envelope.Payload)
	if err != nil {
		return nil, fmt.Errorf("wire: encoding %s payload: %w", envelope.Payload.Kind(), err)
	}

	data, err := codec.Marshal(envelopeFrame{
		OriginID: envelope.OriginID,
		Kind:     envelope.Payload.Kind(),
		Payload:  payload,
	})
	if err != nil {
		return nil, fmt.Errorf("wire: encoding envelope: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a CBOR envelope. All failures are returned as
// *DecodeError.
func Unmarshal(data []byte) (Envelope, error) {
	var frame envelopeFrame
	if err := codec.Unmarshal(data, &frame); err != nil {
		return Envelope{}, &DecodeError{Err: err}
	}
	if frame.OriginID == "" {
		return Envelope{}, &DecodeError{Kind: frame.Kind, Err: ErrMissingOriginID}
	}

	target := newPayload(frame.Kind)
	if target == nil {
		return Envelope{}, &DecodeError{
			OriginID: frame.OriginID,
			Kind:     frame.Kind,
			Err:      fmt.Errorf("unknown payload kind %d", uint8(frame.Kind)),
		}
	}
	if len(frame.Payload) == 0 {
		return Envelope{}, &DecodeError{
			OriginID: frame.OriginID,
			Kind:     frame.Kind,
			Err:      errors.New("payload is empty"),
		}
	}
	if err := codec.Unmarshal(frame.Payload, target); err != nil {
		return Envelope{}, &DecodeError{OriginID: frame.OriginID, Kind: frame.Kind, Err: err}
	}

	payload := derefPayload(target)
	if err := validatePayload(payload); err != nil {
		return Envelope{}, &DecodeError{OriginID: frame.OriginID, Kind: frame.Kind, Err: err}
	}
	return Envelope{OriginID: frame.OriginID, Payload: payload}, nil
}

// validatePayload checks the invariants CBOR cannot express.
func validatePayload(payload Payload) error {
	switch p := payload.(type) {
	case WebSocketMessageToServer:
		if !p.Type.Valid() {
			return fmt.Errorf("invalid message type %d", uint8(p.Type))
		}
	case WebSocketMessageFromServer:
		if !p.Type.Valid() {
			return fmt.Errorf("invalid message type %d", uint8(p.Type))
		}
	}
	return nil
}
