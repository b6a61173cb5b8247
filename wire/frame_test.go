// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"bytes"
	"errors"
	"io"
	"testing"
)

// countingWriter records every Write call separately.
type countingWriter struct {
	writes [][]byte
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.writes = append(w.writes, append([]byte(nil), p...))
	return len(p), nil
}

func TestWriteFrameSingleWriteLittleEndian(t *testing.T) {
	writer := &countingWriter{}
	payload := []byte("abcdef")

	if err := WriteFrame(writer, payload); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if len(writer.writes) != 1 {
		t.Fatalf("WriteFrame issued %d writes, want 1", len(writer.writes))
	}
	want := append([]byte{6, 0, 0, 0}, payload...)
	if !bytes.Equal(writer.writes[0], want) {
		t.Errorf("frame = %x, want %x", writer.writes[0], want)
	}
}

func TestReadFrameSequence(t *testing.T) {
	var buffer bytes.Buffer
	for _, payload := range [][]byte{[]byte("one"), {}, []byte("three")} {
		if err := WriteFrame(&buffer, payload); err != nil {
			t.Fatalf("WriteFrame: %v", err)
		}
	}

	for _, want := range []string{"one", "", "three"} {
		got, err := ReadFrame(&buffer, 0)
		if err != nil {
			t.Fatalf("ReadFrame: %v", err)
		}
		if string(got) != want {
			t.Errorf("ReadFrame = %q, want %q", got, want)
		}
	}

	if _, err := ReadFrame(&buffer, 0); err != io.EOF {
		t.Errorf("ReadFrame at end = %v, want io.EOF", err)
	}
}

func TestReadFrameTruncated(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"partial header", []byte{5, 0}},
		{"header only", []byte{5, 0, 0, 0}},
		{"partial payload", []byte{5, 0, 0, 0, 'a', 'b'}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := ReadFrame(bytes.NewReader(test.data), 0)
			if !errors.Is(err, io.ErrUnexpectedEOF) {
				t.Errorf("got %v, want io.ErrUnexpectedEOF", err)
			}
		})
	}
}

func TestReadFrameTooLarge(t *testing.T) {
	data := []byte{0x01, 0x01, 0x00, 0x00} // 257 bytes
	_, err := ReadFrame(bytes.NewReader(data), 256)
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Errorf("got %v, want ErrFrameTooLarge", err)
	}
}

func TestReadEnvelopeSkipsPastUndecodableFrame(t *testing.T) {
	var buffer bytes.Buffer
	if err := WriteFrame(&buffer, []byte{0xff, 0xfe}); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	if err := WriteEnvelope(&buffer, Envelope{OriginID: "t1", Payload: HTTPResponseComplete{}}); err != nil {
		t.Fatalf("WriteEnvelope: %v", err)
	}

	_, err := ReadEnvelope(&buffer, 0)
	var decodeError *DecodeError
	if !errors.As(err, &decodeError) {
		t.Fatalf("first ReadEnvelope: got %v, want *DecodeError", err)
	}

	envelope, err := ReadEnvelope(&buffer, 0)
	if err != nil {
		t.Fatalf("second ReadEnvelope: %v", err)
	}
	if envelope.OriginID != "t1" || envelope.Kind() != KindHTTPResponseComplete {
		t.Errorf("second envelope = %+v", envelope)
	}
}

func TestEncodeFrameMatchesWriteEnvelope(t *testing.T) {
	envelope := Envelope{OriginID: "ws1", Payload: WebSocketOpenRequest{URL: "wss://example.com/ws"}}

	encoded, err := EncodeFrame(envelope)
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	var buffer bytes.Buffer
	if err := WriteEnvelope(&buffer, envelope); err != nil {
		t.Fatalf("WriteEnvelope: %v", err)
	}
	if !bytes.Equal(encoded, buffer.Bytes()) {
		t.Errorf("EncodeFrame = %x, WriteEnvelope = %x", encoded, buffer.Bytes())
	}
}
