// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// frameHeaderLength is the size of the length prefix.
const frameHeaderLength = 4

// DefaultMaxFrameLength bounds the payload of a single frame. Body
// chunks from the peer are typically a few kilobytes; 16 MiB leaves room
// for a peer that forwards large chunks unsplit.
const DefaultMaxFrameLength = 16 * 1024 * 1024

// ErrFrameTooLarge is returned by ReadFrame when the length prefix
// exceeds the configured maximum. The stream cannot be resynchronized
// after this error.
var ErrFrameTooLarge = errors.New("wire: frame exceeds maximum length")

// AppendFrame appends the length prefix and payload to dst.
func AppendFrame(dst, payload []byte) []byte {
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(payload)))
	return append(dst, payload...)
}

// WriteFrame writes one frame to w using a single Write call, so that a
// frame is never split by this side into separate writes.
func WriteFrame(w io.Writer, payload []byte) error {
	frame := AppendFrame(make([]byte, 0, frameHeaderLength+len(payload)), payload)
	written, err := w.Write(frame)
	if err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	if written != len(frame) {
		return fmt.Errorf("write frame: %w", io.ErrShortWrite)
	}
	return nil
}

// ReadFrame reads one frame from r and returns its payload. A clean end
// of stream before the first header byte returns io.EOF; a stream that
// ends mid-frame returns an error wrapping io.ErrUnexpectedEOF. A
// maxLength of zero or less selects DefaultMaxFrameLength.
func ReadFrame(r io.Reader, maxLength int) ([]byte, error) {
	if maxLength <= 0 {
		maxLength = DefaultMaxFrameLength
	}

	var header [frameHeaderLength]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read frame header: %w", err)
	}

	length := binary.LittleEndian.Uint32(header[:])
	if uint64(length) > uint64(maxLength) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, length, maxLength)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return payload, nil
}

// EncodeFrame marshals an envelope and prefixes it with its length.
func EncodeFrame(envelope Envelope) ([]byte, error) {
	data, err := Marshal(envelope)
	if err != nil {
		return nil, err
	}
	return AppendFrame(make([]byte, 0, frameHeaderLength+len(data)), data), nil
}

// WriteEnvelope encodes an envelope and writes it as one frame.
func WriteEnvelope(w io.Writer, envelope Envelope) error {
	data, err := Marshal(envelope)
	if err != nil {
		return err
	}
	return WriteFrame(w, data)
}

// ReadEnvelope reads one frame and decodes it. Framing errors are
// returned as-is; decoding errors are *DecodeError and leave r
// positioned at the next frame.
func ReadEnvelope(r io.Reader, maxLength int) (Envelope, error) {
	data, err := ReadFrame(r, maxLength)
	if err != nil {
		return Envelope{}, err
	}
	return Unmarshal(data)
}
