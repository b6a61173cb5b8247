// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds the CBOR encoding configuration shared by the
// bridge and the privileged peer protocol.
//
// Both ends of the peer connection must agree byte-for-byte on how an
// envelope is laid out, so every encoder in the module goes through the
// modes configured here. The encoder uses Core Deterministic Encoding
// (RFC 8949 §4.2): sorted map keys, smallest integer encoding, no
// indefinite-length items. The decoder rejects duplicate map keys,
// which would otherwise let a malformed frame smuggle two different
// payload discriminants past a reader.
//
// For whole values (one frame payload at a time):
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// [RawMessage] defers decoding of a nested value until its shape is
// known, which is how the wire package decodes a tagged payload after
// reading the discriminant. [DiagnoseFirst] renders CBOR diagnostic
// notation for log output when a frame fails to decode.
//
// Struct tags: types in this module use `cbor` tags only. None of the
// protocol types are ever rendered as JSON.
package codec
