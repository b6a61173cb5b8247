// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package wire

import (
	"sort"
	"strings"
)

// Header is one HTTP or WebSocket handshake header. Headers travel as
// an ordered list so that repeated keys survive the trip.
type Header struct {
	Key   string `cbor:"key"`
	Value string `cbor:"value"`
}

// HeadersFromMap converts a caller-supplied header map to the wire
// list, sorted by key so the same map always encodes to the same frame.
func HeadersFromMap(headers map[string]string) []Header {
	if len(headers) == 0 {
		return nil
	}
	list := make([]Header, 0, len(headers))
	for key, value := range headers {
		list = append(list, Header{Key: key, Value: value})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Key < list[j].Key })
	return list
}

// HeaderMap converts a wire header list to the map handed to callers.
// Values of repeated keys are joined with ", " in arrival order. The
// result is never nil.
func HeaderMap(headers []Header) map[string]string {
	result := make(map[string]string, len(headers))
	for _, header := range headers {
		if existing, ok := result[header.Key]; ok {
			result[header.Key] = strings.Join([]string{existing, header.Value}, ", ")
			continue
		}
		result[header.Key] = header.Value
	}
	return result
}
