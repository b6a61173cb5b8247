// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the entrypoint error handler for the privbridge
// binary: the one place that writes to stderr before the structured
// logger exists.
package process
