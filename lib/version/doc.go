// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports the build version of the privbridge binary.
//
// [GitCommit], [GitDirty], [BuildTime], and [Version] are injected with
// -ldflags -X and keep their development defaults otherwise:
//
//	go build -ldflags "-X github.com/bureau-foundation/privbridge/lib/version.GitCommit=$(git rev-parse --short HEAD)"
package version
