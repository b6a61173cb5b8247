// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the privbridge configuration file.
//
// The file is named by the --config flag (via [LoadFile]) or the
// PRIVBRIDGE_CONFIG environment variable (via [Load]). There is no
// discovery and no other source of settings besides command-line flags,
// which the binary applies on top of the loaded file.
//
// Files ending in .json or .jsonc are read as JSON with comments and
// trailing commas; anything else is YAML.
//
// Environment sections (development, staging, production) override the
// base values when [Config].Environment matches. The peer address
// supports ${VAR} and ${VAR:-default} expansion.
//
// [Config.Validate] enforces the trust model: the peer must be reached
// over loopback.
package config
