// Snakepit - Multiplayer Snake Arena Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snakepit

// Package integrity provides content checksums for backup payloads.
//
// Checksums are SHA-256 hex digests computed over the canonical JSON
// serialization of a backup's collections. Callers are responsible for
// serialization stability (key ordering included): a digest mismatch is
// treated as fatal corruption in both the backup-validation and the
// restore-validation paths.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
)

// ChecksumHexLength is the length of a hex-encoded SHA-256 digest.
const ChecksumHexLength = 64

// Checksum returns the SHA-256 hex digest of content.
// Deterministic and side-effect free.
func Checksum(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// Verify reports whether content hashes to the expected digest.
func Verify(content []byte, expected string) bool {
	return Checksum(content) == expected
}
