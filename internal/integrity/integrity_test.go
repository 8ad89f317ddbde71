// Snakepit - Multiplayer Snake Arena Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/snakepit

package integrity

import (
	"strings"
	"testing"
)

func TestChecksumIsDeterministic(t *testing.T) {
	content := []byte(`{"rooms":{},"users":{}}`)

	first := Checksum(content)
	second := Checksum(content)

	if first != second {
		t.Errorf("checksum not deterministic: %s != %s", first, second)
	}
}

func TestChecksumFormat(t *testing.T) {
	sum := Checksum([]byte("payload"))

	if len(sum) != ChecksumHexLength {
		t.Errorf("expected %d hex characters, got %d", ChecksumHexLength, len(sum))
	}
	if strings.ToLower(sum) != sum {
		t.Errorf("expected lowercase hex, got %s", sum)
	}
	for _, c := range sum {
		if !strings.ContainsRune("0123456789abcdef", c) {
			t.Fatalf("non-hex character %q in checksum", c)
		}
	}
}

func TestChecksumKnownVector(t *testing.T) {
	// SHA-256 of the empty string
	const want = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

	if got := Checksum(nil); got != want {
		t.Errorf("Checksum(nil) = %s, want %s", got, want)
	}
}

func TestVerify(t *testing.T) {
	content := []byte(`{"rooms":{"r1":{"code":"ABC123"}}}`)
	sum := Checksum(content)

	if !Verify(content, sum) {
		t.Error("Verify rejected matching digest")
	}

	// A single mutated byte must fail verification
	mutated := append([]byte(nil), content...)
	mutated[0] ^= 0x01
	if Verify(mutated, sum) {
		t.Error("Verify accepted mutated content")
	}

	if Verify(content, "") {
		t.Error("Verify accepted empty expected digest")
	}
}
