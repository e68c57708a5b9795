// Package textutil checks raw query input before it reaches the parser and
// measures it in the parser's row model.
package textutil

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// BinarySniffLength is the maximum number of bytes scanned for null-byte
// detection. Matches the heuristic used by Git and most editors.
const BinarySniffLength = 8000

var (
	// ErrBinary is returned for input containing a null byte.
	ErrBinary = errors.New("input looks like binary data")
	// ErrInvalidUTF8 is returned for input that is not valid UTF-8.
	ErrInvalidUTF8 = errors.New("input is not valid UTF-8")
)

// IsBinary returns true if data contains a null byte within the first
// BinarySniffLength bytes. Empty data is not binary.
func IsBinary(data []byte) bool {
	sniff := data
	if len(sniff) > BinarySniffLength {
		sniff = sniff[:BinarySniffLength]
	}

	return bytes.IndexByte(sniff, 0) >= 0
}

// CheckText rejects input the SQL grammars cannot meaningfully parse.
func CheckText(data []byte) error {
	if IsBinary(data) {
		return ErrBinary
	}

	if !utf8.Valid(data) {
		idx := invalidOffset(data)

		return fmt.Errorf("%w: byte %d", ErrInvalidUTF8, idx)
	}

	return nil
}

func invalidOffset(data []byte) int {
	for idx := 0; idx < len(data); {
		r, size := utf8.DecodeRune(data[idx:])
		if r == utf8.RuneError && size <= 1 {
			return idx
		}

		idx += size
	}

	return len(data)
}

// Rows returns how many rows text spans in the position model: every
// newline starts a new row, so a trailing newline adds an empty last row.
// Empty text has no rows.
func Rows(text string) int {
	if text == "" {
		return 0
	}

	return strings.Count(text, "\n") + 1
}
