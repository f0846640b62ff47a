// Package codec wraps the wire encodings used at the edges of the parsing
// pipeline: base58 for pubkeys/signatures, base64 for log "data" records.
package codec

import (
	"encoding/base64"
	"fmt"

	"github.com/mr-tron/base58"
)

// PubkeySize is the fixed width of a program id / account pubkey.
const PubkeySize = 32

// DecodeB58Array decodes s and checks it is exactly n bytes.
func DecodeB58Array(s string, n int) ([]byte, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("base58 decode %q: %w", s, err)
	}
	if len(raw) != n {
		return nil, fmt.Errorf("base58 value %q decodes to %d bytes, want %d", s, len(raw), n)
	}
	return raw, nil
}

// DecodeB58 decodes s with no length constraint, for variable-length
// payloads such as instruction data.
func DecodeB58(s string) ([]byte, error) {
	if s == "" {
		return []byte{}, nil
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("base58 decode %q: %w", s, err)
	}
	return raw, nil
}

// EncodeB58 encodes raw bytes to their canonical base58 text form.
func EncodeB58(raw []byte) string {
	return base58.Encode(raw)
}

// DecodeBase64 decodes standard base64 text, as used by "Program data:" log lines.
func DecodeBase64(s string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("base64 decode: %w", err)
	}
	return raw, nil
}
