package hxcommunity

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// Obfuscate encodes v as base64(reverse(json)). It hides payloads from
// casual inspection only; anyone can reverse it.
//
// Non-ASCII characters are written as \u escapes before reversing, so the
// encoded text is plain ASCII and survives base64 implementations that only
// accept Latin-1 input.
func Obfuscate(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString([]byte(reverseRunes(asciiJSON(b)))), nil
}

// Deobfuscate reverses Obfuscate and decodes the JSON into v.
func Deobfuscate(encoded string, v interface{}) error {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if err := json.Unmarshal([]byte(reverseRunes(string(raw))), v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

func reverseRunes(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

// asciiJSON rewrites every non-ASCII rune of an encoded JSON document as a
// \uXXXX escape, using surrogate pairs above the BMP. Non-ASCII runes can
// only occur inside string literals, where the escape is equivalent.
func asciiJSON(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b))
	for len(b) > 0 {
		r, size := utf8.DecodeRune(b)
		b = b[size:]
		switch {
		case r < utf8.RuneSelf:
			sb.WriteRune(r)
		case r > 0xFFFF:
			r1, r2 := utf16.EncodeRune(r)
			fmt.Fprintf(&sb, `\u%04x\u%04x`, r1, r2)
		default:
			fmt.Fprintf(&sb, `\u%04x`, r)
		}
	}
	return sb.String()
}
