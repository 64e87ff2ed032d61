package transcoder

import (
	"encoding/base64"
	"strings"

	"github.com/wippyai/krakatau-bridge/errors"
)

// Alphabet is the 64-symbol alphabet, in value order.
const Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

// Padding pads encoded output to a multiple of four characters.
const Padding = '='

// ErrInvalidCharacter matches any decode failure caused by a symbol outside Alphabet.
var ErrInvalidCharacter = &errors.Error{Phase: errors.PhaseDecode, Kind: errors.KindInvalidCharacter}

// invalid marks bytes outside the alphabet in decodeMap.
const invalid = 0xff

var decodeMap = func() [256]byte {
	var m [256]byte
	for i := range m {
		m[i] = invalid
	}
	for i := 0; i < len(Alphabet); i++ {
		m[Alphabet[i]] = byte(i)
	}
	return m
}()

// Encode converts raw bytes to padded base64 text. Empty input encodes to "".
func Encode(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// EncodedLen returns the length of Encode output for n input bytes.
func EncodedLen(n int) int {
	return base64.StdEncoding.EncodedLen(n)
}

// Decode converts base64 text back to bytes.
//
// Surrounding whitespace and trailing padding are ignored. Symbols are packed
// six bits at a time and a byte is emitted whenever eight bits are buffered;
// leftover bits at the end are discarded. Empty or whitespace-only input
// yields an empty, non-nil slice.
func Decode(text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimRight(text, string(Padding))
	if text == "" {
		return []byte{}, nil
	}

	out := make([]byte, 0, DecodedLen(len(text)))
	var buf uint32
	var bits uint

	for i := 0; i < len(text); i++ {
		v := decodeMap[text[i]]
		if v == invalid {
			return nil, errors.InvalidCharacter(errors.PhaseDecode, text[i], i)
		}

		buf = buf<<6 | uint32(v)
		bits += 6

		if bits >= 8 {
			bits -= 8
			out = append(out, byte(buf>>bits))
			buf &= 1<<bits - 1
		}
	}

	return out, nil
}

// DecodedLen returns the number of bytes Decode produces for n symbols
// (padding excluded).
func DecodedLen(n int) int {
	return n * 6 / 8
}
