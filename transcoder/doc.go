// Package transcoder converts class file bytes to and from printable text so
// they can travel inside JSON envelopes.
//
// The encoding is standard base64: three input bytes become four symbols from
// A-Z, a-z, 0-9, '+' and '/', and output is padded with '=' to a multiple of
// four characters.
//
//	text := transcoder.Encode(classBytes)
//	data, err := transcoder.Decode(text)
//	if errors.Is(err, transcoder.ErrInvalidCharacter) {
//	    // a symbol outside the alphabet
//	}
//
// Decode is deliberately lenient about framing: it trims whitespace and any
// run of trailing '=' and accepts unpadded input. It is strict about the
// alphabet: '=' in the middle, '-', '_' and embedded whitespace are rejected.
//
// Both directions operate on fully materialized buffers.
package transcoder
