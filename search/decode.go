// Package search answers whether a substring occurs in a message,
// scanning headers with RFC 2047 decoding and bodies through the
// transfer decoder and charset converter each leaf declares. A search
// is a synchronous walk of the part tree over a caller-owned stream;
// the only failures that abort it are an unusable search key and a
// tree that no longer matches the stream.
package search

import (
	"bytes"

	"github.com/zostay/go-mailpart/codec"
)

// decodeFunc receives decoded header chunks. charsetName is empty for
// literal runs. Returning false stops the walk.
type decodeFunc func(data []byte, charsetName string) bool

// encodedWord is one parsed =?charset?enc?text?= token.
type encodedWord struct {
	charsetName string
	enc         byte // 'Q' or 'B'
	text        []byte
	size        int // total bytes including the leading =? and trailing ?=
}

// parseEncodedWord parses an encoded word at the start of data, which
// must begin with "=?".
func parseEncodedWord(data []byte) (encodedWord, bool) {
	var w encodedWord

	rest := data[2:]
	q1 := bytes.IndexByte(rest, '?')
	if q1 < 0 || q1+2 >= len(rest) || rest[q1+2] != '?' {
		return w, false
	}
	w.charsetName = string(rest[:q1])

	switch rest[q1+1] {
	case 'Q', 'q':
		w.enc = 'Q'
	case 'B', 'b':
		w.enc = 'B'
	default:
		return w, false
	}

	text := rest[q1+3:]
	end := bytes.Index(text, []byte("?="))
	if end < 0 {
		return w, false
	}
	w.text = text[:end]
	w.size = 2 + q1 + 3 + end + 2
	return w, true
}

// decodeWord decodes the text of an encoded word. A corrupt payload
// reports failure so the caller can fall back to the raw bytes.
func decodeWord(w encodedWord) ([]byte, bool) {
	var out bytes.Buffer
	if w.enc == 'Q' {
		// in Q encoding an underscore is a space; it can never occur
		// inside an =XX escape, so mapping up front is safe
		text := bytes.ReplaceAll(w.text, []byte("_"), []byte(" "))
		n := codec.QuotedPrintableDecode(&out, text)
		out.Write(text[n:])
		return out.Bytes(), true
	}
	if _, err := codec.Base64Decode(&out, w.text); err != nil {
		return nil, false
	}
	return out.Bytes(), true
}

// decodeHeader walks a header block and emits a chunk per run of
// literal bytes and per well-formed encoded word. Malformed or corrupt
// encoded words are emitted verbatim as literal bytes; adjacent encoded
// words are not joined.
func decodeHeader(data []byte, fn decodeFunc) {
	start := 0
	pos := 0
	for pos < len(data) {
		if data[pos] != '=' || pos+1 >= len(data) || data[pos+1] != '?' {
			pos++
			continue
		}

		w, ok := parseEncodedWord(data[pos:])
		if !ok {
			pos += 2
			continue
		}
		decoded, ok := decodeWord(w)
		if !ok {
			// corrupt payload: the raw word stays in the literal run
			pos += w.size
			continue
		}

		if pos > start {
			if !fn(data[start:pos], "") {
				return
			}
		}
		if !fn(decoded, w.charsetName) {
			return
		}
		pos += w.size
		start = pos
	}

	if start < len(data) {
		fn(data[start:], "")
	}
}
