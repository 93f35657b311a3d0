// Package codec holds the transfer decoders used while scanning message
// bodies plus the digest helpers the POP3 APOP and CRAM collaborators
// consume. Both decoders work on partial input: they consume what they
// can and report how far they got, so callers can feed streaming blocks
// and retry the unconsumed tail with more data.
package codec

import (
	"bytes"
	"errors"
)

// ErrCorrupt is returned by Base64Decode when it hits a quartet that
// cannot be base64. The consumed offset points at that quartet so
// callers can log the position.
var ErrCorrupt = errors.New("corrupt base64 data")

const base64Chars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

var base64Rev [256]int8

func init() {
	for i := range base64Rev {
		base64Rev[i] = -1
	}
	for i := 0; i < len(base64Chars); i++ {
		base64Rev[base64Chars[i]] = int8(i)
	}
}

func isLinearSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\r' || c == '\n'
}

// Base64Decode decodes src into dst four characters at a time, skipping
// whitespace between quartets. A partial quartet at the tail is left
// unconsumed; the caller retries it with more input. The returned count
// is how many bytes of src were consumed. On corrupt input it returns
// ErrCorrupt with the count pointing at the first ill-formed quartet.
func Base64Decode(dst *bytes.Buffer, src []byte) (int, error) {
	var (
		quad     [4]byte
		qn       int
		qstart   int
		consumed int
	)

	for i := 0; i < len(src); i++ {
		c := src[i]
		if isLinearSpace(c) {
			if qn == 0 {
				consumed = i + 1
			}
			continue
		}

		if qn == 0 {
			qstart = i
		}
		quad[qn] = c
		qn++
		if qn < 4 {
			continue
		}
		qn = 0

		v0, v1 := base64Rev[quad[0]], base64Rev[quad[1]]
		if v0 < 0 || v1 < 0 {
			return qstart, ErrCorrupt
		}
		dst.WriteByte(byte(v0<<2) | byte(v1>>4))

		if quad[2] == '=' {
			if quad[3] != '=' {
				return qstart, ErrCorrupt
			}
			consumed = i + 1
			continue
		}
		v2 := base64Rev[quad[2]]
		if v2 < 0 {
			return qstart, ErrCorrupt
		}
		dst.WriteByte(byte(v1<<4) | byte(v2>>2))

		if quad[3] == '=' {
			consumed = i + 1
			continue
		}
		v3 := base64Rev[quad[3]]
		if v3 < 0 {
			return qstart, ErrCorrupt
		}
		dst.WriteByte(byte(v2<<6) | byte(v3))
		consumed = i + 1
	}

	return consumed, nil
}
