// Package charset translates message bytes from a declared character
// set into upper-cased UTF-8 for searching. The charset repertoire is
// loaded from golang.org/x/text/encoding/ianaindex with the charmap
// tables linked in, which covers pretty much anything a message in the
// wild will declare. Upper-casing uses the locale-independent simple
// Unicode mapping so keys and message text fold identically.
package charset

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	_ "golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"
)

// Errors reported for whole conversions.
var (
	// ErrUnknownCharset is returned when the IANA index has no encoding
	// registered under the given name.
	ErrUnknownCharset = errors.New("unknown charset")

	// ErrInvalidInput is returned when the input cannot be interpreted
	// in the declared charset.
	ErrInvalidInput = errors.New("input is invalid in the declared charset")
)

// Result describes the outcome of one Convert call.
type Result int

const (
	// Full means every byte of input was converted and written.
	Full Result = iota

	// OutputFull means the output buffer ran out. The converter holds
	// the overflow; the caller flushes the output and calls Convert
	// again with the unconsumed input.
	OutputFull

	// IncompleteInput means the input ends inside a multi-byte
	// sequence. The unconsumed tail bytes must be carried over and
	// prepended to the next block.
	IncompleteInput

	// InvalidInput means the input cannot be interpreted in the
	// declared charset. The conversion cannot proceed.
	InvalidInput
)

// Converter translates one charset to upper-cased UTF-8. A converter is
// cheap to construct; one is used per message part.
type Converter struct {
	dec     transform.Transformer // nil for the UTF-8 and ASCII fast paths
	ascii   bool
	pending []byte // upper-cased output that did not fit the last dst
}

// NewConverter builds a converter for the named charset. The empty name
// means the input is already UTF-8 and only needs upper-casing. Unknown
// names fail with ErrUnknownCharset.
func NewConverter(name string) (*Converter, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8":
		return &Converter{}, nil
	case "us-ascii", "ascii", "ansi_x3.4-1968":
		return &Converter{ascii: true}, nil
	}

	e, err := ianaindex.MIME.Encoding(name)
	if err != nil || e == nil {
		return nil, ErrUnknownCharset
	}
	return &Converter{dec: e.NewDecoder().Transformer}, nil
}

// Reset drops any overflow held from an OutputFull result.
func (c *Converter) Reset() {
	c.pending = nil
}

// Convert translates src and writes the upper-cased UTF-8 form into dst
// from its start, returning how many bytes were written and consumed.
// dst is filled up to its length; when it runs out the overflow is held
// internally and returned by the next call, signalled by OutputFull.
func (c *Converter) Convert(dst, src []byte) (nDst, nSrc int, res Result) {
	// flush overflow from the previous call first
	if len(c.pending) > 0 {
		n := copy(dst, c.pending)
		nDst = n
		c.pending = c.pending[n:]
		if len(c.pending) > 0 {
			return nDst, 0, OutputFull
		}
		dst = dst[n:]
	}

	decoded, consumed, res := c.toUTF8(src)
	nSrc = consumed
	if res == InvalidInput {
		return nDst, nSrc, InvalidInput
	}

	// upper-case rune by rune into dst, spilling into pending
	for len(decoded) > 0 {
		r, size := utf8.DecodeRune(decoded)
		decoded = decoded[size:]
		var enc [utf8.UTFMax]byte
		n := utf8.EncodeRune(enc[:], unicode.ToUpper(r))
		if len(c.pending) == 0 && n <= len(dst) {
			copy(dst, enc[:n])
			dst = dst[n:]
			nDst += n
		} else {
			c.pending = append(c.pending, enc[:n]...)
		}
	}
	if len(c.pending) > 0 {
		return nDst, nSrc, OutputFull
	}
	return nDst, nSrc, res
}

// toUTF8 translates src to UTF-8, reporting how much was consumed. The
// unconsumed tail is either empty, or the prefix of a split multi-byte
// sequence when the result is IncompleteInput.
func (c *Converter) toUTF8(src []byte) ([]byte, int, Result) {
	switch {
	case c.ascii:
		for i, b := range src {
			if b >= 0x80 {
				return src[:i], i, InvalidInput
			}
		}
		return src, len(src), Full

	case c.dec == nil:
		// input claims UTF-8; validate and detect a split tail rune
		for i := 0; i < len(src); {
			r, size := utf8.DecodeRune(src[i:])
			if r == utf8.RuneError && size <= 1 {
				if !utf8.FullRune(src[i:]) {
					return src[:i], i, IncompleteInput
				}
				return src[:i], i, InvalidInput
			}
			i += size
		}
		return src, len(src), Full

	default:
		out := make([]byte, 4*len(src)+utf8.UTFMax)
		c.dec.Reset()
		nDst, nSrc, err := c.dec.Transform(out, src, false)
		decoded := out[:nDst]
		if bytes.ContainsRune(decoded, utf8.RuneError) {
			// x/text decoders substitute U+FFFD rather than fail
			return decoded, nSrc, InvalidInput
		}
		switch {
		case err == nil:
			return decoded, nSrc, Full
		case errors.Is(err, transform.ErrShortSrc):
			return decoded, nSrc, IncompleteInput
		default:
			return decoded, nSrc, InvalidInput
		}
	}
}

// NewReader wraps r so that reads produce UTF-8 decoded from the named
// charset, without case mapping. It is shaped to serve as the
// CharsetReader of a mime.WordDecoder.
func NewReader(name string, r io.Reader) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "utf-8", "utf8", "us-ascii", "ascii", "ansi_x3.4-1968":
		return r, nil
	}
	e, err := ianaindex.MIME.Encoding(name)
	if err != nil || e == nil {
		return nil, ErrUnknownCharset
	}
	return transform.NewReader(r, e.NewDecoder()), nil
}

// ToUpperUTF8String converts s from the named charset into an
// upper-cased UTF-8 string in one shot. Truncated trailing sequences
// make the input invalid.
func ToUpperUTF8String(name, s string) (string, error) {
	c, err := NewConverter(name)
	if err != nil {
		return "", err
	}

	var (
		out bytes.Buffer
		buf [256]byte
		src = []byte(s)
	)
	for {
		nDst, nSrc, res := c.Convert(buf[:], src)
		out.Write(buf[:nDst])
		src = src[nSrc:]
		switch res {
		case Full:
			if len(src) == 0 {
				return out.String(), nil
			}
		case OutputFull:
			// loop flushes and retries
		case IncompleteInput, InvalidInput:
			return "", ErrInvalidInput
		}
	}
}
