package search

import (
	"math"
	"strings"

	"github.com/zostay/go-mailpart/charset"
)

// HeaderSearch is the folded-header substring matcher. Feed it header
// blocks as they stream by; once a match is found the state sticks and
// further input is ignored. Partial matches never span two logical
// headers: a line break followed by anything but whitespace resets
// them, while folded continuations scan as a single space.
type HeaderSearch struct {
	key          []byte
	keyCharset   string
	keyASCII     bool
	noKeyCharset bool

	// matches holds the active partial-match offsets into key. Its
	// capacity is the key length; offsets are strictly increasing per
	// scanned byte so it can never need more.
	matches []int

	found       bool
	lastNewline bool
	submatch    bool
}

// NewHeaderSearch builds a matcher for the key given in the named
// charset. The key is upper-cased through the charset converter; an
// empty or unconvertible key fails with ErrInvalidKey and an unknown
// key charset with ErrUnknownCharset.
func NewHeaderSearch(key, keyCharset string) (*HeaderSearch, error) {
	ukey, err := prepareKey(key, keyCharset)
	if err != nil {
		return nil, err
	}
	return newPreparedHeaderSearch(ukey, keyCharset), nil
}

// prepareKey upper-cases the search key into UTF-8 and applies the key
// validity rules.
func prepareKey(key, keyCharset string) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}
	ukey, err := charset.ToUpperUTF8String(keyCharset, key)
	switch {
	case err == charset.ErrUnknownCharset:
		return "", ErrUnknownCharset
	case err != nil:
		return "", ErrInvalidKey
	case len(ukey) == 0 || int64(len(ukey)) > math.MaxInt32:
		return "", ErrInvalidKey
	}
	return ukey, nil
}

// newPreparedHeaderSearch wires a matcher around an already prepared
// (upper-cased UTF-8) key.
func newPreparedHeaderSearch(ukey, keyCharset string) *HeaderSearch {
	hs := &HeaderSearch{
		key:          []byte(ukey),
		keyCharset:   keyCharset,
		noKeyCharset: keyCharset == "",
		keyASCII:     true,
	}
	for _, b := range hs.key {
		if b >= 0x80 {
			hs.keyASCII = false
			break
		}
	}
	hs.matches = make([]int, 0, len(hs.key))
	return hs
}

// Found reports whether a full match has been seen.
func (hs *HeaderSearch) Found() bool { return hs.found }

// Reset clears all match state so the matcher can scan another header
// block sequence.
func (hs *HeaderSearch) Reset() {
	hs.matches = hs.matches[:0]
	hs.found = false
	hs.lastNewline = false
}

// SearchBlock runs one header block through the RFC 2047 decoder and
// the match loop, returning whether a full match has been seen so far.
func (hs *HeaderSearch) SearchBlock(block []byte) bool {
	if hs.found {
		return true
	}
	decodeHeader(block, func(data []byte, charsetName string) bool {
		if charsetName != "" {
			hs.searchWithCharset(data, charsetName)
		} else {
			hs.searchLoop(data)
		}
		return !hs.found
	})
	return hs.found
}

// searchWithCharset converts a chunk to upper-cased UTF-8 and scans it
// in submatch mode, where no ASCII folding is applied because the
// converter already upper-cased everything.
func (hs *HeaderSearch) searchWithCharset(data []byte, charsetName string) {
	switch {
	case hs.noKeyCharset:
		// no declared key charset: match as same-charset bytes
		charsetName = ""
	case strings.EqualFold(charsetName, "x-unknown"):
		// the header does not know its own charset; the key is already
		// UTF-8, so compare via the key's charset instead
		charsetName = hs.keyCharset
	}

	udata, err := charset.ToUpperUTF8String(charsetName, string(data))
	if err != nil {
		// unknown charset or invalid data; skip the chunk
		return
	}

	hs.submatch = true
	hs.searchLoop([]byte(udata))
	hs.submatch = false
}

func isLWSP(b byte) bool { return b == ' ' || b == '\t' }

// searchLoop is the byte-level matcher. It tracks a set of partial
// match offsets; each input byte either extends or kills every active
// offset and possibly starts a new one.
func (hs *HeaderSearch) searchLoop(data []byte) {
	lastNewline := hs.lastNewline
	for pos := 0; pos < len(data); pos++ {
		chr := data[pos]

		if !hs.submatch {
			if chr < 0x80 {
				if chr >= 'a' && chr <= 'z' {
					chr -= 'a' - 'A'
				}
			} else if !hs.keyASCII && !hs.noKeyCharset {
				// raw non-ASCII in the header while the key has
				// non-ASCII too: treat the rest of the chunk as encoded
				// with the key's charset
				hs.searchWithCharset(data[pos:], hs.keyCharset)
				break
			}
		}

		if lastNewline && !hs.submatch {
			if !isLWSP(chr) {
				// a new logical header begins; matches cannot span it
				hs.matches = hs.matches[:0]
			}
			chr = ' '
		}
		lastNewline = chr == '\n'

		if chr == '\r' || chr == '\n' {
			continue
		}

		for i := len(hs.matches) - 1; i >= 0; i-- {
			if hs.key[hs.matches[i]] == chr {
				hs.matches[i]++
				if hs.matches[i] == len(hs.key) {
					hs.found = true
					return
				}
			} else {
				hs.matches = append(hs.matches[:i], hs.matches[i+1:]...)
			}
		}

		if chr == hs.key[0] {
			if len(hs.key) == 1 {
				hs.found = true
				return
			}
			hs.matches = append(hs.matches, 1)
		}
	}
	hs.lastNewline = lastNewline
}
