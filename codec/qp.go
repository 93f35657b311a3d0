package codec

import "bytes"

func hexVal(c byte) int {
	switch {
	case c >= '0' && c <= '9':
		return int(c - '0')
	case c >= 'A' && c <= 'F':
		return int(c-'A') + 10
	case c >= 'a' && c <= 'f':
		return int(c-'a') + 10
	}
	return -1
}

// QuotedPrintableDecode decodes src into dst. Well-formed =XX escapes
// become the named byte and soft line breaks are dropped. A non-hex
// escape is passed through verbatim, matching what deployed mailers
// emit. An incomplete escape at the tail is left unconsumed and its
// offset returned, so callers can retry it with more input.
func QuotedPrintableDecode(dst *bytes.Buffer, src []byte) int {
	i := 0
	for i < len(src) {
		c := src[i]
		if c != '=' {
			dst.WriteByte(c)
			i++
			continue
		}

		switch {
		case i+1 >= len(src):
			// tail may be a split escape
			return i
		case src[i+1] == '\n':
			i += 2
		case src[i+1] == '\r':
			if i+2 >= len(src) {
				return i
			}
			if src[i+2] == '\n' {
				i += 3
			} else {
				dst.WriteByte('=')
				i++
			}
		default:
			if i+2 >= len(src) {
				return i
			}
			hi, lo := hexVal(src[i+1]), hexVal(src[i+2])
			if hi < 0 || lo < 0 {
				dst.WriteByte('=')
				i++
				continue
			}
			dst.WriteByte(byte(hi<<4 | lo))
			i += 3
		}
	}
	return i
}
