// Package message models the MIME structure of a mail message as a tree
// of parts with byte-accurate positions and sizes, parses that tree off
// a byte stream, and packs it into the compact cache blob the rest of
// the suite stores alongside the message. The tree records where things
// are, never what they say: content types, boundaries and header text
// are recomputed from the message bytes whenever they are needed.
package message

// Size describes one region of a message.
type Size struct {
	// Physical is the raw on-disk byte count.
	Physical uint64

	// Virtual is the byte count as it would appear with CRLF line
	// endings: physical plus one per bare LF. Virtual is never smaller
	// than Physical.
	Virtual uint64

	// Lines counts body lines. It stays zero for header sizes and for
	// parts that are neither text nor an embedded message.
	Lines uint32
}

// Add accumulates another size into this one.
func (s *Size) Add(o Size) {
	s.Physical += o.Physical
	s.Virtual += o.Virtual
	s.Lines += o.Lines
}

// Flags classify a part.
type Flags uint32

const (
	// FlagMultipart marks multipart/* parts.
	FlagMultipart Flags = 1 << iota

	// FlagMultipartSigned marks multipart/signed parts, which readers
	// must not re-encode.
	FlagMultipartSigned

	// FlagMessageRFC822 marks parts that encapsulate a nested message.
	FlagMessageRFC822

	// FlagText marks text/* parts, and is the default when a part
	// declares no Content-Type at all.
	FlagText

	// FlagHasBoundary marks parts whose Content-Type declared a
	// boundary parameter, whether or not it produced children.
	FlagHasBoundary
)

// Flag bits that determine which optional fields a serialized part
// record carries.
const (
	countsLines    = FlagText | FlagMessageRFC822
	countsChildren = FlagMultipart | FlagMessageRFC822
)

// Part is a node in the structural tree of a message. Parts are created
// by Parse or Deserialize and immutable afterwards; the only mutation
// the suite performs is PatchHeaderSize on the serialized form.
type Part struct {
	Flags Flags

	// PhysicalPos is the byte offset of the part within the containing
	// stream. The root is always at 0.
	PhysicalPos uint64

	// HeaderSize spans the header region including the blank separator
	// line. BodySize spans the rest of the part.
	HeaderSize Size
	BodySize   Size

	// Parent is a back-reference, not ownership. It is nil on the root.
	Parent *Part

	// Children are ordered by ascending PhysicalPos and present only on
	// multipart and message/rfc822 parts.
	Children []*Part
}

// IsMultipart reports whether the part is a multipart container.
func (p *Part) IsMultipart() bool { return p.Flags&FlagMultipart != 0 }

// IsMessage reports whether the part encapsulates a nested message.
func (p *Part) IsMessage() bool { return p.Flags&FlagMessageRFC822 != 0 }

// IsText reports whether the part holds text content.
func (p *Part) IsText() bool { return p.Flags&FlagText != 0 }

// TotalSize is the physical byte length of the whole part, header and
// body together.
func (p *Part) TotalSize() uint64 {
	return p.HeaderSize.Physical + p.BodySize.Physical
}

// NextSibling returns the next child of the same parent, or nil.
func (p *Part) NextSibling() *Part {
	if p.Parent == nil {
		return nil
	}
	for i, c := range p.Parent.Children {
		if c == p && i+1 < len(p.Parent.Children) {
			return p.Parent.Children[i+1]
		}
	}
	return nil
}

// Walk visits the tree depth-first, parents before children, stopping
// early when fn returns false.
func (p *Part) Walk(fn func(*Part) bool) bool {
	if !fn(p) {
		return false
	}
	for _, c := range p.Children {
		if !c.Walk(fn) {
			return false
		}
	}
	return true
}

// Count returns the number of parts in the tree rooted here.
func (p *Part) Count() int {
	n := 0
	p.Walk(func(*Part) bool { n++; return true })
	return n
}
