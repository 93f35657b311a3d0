package message

import (
	"encoding/binary"
	"fmt"
	"math"
)

// The cache blob is a packed, host-endian, depth-first encoding of the
// part tree, parent before children:
//
//	flags            u32
//	physical_pos     u64   (omitted for the root)
//	hdr_physical     u64
//	hdr_virtual      u64
//	body_physical    u64
//	body_virtual     u64
//	body_lines       u32   (iff text or message/rfc822)
//	children_count   u32   (iff multipart or message/rfc822)
//	<children records follow, in order>
//
// The blob carries no strings and no version: content types and
// boundaries are recomputed from the message bytes, and the caller
// invalidates the cache when the host or software changes.

var hostEndian = binary.NativeEndian

// minSerializedSize is one root record without its optional fields.
const minSerializedSize = 4 + 8*4

// DeserializeError reports a cache blob that violates the structural
// invariants, naming the one that failed.
type DeserializeError struct {
	// Invariant describes the violated constraint.
	Invariant string

	// Offset is the byte offset within the blob where the violation was
	// detected.
	Offset int
}

func (e *DeserializeError) Error() string {
	return fmt.Sprintf("invalid part cache at byte %d: %s", e.Offset, e.Invariant)
}

// PatchError reports that an in-place header patch could not be applied
// safely.
type PatchError struct {
	Reason string
}

func (e *PatchError) Error() string {
	return "cannot patch part cache: " + e.Reason
}

// serializedSize is the byte length of one non-root record with the
// given flags. The root record is eight bytes shorter because it has no
// physical_pos field.
func serializedSize(flags Flags) int {
	size := 4 + 8*5
	if flags&countsLines != 0 {
		size += 4
	}
	if flags&countsChildren != 0 {
		size += 4
	}
	return size
}

// Serialize packs the tree into a cache blob in one pre-order pass.
// Children counts are backpatched once the child records are emitted.
func Serialize(root *Part) []byte {
	buf := make([]byte, 0, serializedSize(root.Flags)*root.Count())
	return appendPart(buf, root, true)
}

func appendPart(buf []byte, p *Part, root bool) []byte {
	buf = hostEndian.AppendUint32(buf, uint32(p.Flags))
	if !root {
		buf = hostEndian.AppendUint64(buf, p.PhysicalPos)
	}
	buf = hostEndian.AppendUint64(buf, p.HeaderSize.Physical)
	buf = hostEndian.AppendUint64(buf, p.HeaderSize.Virtual)
	buf = hostEndian.AppendUint64(buf, p.BodySize.Physical)
	buf = hostEndian.AppendUint64(buf, p.BodySize.Virtual)

	if p.Flags&countsLines != 0 {
		buf = hostEndian.AppendUint32(buf, p.BodySize.Lines)
	}

	if p.Flags&countsChildren != 0 {
		countAt := len(buf)
		buf = hostEndian.AppendUint32(buf, 0)
		for _, c := range p.Children {
			buf = appendPart(buf, c, false)
		}
		hostEndian.PutUint32(buf[countAt:], uint32(len(p.Children)))
	}

	return buf
}

type deserializer struct {
	data []byte
	off  int

	// pos tracks the end of the last fully placed part (or the start of
	// the container being filled), enforcing that children stay in
	// ascending, non-overlapping order inside their parent.
	pos uint64
}

func (d *deserializer) fail(invariant string) error {
	return &DeserializeError{Invariant: invariant, Offset: d.off}
}

func (d *deserializer) uint32() (uint32, error) {
	if d.off+4 > len(d.data) {
		return 0, d.fail("not enough data")
	}
	v := hostEndian.Uint32(d.data[d.off:])
	d.off += 4
	return v, nil
}

func (d *deserializer) uint64() (uint64, error) {
	if d.off+8 > len(d.data) {
		return 0, d.fail("not enough data")
	}
	v := hostEndian.Uint64(d.data[d.off:])
	d.off += 8
	return v, nil
}

// Deserialize unpacks a cache blob, validating the structural
// invariants as it walks. Trailing bytes are rejected.
func Deserialize(blob []byte) (*Part, error) {
	d := &deserializer{data: blob}
	parts, err := d.readParts(nil, 1)
	if err != nil {
		return nil, err
	}
	if d.off != len(d.data) {
		return nil, d.fail("too much data")
	}
	return parts[0], nil
}

func (d *deserializer) readParts(parent *Part, count uint32) ([]*Part, error) {
	root := parent == nil
	parts := make([]*Part, 0, count)

	for ; count > 0; count-- {
		p := &Part{Parent: parent}

		flags, err := d.uint32()
		if err != nil {
			return nil, err
		}
		p.Flags = Flags(flags)

		if root {
			root = false
		} else {
			if p.PhysicalPos, err = d.uint64(); err != nil {
				return nil, err
			}
		}
		if p.PhysicalPos < d.pos {
			return nil, d.fail("physical_pos less than expected")
		}

		if p.HeaderSize.Physical, err = d.uint64(); err != nil {
			return nil, err
		}
		if p.HeaderSize.Virtual, err = d.uint64(); err != nil {
			return nil, err
		}
		if p.HeaderSize.Virtual < p.HeaderSize.Physical {
			return nil, d.fail("header_size.virtual_size too small")
		}

		if p.BodySize.Physical, err = d.uint64(); err != nil {
			return nil, err
		}
		if p.BodySize.Virtual, err = d.uint64(); err != nil {
			return nil, err
		}

		if p.Flags&countsLines != 0 {
			if p.BodySize.Lines, err = d.uint32(); err != nil {
				return nil, err
			}
		}
		if p.BodySize.Virtual < p.BodySize.Physical {
			return nil, d.fail("body_size.virtual_size too small")
		}

		var childCount uint32
		if p.Flags&countsChildren != 0 {
			if childCount, err = d.uint32(); err != nil {
				return nil, err
			}
		}

		if p.Flags&FlagMessageRFC822 != 0 {
			switch {
			case childCount == 0:
				return nil, d.fail("message/rfc822 part has no children")
			case childCount != 1:
				return nil, d.fail("message/rfc822 part has multiple children")
			}
		}

		if childCount > 0 {
			// children must start after our position and the last one
			// must end within our size
			d.pos = p.PhysicalPos
			end := p.PhysicalPos + p.HeaderSize.Physical + p.BodySize.Physical

			if p.Children, err = d.readParts(p, childCount); err != nil {
				return nil, err
			}
			if d.pos > end {
				return nil, d.fail("child part location exceeds parent size")
			}
			d.pos = end
		} else {
			// a leaf must end before its next sibling starts
			d.pos = p.PhysicalPos + p.HeaderSize.Physical + p.BodySize.Physical
		}

		parts = append(parts, p)
	}

	return parts, nil
}

// PatchHeaderSize updates the root header sizes in place after the
// header region was rewritten, shifting every non-root physical_pos by
// the size delta. The blob's structure is walked flat and a corrupt
// record layout is rejected with a PatchError; by then the root sizes
// and the records walked before the fault have already been rewritten.
func PatchHeaderSize(blob []byte, newSize Size) error {
	if newSize.Physical > math.MaxInt64 {
		return &PatchError{Reason: "invalid physical_size"}
	}
	if len(blob) < minSerializedSize {
		return &PatchError{Reason: "not enough data"}
	}

	rootFlags := Flags(hostEndian.Uint32(blob))
	oldSize := hostEndian.Uint64(blob[4:])
	if oldSize > math.MaxInt64 {
		return &PatchError{Reason: "invalid physical_size"}
	}
	diff := int64(newSize.Physical) - int64(oldSize)

	hostEndian.PutUint64(blob[4:], newSize.Physical)
	hostEndian.PutUint64(blob[12:], newSize.Virtual)

	if diff == 0 {
		return nil
	}

	// update every non-root position; the root record has no
	// physical_pos field, hence the 8-byte discount
	offset := serializedSize(rootFlags) - 8
	for offset+4 < len(blob) {
		flags := Flags(hostEndian.Uint32(blob[offset:]))
		partSize := serializedSize(flags)
		if offset+partSize > len(blob) {
			return &PatchError{Reason: "not enough data"}
		}

		pos := hostEndian.Uint64(blob[offset+4:])
		if pos < oldSize || pos >= math.MaxInt64 {
			return &PatchError{Reason: "invalid offset"}
		}
		pos = uint64(int64(pos) + diff)
		if pos > math.MaxInt64 {
			return &PatchError{Reason: "invalid offset"}
		}

		hostEndian.PutUint64(blob[offset+4:], pos)
		offset += partSize
	}
	if offset != len(blob) {
		return &PatchError{Reason: "invalid size"}
	}

	return nil
}

// PeekSizes reads the root header and body sizes off a blob without
// parsing the rest of it.
func PeekSizes(blob []byte) (hdr, body Size, err error) {
	if len(blob) < minSerializedSize {
		return hdr, body, &DeserializeError{Invariant: "not enough data"}
	}

	flags := Flags(hostEndian.Uint32(blob))
	hdr.Physical = hostEndian.Uint64(blob[4:])
	hdr.Virtual = hostEndian.Uint64(blob[12:])
	body.Physical = hostEndian.Uint64(blob[20:])
	body.Virtual = hostEndian.Uint64(blob[28:])

	if flags&countsLines != 0 {
		if len(blob) < minSerializedSize+4 {
			return hdr, body, &DeserializeError{Invariant: "not enough data"}
		}
		body.Lines = hostEndian.Uint32(blob[36:])
	}

	return hdr, body, nil
}
