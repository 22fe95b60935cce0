// Package wire implements the byte-addressed, cursor-based buffer that the
// DNS codec reads and writes through: a fixed 512-byte shape for UDP
// datagrams and a growable shape for TCP streams and outbound response
// assembly. Both are the same Buffer type; NewFixed and NewGrowable just
// pick the backing store's growth behavior.
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/dnsscience/dnsscienced/internal/dnserr"
)

const (
	// FixedSize is the UDP datagram buffer size (RFC 1035 §2.3.4, absent
	// EDNS0 payload-size negotiation).
	FixedSize = 512

	maxLabelLength  = 63
	maxDomainLength = 255

	// maxJumps bounds the number of compression-pointer hops ReadName
	// will follow before failing with ErrLimitsExceeded. The spec requires
	// at least 5; 32 comfortably covers any legitimate packet while
	// still rejecting pointer loops promptly.
	maxJumps = 32
)

// Buffer is a byte-addressed buffer with a read/write cursor.
type Buffer struct {
	buf      []byte
	pos      int
	growable bool
}

// NewFixed returns a 512-byte buffer that does not grow past its capacity;
// writes past FixedSize fail with dnserr.ErrLimitsExceeded. This is the
// shape UDP datagrams are read into and written from.
func NewFixed() *Buffer {
	return &Buffer{buf: make([]byte, FixedSize), growable: false}
}

// NewGrowable returns a buffer that grows on demand, used for TCP streams
// and for assembling outbound responses before a size limit is applied.
func NewGrowable() *Buffer {
	return &Buffer{buf: make([]byte, 0, FixedSize), growable: true}
}

// FromBytes wraps an existing byte slice for reading (e.g. a datagram just
// received, or a length-prefixed TCP payload already read into memory).
func FromBytes(b []byte) *Buffer {
	return &Buffer{buf: b, growable: false}
}

// Bytes returns the buffer's contents up to its current write extent (for a
// growable buffer) or its full fixed capacity.
func (b *Buffer) Bytes() []byte {
	return b.buf
}

// Len returns the number of bytes currently in the buffer.
func (b *Buffer) Len() int {
	return len(b.buf)
}

// Pos returns the current cursor position.
func (b *Buffer) Pos() int {
	return b.pos
}

// Seek moves the cursor to an absolute position.
func (b *Buffer) Seek(p int) error {
	if p < 0 {
		return fmt.Errorf("seek %d: %w", p, dnserr.ErrInvalidInput)
	}
	b.pos = p
	return nil
}

// Step advances the cursor by n bytes.
func (b *Buffer) Step(n int) error {
	return b.Seek(b.pos + n)
}

func (b *Buffer) ensure(n int) error {
	need := b.pos + n
	if need <= len(b.buf) {
		return nil
	}
	if !b.growable {
		return fmt.Errorf("write past fixed buffer end: %w", dnserr.ErrLimitsExceeded)
	}
	grown := make([]byte, need)
	copy(grown, b.buf)
	b.buf = grown
	return nil
}

func (b *Buffer) checkRead(n int) error {
	if b.pos+n > len(b.buf) {
		return fmt.Errorf("read past buffer end at %d: %w", b.pos, dnserr.ErrInvalidInput)
	}
	return nil
}

// ReadUint8 reads one byte, advancing the cursor.
func (b *Buffer) ReadUint8() (uint8, error) {
	if err := b.checkRead(1); err != nil {
		return 0, err
	}
	v := b.buf[b.pos]
	b.pos++
	return v, nil
}

// ReadUint16 reads a big-endian 16-bit integer, advancing the cursor.
func (b *Buffer) ReadUint16() (uint16, error) {
	if err := b.checkRead(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(b.buf[b.pos : b.pos+2])
	b.pos += 2
	return v, nil
}

// ReadUint32 reads a big-endian 32-bit integer, advancing the cursor.
func (b *Buffer) ReadUint32() (uint32, error) {
	if err := b.checkRead(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(b.buf[b.pos : b.pos+4])
	b.pos += 4
	return v, nil
}

// WriteUint8 writes one byte, advancing the cursor.
func (b *Buffer) WriteUint8(v uint8) error {
	if err := b.ensure(1); err != nil {
		return err
	}
	b.buf[b.pos] = v
	b.pos++
	return nil
}

// WriteUint16 writes a big-endian 16-bit integer, advancing the cursor.
func (b *Buffer) WriteUint16(v uint16) error {
	if err := b.ensure(2); err != nil {
		return err
	}
	binary.BigEndian.PutUint16(b.buf[b.pos:b.pos+2], v)
	b.pos += 2
	return nil
}

// WriteUint32 writes a big-endian 32-bit integer, advancing the cursor.
func (b *Buffer) WriteUint32(v uint32) error {
	if err := b.ensure(4); err != nil {
		return err
	}
	binary.BigEndian.PutUint32(b.buf[b.pos:b.pos+4], v)
	b.pos += 4
	return nil
}

// WriteBytes writes raw bytes, advancing the cursor.
func (b *Buffer) WriteBytes(p []byte) error {
	if err := b.ensure(len(p)); err != nil {
		return err
	}
	copy(b.buf[b.pos:b.pos+len(p)], p)
	b.pos += len(p)
	return nil
}

// ReadBytes reads n raw bytes, advancing the cursor.
func (b *Buffer) ReadBytes(n int) ([]byte, error) {
	if err := b.checkRead(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b.buf[b.pos:b.pos+n])
	b.pos += n
	return out, nil
}

// GetRange returns a slice view of [start, start+length) without advancing
// the cursor or allocating.
func (b *Buffer) GetRange(start, length int) ([]byte, error) {
	if start < 0 || start+length > len(b.buf) {
		return nil, fmt.Errorf("range [%d,%d): %w", start, start+length, dnserr.ErrInvalidInput)
	}
	return b.buf[start : start+length], nil
}

// SetUint16 back-patches a 16-bit field at an already-written position
// (used for RDLENGTH once the record's RDATA size is known), without
// disturbing the cursor.
func (b *Buffer) SetUint16(pos int, v uint16) error {
	if pos < 0 || pos+2 > len(b.buf) {
		return fmt.Errorf("set_u16 at %d: %w", pos, dnserr.ErrInvalidInput)
	}
	binary.BigEndian.PutUint16(b.buf[pos:pos+2], v)
	return nil
}

// ReadName decodes a DNS name starting at the cursor, following compression
// pointers (the top two bits of a length byte set to 0b11) without advancing
// the main cursor past the first pointer encountered. The jump count is
// bounded; exceeding it fails with dnserr.ErrLimitsExceeded, guarding
// against pointer loops.
func (b *Buffer) ReadName() (string, error) {
	var labels []string
	offset := b.pos
	jumped := false
	jumps := 0
	totalLen := 0

	for {
		if offset >= len(b.buf) {
			return "", fmt.Errorf("name offset %d out of range: %w", offset, dnserr.ErrInvalidInput)
		}

		length := int(b.buf[offset])

		if length&0xC0 == 0xC0 {
			if offset+1 >= len(b.buf) {
				return "", fmt.Errorf("truncated pointer: %w", dnserr.ErrInvalidInput)
			}
			if jumps >= maxJumps {
				return "", fmt.Errorf("more than %d pointer jumps: %w", maxJumps, dnserr.ErrLimitsExceeded)
			}
			ptr := int(binary.BigEndian.Uint16(b.buf[offset:offset+2]) & 0x3FFF)

			if !jumped {
				b.pos = offset + 2
				jumped = true
			}

			offset = ptr
			jumps++
			continue
		}

		if length == 0 {
			if !jumped {
				b.pos = offset + 1
			}
			break
		}

		if length > maxLabelLength {
			return "", fmt.Errorf("label length %d: %w", length, dnserr.ErrInvalidInput)
		}

		offset++
		if offset+length > len(b.buf) {
			return "", fmt.Errorf("truncated label: %w", dnserr.ErrInvalidInput)
		}

		label := string(b.buf[offset : offset+length])
		labels = append(labels, label)
		totalLen += length + 1
		offset += length

		if totalLen > maxDomainLength {
			return "", fmt.Errorf("domain name exceeds %d octets: %w", maxDomainLength, dnserr.ErrInvalidInput)
		}
	}

	if len(labels) == 0 {
		return ".", nil
	}

	name := ""
	for _, l := range labels {
		name += l + "."
	}
	return name, nil
}

// WriteName encodes name (dot-separated labels, an optional trailing dot)
// as length-prefixed labels terminated by a zero byte. Compression is not
// performed here; callers that want suffix compression use
// WriteNameCompressed on a growable buffer.
func (b *Buffer) WriteName(name string) error {
	labels := splitLabels(name)
	for _, l := range labels {
		if len(l) > maxLabelLength {
			return fmt.Errorf("label %q too long: %w", l, dnserr.ErrInvalidInput)
		}
		if err := b.WriteUint8(uint8(len(l))); err != nil {
			return err
		}
		if err := b.WriteBytes([]byte(l)); err != nil {
			return err
		}
	}
	return b.WriteUint8(0)
}

// WriteNameCompressed encodes name the same way as WriteName, but on a
// growable buffer it first checks names (a suffix→offset map built by the
// caller across one packet's encoding) for an already-written suffix and
// emits a pointer to it instead of repeating the labels.
func (b *Buffer) WriteNameCompressed(name string, names map[string]int) error {
	if !b.growable || names == nil {
		return b.WriteName(name)
	}

	labels := splitLabels(name)
	for i := 0; i < len(labels); i++ {
		suffix := joinLabels(labels[i:])
		if ptr, ok := names[suffix]; ok && ptr <= 0x3FFF {
			return b.WriteUint16(uint16(0xC000 | ptr))
		}
		if b.pos <= 0x3FFF {
			names[suffix] = b.pos
		}
		l := labels[i]
		if len(l) > maxLabelLength {
			return fmt.Errorf("label %q too long: %w", l, dnserr.ErrInvalidInput)
		}
		if err := b.WriteUint8(uint8(len(l))); err != nil {
			return err
		}
		if err := b.WriteBytes([]byte(l)); err != nil {
			return err
		}
	}
	return b.WriteUint8(0)
}

// NameLen returns the number of bytes a subsequent WriteName(name) would
// emit, used for sizing passes ahead of the actual write.
func NameLen(name string) int {
	labels := splitLabels(name)
	n := 1 // terminating zero
	for _, l := range labels {
		n += 1 + len(l)
	}
	return n
}

func splitLabels(name string) []string {
	if name == "" || name == "." {
		return nil
	}
	if name[len(name)-1] == '.' {
		name = name[:len(name)-1]
	}
	if name == "" {
		return nil
	}
	var labels []string
	start := 0
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			labels = append(labels, name[start:i])
			start = i + 1
		}
	}
	labels = append(labels, name[start:])
	return labels
}

func joinLabels(labels []string) string {
	out := ""
	for _, l := range labels {
		out += l + "."
	}
	return out
}
