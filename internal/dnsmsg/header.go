package dnsmsg

import "github.com/dnsscience/dnsscienced/internal/wire"

// Header is the 12-byte DNS message header (RFC 1035 §4.1.1).
//
// The bit layout this codec reads and writes is the source project's own
// packing, not the textbook RFC1035 diagram: byte 2 is
// [RD(0) TC(1) AA(2) opcode(3..6) QR(7)] and byte 3 is
// [rcode(0..3) CD(4) AD(5) Z(6) RA(7)], bit positions numbered left to
// right within the byte. Round-tripping a header through Encode/Decode
// reproduces every field regardless of the unusual ordering.
type Header struct {
	ID uint16

	QR bool
	AA bool
	TC bool
	RD bool
	RA bool
	Z  bool
	AD bool
	CD bool

	Opcode uint8
	Rcode  ResultCode

	QDCount uint16
	ANCount uint16
	NSCount uint16
	ARCount uint16
}

func boolBit(b bool, bit uint8) uint8 {
	if b {
		return bit
	}
	return 0
}

// Encode writes the 12-byte header at the buffer's current position.
func (h *Header) Encode(buf *wire.Buffer) error {
	if err := buf.WriteUint16(h.ID); err != nil {
		return err
	}

	byte2 := boolBit(h.RD, 0x80) | boolBit(h.TC, 0x40) | boolBit(h.AA, 0x20) |
		((h.Opcode & 0x0F) << 1) | boolBit(h.QR, 0x01)
	byte3 := ((uint8(h.Rcode) & 0x0F) << 4) | boolBit(h.CD, 0x08) |
		boolBit(h.AD, 0x04) | boolBit(h.Z, 0x02) | boolBit(h.RA, 0x01)

	if err := buf.WriteUint8(byte2); err != nil {
		return err
	}
	if err := buf.WriteUint8(byte3); err != nil {
		return err
	}

	if err := buf.WriteUint16(h.QDCount); err != nil {
		return err
	}
	if err := buf.WriteUint16(h.ANCount); err != nil {
		return err
	}
	if err := buf.WriteUint16(h.NSCount); err != nil {
		return err
	}
	return buf.WriteUint16(h.ARCount)
}

// Decode reads the 12-byte header at the buffer's current position.
func (h *Header) Decode(buf *wire.Buffer) error {
	id, err := buf.ReadUint16()
	if err != nil {
		return err
	}
	h.ID = id

	byte2, err := buf.ReadUint8()
	if err != nil {
		return err
	}
	byte3, err := buf.ReadUint8()
	if err != nil {
		return err
	}

	h.RD = byte2&0x80 != 0
	h.TC = byte2&0x40 != 0
	h.AA = byte2&0x20 != 0
	h.Opcode = (byte2 >> 1) & 0x0F
	h.QR = byte2&0x01 != 0

	h.Rcode = ResultCodeFromUint8((byte3 >> 4) & 0x0F)
	h.CD = byte3&0x08 != 0
	h.AD = byte3&0x04 != 0
	h.Z = byte3&0x02 != 0
	h.RA = byte3&0x01 != 0

	if h.QDCount, err = buf.ReadUint16(); err != nil {
		return err
	}
	if h.ANCount, err = buf.ReadUint16(); err != nil {
		return err
	}
	if h.NSCount, err = buf.ReadUint16(); err != nil {
		return err
	}
	if h.ARCount, err = buf.ReadUint16(); err != nil {
		return err
	}
	return nil
}

// HeaderSize is the fixed wire size of a DNS header.
const HeaderSize = 12
