package dnsmsg

import (
	"fmt"
	"net"

	"github.com/dnsscience/dnsscienced/internal/dnserr"
	"github.com/dnsscience/dnsscienced/internal/wire"
)

// Record is the tagged-union capability every RR variant satisfies. Codec
// dispatch on Type() is a closed switch, not a class hierarchy.
type Record interface {
	Name() string
	SetName(string)
	Type() QueryType
	TTL() uint32
	SetTTL(uint32)
	// Clone returns an independent copy, letting a caller (the cache, in
	// particular) hand out a record with an adjusted TTL or owner name
	// without mutating the stored original.
	Clone() Record
	// encode writes NAME/TYPE/CLASS/TTL/RDLENGTH/RDATA at the buffer's
	// current position, back-patching RDLENGTH once RDATA is known.
	encode(buf *wire.Buffer, names map[string]int) error
}

type rrHeader struct {
	Domain string
	TTLVal uint32
}

func (h *rrHeader) Name() string    { return h.Domain }
func (h *rrHeader) SetName(n string) { h.Domain = n }
func (h *rrHeader) TTL() uint32     { return h.TTLVal }
func (h *rrHeader) SetTTL(t uint32) { h.TTLVal = t }

// writeRRHeader writes NAME, TYPE, CLASS, TTL and a placeholder RDLENGTH,
// returning the position of the RDLENGTH field to back-patch.
func writeRRHeader(buf *wire.Buffer, name string, qtype QueryType, class uint16, ttl uint32, names map[string]int) (int, error) {
	if err := buf.WriteNameCompressed(name, names); err != nil {
		return 0, err
	}
	if err := buf.WriteUint16(qtype.Uint16()); err != nil {
		return 0, err
	}
	if err := buf.WriteUint16(class); err != nil {
		return 0, err
	}
	if err := buf.WriteUint32(ttl); err != nil {
		return 0, err
	}
	rdlenPos := buf.Pos()
	if err := buf.WriteUint16(0); err != nil {
		return 0, err
	}
	return rdlenPos, nil
}

func backpatchRDLength(buf *wire.Buffer, rdlenPos int) error {
	rdataEnd := buf.Pos()
	rdlen := rdataEnd - (rdlenPos + 2)
	return buf.SetUint16(rdlenPos, uint16(rdlen))
}

// --- A ---

type ARecord struct {
	rrHeader
	Address net.IP
}

func NewA(domain string, ttl uint32, addr net.IP) *ARecord {
	return &ARecord{rrHeader{domain, ttl}, addr.To4()}
}

func (r *ARecord) Type() QueryType { return TypeA }

func (r *ARecord) Clone() Record {
	c := *r
	c.Address = append(net.IP(nil), r.Address...)
	return &c
}

func (r *ARecord) encode(buf *wire.Buffer, names map[string]int) error {
	pos, err := writeRRHeader(buf, r.Domain, TypeA, ClassIN, r.TTLVal, names)
	if err != nil {
		return err
	}
	ip := r.Address.To4()
	if ip == nil {
		return fmt.Errorf("A record with non-IPv4 address: %w", dnserr.ErrInvalidInput)
	}
	if err := buf.WriteBytes(ip); err != nil {
		return err
	}
	return backpatchRDLength(buf, pos)
}

// --- AAAA ---

type AAAARecord struct {
	rrHeader
	Address net.IP
}

func NewAAAA(domain string, ttl uint32, addr net.IP) *AAAARecord {
	return &AAAARecord{rrHeader{domain, ttl}, addr.To16()}
}

func (r *AAAARecord) Type() QueryType { return TypeAAAA }

func (r *AAAARecord) Clone() Record {
	c := *r
	c.Address = append(net.IP(nil), r.Address...)
	return &c
}

func (r *AAAARecord) encode(buf *wire.Buffer, names map[string]int) error {
	pos, err := writeRRHeader(buf, r.Domain, TypeAAAA, ClassIN, r.TTLVal, names)
	if err != nil {
		return err
	}
	ip := r.Address.To16()
	if ip == nil {
		return fmt.Errorf("AAAA record with invalid address: %w", dnserr.ErrInvalidInput)
	}
	if err := buf.WriteBytes(ip); err != nil {
		return err
	}
	return backpatchRDLength(buf, pos)
}

// --- NS ---

type NSRecord struct {
	rrHeader
	Host string
}

func NewNS(domain string, ttl uint32, host string) *NSRecord {
	return &NSRecord{rrHeader{domain, ttl}, host}
}

func (r *NSRecord) Type() QueryType { return TypeNS }

func (r *NSRecord) Clone() Record {
	c := *r
	return &c
}

func (r *NSRecord) encode(buf *wire.Buffer, names map[string]int) error {
	pos, err := writeRRHeader(buf, r.Domain, TypeNS, ClassIN, r.TTLVal, names)
	if err != nil {
		return err
	}
	if err := buf.WriteNameCompressed(r.Host, names); err != nil {
		return err
	}
	return backpatchRDLength(buf, pos)
}

// --- CNAME ---

type CNAMERecord struct {
	rrHeader
	Host string
}

func NewCNAME(domain string, ttl uint32, host string) *CNAMERecord {
	return &CNAMERecord{rrHeader{domain, ttl}, host}
}

func (r *CNAMERecord) Type() QueryType { return TypeCNAME }

func (r *CNAMERecord) Clone() Record {
	c := *r
	return &c
}

func (r *CNAMERecord) encode(buf *wire.Buffer, names map[string]int) error {
	pos, err := writeRRHeader(buf, r.Domain, TypeCNAME, ClassIN, r.TTLVal, names)
	if err != nil {
		return err
	}
	if err := buf.WriteNameCompressed(r.Host, names); err != nil {
		return err
	}
	return backpatchRDLength(buf, pos)
}

// --- SOA ---

type SOARecord struct {
	rrHeader
	MName   string
	RName   string
	Serial  uint32
	Refresh uint32
	Retry   uint32
	Expire  uint32
	Minimum uint32
}

func NewSOA(domain string, ttl uint32, mname, rname string, serial, refresh, retry, expire, minimum uint32) *SOARecord {
	return &SOARecord{rrHeader{domain, ttl}, mname, rname, serial, refresh, retry, expire, minimum}
}

func (r *SOARecord) Type() QueryType { return TypeSOA }

func (r *SOARecord) Clone() Record {
	c := *r
	return &c
}

func (r *SOARecord) encode(buf *wire.Buffer, names map[string]int) error {
	pos, err := writeRRHeader(buf, r.Domain, TypeSOA, ClassIN, r.TTLVal, names)
	if err != nil {
		return err
	}
	if err := buf.WriteNameCompressed(r.MName, names); err != nil {
		return err
	}
	if err := buf.WriteNameCompressed(r.RName, names); err != nil {
		return err
	}
	for _, v := range []uint32{r.Serial, r.Refresh, r.Retry, r.Expire, r.Minimum} {
		if err := buf.WriteUint32(v); err != nil {
			return err
		}
	}
	return backpatchRDLength(buf, pos)
}

// --- MX ---

type MXRecord struct {
	rrHeader
	Priority uint16
	Host     string
}

func (r *MXRecord) Type() QueryType { return TypeMX }

func (r *MXRecord) Clone() Record {
	c := *r
	return &c
}

func (r *MXRecord) encode(buf *wire.Buffer, names map[string]int) error {
	pos, err := writeRRHeader(buf, r.Domain, TypeMX, ClassIN, r.TTLVal, names)
	if err != nil {
		return err
	}
	if err := buf.WriteUint16(r.Priority); err != nil {
		return err
	}
	if err := buf.WriteNameCompressed(r.Host, names); err != nil {
		return err
	}
	return backpatchRDLength(buf, pos)
}

// --- SRV ---

type SRVRecord struct {
	rrHeader
	Priority uint16
	Weight   uint16
	Port     uint16
	Host     string
}

func (r *SRVRecord) Type() QueryType { return TypeSRV }

func (r *SRVRecord) Clone() Record {
	c := *r
	return &c
}

func (r *SRVRecord) encode(buf *wire.Buffer, names map[string]int) error {
	pos, err := writeRRHeader(buf, r.Domain, TypeSRV, ClassIN, r.TTLVal, names)
	if err != nil {
		return err
	}
	for _, v := range []uint16{r.Priority, r.Weight, r.Port} {
		if err := buf.WriteUint16(v); err != nil {
			return err
		}
	}
	// SRV targets are not compressed against earlier names per common
	// practice; write literally.
	if err := buf.WriteName(r.Host); err != nil {
		return err
	}
	return backpatchRDLength(buf, pos)
}

// --- TXT ---

type TXTRecord struct {
	rrHeader
	Data string
}

func (r *TXTRecord) Type() QueryType { return TypeTXT }

func (r *TXTRecord) Clone() Record {
	c := *r
	return &c
}

func (r *TXTRecord) encode(buf *wire.Buffer, names map[string]int) error {
	pos, err := writeRRHeader(buf, r.Domain, TypeTXT, ClassIN, r.TTLVal, names)
	if err != nil {
		return err
	}
	data := []byte(r.Data)
	if len(data) > 255 {
		data = data[:255]
	}
	if err := buf.WriteUint8(uint8(len(data))); err != nil {
		return err
	}
	if err := buf.WriteBytes(data); err != nil {
		return err
	}
	return backpatchRDLength(buf, pos)
}

// --- OPT ---

// OPTRecord represents a pseudo-RR: class holds the requester's UDP
// payload size, TTL holds extended-rcode/flags. OPT is parsed on read but
// never echoed back on write; the server simply never places an OPTRecord
// in an outbound packet's Additional section.
type OPTRecord struct {
	rrHeader
	PayloadSize   uint16
	ExtRCodeFlags uint32
	Data          []byte
}

func (r *OPTRecord) Type() QueryType { return TypeOPT }

func (r *OPTRecord) Clone() Record {
	c := *r
	c.Data = append([]byte(nil), r.Data...)
	return &c
}

// encode exists to satisfy the Record interface, but OPT is never written
// in a response; Packet.Encode drops OPTRecords from its output sections
// before encoding.
func (r *OPTRecord) encode(buf *wire.Buffer, names map[string]int) error {
	pos, err := writeRRHeader(buf, r.Domain, TypeOPT, r.PayloadSize, r.ExtRCodeFlags, names)
	if err != nil {
		return err
	}
	if err := buf.WriteBytes(r.Data); err != nil {
		return err
	}
	return backpatchRDLength(buf, pos)
}

// --- UNKNOWN ---

// UnknownRecord preserves a record of an unrecognized type well enough to
// round-trip its framing; RDATA itself is skipped, not retained.
type UnknownRecord struct {
	rrHeader
	QType   uint16
	DataLen uint16
}

func (r *UnknownRecord) Type() QueryType { return QueryType(r.QType) }

func (r *UnknownRecord) Clone() Record {
	c := *r
	return &c
}

func (r *UnknownRecord) encode(buf *wire.Buffer, names map[string]int) error {
	pos, err := writeRRHeader(buf, r.Domain, QueryType(r.QType), ClassIN, r.TTLVal, names)
	if err != nil {
		return err
	}
	if err := buf.WriteBytes(make([]byte, r.DataLen)); err != nil {
		return err
	}
	return backpatchRDLength(buf, pos)
}
