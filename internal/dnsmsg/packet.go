package dnsmsg

import (
	"fmt"

	"github.com/dnsscience/dnsscienced/internal/wire"
)

// Packet is a full DNS message: header, questions, and the three record
// sections. After DecodePacket, each section's length equals the
// corresponding header count.
type Packet struct {
	Header      Header
	Questions   []Question
	Answers     []Record
	Authorities []Record
	Additional  []Record
}

// DecodePacket reads a complete DNS message from buf, which must be
// positioned at the start of the header (normally offset 0). Short or
// malformed input yields an error, never a panic.
func DecodePacket(buf *wire.Buffer) (*Packet, error) {
	p := &Packet{}

	if err := p.Header.Decode(buf); err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}

	p.Questions = make([]Question, p.Header.QDCount)
	for i := range p.Questions {
		q, err := decodeQuestion(buf)
		if err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
		p.Questions[i] = q
	}

	var err error
	if p.Answers, err = decodeSection(buf, int(p.Header.ANCount)); err != nil {
		return nil, fmt.Errorf("answer section: %w", err)
	}
	if p.Authorities, err = decodeSection(buf, int(p.Header.NSCount)); err != nil {
		return nil, fmt.Errorf("authority section: %w", err)
	}
	if p.Additional, err = decodeSection(buf, int(p.Header.ARCount)); err != nil {
		return nil, fmt.Errorf("additional section: %w", err)
	}

	return p, nil
}

func decodeSection(buf *wire.Buffer, count int) ([]Record, error) {
	records := make([]Record, 0, count)
	for i := 0; i < count; i++ {
		r, err := decodeRecord(buf)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		records = append(records, r)
	}
	return records, nil
}

// EDNSPayloadSize looks for a single OPT record in the additional section
// and, if present, returns the requester-advertised UDP payload size. Per
// spec this is the only thing OPT is used for on read.
func (p *Packet) EDNSPayloadSize() (uint16, bool) {
	for _, r := range p.Additional {
		if opt, ok := r.(*OPTRecord); ok {
			return opt.PayloadSize, true
		}
	}
	return 0, false
}

func filterOPT(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r.Type() != TypeOPT {
			out = append(out, r)
		}
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Encode writes the packet to buf, honoring maxSize. It first runs a sizing
// pass against a scratch growable buffer to measure how much of the
// combined answer/authority/additional record stream fits; the moment
// adding the next record would exceed maxSize, it stops, sets the TC bit,
// and the header's section counts are finalized to reflect exactly what
// gets written to buf. OPT records are never written back out — OPT is
// read-only on this codec. No partial record is ever emitted.
func (p *Packet) Encode(buf *wire.Buffer, maxSize int) error {
	answers := filterOPT(p.Answers)
	authorities := filterOPT(p.Authorities)
	additional := filterOPT(p.Additional)

	all := make([]Record, 0, len(answers)+len(authorities)+len(additional))
	all = append(all, answers...)
	all = append(all, authorities...)
	all = append(all, additional...)

	hdr := p.Header
	hdr.QDCount = uint16(len(p.Questions))

	scratch := wire.NewGrowable()
	if err := hdr.Encode(scratch); err != nil {
		return err
	}
	scratchNames := map[string]int{}
	for _, q := range p.Questions {
		if err := q.encode(scratch, scratchNames); err != nil {
			return err
		}
	}

	recordCount := 0
	truncated := false
	for _, r := range all {
		if err := r.encode(scratch, scratchNames); err != nil {
			return err
		}
		if scratch.Pos() > maxSize {
			truncated = true
			break
		}
		recordCount++
	}

	nAnswers := minInt(recordCount, len(answers))
	remaining := recordCount - nAnswers
	nAuthorities := minInt(remaining, len(authorities))
	remaining -= nAuthorities
	nAdditional := minInt(remaining, len(additional))

	hdr.ANCount = uint16(nAnswers)
	hdr.NSCount = uint16(nAuthorities)
	hdr.ARCount = uint16(nAdditional)
	hdr.TC = truncated

	if err := hdr.Encode(buf); err != nil {
		return err
	}
	names := map[string]int{}
	for _, q := range p.Questions {
		if err := q.encode(buf, names); err != nil {
			return err
		}
	}
	written := 0
	for _, r := range all {
		if written >= recordCount {
			break
		}
		if err := r.encode(buf, names); err != nil {
			return err
		}
		written++
	}

	return nil
}

// NewResponse builds a response Packet's header from a request: copies the
// id, sets QR=1 and RA, and leaves Rcode at the caller's choice.
func NewResponse(req *Packet, allowRecursive bool) *Packet {
	return &Packet{
		Header: Header{
			ID: req.Header.ID,
			QR: true,
			RA: allowRecursive,
			RD: req.Header.RD,
		},
	}
}
