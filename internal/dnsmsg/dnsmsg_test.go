package dnsmsg

import (
	"net"
	"testing"

	"github.com/dnsscience/dnsscienced/internal/wire"
)

func TestQueryTypeRoundTrip(t *testing.T) {
	for n := 0; n < 65536; n += 4099 {
		qt := QueryType(n)
		if qt.Uint16() != uint16(n) {
			t.Fatalf("QueryType(%d).Uint16() = %d", n, qt.Uint16())
		}
	}
	if !TypeA.Known() || !TypeOPT.Known() {
		t.Error("fixed-shape types should report Known()")
	}
	if QueryType(9999).Known() {
		t.Error("arbitrary type should not report Known()")
	}
}

func TestHeaderBitLayoutRoundTrip(t *testing.T) {
	h := Header{
		ID:      0xABCD,
		RD:      true,
		TC:      false,
		AA:      true,
		Opcode:  2,
		QR:      true,
		Rcode:   NXDOMAIN,
		CD:      true,
		AD:      false,
		Z:       false,
		RA:      true,
		QDCount: 1,
		ANCount: 2,
		NSCount: 3,
		ARCount: 4,
	}

	buf := wire.NewGrowable()
	if err := h.Encode(buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if buf.Pos() != HeaderSize {
		t.Fatalf("encoded header size = %d, want %d", buf.Pos(), HeaderSize)
	}

	buf.Seek(0)
	var got Header
	if err := got.Decode(buf); err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got != h {
		t.Errorf("round trip mismatch:\n got  %+v\n want %+v", got, h)
	}
}

func TestHeaderUnknownRcodeDecodesAsNoerror(t *testing.T) {
	if ResultCodeFromUint8(14) != NOERROR {
		t.Error("unassigned rcode should decode as NOERROR")
	}
}

func TestRecordCodecRoundTrip(t *testing.T) {
	names := map[string]int{}
	buf := wire.NewGrowable()

	records := []Record{
		NewA("example.com.", 300, net.ParseIP("93.184.216.34")),
		NewAAAA("example.com.", 300, net.ParseIP("2606:2800:220:1:248:1893:25c8:1946")),
		NewNS("example.com.", 3600, "ns1.example.com."),
		NewCNAME("www.example.com.", 3600, "example.com."),
	}

	for _, r := range records {
		if err := r.encode(buf, names); err != nil {
			t.Fatalf("encode %T: %v", r, err)
		}
	}

	buf.Seek(0)
	for i, want := range records {
		got, err := decodeRecord(buf)
		if err != nil {
			t.Fatalf("decodeRecord %d: %v", i, err)
		}
		if got.Name() != want.Name() {
			t.Errorf("record %d name = %q, want %q", i, got.Name(), want.Name())
		}
		if got.Type() != want.Type() {
			t.Errorf("record %d type = %v, want %v", i, got.Type(), want.Type())
		}
		if got.TTL() != want.TTL() {
			t.Errorf("record %d ttl = %d, want %d", i, got.TTL(), want.TTL())
		}
	}
}

func TestUnknownRecordSkipsRdata(t *testing.T) {
	buf := wire.NewGrowable()
	buf.WriteName("example.com.")
	buf.WriteUint16(9999) // unrecognized type
	buf.WriteUint16(ClassIN)
	buf.WriteUint32(60)
	buf.WriteUint16(3)
	buf.WriteBytes([]byte{1, 2, 3})

	buf.Seek(0)
	rec, err := decodeRecord(buf)
	if err != nil {
		t.Fatalf("decodeRecord: %v", err)
	}
	u, ok := rec.(*UnknownRecord)
	if !ok {
		t.Fatalf("got %T, want *UnknownRecord", rec)
	}
	if u.QType != 9999 || u.DataLen != 3 {
		t.Errorf("got QType=%d DataLen=%d", u.QType, u.DataLen)
	}
	if buf.Pos() != buf.Len() {
		t.Errorf("decode did not consume full rdata, pos=%d len=%d", buf.Pos(), buf.Len())
	}
}

func TestTXTRecordDecodesMultipleCharacterStrings(t *testing.T) {
	buf := wire.NewGrowable()
	buf.WriteName("example.com.")
	buf.WriteUint16(TypeTXT.Uint16())
	buf.WriteUint16(ClassIN)
	buf.WriteUint32(60)

	first := []byte("v=spf1 ")
	second := []byte("include:_spf.example.com ~all")
	buf.WriteUint16(uint16(1 + len(first) + 1 + len(second)))
	buf.WriteUint8(uint8(len(first)))
	buf.WriteBytes(first)
	buf.WriteUint8(uint8(len(second)))
	buf.WriteBytes(second)

	buf.Seek(0)
	rec, err := decodeRecord(buf)
	if err != nil {
		t.Fatalf("decodeRecord: %v", err)
	}
	txt, ok := rec.(*TXTRecord)
	if !ok {
		t.Fatalf("got %T, want *TXTRecord", rec)
	}
	want := string(first) + string(second)
	if txt.Data != want {
		t.Errorf("Data = %q, want %q", txt.Data, want)
	}
	if buf.Pos() != buf.Len() {
		t.Errorf("decode did not consume full rdata, pos=%d len=%d", buf.Pos(), buf.Len())
	}
}

func TestPacketRoundTrip(t *testing.T) {
	p := &Packet{
		Header: Header{ID: 7, RD: true, Opcode: 0},
		Questions: []Question{
			{Name: "example.com.", Type: TypeA, Class: ClassIN},
		},
		Answers: []Record{
			NewA("example.com.", 300, net.ParseIP("93.184.216.34")),
		},
	}

	buf := wire.NewGrowable()
	if err := p.Encode(buf, wire.FixedSize); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	buf.Seek(0)
	decoded, err := DecodePacket(buf)
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}

	if decoded.Header.ID != p.Header.ID {
		t.Errorf("ID = %d, want %d", decoded.Header.ID, p.Header.ID)
	}
	if len(decoded.Questions) != 1 || decoded.Questions[0].Name != "example.com." {
		t.Errorf("questions = %+v", decoded.Questions)
	}
	if len(decoded.Answers) != 1 {
		t.Fatalf("got %d answers, want 1", len(decoded.Answers))
	}
	a, ok := decoded.Answers[0].(*ARecord)
	if !ok {
		t.Fatalf("answer is %T, want *ARecord", decoded.Answers[0])
	}
	if !a.Address.Equal(net.ParseIP("93.184.216.34")) {
		t.Errorf("address = %v", a.Address)
	}
	if decoded.Header.TC {
		t.Error("small response should not be truncated")
	}
}

func TestPacketEncodeTruncatesOnOversizedAnswers(t *testing.T) {
	p := &Packet{
		Header: Header{ID: 1, QR: true},
		Questions: []Question{
			{Name: "big.example.com.", Type: TypeTXT, Class: ClassIN},
		},
	}
	// Enough bulky TXT records that not all of them fit in a 512-byte
	// response; each carries ~200 bytes of payload.
	payload := make([]byte, 200)
	for i := range payload {
		payload[i] = 'x'
	}
	for i := 0; i < 10; i++ {
		p.Answers = append(p.Answers, &TXTRecord{
			rrHeader: rrHeader{Domain: "big.example.com.", TTLVal: 300},
			Data:     string(payload),
		})
	}

	buf := wire.NewGrowable()
	if err := p.Encode(buf, wire.FixedSize); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	buf.Seek(0)
	decoded, err := DecodePacket(buf)
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	if !decoded.Header.TC {
		t.Error("expected TC bit set when answers overflow maxSize")
	}
	if int(decoded.Header.ANCount) != len(decoded.Answers) {
		t.Errorf("ANCount %d does not match %d decoded answers", decoded.Header.ANCount, len(decoded.Answers))
	}
	if len(decoded.Answers) >= 10 {
		t.Errorf("expected fewer than 10 answers to fit, got %d", len(decoded.Answers))
	}
}

func TestPacketEncodeNeverEchoesOPT(t *testing.T) {
	p := &Packet{
		Header:    Header{ID: 1, QR: true},
		Questions: []Question{{Name: "example.com.", Type: TypeA, Class: ClassIN}},
		Additional: []Record{
			&OPTRecord{rrHeader: rrHeader{Domain: "."}, PayloadSize: 4096},
		},
	}

	buf := wire.NewGrowable()
	if err := p.Encode(buf, wire.FixedSize); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	buf.Seek(0)
	decoded, err := DecodePacket(buf)
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	if len(decoded.Additional) != 0 {
		t.Errorf("OPT record was echoed back, got %d additional records", len(decoded.Additional))
	}
	if decoded.Header.ARCount != 0 {
		t.Errorf("ARCount = %d, want 0", decoded.Header.ARCount)
	}
}
