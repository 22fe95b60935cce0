package authority

import (
	"net"
	"testing"

	"github.com/dnsscience/dnsscienced/internal/dnsmsg"
	"github.com/dnsscience/dnsscienced/internal/zone"
)

func exampleZone(t *testing.T) *zone.Zone {
	t.Helper()
	z := zone.New("example.com")
	z.AddRecord(dnsmsg.NewSOA("example.com.", 3600, "ns1.example.com.", "admin.example.com.", 1, 7200, 3600, 1209600, 3600))
	z.AddRecord(dnsmsg.NewNS("example.com.", 3600, "ns1.example.com."))
	z.AddRecord(dnsmsg.NewA("ns1.example.com.", 3600, net.ParseIP("192.0.2.1")))
	z.AddRecord(dnsmsg.NewA("www.example.com.", 3600, net.ParseIP("192.0.2.10")))
	return z
}

func TestQueryReturnsMatchingRecords(t *testing.T) {
	a := New()
	a.AddZone(exampleZone(t))

	p, ok := a.Query("www.example.com.", dnsmsg.TypeA)
	if !ok {
		t.Fatal("expected authoritative answer")
	}
	if p.Header.Rcode != dnsmsg.NOERROR {
		t.Errorf("Rcode = %v, want NOERROR", p.Header.Rcode)
	}
	if !p.Header.AA {
		t.Error("expected AA bit set on authoritative answer")
	}
	if len(p.Answers) != 1 {
		t.Fatalf("expected 1 answer, got %d", len(p.Answers))
	}
}

func TestQueryNoMatchingZoneReturnsNotOK(t *testing.T) {
	a := New()
	a.AddZone(exampleZone(t))

	_, ok := a.Query("www.other.com.", dnsmsg.TypeA)
	if ok {
		t.Error("expected no authoritative answer for out-of-zone name")
	}
}

func TestQueryUnknownNameInZoneReturnsNXDOMAIN(t *testing.T) {
	a := New()
	a.AddZone(exampleZone(t))

	p, ok := a.Query("nosuchname.example.com.", dnsmsg.TypeA)
	if !ok {
		t.Fatal("expected an authoritative response (possibly NXDOMAIN)")
	}
	if p.Header.Rcode != dnsmsg.NXDOMAIN {
		t.Errorf("Rcode = %v, want NXDOMAIN", p.Header.Rcode)
	}
	if len(p.Authorities) != 1 {
		t.Fatalf("expected SOA in authorities, got %d records", len(p.Authorities))
	}
}

func TestQueryRootHints(t *testing.T) {
	a := New()
	a.LoadRootHints()

	p, ok := a.Query(".", dnsmsg.TypeNS)
	if !ok {
		t.Fatal("expected root hints to answer NS query for root")
	}
	if len(p.Answers) != 13 {
		t.Errorf("expected 13 root NS records, got %d", len(p.Answers))
	}
	if len(p.Additional) != 0 && len(p.Answers) == 0 {
		t.Fatal("root hints should carry NS answers")
	}
}

func TestQueryRootHintsDoNotShadowLoadedZone(t *testing.T) {
	a := New()
	a.LoadRootHints()
	a.AddZone(exampleZone(t))

	p, ok := a.Query("www.example.com.", dnsmsg.TypeA)
	if !ok {
		t.Fatal("expected authoritative answer from loaded zone")
	}
	if len(p.Answers) != 1 {
		t.Fatalf("expected 1 answer, got %d", len(p.Answers))
	}
}

func TestQueryCNAME(t *testing.T) {
	a := New()
	z := exampleZone(t)
	z.AddRecord(dnsmsg.NewCNAME("alias.example.com.", 3600, "www.example.com."))
	a.AddZone(z)

	p, ok := a.Query("alias.example.com.", dnsmsg.TypeA)
	if !ok {
		t.Fatal("expected authoritative answer")
	}
	if len(p.Answers) != 1 {
		t.Fatalf("expected 1 CNAME answer, got %d", len(p.Answers))
	}
	if _, ok := p.Answers[0].(*dnsmsg.CNAMERecord); !ok {
		t.Errorf("answer type = %T, want *dnsmsg.CNAMERecord", p.Answers[0])
	}
}
