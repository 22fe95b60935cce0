package zone

import (
	"net"
	"testing"

	"github.com/dnsscience/dnsscienced/internal/dnsmsg"
)

func newSOA(name string) *dnsmsg.SOARecord {
	return dnsmsg.NewSOA(name, 3600, "ns1."+name, "admin."+name, 2024010100, 7200, 3600, 1209600, 3600)
}

func TestNew(t *testing.T) {
	z := New("example.com")

	if z.Name != "example.com." {
		t.Errorf("Name = %s, want example.com.", z.Name)
	}
	if z.Origin != "example.com." {
		t.Errorf("Origin = %s, want example.com.", z.Origin)
	}
	if z.Records == nil {
		t.Error("Records map not initialized")
	}
}

func TestNew_AutoFQDN(t *testing.T) {
	z := New("example.com")
	if z.Name != "example.com." {
		t.Errorf("Name should be FQDN: got %s", z.Name)
	}

	z2 := New("example.org.")
	if z2.Name != "example.org." {
		t.Errorf("Name should preserve FQDN: got %s", z2.Name)
	}
}

func TestAddRecord(t *testing.T) {
	z := New("example.com")

	rr := dnsmsg.NewA("www.example.com.", 3600, net.ParseIP("192.0.2.1"))
	if err := z.AddRecord(rr); err != nil {
		t.Fatalf("AddRecord() error = %v", err)
	}

	records := z.GetRecords("www.example.com.", dnsmsg.TypeA)
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}

	a := records[0].(*dnsmsg.ARecord)
	if !a.Address.Equal(net.ParseIP("192.0.2.1")) {
		t.Errorf("A record IP = %v, want 192.0.2.1", a.Address)
	}
}

func TestAddRecord_Nil(t *testing.T) {
	z := New("example.com")
	if err := z.AddRecord(nil); err == nil {
		t.Error("AddRecord(nil) should return error")
	}
}

func TestAddRecord_OutOfZone(t *testing.T) {
	z := New("example.com")
	rr := dnsmsg.NewA("www.example.org.", 3600, net.ParseIP("192.0.2.1"))
	if err := z.AddRecord(rr); err == nil {
		t.Error("AddRecord() should error for out-of-zone record")
	}
}

func TestAddRecord_SOA(t *testing.T) {
	z := New("example.com")
	soa := newSOA("example.com.")
	if err := z.AddRecord(soa); err != nil {
		t.Fatalf("AddRecord(SOA) error = %v", err)
	}
	if z.SOA == nil {
		t.Fatal("SOA not set")
	}
	if z.SOA.Serial != 2024010100 {
		t.Errorf("SOA serial = %d, want 2024010100", z.SOA.Serial)
	}
}

func TestGetRecords(t *testing.T) {
	z := New("example.com")
	for i := 1; i <= 3; i++ {
		rr := dnsmsg.NewA("www.example.com.", 3600, net.IPv4(192, 0, 2, byte(i)))
		z.AddRecord(rr)
	}

	records := z.GetRecords("www.example.com.", dnsmsg.TypeA)
	if len(records) != 3 {
		t.Errorf("GetRecords() returned %d records, want 3", len(records))
	}
}

func TestGetRecords_Wildcard(t *testing.T) {
	z := New("example.com")
	rr := dnsmsg.NewA("*.example.com.", 3600, net.ParseIP("192.0.2.100"))
	z.AddRecord(rr)

	records := z.GetRecords("foo.example.com.", dnsmsg.TypeA)
	if len(records) == 0 {
		t.Fatal("Wildcard should match foo.example.com")
	}

	a := records[0].(*dnsmsg.ARecord)
	if a.Name() != "foo.example.com." {
		t.Errorf("Synthesized name = %s, want foo.example.com.", a.Name())
	}
}

func TestGetRecords_AutoFQDN(t *testing.T) {
	z := New("example.com")
	rr := dnsmsg.NewA("www.example.com.", 3600, net.ParseIP("192.0.2.1"))
	z.AddRecord(rr)

	records := z.GetRecords("www.example.com", dnsmsg.TypeA)
	if len(records) != 1 {
		t.Error("Should find record even without trailing dot in query")
	}
}

func TestGetNameservers(t *testing.T) {
	z := New("example.com")
	for i := 1; i <= 2; i++ {
		ns := dnsmsg.NewNS("example.com.", 3600, "ns"+string(rune('0'+i))+".example.com.")
		z.AddRecord(ns)
	}

	nameservers := z.GetNameservers()
	if len(nameservers) != 2 {
		t.Errorf("GetNameservers() returned %d, want 2", len(nameservers))
	}
}

func TestValidate_NoSOA(t *testing.T) {
	z := New("example.com")
	if err := z.Validate(); err == nil {
		t.Error("Validate() should error without SOA")
	}
}

func TestValidate_NoNS(t *testing.T) {
	z := New("example.com")
	z.AddRecord(newSOA("example.com."))

	if err := z.Validate(); err == nil {
		t.Error("Validate() should error without NS records")
	}
}

func TestValidate_MissingGlue(t *testing.T) {
	z := New("example.com")
	z.AddRecord(newSOA("example.com."))
	z.AddRecord(dnsmsg.NewNS("example.com.", 3600, "ns1.example.com."))

	if err := z.Validate(); err == nil {
		t.Error("Validate() should error for missing glue records")
	}
}

func TestValidate_WithGlue(t *testing.T) {
	z := New("example.com")
	z.AddRecord(newSOA("example.com."))
	z.AddRecord(dnsmsg.NewNS("example.com.", 3600, "ns1.example.com."))
	z.AddRecord(dnsmsg.NewA("ns1.example.com.", 3600, net.ParseIP("192.0.2.1")))

	if err := z.Validate(); err != nil {
		t.Errorf("Validate() error = %v, should pass with glue", err)
	}
}

func TestValidate_CNAMEConflict(t *testing.T) {
	z := New("example.com")
	z.AddRecord(newSOA("example.com."))
	z.AddRecord(dnsmsg.NewNS("example.com.", 3600, "ns1.example.org."))
	z.AddRecord(dnsmsg.NewCNAME("www.example.com.", 3600, "web.example.com."))
	z.AddRecord(dnsmsg.NewA("www.example.com.", 3600, net.ParseIP("192.0.2.1")))

	if err := z.Validate(); err == nil {
		t.Error("Validate() should error for CNAME coexisting with other records")
	}
}

func TestIncrementSerial(t *testing.T) {
	z := New("example.com")
	z.AddRecord(newSOA("example.com."))

	oldSerial := z.SOA.Serial
	if err := z.IncrementSerial(); err != nil {
		t.Fatalf("IncrementSerial() error = %v", err)
	}
	if z.SOA.Serial <= oldSerial {
		t.Errorf("Serial not incremented: was %d, now %d", oldSerial, z.SOA.Serial)
	}
}

func TestClone(t *testing.T) {
	z := New("example.com")
	z.AddRecord(newSOA("example.com."))
	z.AddRecord(dnsmsg.NewA("www.example.com.", 3600, net.ParseIP("192.0.2.1")))

	clone := z.Clone()

	if clone.Name != z.Name {
		t.Errorf("Clone name = %s, want %s", clone.Name, z.Name)
	}
	if clone.SOA.Serial != z.SOA.Serial {
		t.Error("Clone SOA serial doesn't match")
	}

	clone.SOA.Serial = 999
	if z.SOA.Serial == 999 {
		t.Error("Modifying clone affected original")
	}
}

func TestGetStats(t *testing.T) {
	z := New("example.com")
	z.AddRecord(newSOA("example.com."))
	z.AddRecord(dnsmsg.NewA("www.example.com.", 3600, net.ParseIP("192.0.2.1")))
	z.AddRecord(dnsmsg.NewA("www.example.com.", 3600, net.ParseIP("192.0.2.2")))
	z.AddRecord(dnsmsg.NewAAAA("www.example.com.", 3600, net.ParseIP("2001:db8::1")))

	stats := z.GetStats()

	if stats.Owners != 2 {
		t.Errorf("Owners = %d, want 2", stats.Owners)
	}
	if stats.RecordSets != 3 {
		t.Errorf("RecordSets = %d, want 3", stats.RecordSets)
	}
	if stats.Records != 4 {
		t.Errorf("Records = %d, want 4", stats.Records)
	}
}

func TestJoinLabels(t *testing.T) {
	tests := []struct {
		labels []string
		want   string
	}{
		{[]string{}, "."},
		{[]string{"com"}, "com."},
		{[]string{"example", "com"}, "example.com."},
		{[]string{"www", "example", "com"}, "www.example.com."},
	}

	for _, tt := range tests {
		got := joinLabels(tt.labels)
		if got != tt.want {
			t.Errorf("joinLabels(%v) = %s, want %s", tt.labels, got, tt.want)
		}
	}
}

func TestFullyQualify(t *testing.T) {
	z := New("example.com")

	tests := []struct {
		name string
		want string
	}{
		{"", "example.com."},
		{"@", "example.com."},
		{"www", "www.example.com."},
		{"www.example.com.", "www.example.com."},
		{"sub.www", "sub.www.example.com."},
	}

	for _, tt := range tests {
		got := z.fullyQualify(tt.name)
		if got != tt.want {
			t.Errorf("fullyQualify(%q) = %s, want %s", tt.name, got, tt.want)
		}
	}
}
