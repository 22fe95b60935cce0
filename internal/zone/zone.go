// Package zone holds an in-memory authoritative zone: records grouped by
// owner name and type, with wildcard lookup and the validation an
// authority refuses to load a broken zone without.
package zone

import (
	"fmt"
	"time"

	"github.com/dnsscience/dnsscienced/internal/dnsmsg"
)

// Zone is one authoritative DNS zone.
type Zone struct {
	Name   string
	Origin string // fully qualified zone name, e.g. "example.com."

	// Records maps owner name -> query type -> the record set for that pair.
	Records map[string]map[dnsmsg.QueryType][]dnsmsg.Record

	SOA *dnsmsg.SOARecord
}

// Config holds zone-loading options.
type Config struct {
	DefaultTTL uint32
	Strict     bool // fail to load rather than tolerate a validation error
}

func DefaultConfig() Config {
	return Config{DefaultTTL: 3600, Strict: true}
}

// New creates an empty zone rooted at name, which is fully qualified if it
// isn't already.
func New(name string) *Zone {
	if name == "" || name[len(name)-1] != '.' {
		name += "."
	}
	return &Zone{
		Name:    name,
		Origin:  name,
		Records: make(map[string]map[dnsmsg.QueryType][]dnsmsg.Record),
	}
}

// AddRecord files r under its own owner name and type. An SOA additionally
// updates z.SOA.
func (z *Zone) AddRecord(r dnsmsg.Record) error {
	if r == nil {
		return fmt.Errorf("cannot add nil record")
	}
	owner := r.Name()
	if !isSubdomain(z.Origin, owner) {
		return fmt.Errorf("record %s not in zone %s", owner, z.Origin)
	}

	if z.Records[owner] == nil {
		z.Records[owner] = make(map[dnsmsg.QueryType][]dnsmsg.Record)
	}
	z.Records[owner][r.Type()] = append(z.Records[owner][r.Type()], r)

	if soa, ok := r.(*dnsmsg.SOARecord); ok {
		z.SOA = soa
	}
	return nil
}

// GetRecords returns the record set for (owner, qtype), falling back to a
// wildcard owner ("*.<suffix>") one label at a time if no exact match
// exists, renaming the wildcard's records to the queried owner.
func (z *Zone) GetRecords(owner string, qtype dnsmsg.QueryType) []dnsmsg.Record {
	if owner == "" || owner[len(owner)-1] != '.' {
		owner += "."
	}

	if typeMap, ok := z.Records[owner]; ok {
		if records, ok := typeMap[qtype]; ok {
			return records
		}
	}

	labels := splitLabels(owner)
	for i := 1; i < len(labels); i++ {
		wildcard := "*." + joinLabels(labels[i:])
		typeMap, ok := z.Records[wildcard]
		if !ok {
			continue
		}
		records, ok := typeMap[qtype]
		if !ok {
			continue
		}
		result := make([]dnsmsg.Record, len(records))
		for j, r := range records {
			clone := r.Clone()
			clone.SetName(owner)
			result[j] = clone
		}
		return result
	}

	return nil
}

// GetAllRecords returns every record held by the zone, across all owners
// and types.
func (z *Zone) GetAllRecords() []dnsmsg.Record {
	var out []dnsmsg.Record
	for _, typeMap := range z.Records {
		for _, records := range typeMap {
			out = append(out, records...)
		}
	}
	return out
}

// GetNameservers returns the zone apex's NS records.
func (z *Zone) GetNameservers() []*dnsmsg.NSRecord {
	records := z.GetRecords(z.Origin, dnsmsg.TypeNS)
	out := make([]*dnsmsg.NSRecord, 0, len(records))
	for _, r := range records {
		if ns, ok := r.(*dnsmsg.NSRecord); ok {
			out = append(out, ns)
		}
	}
	return out
}

// Validate checks the zone invariants an authority must not serve without:
// an apex SOA, at least one apex NS, glue present for in-zone nameservers,
// CNAME exclusivity, and MX targets that aren't themselves CNAMEs.
func (z *Zone) Validate() error {
	if z.SOA == nil {
		return fmt.Errorf("zone %s missing SOA record", z.Origin)
	}
	if z.SOA.Name() != z.Origin {
		return fmt.Errorf("SOA record name %s does not match origin %s", z.SOA.Name(), z.Origin)
	}

	ns := z.GetNameservers()
	if len(ns) == 0 {
		return fmt.Errorf("zone %s has no nameservers", z.Origin)
	}
	for _, n := range ns {
		if !isSubdomain(z.Origin, n.Host) {
			continue
		}
		hasGlue := len(z.GetRecords(n.Host, dnsmsg.TypeA)) > 0 || len(z.GetRecords(n.Host, dnsmsg.TypeAAAA)) > 0
		if !hasGlue {
			return fmt.Errorf("nameserver %s in zone but missing glue records", n.Host)
		}
	}

	for owner, typeMap := range z.Records {
		if cnames, ok := typeMap[dnsmsg.TypeCNAME]; ok {
			if len(typeMap) > 1 {
				return fmt.Errorf("CNAME record at %s coexists with other records", owner)
			}
			if len(cnames) > 1 {
				return fmt.Errorf("multiple CNAME records at %s", owner)
			}
		}
	}

	for owner, typeMap := range z.Records {
		for _, r := range typeMap[dnsmsg.TypeMX] {
			mx := r.(*dnsmsg.MXRecord)
			if mx.Host == "." {
				continue // null MX, RFC 7505
			}
			if len(z.GetRecords(mx.Host, dnsmsg.TypeCNAME)) > 0 {
				return fmt.Errorf("MX record at %s points to CNAME %s", owner, mx.Host)
			}
		}
	}

	return nil
}

// IncrementSerial bumps the SOA serial using the YYYYMMDDNN convention,
// jumping forward to today's first serial if the stored one predates it.
func (z *Zone) IncrementSerial() error {
	if z.SOA == nil {
		return fmt.Errorf("no SOA record to increment")
	}
	var todaySerial uint32
	fmt.Sscanf(time.Now().Format("20060102")+"00", "%d", &todaySerial)

	switch {
	case z.SOA.Serial < todaySerial:
		z.SOA.Serial = todaySerial
	default:
		z.SOA.Serial++
	}
	return nil
}

// Clone returns a deep copy of the zone.
func (z *Zone) Clone() *Zone {
	c := &Zone{
		Name:    z.Name,
		Origin:  z.Origin,
		Records: make(map[string]map[dnsmsg.QueryType][]dnsmsg.Record),
	}
	for owner, typeMap := range z.Records {
		c.Records[owner] = make(map[dnsmsg.QueryType][]dnsmsg.Record)
		for qtype, records := range typeMap {
			cloned := make([]dnsmsg.Record, len(records))
			for i, r := range records {
				cloned[i] = r.Clone()
			}
			c.Records[owner][qtype] = cloned
		}
	}
	if z.SOA != nil {
		c.SOA = z.SOA.Clone().(*dnsmsg.SOARecord)
	}
	return c
}

// Stats summarizes a zone's size for diagnostics.
type Stats struct {
	Name       string
	RecordSets int
	Records    int
	Owners     int
}

func (z *Zone) GetStats() Stats {
	s := Stats{Name: z.Name, Owners: len(z.Records)}
	for _, typeMap := range z.Records {
		for _, records := range typeMap {
			s.RecordSets++
			s.Records += len(records)
		}
	}
	return s
}

// fullyQualify resolves a YAML owner name ("@", relative, or already
// absolute) against the zone's origin.
func (z *Zone) fullyQualify(name string) string {
	if name == "" || name == "@" {
		return z.Origin
	}
	if name[len(name)-1] == '.' {
		return name
	}
	return name + "." + z.Origin
}

func isSubdomain(origin, name string) bool {
	if origin == name {
		return true
	}
	return len(name) > len(origin) && name[len(name)-len(origin):] == origin
}

func splitLabels(name string) []string {
	if name == "" || name == "." {
		return nil
	}
	if name[len(name)-1] == '.' {
		name = name[:len(name)-1]
	}
	var labels []string
	start := 0
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			labels = append(labels, name[start:i])
			start = i + 1
		}
	}
	return append(labels, name[start:])
}

func joinLabels(labels []string) string {
	if len(labels) == 0 {
		return "."
	}
	out := ""
	for _, l := range labels {
		out += l + "."
	}
	return out
}

func fqdn(name string) string {
	if name == "" || name[len(name)-1] == '.' {
		if name == "" {
			return "."
		}
		return name
	}
	return name + "."
}
