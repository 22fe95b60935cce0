// Package authority implements the local, preloaded zone database a server
// consults before falling back to recursion or the cache. It satisfies
// resolver.Authority: "a packet or nothing", never an error.
package authority

import (
	"net"

	"github.com/dnsscience/dnsscienced/internal/dnsmsg"
	"github.com/dnsscience/dnsscienced/internal/zone"
)

// Authority answers queries against a set of locally loaded zones, plus an
// optional set of root-server hints consulted when no loaded zone matches.
type Authority struct {
	zones map[string]*zone.Zone
	hints *zone.Zone
}

// New returns an empty Authority. Load zones with AddZone and, optionally,
// seed root hints with LoadRootHints.
func New() *Authority {
	return &Authority{zones: make(map[string]*zone.Zone)}
}

// AddZone files z under its origin, replacing any zone previously loaded
// for that origin.
func (a *Authority) AddZone(z *zone.Zone) {
	a.zones[z.Origin] = z
}

// LoadRootHints seeds the authority with the 13 root-server NS/glue-A hints
// so a Recursive resolver always has a starting point even with an empty
// cache. Hints answer only NS queries for ".", never taking priority over a
// loaded zone for any other name.
func (a *Authority) LoadRootHints() {
	a.hints = zone.New(".")
	for _, h := range rootHints {
		a.hints.AddRecord(dnsmsg.NewNS(".", rootHintTTL, h.host))
		a.hints.AddRecord(dnsmsg.NewA(h.host, rootHintTTL, net.ParseIP(h.addr)))
	}
}

// Query answers (name, qtype) from the best-matching loaded zone, falling
// back to root hints for an NS query at the root. It returns ok=false when
// nothing local applies, signaling the caller to recurse or check the
// cache instead.
func (a *Authority) Query(name string, qtype dnsmsg.QueryType) (*dnsmsg.Packet, bool) {
	if z, ok := a.bestZone(name); ok {
		return a.queryZone(z, name, qtype), true
	}

	if a.hints != nil && name == "." && qtype == dnsmsg.TypeNS {
		return a.queryZone(a.hints, name, qtype), true
	}

	return nil, false
}

// bestZone returns the loaded zone whose origin is the longest suffix of
// name, if any.
func (a *Authority) bestZone(name string) (*zone.Zone, bool) {
	var best *zone.Zone
	for origin, z := range a.zones {
		if !hasDomainSuffix(name, origin) {
			continue
		}
		if best == nil || len(origin) > len(best.Origin) {
			best = z
		}
	}
	return best, best != nil
}

func (a *Authority) queryZone(z *zone.Zone, name string, qtype dnsmsg.QueryType) *dnsmsg.Packet {
	p := &dnsmsg.Packet{Header: dnsmsg.Header{QR: true, AA: true, Rcode: dnsmsg.NOERROR}}

	records := z.GetRecords(name, qtype)
	if len(records) == 0 {
		if cname := z.GetRecords(name, dnsmsg.TypeCNAME); len(cname) > 0 {
			p.Answers = cname
			return p
		}
		if z.SOA == nil {
			p.Header.Rcode = dnsmsg.NXDOMAIN
			return p
		}
		p.Header.Rcode = dnsmsg.NXDOMAIN
		p.Authorities = []dnsmsg.Record{z.SOA}
		return p
	}

	p.Answers = records
	if qtype != dnsmsg.TypeNS {
		p.Authorities = toRecords(z.GetNameservers())
	}
	return p
}

func toRecords(ns []*dnsmsg.NSRecord) []dnsmsg.Record {
	out := make([]dnsmsg.Record, len(ns))
	for i, n := range ns {
		out[i] = n
	}
	return out
}

func hasDomainSuffix(name, domain string) bool {
	if domain == "." {
		return true
	}
	if len(domain) > len(name) {
		return false
	}
	if name == domain {
		return true
	}
	return len(name) > len(domain) && name[len(name)-len(domain):] == domain && name[len(name)-len(domain)-1] == '.'
}
