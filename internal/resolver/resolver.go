// Package resolver implements the query-resolution capability shared by
// the recursive and forwarding strategies: one Resolve entry point with a
// common prologue (authority, recursion gate, cache) dispatching to a
// strategy-specific perform for the cases the prologue didn't settle.
package resolver

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/dnsscience/dnsscienced/internal/cache"
	"github.com/dnsscience/dnsscienced/internal/client"
	"github.com/dnsscience/dnsscienced/internal/dnserr"
	"github.com/dnsscience/dnsscienced/internal/dnsmsg"
)

// Authority is the local, preloaded zone database the server is
// authoritative for. It is consulted before recursion or cache.
type Authority interface {
	Query(name string, qtype dnsmsg.QueryType) (*dnsmsg.Packet, bool)
}

// Resolver answers one query, choosing between a local authority answer,
// the cache, and the strategy's own perform when neither has it.
type Resolver interface {
	Resolve(ctx context.Context, name string, qtype dnsmsg.QueryType, recursive bool) (*dnsmsg.Packet, error)
}

// base holds the collaborators every Resolver variant shares and
// implements the shared lookup prologue: type check, authority, recursion
// gate, then cache.
type base struct {
	authority      Authority
	cache          *cache.Cache
	allowRecursive bool
}

func newResponse(rcode dnsmsg.ResultCode) *dnsmsg.Packet {
	return &dnsmsg.Packet{Header: dnsmsg.Header{QR: true, Rcode: rcode}}
}

func synthesizeFromCache(result cache.Result) *dnsmsg.Packet {
	if result.Negative {
		return newResponse(dnsmsg.NXDOMAIN)
	}
	p := newResponse(dnsmsg.NOERROR)
	p.Answers = result.Records
	return p
}

// resolve runs the shared prologue and, if nothing settles the query,
// dispatches to perform.
func (b *base) resolve(ctx context.Context, name string, qtype dnsmsg.QueryType, recursive bool, perform func(context.Context, string, dnsmsg.QueryType) (*dnsmsg.Packet, error)) (*dnsmsg.Packet, error) {
	if !qtype.Known() {
		return newResponse(dnsmsg.NOTIMP), nil
	}

	if b.authority != nil {
		if qr, ok := b.authority.Query(name, qtype); ok {
			return qr, nil
		}
	}

	if !recursive || !b.allowRecursive {
		return newResponse(dnsmsg.REFUSED), nil
	}

	if result := b.cache.Lookup(name, qtype); result.Found {
		return synthesizeFromCache(result), nil
	}

	if qtype == dnsmsg.TypeA || qtype == dnsmsg.TypeAAAA {
		if result := b.cache.Lookup(name, dnsmsg.TypeCNAME); result.Found {
			return synthesizeFromCache(result), nil
		}
	}

	return perform(ctx, name, qtype)
}

// Forwarding sends every query it has to perform on to a single configured
// upstream, with recursion requested.
type Forwarding struct {
	base
	client     client.Client
	serverHost string
	serverPort uint16
}

// NewForwarding builds a Forwarding resolver pointed at (host, port).
func NewForwarding(authority Authority, c *cache.Cache, cl client.Client, allowRecursive bool, host string, port uint16) *Forwarding {
	return &Forwarding{
		base:       base{authority: authority, cache: c, allowRecursive: allowRecursive},
		client:     cl,
		serverHost: host,
		serverPort: port,
	}
}

func (f *Forwarding) Resolve(ctx context.Context, name string, qtype dnsmsg.QueryType, recursive bool) (*dnsmsg.Packet, error) {
	return f.resolve(ctx, name, qtype, recursive, f.perform)
}

func (f *Forwarding) perform(ctx context.Context, name string, qtype dnsmsg.QueryType) (*dnsmsg.Packet, error) {
	resp, err := f.client.SendQuery(ctx, name, qtype, f.serverHost, f.serverPort, true)
	if err != nil {
		return nil, err
	}
	if len(resp.Answers) > 0 {
		f.cache.Store(resp.Answers)
	}
	return resp, nil
}

// Recursive walks the public DNS hierarchy from a cached starting point
// downward, following referrals until it gets an answer, an authoritative
// NXDOMAIN, or exhausts its loop guard.
type Recursive struct {
	base
	client client.Client
}

// NewRecursive builds a Recursive resolver.
func NewRecursive(authority Authority, c *cache.Cache, cl client.Client, allowRecursive bool) *Recursive {
	return &Recursive{
		base:   base{authority: authority, cache: c, allowRecursive: allowRecursive},
		client: cl,
	}
}

func (r *Recursive) Resolve(ctx context.Context, name string, qtype dnsmsg.QueryType, recursive bool) (*dnsmsg.Packet, error) {
	return r.resolve(ctx, name, qtype, recursive, r.perform)
}

// perform seeds a starting name server from the cache by walking suffixes
// longest-first, then iteratively queries it and follows referrals,
// tracking consulted NS zones to guarantee termination.
func (r *Recursive) perform(ctx context.Context, name string, qtype dnsmsg.QueryType) (*dnsmsg.Packet, error) {
	ns, err := r.seedNameserver(name)
	if err != nil {
		return nil, err
	}

	zones := make(map[string]struct{})

	for {
		response, err := r.client.SendQuery(ctx, name, qtype, ns, 53, false)
		if err != nil {
			return nil, err
		}

		if response.Header.Rcode == dnsmsg.NOERROR && len(response.Answers) > 0 {
			r.cache.Store(response.Answers)
			r.cache.Store(response.Authorities)
			r.cache.Store(response.Additional)
			return response, nil
		}

		if response.Header.Rcode == dnsmsg.NXDOMAIN {
			if ttl, ok := ttlFromSOA(response.Authorities); ok {
				r.cache.StoreNXDomain(name, qtype, ttl)
			}
			return response, nil
		}

		zone := nsZone(name, response.Authorities)
		if zone != "" {
			if _, seen := zones[zone]; seen {
				return nil, fmt.Errorf("resolving %s %s: %w", qtype, name, dnserr.ErrNotFound)
			}
		}

		if addr, ok := resolvedNS(name, response.Authorities, response.Additional); ok {
			ns = addr
			r.cache.Store(response.Answers)
			r.cache.Store(response.Authorities)
			r.cache.Store(response.Additional)
			if zone != "" {
				zones[zone] = struct{}{}
			}
			continue
		}

		nsHost, ok := unresolvedNS(name, response.Authorities)
		if !ok {
			return nil, fmt.Errorf("resolving %s %s: %w", qtype, name, dnserr.ErrNotFound)
		}

		nsResponse, err := r.Resolve(ctx, nsHost, dnsmsg.TypeA, true)
		if err != nil {
			return nil, err
		}
		if nsResponse.Header.Rcode != dnsmsg.NOERROR {
			return nil, fmt.Errorf("resolving %s %s: nameserver %s has no address: %w", qtype, name, nsHost, dnserr.ErrNotFound)
		}
		if zone := nsZone(nsHost, nsResponse.Authorities); zone != "" {
			zones[zone] = struct{}{}
		}

		addr, ok := randomA(nsResponse.Answers)
		if !ok {
			return nil, fmt.Errorf("resolving %s %s: nameserver %s has no address: %w", qtype, name, nsHost, dnserr.ErrNotFound)
		}
		ns = addr
	}
}

// seedNameserver walks qname's suffixes from longest to shortest (the root
// suffix last, rendered "."), looking for a cached NS plus a cached A for
// one of its hosts. The first (longest) suffix with a full chain wins.
func (r *Recursive) seedNameserver(qname string) (string, error) {
	labels := splitLabels(qname)

	for i := 0; i <= len(labels); i++ {
		domain := joinSuffix(labels[i:])

		nsResult := r.cache.Lookup(domain, dnsmsg.TypeNS)
		if !nsResult.Found || nsResult.Negative {
			continue
		}
		host, ok := unresolvedNS(domain, nsResult.Records)
		if !ok {
			continue
		}
		aResult := r.cache.Lookup(host, dnsmsg.TypeA)
		if !aResult.Found || aResult.Negative {
			continue
		}
		if addr, ok := randomA(aResult.Records); ok {
			return addr, nil
		}
	}

	return "", fmt.Errorf("no DNS server found for %s: %w", qname, dnserr.ErrNotFound)
}

func randomA(records []dnsmsg.Record) (string, bool) {
	var candidates []*dnsmsg.ARecord
	for _, r := range records {
		if a, ok := r.(*dnsmsg.ARecord); ok {
			candidates = append(candidates, a)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	return candidates[rand.Intn(len(candidates))].Address.String(), true
}

// unresolvedNS returns a random NS hostname among authority records (here
// used for both a genuine authorities section and a cache-synthesized
// Answers section) that apply to qname, without regard to whether that
// hostname itself has a known address.
func unresolvedNS(qname string, authorities []dnsmsg.Record) (string, bool) {
	var hosts []string
	for _, r := range authorities {
		ns, ok := r.(*dnsmsg.NSRecord)
		if !ok {
			continue
		}
		if !isSuffixOrRoot(qname, ns.Name()) {
			continue
		}
		hosts = append(hosts, ns.Host)
	}
	if len(hosts) == 0 {
		return "", false
	}
	return hosts[rand.Intn(len(hosts))], true
}

// resolvedNS finds NS records in authorities whose host has a matching
// glue A record in additional, and whose owner domain is a suffix of
// qname, returning a random one's address.
func resolvedNS(qname string, authorities, additional []dnsmsg.Record) (string, bool) {
	var addrs []string
	for _, r := range authorities {
		ns, ok := r.(*dnsmsg.NSRecord)
		if !ok {
			continue
		}
		if !isSuffixOrRoot(qname, ns.Name()) {
			continue
		}
		for _, g := range additional {
			a, ok := g.(*dnsmsg.ARecord)
			if !ok || a.Name() != ns.Host {
				continue
			}
			addrs = append(addrs, a.Address.String())
		}
	}
	if len(addrs) == 0 {
		return "", false
	}
	return addrs[rand.Intn(len(addrs))], true
}

// nsZone is the longest owner domain among NS records in authorities that
// is a proper suffix of qname — the loop-detection key for one hop of
// referral-following.
func nsZone(qname string, authorities []dnsmsg.Record) string {
	best := ""
	for _, r := range authorities {
		ns, ok := r.(*dnsmsg.NSRecord)
		if !ok {
			continue
		}
		d := ns.Name()
		if d == qname {
			continue
		}
		if !isSuffixOrRoot(qname, d) {
			continue
		}
		if len(d) > len(best) {
			best = d
		}
	}
	return best
}

func ttlFromSOA(authorities []dnsmsg.Record) (time.Duration, bool) {
	for _, r := range authorities {
		if soa, ok := r.(*dnsmsg.SOARecord); ok {
			return time.Duration(soa.Retry) * time.Second, true
		}
	}
	return 0, false
}

func isSuffixOrRoot(qname, domain string) bool {
	if domain == "." || domain == "" {
		return true
	}
	return hasDomainSuffix(qname, domain)
}

func hasDomainSuffix(qname, domain string) bool {
	if len(domain) > len(qname) {
		return false
	}
	if qname == domain {
		return true
	}
	return len(qname) > len(domain) && qname[len(qname)-len(domain):] == domain && qname[len(qname)-len(domain)-1] == '.'
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
	return append(labels, name[start:])
}

func joinSuffix(labels []string) string {
	if len(labels) == 0 {
		return "."
	}
	out := ""
	for _, l := range labels {
		out += l + "."
	}
	return out
}
