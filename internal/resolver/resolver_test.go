package resolver

import (
	"context"
	"net"
	"testing"

	"github.com/dnsscience/dnsscienced/internal/cache"
	"github.com/dnsscience/dnsscienced/internal/client"
	"github.com/dnsscience/dnsscienced/internal/dnsmsg"
)

type noAuthority struct{}

func (noAuthority) Query(name string, qtype dnsmsg.QueryType) (*dnsmsg.Packet, bool) {
	return nil, false
}

func answerPacket(id uint16, answers ...dnsmsg.Record) *dnsmsg.Packet {
	return &dnsmsg.Packet{
		Header:  dnsmsg.Header{ID: id, QR: true, Rcode: dnsmsg.NOERROR},
		Answers: answers,
	}
}

func TestForwardingResolverUsesClientThenCache(t *testing.T) {
	calls := 0
	stub := client.NewStubClient(func(name string, qtype dnsmsg.QueryType, server string, port uint16, rd bool) (*dnsmsg.Packet, error) {
		calls++
		if !rd {
			t.Errorf("forwarding resolver must request recursion")
		}
		return answerPacket(1, dnsmsg.NewA(name, 300, net.ParseIP("93.184.216.34"))), nil
	})

	c := cache.New(0)
	r := NewForwarding(noAuthority{}, c, stub, true, "1.1.1.1", 53)

	resp, err := r.Resolve(context.Background(), "example.com.", dnsmsg.TypeA, true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(resp.Answers) != 1 {
		t.Fatalf("Answers = %d, want 1", len(resp.Answers))
	}
	if calls != 1 {
		t.Fatalf("client called %d times, want 1", calls)
	}

	// Second call must be satisfied from cache, with no further client call,
	// and the cache entry's hit counter must read exactly one hit.
	resp2, err := r.Resolve(context.Background(), "example.com.", dnsmsg.TypeA, true)
	if err != nil {
		t.Fatalf("Resolve (cached): %v", err)
	}
	if len(resp2.Answers) != 1 {
		t.Fatalf("cached Answers = %d, want 1", len(resp2.Answers))
	}
	if calls != 1 {
		t.Fatalf("client called %d times after cache hit, want still 1", calls)
	}

	summaries := c.List()
	if len(summaries) != 1 || summaries[0].Hits != 1 {
		t.Fatalf("cache summary = %+v, want one entry with 1 hit", summaries)
	}
}

func TestRecursiveResolverNoNameserverFails(t *testing.T) {
	stub := client.NewStubClient(func(name string, qtype dnsmsg.QueryType, server string, port uint16, rd bool) (*dnsmsg.Packet, error) {
		t.Fatalf("client should never be called when no starting nameserver is cached")
		return nil, nil
	})

	c := cache.New(0)
	r := NewRecursive(noAuthority{}, c, stub, true)

	_, err := r.Resolve(context.Background(), "example.com.", dnsmsg.TypeA, true)
	if err == nil {
		t.Fatal("expected failure with no cached nameserver, got nil error")
	}
}

func TestRecursiveResolverReferralWithoutGlueFails(t *testing.T) {
	// Root NS is cached and resolvable, but the response it gives back names
	// an NS host with no matching glue A record and the resolver should not
	// be able to recursively resolve that host's address either.
	c := cache.New(0)
	c.Store([]dnsmsg.Record{dnsmsg.NewNS(".", 1000, "a.root-servers.net.")})
	c.Store([]dnsmsg.Record{dnsmsg.NewA("a.root-servers.net.", 1000, net.ParseIP("198.41.0.4"))})

	stub := client.NewStubClient(func(name string, qtype dnsmsg.QueryType, server string, port uint16, rd bool) (*dnsmsg.Packet, error) {
		if qtype == dnsmsg.TypeA && name == "ns1.example.com." {
			return &dnsmsg.Packet{Header: dnsmsg.Header{ID: 2, QR: true, Rcode: dnsmsg.NXDOMAIN}}, nil
		}
		return &dnsmsg.Packet{
			Header:      dnsmsg.Header{ID: 3, QR: true, Rcode: dnsmsg.NOERROR},
			Authorities: []dnsmsg.Record{dnsmsg.NewNS("example.com.", 1000, "ns1.example.com.")},
		}, nil
	})

	r := NewRecursive(noAuthority{}, c, stub, true)

	_, err := r.Resolve(context.Background(), "www.example.com.", dnsmsg.TypeA, true)
	if err == nil {
		t.Fatal("expected failure when the referred NS host has no resolvable address")
	}
}

// TestRecursiveResolverFollowsReferralChain walks a root -> tld -> example.com
// chain (two referrals, each carrying glue, then the answer) and checks the header id
// of the final successful response propagates from the deepest hop queried.
func TestRecursiveResolverFollowsReferralChain(t *testing.T) {
	c := cache.New(0)
	c.Store([]dnsmsg.Record{dnsmsg.NewNS(".", 1000, "a.root-servers.net.")})
	c.Store([]dnsmsg.Record{dnsmsg.NewA("a.root-servers.net.", 1000, net.ParseIP("198.41.0.4"))})

	rootIP := "198.41.0.4"
	tldIP := "192.5.6.30"
	authIP := "93.184.216.1"

	stub := client.NewStubClient(func(name string, qtype dnsmsg.QueryType, server string, port uint16, rd bool) (*dnsmsg.Packet, error) {
		if rd {
			t.Errorf("recursive resolver must not set RD against referral servers")
		}
		switch server {
		case rootIP:
			return &dnsmsg.Packet{
				Header:      dnsmsg.Header{ID: 1, QR: true, Rcode: dnsmsg.NOERROR},
				Authorities: []dnsmsg.Record{dnsmsg.NewNS("com.", 1000, "a.gtld-servers.net.")},
				Additional:  []dnsmsg.Record{dnsmsg.NewA("a.gtld-servers.net.", 1000, net.ParseIP(tldIP))},
			}, nil
		case tldIP:
			return &dnsmsg.Packet{
				Header:      dnsmsg.Header{ID: 2, QR: true, Rcode: dnsmsg.NOERROR},
				Authorities: []dnsmsg.Record{dnsmsg.NewNS("example.com.", 1000, "ns1.example.com.")},
				Additional:  []dnsmsg.Record{dnsmsg.NewA("ns1.example.com.", 1000, net.ParseIP(authIP))},
			}, nil
		case authIP:
			return answerPacket(3, dnsmsg.NewA(name, 300, net.ParseIP("93.184.216.34"))), nil
		}
		t.Fatalf("unexpected upstream server %s", server)
		return nil, nil
	})

	r := NewRecursive(noAuthority{}, c, stub, true)

	resp, err := r.Resolve(context.Background(), "www.example.com.", dnsmsg.TypeA, true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resp.Header.ID != 3 {
		t.Errorf("response ID = %d, want 3 (the final authoritative hop)", resp.Header.ID)
	}
	if len(resp.Answers) != 1 {
		t.Fatalf("Answers = %d, want 1", len(resp.Answers))
	}
}

// TestRecursiveResolverCachesNegativeAnswer checks an NXDOMAIN carrying an
// authority SOA is negatively cached, and a repeat query is answered from
// that negative entry without a further client call. The negative entry's
// TTL is not inspected.
func TestRecursiveResolverCachesNegativeAnswer(t *testing.T) {
	c := cache.New(0)
	c.Store([]dnsmsg.Record{dnsmsg.NewNS(".", 1000, "a.root-servers.net.")})
	c.Store([]dnsmsg.Record{dnsmsg.NewA("a.root-servers.net.", 1000, net.ParseIP("198.41.0.4"))})

	calls := 0
	stub := client.NewStubClient(func(name string, qtype dnsmsg.QueryType, server string, port uint16, rd bool) (*dnsmsg.Packet, error) {
		calls++
		return &dnsmsg.Packet{
			Header: dnsmsg.Header{ID: 9, QR: true, Rcode: dnsmsg.NXDOMAIN},
			Authorities: []dnsmsg.Record{
				dnsmsg.NewSOA("example.com.", 1000, "ns1.example.com.", "hostmaster.example.com.", 1, 7200, 900, 1209600, 3600),
			},
		}, nil
	})

	r := NewRecursive(noAuthority{}, c, stub, true)

	resp, err := r.Resolve(context.Background(), "nope.example.com.", dnsmsg.TypeA, true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resp.Header.Rcode != dnsmsg.NXDOMAIN {
		t.Fatalf("Rcode = %v, want NXDOMAIN", resp.Header.Rcode)
	}
	if calls != 1 {
		t.Fatalf("client called %d times, want 1", calls)
	}

	result := c.Lookup("nope.example.com.", dnsmsg.TypeA)
	if !result.Found || !result.Negative {
		t.Fatalf("Lookup after NXDOMAIN = %+v, want a negative hit", result)
	}

	resp2, err := r.Resolve(context.Background(), "nope.example.com.", dnsmsg.TypeA, true)
	if err != nil {
		t.Fatalf("Resolve (from negative cache): %v", err)
	}
	if resp2.Header.Rcode != dnsmsg.NXDOMAIN {
		t.Fatalf("second Rcode = %v, want NXDOMAIN", resp2.Header.Rcode)
	}
	if calls != 1 {
		t.Fatalf("client called %d times after negative cache hit, want still 1", calls)
	}
}

func TestUnknownQueryTypeReturnsNotImplemented(t *testing.T) {
	stub := client.NewStubClient(func(name string, qtype dnsmsg.QueryType, server string, port uint16, rd bool) (*dnsmsg.Packet, error) {
		t.Fatal("client should not be consulted for an unknown query type")
		return nil, nil
	})

	r := NewForwarding(noAuthority{}, cache.New(0), stub, true, "1.1.1.1", 53)

	resp, err := r.Resolve(context.Background(), "example.com.", dnsmsg.QueryType(1234), true)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resp.Header.Rcode != dnsmsg.NOTIMP {
		t.Errorf("Rcode = %v, want NOTIMP", resp.Header.Rcode)
	}
}

func TestNonRecursiveQueryIsRefused(t *testing.T) {
	stub := client.NewStubClient(func(name string, qtype dnsmsg.QueryType, server string, port uint16, rd bool) (*dnsmsg.Packet, error) {
		t.Fatal("client should not be consulted when recursion is not requested")
		return nil, nil
	})

	r := NewForwarding(noAuthority{}, cache.New(0), stub, true, "1.1.1.1", 53)

	resp, err := r.Resolve(context.Background(), "example.com.", dnsmsg.TypeA, false)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if resp.Header.Rcode != dnsmsg.REFUSED {
		t.Errorf("Rcode = %v, want REFUSED", resp.Header.Rcode)
	}
}
