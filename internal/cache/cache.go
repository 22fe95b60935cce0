// Package cache implements the resolver's answer cache: a per-domain,
// per-query-type store of positive record sets and negatively cached
// NXDOMAIN markers. TTLs are unified internally as an absolute expiry;
// callers always see a decayed, relative TTL computed at lookup time.
package cache

import (
	"reflect"
	"sync"
	"time"

	"github.com/dnsscience/dnsscienced/internal/dnsmsg"
)

const defaultShardCount = 64

type key struct {
	domain string
	qtype  dnsmsg.QueryType
}

type cachedRecord struct {
	rec       dnsmsg.Record
	expiresAt time.Time
}

// entry is either a positive record set or a negative (NXDOMAIN) marker for
// one (domain, qtype) pair, never both.
type entry struct {
	negative   bool
	records    []cachedRecord
	negExpires time.Time
	insertedAt time.Time
	hits       uint64
}

type shard struct {
	mu      sync.Mutex
	entries map[key]*entry
}

// Cache is the shared answer cache. It is safe for concurrent use; each
// shard carries its own lock so unrelated domains rarely contend.
type Cache struct {
	shards    []*shard
	shardMask uint64
}

// New returns an empty cache. shardCount is rounded up to a power of two;
// zero selects a sensible default.
func New(shardCount int) *Cache {
	if shardCount <= 0 {
		shardCount = defaultShardCount
	}
	n := 1
	for n < shardCount {
		n <<= 1
	}
	c := &Cache{
		shards:    make([]*shard, n),
		shardMask: uint64(n - 1),
	}
	for i := range c.shards {
		c.shards[i] = &shard{entries: make(map[key]*entry)}
	}
	return c
}

func fnv1a(s string) uint64 {
	const (
		offset = 14695981039346656037
		prime  = 1099511628211
	)
	h := uint64(offset)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}
	return h
}

func (c *Cache) shardFor(domain string) *shard {
	return c.shards[fnv1a(domain)&c.shardMask]
}

// Store groups records by (domain, qtype) — records need not share either —
// and replaces (never merges) each corresponding entry. Every record's
// current TTL() is converted to an absolute expiry measured from now;
// records equal by full value within the same group are deduplicated.
func (c *Cache) Store(records []dnsmsg.Record) {
	if len(records) == 0 {
		return
	}
	now := time.Now()

	groups := make(map[key][]dnsmsg.Record)
	for _, r := range records {
		k := key{r.Name(), r.Type()}
		groups[k] = append(groups[k], r)
	}

	for k, recs := range groups {
		deduped := make([]cachedRecord, 0, len(recs))
		for _, r := range recs {
			dup := false
			for _, existing := range deduped {
				if reflect.DeepEqual(existing.rec, r) {
					dup = true
					break
				}
			}
			if dup {
				continue
			}
			deduped = append(deduped, cachedRecord{
				rec:       r,
				expiresAt: now.Add(time.Duration(r.TTL()) * time.Second),
			})
		}

		s := c.shardFor(k.domain)
		s.mu.Lock()
		s.entries[k] = &entry{
			records:    deduped,
			insertedAt: now,
		}
		s.mu.Unlock()
	}
}

// StoreNXDomain records a negative cache entry for (domain, qtype) valid
// for ttl, typically sourced from an authoritative SOA's retry field.
func (c *Cache) StoreNXDomain(domain string, qtype dnsmsg.QueryType, ttl time.Duration) {
	now := time.Now()
	s := c.shardFor(domain)
	s.mu.Lock()
	s.entries[key{domain, qtype}] = &entry{
		negative:   true,
		negExpires: now.Add(ttl),
		insertedAt: now,
	}
	s.mu.Unlock()
}

// Result is what Lookup reports for one (domain, qtype) pair.
type Result struct {
	Found    bool
	Negative bool
	Records  []dnsmsg.Record
}

// Lookup consults the cache for (domain, qtype). A positive hit returns
// clones of the stored records with TTL decayed to the remaining time
// since Store; an expired record is dropped rather than returned. A
// negative hit whose TTL has not yet elapsed reports Negative without
// records. Expired entries (positive with no records left, or a negative
// entry past its TTL) are pruned and reported as a miss.
func (c *Cache) Lookup(domain string, qtype dnsmsg.QueryType) Result {
	now := time.Now()
	s := c.shardFor(domain)
	k := key{domain, qtype}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[k]
	if !ok {
		return Result{}
	}

	if e.negative {
		if now.After(e.negExpires) {
			delete(s.entries, k)
			return Result{}
		}
		e.hits++
		return Result{Found: true, Negative: true}
	}

	live := make([]dnsmsg.Record, 0, len(e.records))
	remaining := e.records[:0]
	for _, cr := range e.records {
		ttl := cr.expiresAt.Sub(now)
		if ttl <= 0 {
			continue
		}
		remaining = append(remaining, cr)
		clone := cr.rec.Clone()
		clone.SetTTL(uint32(ttl.Seconds()))
		live = append(live, clone)
	}
	e.records = remaining

	if len(live) == 0 {
		delete(s.entries, k)
		return Result{}
	}

	e.hits++
	return Result{Found: true, Records: live}
}

// EntrySummary describes one cached (domain, qtype) pair for List.
type EntrySummary struct {
	Domain   string
	QType    dnsmsg.QueryType
	Negative bool
	Records  int
	Hits     uint64
}

// List returns a snapshot summary of every live entry, for diagnostics and
// for tests asserting on cache population and hit counts. It does not
// decay TTLs or prune as a side effect beyond what a concurrent Lookup
// might already have done.
func (c *Cache) List() []EntrySummary {
	var out []EntrySummary
	now := time.Now()
	for _, s := range c.shards {
		s.mu.Lock()
		for k, e := range s.entries {
			if e.negative {
				if now.After(e.negExpires) {
					continue
				}
				out = append(out, EntrySummary{Domain: k.domain, QType: k.qtype, Negative: true, Hits: e.hits})
				continue
			}
			n := 0
			for _, cr := range e.records {
				if cr.expiresAt.After(now) {
					n++
				}
			}
			if n == 0 {
				continue
			}
			out = append(out, EntrySummary{Domain: k.domain, QType: k.qtype, Records: n, Hits: e.hits})
		}
		s.mu.Unlock()
	}
	return out
}
