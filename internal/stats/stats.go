// Package stats implements the server's running request-time statistics:
// per-transport query counts and a min/max/average request time, plus a
// Prometheus export of the same counters for scrape-based observability.
package stats

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Stats accumulates request counts and timings across both transports.
// Safe for concurrent use.
type Stats struct {
	mu sync.Mutex

	startTime time.Time
	tcpCount  uint64
	udpCount  uint64
	minMillis int64
	maxMillis int64
	avgMillis int64

	requestsTotal   *prometheus.CounterVec
	requestDuration prometheus.Histogram
}

// New returns a Stats tracker, registering its Prometheus collectors with
// reg. reg may be nil, in which case the collectors are created but never
// registered (useful in tests).
func New(reg prometheus.Registerer) *Stats {
	s := &Stats{
		startTime: time.Now(),
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dnsscienced_requests_total",
			Help: "Total DNS requests served, by transport.",
		}, []string{"transport"}),
		requestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dnsscienced_request_duration_ms",
			Help:    "Request handling duration in milliseconds.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 16),
		}),
	}
	if reg != nil {
		reg.MustRegister(s.requestsTotal, s.requestDuration)
	}
	return s
}

// Record folds one completed request's elapsed time into the running
// statistics. Query count is updated before the average is recomputed, so
// the average always divides by the count that includes the new sample.
func (s *Stats) Record(elapsedMillis int64, isUDP bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if elapsedMillis > s.maxMillis {
		s.maxMillis = elapsedMillis
	}
	if s.minMillis == 0 || (elapsedMillis > 0 && elapsedMillis < s.minMillis) {
		s.minMillis = elapsedMillis
	}

	if isUDP {
		s.udpCount++
	} else {
		s.tcpCount++
	}
	count := s.udpCount + s.tcpCount
	s.avgMillis = (s.avgMillis*int64(count-1) + elapsedMillis) / int64(count)

	transport := "tcp"
	if isUDP {
		transport = "udp"
	}
	s.requestsTotal.WithLabelValues(transport).Inc()
	s.requestDuration.Observe(float64(elapsedMillis))
}

// TCPCount returns the number of TCP queries recorded so far.
func (s *Stats) TCPCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tcpCount
}

// UDPCount returns the number of UDP queries recorded so far.
func (s *Stats) UDPCount() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.udpCount
}

// Snapshot is a point-in-time copy of the accumulated statistics.
type Snapshot struct {
	StartTime time.Time
	TCPCount  uint64
	UDPCount  uint64
	MinMillis int64
	MaxMillis int64
	AvgMillis int64
}

// Snapshot returns the current statistics.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		StartTime: s.startTime,
		TCPCount:  s.tcpCount,
		UDPCount:  s.udpCount,
		MinMillis: s.minMillis,
		MaxMillis: s.maxMillis,
		AvgMillis: s.avgMillis,
	}
}
