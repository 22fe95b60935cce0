package client

import (
	"context"

	"github.com/dnsscience/dnsscienced/internal/dnsmsg"
)

// StubCallback is the injectable behavior behind StubClient, mirroring the
// original resolver's test harness: given the query name/type and the
// destination (server, port) plus whether recursion was requested, produce
// a response packet.
type StubCallback func(name string, qtype dnsmsg.QueryType, server string, port uint16, recursionDesired bool) (*dnsmsg.Packet, error)

// StubClient is a deterministic Client for resolver tests: no network, no
// goroutines, just the injected callback.
type StubClient struct {
	Callback StubCallback
}

func NewStubClient(cb StubCallback) *StubClient {
	return &StubClient{Callback: cb}
}

func (s *StubClient) SendQuery(ctx context.Context, name string, qtype dnsmsg.QueryType, server string, port uint16, recursionDesired bool) (*dnsmsg.Packet, error) {
	return s.Callback(name, qtype, server, port, recursionDesired)
}
