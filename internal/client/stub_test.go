package client

import (
	"context"
	"testing"

	"github.com/dnsscience/dnsscienced/internal/dnsmsg"
)

func TestStubClientReturnsInjectedResponse(t *testing.T) {
	c := NewStubClient(func(name string, qtype dnsmsg.QueryType, server string, port uint16, rd bool) (*dnsmsg.Packet, error) {
		return &dnsmsg.Packet{Header: dnsmsg.Header{ID: 42}}, nil
	})

	got, err := c.SendQuery(context.Background(), "example.com.", dnsmsg.TypeA, "127.0.0.1", 53, true)
	if err != nil {
		t.Fatalf("SendQuery: %v", err)
	}
	if got.Header.ID != 42 {
		t.Errorf("ID = %d, want 42", got.Header.ID)
	}
}
