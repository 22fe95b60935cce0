// Package client implements the DNS client used by the resolver to query
// upstream and authoritative name servers over UDP: one shared socket, a
// background receive loop, and an in-flight table keyed by transaction id.
package client

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/dnsscience/dnsscienced/internal/dnserr"
	"github.com/dnsscience/dnsscienced/internal/dnsmsg"
	"github.com/dnsscience/dnsscienced/internal/random"
	"github.com/dnsscience/dnsscienced/internal/wire"
)

// Client sends DNS queries and waits for the matching reply.
type Client interface {
	SendQuery(ctx context.Context, name string, qtype dnsmsg.QueryType, server string, port uint16, recursionDesired bool) (*dnsmsg.Packet, error)
}

const defaultTimeout = 5 * time.Second

type pending struct {
	question dnsmsg.Question
	reply    chan *dnsmsg.Packet
}

// NetworkClient is the production Client: one UDP socket, a background
// receive loop multiplexing replies to waiting SendQuery callers by
// transaction id.
type NetworkClient struct {
	conn    *net.UDPConn
	timeout time.Duration

	mu      sync.Mutex
	inFlight map[uint16]*pending

	closeOnce sync.Once
	closed    chan struct{}
}

// NewNetworkClient binds a UDP socket on localPort (0 lets the kernel pick)
// and starts the background receive loop.
func NewNetworkClient(localPort uint16) (*NetworkClient, error) {
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{Port: int(localPort)})
	if err != nil {
		return nil, fmt.Errorf("bind client socket: %w", err)
	}
	c := &NetworkClient{
		conn:     conn,
		timeout:  defaultTimeout,
		inFlight: make(map[uint16]*pending),
		closed:   make(chan struct{}),
	}
	go c.receiveLoop()
	return c, nil
}

// SetTimeout overrides the default per-query timeout.
func (c *NetworkClient) SetTimeout(d time.Duration) {
	c.timeout = d
}

// Close stops the receive loop and releases the socket.
func (c *NetworkClient) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return c.conn.Close()
}

// SendQuery builds a one-question query with a fresh random transaction id,
// sends it to server:port, and waits for a matching reply or the timeout
// (the smaller of ctx's deadline and the client's configured timeout).
func (c *NetworkClient) SendQuery(ctx context.Context, name string, qtype dnsmsg.QueryType, server string, port uint16, recursionDesired bool) (*dnsmsg.Packet, error) {
	id := random.TransactionID()

	req := &dnsmsg.Packet{
		Header: dnsmsg.Header{
			ID:     id,
			RD:     recursionDesired,
			Opcode: 0,
		},
		Questions: []dnsmsg.Question{
			{Name: name, Type: qtype, Class: dnsmsg.ClassIN},
		},
	}

	buf := wire.NewFixed()
	if err := req.Encode(buf, wire.FixedSize); err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	p := &pending{question: req.Questions[0], reply: make(chan *dnsmsg.Packet, 1)}
	c.mu.Lock()
	c.inFlight[id] = p
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.inFlight, id)
		c.mu.Unlock()
	}()

	addr, err := net.ResolveUDPAddr("udp4", fmt.Sprintf("%s:%d", server, port))
	if err != nil {
		return nil, fmt.Errorf("resolve upstream address: %w", err)
	}
	if _, err := c.conn.WriteToUDP(buf.Bytes(), addr); err != nil {
		return nil, fmt.Errorf("send query: %w", err)
	}

	timeout := c.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d < timeout {
			timeout = d
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case reply := <-p.reply:
		return reply, nil
	case <-timer.C:
		return nil, fmt.Errorf("waiting for reply to %s %s from %s: %w", name, qtype, server, dnserr.ErrTimedOut)
	case <-ctx.Done():
		return nil, fmt.Errorf("query to %s %s from %s: %w", name, qtype, server, ctx.Err())
	case <-c.closed:
		return nil, fmt.Errorf("client closed: %w", dnserr.ErrIO)
	}
}

// receiveLoop reads datagrams off the shared socket and dispatches each to
// the waiting caller whose transaction id and first question match. Stale
// or unmatched replies are dropped silently.
func (c *NetworkClient) receiveLoop() {
	raw := make([]byte, wire.FixedSize)
	for {
		n, _, err := c.conn.ReadFromUDP(raw)
		if err != nil {
			select {
			case <-c.closed:
				return
			default:
				continue
			}
		}

		buf := wire.FromBytes(append([]byte(nil), raw[:n]...))
		reply, err := dnsmsg.DecodePacket(buf)
		if err != nil {
			continue
		}

		c.mu.Lock()
		p, ok := c.inFlight[reply.Header.ID]
		c.mu.Unlock()
		if !ok {
			continue
		}
		if len(reply.Questions) == 0 || reply.Questions[0] != p.question {
			continue
		}

		select {
		case p.reply <- reply:
		default:
		}
	}
}
