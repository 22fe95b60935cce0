// Package transport owns the two wire-facing listeners: a UDP server (one
// reader goroutine feeding a fixed worker pool through a bounded queue) and
// a TCP server (an acceptor handing each connection to one of a fixed set
// of per-worker channels). Neither touches query-resolution logic; both
// call server.ExecuteQuery and write back whatever it returns.
package transport

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	dnsasm "github.com/dnsscience/dnsscienced/dnsasm/go"
	"github.com/dnsscience/dnsscienced/internal/dnsmsg"
	"github.com/dnsscience/dnsscienced/internal/rrl"
	"github.com/dnsscience/dnsscienced/internal/server"
	"github.com/dnsscience/dnsscienced/internal/stats"
	"github.com/dnsscience/dnsscienced/internal/wire"
)

const udpReadTimeout = 100 * time.Millisecond

type udpRequest struct {
	addr *net.UDPAddr
	raw  []byte
}

// UDPServer reads datagrams on a single goroutine and fans them out to a
// fixed pool of workers through a bounded channel, mirroring the
// single-reader/fixed-pool shape a busy resolver needs to avoid one slow
// query stalling the socket read loop.
type UDPServer struct {
	conn    *net.UDPConn
	ctx     *server.Context
	limiter *rrl.Limiter
	stats   *stats.Stats
	workers int
	queue   chan udpRequest

	closed chan struct{}
}

// NewUDPServer binds addr and prepares workers worker goroutines, started
// by Start.
func NewUDPServer(addr string, sc *server.Context, limiter *rrl.Limiter, st *stats.Stats, workers int) (*UDPServer, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve UDP address %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, fmt.Errorf("bind UDP socket %s: %w", addr, err)
	}
	return &UDPServer{
		conn:    conn,
		ctx:     sc,
		limiter: limiter,
		stats:   st,
		workers: workers,
		queue:   make(chan udpRequest, workers*4),
		closed:  make(chan struct{}),
	}, nil
}

// Start launches the worker pool and the reader loop. It returns
// immediately; both run in background goroutines.
func (s *UDPServer) Start() {
	for i := 0; i < s.workers; i++ {
		go s.worker()
	}
	go s.readLoop()
}

// Close stops the reader and releases the socket. Workers drain the queue
// and exit once it is closed.
func (s *UDPServer) Close() error {
	close(s.closed)
	err := s.conn.Close()
	close(s.queue)
	return err
}

func (s *UDPServer) readLoop() {
	raw := make([]byte, wire.FixedSize)
	for {
		select {
		case <-s.closed:
			return
		default:
		}

		s.conn.SetReadDeadline(time.Now().Add(udpReadTimeout))
		n, addr, err := s.conn.ReadFromUDP(raw)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-s.closed:
				return
			default:
				continue
			}
		}

		// A cheap header-only parse rejects obvious garbage (a datagram
		// with the QR bit already set cannot be a query) before paying
		// for a full packet decode and a queue slot.
		if hdr, err := dnsasm.ParseHeader(raw[:n]); err == nil && hdr.QR {
			continue
		}

		buf := make([]byte, n)
		copy(buf, raw[:n])

		select {
		case s.queue <- udpRequest{addr: addr, raw: buf}:
		default:
			log.Printf("transport: UDP request queue full, dropping request from %s", addr)
		}
	}
}

func (s *UDPServer) worker() {
	for req := range s.queue {
		start := time.Now()
		s.handle(req)
		if s.stats != nil {
			s.stats.Record(time.Since(start).Milliseconds(), true)
		}
	}
}

func (s *UDPServer) handle(req udpRequest) {
	buf := wire.FromBytes(req.raw)
	request, err := dnsmsg.DecodePacket(buf)
	if err != nil {
		return
	}

	sizeLimit := wire.FixedSize
	if limit, ok := request.EDNSPayloadSize(); ok && int(limit) > sizeLimit {
		sizeLimit = int(limit)
	}

	response := server.ExecuteQuery(context.Background(), s.ctx, request)

	if s.limiter != nil && req.addr != nil && len(request.Questions) > 0 {
		category := rrl.CategorizeResponse(int(response.Header.Rcode), len(response.Answers), len(response.Authorities))
		switch s.limiter.Check(req.addr.IP, request.Questions[0].Name, request.Questions[0].Type.Uint16(), category) {
		case rrl.ActionDrop:
			return
		case rrl.ActionSlip:
			response.Answers = nil
			response.Authorities = nil
			response.Additional = nil
			response.Header.TC = true
		}
	}

	out := wire.NewGrowable()
	if err := response.Encode(out, sizeLimit); err != nil {
		log.Printf("transport: encoding UDP response to %s: %v", req.addr, err)
		return
	}
	if _, err := s.conn.WriteToUDP(out.Bytes(), req.addr); err != nil {
		log.Printf("transport: writing UDP response to %s: %v", req.addr, err)
	}
}
