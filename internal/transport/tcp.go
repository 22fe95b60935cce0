package transport

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"net"
	"time"

	"github.com/dnsscience/dnsscienced/internal/dnsmsg"
	"github.com/dnsscience/dnsscienced/internal/server"
	"github.com/dnsscience/dnsscienced/internal/stats"
	"github.com/dnsscience/dnsscienced/internal/wire"
)

const tcpMaxSize = 0xFFFF

// TCPServer accepts connections on a single goroutine and hands each one to
// one of a fixed set of workers, each with its own channel, so one slow
// client can't starve the others the way a shared queue would under burst
// load.
type TCPServer struct {
	listener net.Listener
	ctx      *server.Context
	stats    *stats.Stats
	channels []chan net.Conn

	closed chan struct{}
}

// NewTCPServer listens on addr and prepares workers worker channels,
// started by Start.
func NewTCPServer(addr string, sc *server.Context, st *stats.Stats, workers int) (*TCPServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("bind TCP listener %s: %w", addr, err)
	}
	channels := make([]chan net.Conn, workers)
	for i := range channels {
		channels[i] = make(chan net.Conn, 8)
	}
	return &TCPServer{
		listener: ln,
		ctx:      sc,
		stats:    st,
		channels: channels,
		closed:   make(chan struct{}),
	}, nil
}

// Start launches the worker goroutines and the accept loop.
func (s *TCPServer) Start() {
	for _, ch := range s.channels {
		go s.worker(ch)
	}
	go s.acceptLoop()
}

// Close stops accepting new connections and releases the listener. Workers
// finish whatever connection they're handling and then block on their now
// permanently idle channel; the process exit reaps them.
func (s *TCPServer) Close() error {
	close(s.closed)
	return s.listener.Close()
}

func (s *TCPServer) acceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closed:
				return
			default:
				log.Printf("transport: TCP accept: %v", err)
				continue
			}
		}

		worker := rand.Intn(len(s.channels))
		select {
		case s.channels[worker] <- conn:
		default:
			log.Printf("transport: TCP worker %d busy, dropping connection from %s", worker, conn.RemoteAddr())
			conn.Close()
		}
	}
}

func (s *TCPServer) worker(ch chan net.Conn) {
	for conn := range ch {
		start := time.Now()
		s.handle(conn)
		if s.stats != nil {
			s.stats.Record(time.Since(start).Milliseconds(), false)
		}
	}
}

func (s *TCPServer) handle(conn net.Conn) {
	defer conn.Close()

	raw, err := readLengthPrefixed(conn)
	if err != nil {
		return
	}

	buf := wire.FromBytes(raw)
	request, err := dnsmsg.DecodePacket(buf)
	if err != nil {
		log.Printf("transport: decoding TCP query from %s: %v", conn.RemoteAddr(), err)
		return
	}

	response := server.ExecuteQuery(context.Background(), s.ctx, request)

	out := wire.NewGrowable()
	if err := response.Encode(out, tcpMaxSize); err != nil {
		log.Printf("transport: encoding TCP response to %s: %v", conn.RemoteAddr(), err)
		return
	}
	if err := writeLengthPrefixed(conn, out.Bytes()); err != nil {
		log.Printf("transport: writing TCP response to %s: %v", conn.RemoteAddr(), err)
		return
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		tc.CloseWrite()
	}
}

// readLengthPrefixed reads a 2-byte big-endian length prefix followed by
// that many bytes, the framing every DNS-over-TCP message uses.
func readLengthPrefixed(conn net.Conn) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := readFull(conn, lenBuf[:]); err != nil {
		return nil, err
	}
	length := int(lenBuf[0])<<8 | int(lenBuf[1])

	data := make([]byte, length)
	if _, err := readFull(conn, data); err != nil {
		return nil, err
	}
	return data, nil
}

func writeLengthPrefixed(conn net.Conn, data []byte) error {
	lenBuf := [2]byte{byte(len(data) >> 8), byte(len(data))}
	if _, err := conn.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := conn.Write(data)
	return err
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
