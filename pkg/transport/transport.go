// Package transport implements the non-blocking UDP datagram transport
// (C2): fixed-port binding per role and a bounded per-tick receive drain.
package transport

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// DefaultServerPort and DefaultClientPort are the fixed ports each role
// binds to (§6).
const (
	DefaultServerPort = 6000
	DefaultClientPort = 6001
)

// MaxDatagramSize bounds the receive buffer (§6 "SHOULD NOT exceed ~40KB").
const MaxDatagramSize = 40 * 1024

// Datagram is one received UDP payload and the address it came from.
type Datagram struct {
	Payload []byte
	From    *net.UDPAddr
}

// Socket wraps a bound UDP connection with non-blocking-style recv: each
// Recv call returns immediately (empty, false) instead of ever blocking the
// tick loop, matching the original engine's set_socket_to_non_blocking_mode
// + recvfrom posture.
type Socket struct {
	conn *net.UDPConn
	buf  []byte
}

// Bind opens a UDP socket listening on the given port on all interfaces.
func Bind(port int) (*Socket, error) {
	addr := &net.UDPAddr{Port: port}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: bind to port %d: %w", port, err)
	}
	return &Socket{conn: conn, buf: make([]byte, MaxDatagramSize)}, nil
}

// Close releases the underlying socket.
func (s *Socket) Close() error {
	return s.conn.Close()
}

// LocalAddr returns the address the socket is bound to.
func (s *Socket) LocalAddr() *net.UDPAddr {
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Recv attempts one non-blocking receive. It returns ok=false, with no
// error, when nothing is currently queued — the tick loop's drain stops
// there rather than waiting. A datagram larger than MaxDatagramSize is
// dropped per §7 ("oversized payload").
func (s *Socket) Recv() (Datagram, bool, error) {
	if err := s.conn.SetReadDeadline(time.Now()); err != nil {
		return Datagram{}, false, fmt.Errorf("transport: set read deadline: %w", err)
	}
	n, from, err := s.conn.ReadFromUDP(s.buf)
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return Datagram{}, false, nil
		}
		return Datagram{}, false, fmt.Errorf("transport: recv: %w", err)
	}
	payload := make([]byte, n)
	copy(payload, s.buf[:n])
	return Datagram{Payload: payload, From: from}, true, nil
}

// DrainUpTo reads at most maxPackets datagrams, invoking handle for each.
// It stops early once the socket reports empty, bounding tick duration per
// §5 ("at most 1 + 2*client_count" packets per tick).
func (s *Socket) DrainUpTo(maxPackets int, handle func(Datagram)) error {
	for i := 0; i < maxPackets; i++ {
		dg, ok, err := s.Recv()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		handle(dg)
	}
	return nil
}

// SendTo transmits a payload to addr. Short writes are not possible over
// UDP send but a transient send error (e.g. would-block) is treated as
// recoverable by the caller retrying next tick (§7).
func (s *Socket) SendTo(addr *net.UDPAddr, payload []byte) error {
	_, err := s.conn.WriteToUDP(payload, addr)
	if err != nil {
		return fmt.Errorf("transport: send to %s: %w", addr, err)
	}
	return nil
}
