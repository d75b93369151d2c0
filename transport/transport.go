// Package transport is a thin adapter over a UDP datagram socket: send,
// receive-with-timestamp, and receive-timeout control. Timeouts surface
// as TimeoutError, distinct from fatal I/O errors, so callers can treat
// them as a tick rather than a failure.
package transport

import (
	"errors"
	"net"
	"os"
	"time"
)

// MaxDatagramSize is the recommended maximum outbound datagram size
// (Ethernet MTU minus IP/UDP headroom); receivers must still tolerate up
// to MaxReceiveSize bytes.
const MaxDatagramSize = 1452

// MaxReceiveSize is the receive scratch buffer size, large enough to
// tolerate future growth of the protocol.
const MaxReceiveSize = 5000

// TimeoutError reports that a receive operation timed out or would have
// blocked; it is never fatal and must be handled as a scheduling tick,
// not an error to propagate.
type TimeoutError struct{ inner error }

func (e *TimeoutError) Error() string { return "transport: receive timed out" }

func (e *TimeoutError) Unwrap() error { return e.inner }

// IsTimeout reports whether err is (or wraps) a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}

// Socket is a UDP datagram socket with receive timestamping.
type Socket struct {
	conn *net.UDPConn
}

// Listen binds a UDP socket to addr ("" host means all interfaces).
func Listen(addr string) (*Socket, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, err
	}
	return &Socket{conn: conn}, nil
}

// LocalAddr returns the socket's bound local address.
func (s *Socket) LocalAddr() net.Addr { return s.conn.LocalAddr() }

// Close closes the underlying socket.
func (s *Socket) Close() error { return s.conn.Close() }

// Send writes a single datagram to addr. It returns an error if fewer
// bytes than offered were accepted by the kernel.
func (s *Socket) Send(b []byte, addr *net.UDPAddr) error {
	n, err := s.conn.WriteToUDP(b, addr)
	if err != nil {
		return err
	}
	if n != len(b) {
		return errShortWrite
	}
	return nil
}

var errShortWrite = errors.New("transport: short write")

// Recv reads one datagram into buf, returning the number of bytes read,
// the source address, and the local monotonic instant of arrival. A
// receive timeout is reported as a *TimeoutError, never as a generic
// fatal error.
func (s *Socket) Recv(buf []byte) (n int, addr *net.UDPAddr, timestamp time.Time, err error) {
	n, addr, err = s.conn.ReadFromUDP(buf)
	timestamp = time.Now()
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return 0, nil, timestamp, &TimeoutError{inner: err}
		}
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return 0, nil, timestamp, &TimeoutError{inner: err}
		}
		return 0, nil, timestamp, err
	}
	return n, addr, timestamp, nil
}

// SetRecvTimeout sets the socket's receive deadline. A nil timeout
// blocks forever; a zero duration polls (returns immediately, timing out
// if nothing is pending).
func (s *Socket) SetRecvTimeout(d *time.Duration) error {
	if d == nil {
		return s.conn.SetReadDeadline(time.Time{})
	}
	return s.conn.SetReadDeadline(time.Now().Add(*d))
}

// UDPConn exposes the underlying *net.UDPConn for callers that need
// platform-specific socket options (see sockopts_linux.go).
func (s *Socket) UDPConn() *net.UDPConn { return s.conn }
