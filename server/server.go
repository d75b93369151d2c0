// Package server drives the server side of a connection: answering
// Discovery with a format offer, admitting or refusing clients,
// applying their start/stop IO requests, sending Heartbeat, and
// routing audio. Unlike the client side, a server's per-client IO
// state needs no Pending stage: OnIORequested decides synchronously
// and the result is sent back in the same tick.
package server

import (
	"net"
	"time"

	"github.com/charmbracelet/log"

	"github.com/netaudio/netaudio/internal/deadline"
	"github.com/netaudio/netaudio/pcm"
	"github.com/netaudio/netaudio/transport"
	"github.com/netaudio/netaudio/wire"
)

const (
	ConnTimeout     = wire.ConnTimeout
	HeartbeatPeriod = wire.HeartbeatPeriod
	EncodeBufLen    = wire.EncodeBufLen
)

// Handle is the application's per-client callback surface.
type Handle interface {
	// OnIORequested applies state synchronously, returning nil to
	// accept it, ErrFailure if the change could not be applied but may
	// be retried, or ErrRefusal if it must never be retried.
	OnIORequested(state wire.IOKind) *wire.ErrKind
	// OnAudio delivers inbound audio from the client, while Active.
	OnAudio(timestamp time.Time, audio wire.AudioData)
	// OnDisconnected is called when the client is removed by its own
	// Disconnect message or by ConnTimeout expiry. A local
	// Server.Disconnect does not call it.
	OnDisconnected()
}

// OfferFunc decides how to answer a Discovery from a previously-unseen
// client: accept is the StreamFormats offered in the Connect reply
// (ignored if ok is false, in which case no reply is sent at all — the
// server stays silent to uninteresting Discovery broadcasts).
type OfferFunc func(addr *net.UDPAddr) (formats pcm.StreamFormats, ok bool)

// NewHandleFunc constructs the application handle for a client once it
// accepts the offered formats (ConnectionResult with no error).
type NewHandleFunc func(addr *net.UDPAddr, formats pcm.StreamFormats) Handle

type clientEntry struct {
	addr   *net.UDPAddr
	active bool
	handle Handle
}

// Server is the server-side client registry and message router for one
// local socket.
type Server struct {
	sock      *transport.Socket
	log       *log.Logger
	offer     OfferFunc
	newHandle NewHandleFunc
	clients   *deadline.Queue[*clientEntry]
	// pendingOffers holds the formats most recently offered to an
	// address awaiting ConnectionResult, keyed the same way as clients.
	pendingOffers map[string]pcm.StreamFormats
}

// New constructs a Server bound to sock.
func New(sock *transport.Socket, logger *log.Logger, offer OfferFunc, newHandle NewHandleFunc) *Server {
	return &Server{
		sock:          sock,
		log:           logger,
		offer:         offer,
		newHandle:     newHandle,
		clients:       deadline.New[*clientEntry](),
		pendingOffers: make(map[string]pcm.StreamFormats),
	}
}

// OnMessage decodes and routes one datagram received from addr at now.
func (s *Server) OnMessage(data []byte, addr *net.UDPAddr, now time.Time) {
	msg, _, err := wire.DecodeClient(data)
	if err != nil {
		s.log.Warn("server: unrecognised datagram", "addr", addr, "err", err)
		return
	}
	key := addr.String()

	switch m := msg.(type) {
	case wire.Discovery:
		s.onDiscovery(addr)
	case wire.ConnectionResult:
		s.onConnectionResult(key, addr, m.Err, now)
	case wire.RequestIOStateChange:
		s.onRequestIOStateChange(key, addr, m.State, now)
	case wire.ClientAudio:
		entry, ok := s.clients.Get(key)
		if !ok || !entry.active {
			return
		}
		s.clients.Touch(key, now.Add(ConnTimeout))
		entry.handle.OnAudio(now, m.Audio)
	case wire.ClientDisconnect:
		entry, ok := s.clients.Get(key)
		if !ok {
			return
		}
		s.clients.Remove(key)
		entry.handle.OnDisconnected()
	default:
		s.log.Warn("server: unexpected client message", "addr", addr, "type", m)
	}
}

func (s *Server) onDiscovery(addr *net.UDPAddr) {
	if _, ok := s.clients.Get(addr.String()); ok {
		return
	}
	formats, ok := s.offer(addr)
	if !ok {
		return
	}
	s.pendingOffers[addr.String()] = formats
	buf, err := wire.EncodeServer(wire.Connect{Formats: formats}, make([]byte, 0, EncodeBufLen))
	if err != nil {
		s.log.Error("server: encode Connect", "err", err)
		return
	}
	if err := s.sock.Send(buf, addr); err != nil {
		s.log.Warn("server: send Connect", "addr", addr, "err", err)
	}
}

func (s *Server) onConnectionResult(key string, addr *net.UDPAddr, err *wire.ErrKind, now time.Time) {
	formats, offered := s.pendingOffers[key]
	delete(s.pendingOffers, key)
	if !offered || err != nil {
		return
	}
	handle := s.newHandle(addr, formats)
	entry := &clientEntry{addr: addr, handle: handle}
	s.clients.Upsert(key, now.Add(ConnTimeout), entry)
}

func (s *Server) onRequestIOStateChange(key string, addr *net.UDPAddr, state wire.IOKind, now time.Time) {
	entry, ok := s.clients.Get(key)
	if !ok {
		s.log.Warn("server: IO request from unknown client", "addr", addr)
		return
	}
	s.clients.Touch(key, now.Add(ConnTimeout))
	result := entry.handle.OnIORequested(state)
	if result == nil {
		entry.active = state == wire.IOStart
	}
	buf, err := wire.EncodeServer(wire.IOStateChangeResult{State: state, Err: result}, make([]byte, 0, EncodeBufLen))
	if err != nil {
		s.log.Error("server: encode IOStateChangeResult", "err", err)
		return
	}
	if err := s.sock.Send(buf, addr); err != nil {
		s.log.Warn("server: send IOStateChangeResult", "addr", addr, "err", err)
	}
}

// SendHeartbeats sends a Heartbeat to every connected client; the
// caller is expected to invoke this every HeartbeatPeriod.
func (s *Server) SendHeartbeats() {
	buf, err := wire.EncodeServer(wire.Heartbeat{}, make([]byte, 0, EncodeBufLen))
	if err != nil {
		s.log.Error("server: encode Heartbeat", "err", err)
		return
	}
	for _, key := range s.clients.Keys() {
		entry, ok := s.clients.Get(key)
		if !ok {
			continue
		}
		if err := s.sock.Send(buf, entry.addr); err != nil {
			s.log.Warn("server: send Heartbeat", "addr", entry.addr, "err", err)
		}
	}
}

// SendAudio transmits one audio datagram to a connected, active
// client.
func (s *Server) SendAudio(addr *net.UDPAddr, audio wire.AudioData) error {
	buf, err := wire.EncodeServer(wire.ServerAudio{Audio: audio}, make([]byte, 0, EncodeBufLen))
	if err != nil {
		return err
	}
	return s.sock.Send(buf, addr)
}

// Disconnect tells the client at addr to drop the connection and
// removes it locally, without invoking Handle.OnDisconnected.
func (s *Server) Disconnect(addr *net.UDPAddr) error {
	s.clients.Remove(addr.String())
	buf, err := wire.EncodeServer(wire.ServerDisconnect{}, make([]byte, 0, EncodeBufLen))
	if err != nil {
		return err
	}
	return s.sock.Send(buf, addr)
}

// OnTimeout removes every client whose deadline has elapsed as of now,
// notifying each one's Handle.OnDisconnected, and returns their
// addresses for logging.
func (s *Server) OnTimeout(now time.Time) []*net.UDPAddr {
	expired := s.clients.PopExpired(now)
	addrs := make([]*net.UDPAddr, 0, len(expired))
	for _, entry := range expired {
		entry.handle.OnDisconnected()
		addrs = append(addrs, entry.addr)
	}
	return addrs
}

// NextDeadline returns the time the soonest-expiring client times out.
func (s *Server) NextDeadline() (time.Time, bool) {
	return s.clients.NextDeadline()
}

// Connected reports whether addr is currently a registered client.
func (s *Server) Connected(addr *net.UDPAddr) bool {
	_, ok := s.clients.Get(addr.String())
	return ok
}
