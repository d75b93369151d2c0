// Package client drives the client side of a connection: discovering
// servers, accepting their stream-format offer, running each server's
// peer.State machine, and delivering/sending audio. A Client tracks
// every server it has accepted by address, with a deadline priority
// queue enforcing ConnTimeout liveness.
package client

import (
	"net"
	"time"

	"github.com/charmbracelet/log"

	"github.com/netaudio/netaudio/internal/deadline"
	"github.com/netaudio/netaudio/pcm"
	"github.com/netaudio/netaudio/peer"
	"github.com/netaudio/netaudio/transport"
	"github.com/netaudio/netaudio/wire"
)

// ConnTimeout, RequestPollPeriod and EncodeBufLen are re-exported from
// wire for callers that only import client.
const (
	ConnTimeout       = wire.ConnTimeout
	RequestPollPeriod = wire.RequestPollPeriod
	EncodeBufLen      = wire.EncodeBufLen
)

// Handle is the application's per-server callback surface: the peer
// state-machine callbacks plus connection-level notifications that
// have no equivalent once a server is Active.
type Handle interface {
	peer.Callbacks
	// OnDisconnected is called when the server is removed by its own
	// Disconnect message or by ConnTimeout expiry. A local
	// Client.Disconnect does not call it.
	OnDisconnected()
}

// NewHandleFunc is consulted when a server never seen before offers a
// connection. Returning a non-nil ErrKind refuses it; the server is
// never registered and no Handle is constructed.
type NewHandleFunc func(addr *net.UDPAddr, formats pcm.StreamFormats) (Handle, *wire.ErrKind)

type serverEntry struct {
	addr    *net.UDPAddr
	state   *peer.State
	handle  Handle
	pending *wire.IOKind
}

// Client is the client-side peer registry and message router for one
// local socket; it may be connected to many servers concurrently.
type Client struct {
	sock      *transport.Socket
	log       *log.Logger
	newHandle NewHandleFunc
	servers   *deadline.Queue[*serverEntry]
}

// New constructs a Client bound to sock. newHandle is invoked for each
// previously-unseen server offering a connection.
func New(sock *transport.Socket, logger *log.Logger, newHandle NewHandleFunc) *Client {
	return &Client{
		sock:      sock,
		log:       logger,
		newHandle: newHandle,
		servers:   deadline.New[*serverEntry](),
	}
}

// Discover broadcasts a Discovery message to addr (typically the
// subnet broadcast address on the discovery port).
func (c *Client) Discover(addr *net.UDPAddr) error {
	buf, err := wire.EncodeClient(wire.Discovery{}, make([]byte, 0, EncodeBufLen))
	if err != nil {
		return err
	}
	return c.sock.Send(buf, addr)
}

// OnMessage decodes and routes one datagram received from addr at now.
// Decode failures are logged and dropped; messages from unknown servers
// are dropped (only an IOStateChangeResult is logged). Neither is fatal.
func (c *Client) OnMessage(data []byte, addr *net.UDPAddr, now time.Time) {
	msg, _, err := wire.DecodeServer(data)
	if err != nil {
		c.log.Warn("client: unrecognised datagram", "addr", addr, "err", err)
		return
	}
	key := addr.String()

	switch m := msg.(type) {
	case wire.Connect:
		c.onConnect(key, addr, m.Formats)
	case wire.IOStateChangeResult:
		entry, ok := c.servers.Get(key)
		if !ok {
			c.log.Warn("client: IOStateChangeResult from unknown server", "addr", addr)
			return
		}
		c.servers.Touch(key, now.Add(ConnTimeout))
		if entry.state.HandleIOResult(m) && entry.pending != nil {
			c.resend(entry, addr)
		}
	case wire.Heartbeat:
		c.servers.Touch(key, now.Add(ConnTimeout))
	case wire.ServerAudio:
		entry, ok := c.servers.Get(key)
		if !ok {
			return
		}
		c.servers.Touch(key, now.Add(ConnTimeout))
		entry.state.OnAudio(now, m.Audio)
	case wire.ServerDisconnect:
		entry, ok := c.servers.Get(key)
		if !ok {
			return
		}
		c.servers.Remove(key)
		entry.handle.OnDisconnected()
	default:
		c.log.Warn("client: unexpected server message", "addr", addr, "type", m)
	}
}

func (c *Client) onConnect(key string, addr *net.UDPAddr, formats pcm.StreamFormats) {
	if _, ok := c.servers.Get(key); ok {
		c.replyConnectionResult(addr, wire.OK())
		return
	}
	handle, refusal := c.newHandle(addr, formats)
	if refusal != nil {
		c.replyConnectionResult(addr, refusal)
		return
	}
	entry := &serverEntry{addr: addr, state: peer.New(handle), handle: handle}
	c.servers.Upsert(key, time.Now().Add(ConnTimeout), entry)
	c.replyConnectionResult(addr, wire.OK())
}

func (c *Client) replyConnectionResult(addr *net.UDPAddr, err *wire.ErrKind) {
	buf, encErr := wire.EncodeClient(wire.ConnectionResult{Err: err}, make([]byte, 0, EncodeBufLen))
	if encErr != nil {
		c.log.Error("client: encode ConnectionResult", "err", encErr)
		return
	}
	if sendErr := c.sock.Send(buf, addr); sendErr != nil {
		c.log.Warn("client: send ConnectionResult", "addr", addr, "err", sendErr)
	}
}

// Poll drives each connected server's peer.State, sending a
// RequestIOStateChange whenever the application's handle asks to start
// or stop audio I/O. It should be called roughly every
// RequestPollPeriod by the owning network thread.
func (c *Client) Poll() {
	for _, key := range c.servers.Keys() {
		entry, ok := c.servers.Get(key)
		if !ok {
			continue
		}
		if entry.state.PollStart() {
			entry.pending = ioKindPtr(wire.IOStart)
			c.sendRequest(entry, entry.addr, wire.IOStart)
		} else if entry.state.PollStop() {
			entry.pending = ioKindPtr(wire.IOStop)
			c.sendRequest(entry, entry.addr, wire.IOStop)
		}
	}
}

func (c *Client) resend(entry *serverEntry, addr *net.UDPAddr) {
	c.sendRequest(entry, addr, *entry.pending)
}

func (c *Client) sendRequest(entry *serverEntry, addr *net.UDPAddr, state wire.IOKind) {
	buf, err := wire.EncodeClient(wire.RequestIOStateChange{State: state}, make([]byte, 0, EncodeBufLen))
	if err != nil {
		c.log.Error("client: encode RequestIOStateChange", "err", err)
		return
	}
	if err := c.sock.Send(buf, addr); err != nil {
		c.log.Warn("client: send RequestIOStateChange", "addr", addr, "err", err)
	}
}

// SendAudio transmits one audio datagram to a connected server.
func (c *Client) SendAudio(addr *net.UDPAddr, audio wire.AudioData) error {
	buf, err := wire.EncodeClient(wire.ClientAudio{Audio: audio}, make([]byte, 0, EncodeBufLen))
	if err != nil {
		return err
	}
	return c.sock.Send(buf, addr)
}

// Disconnect tells server at addr to drop the connection and removes
// it locally; it does not invoke Handle.OnDisconnected, since the
// caller initiated the disconnect itself.
func (c *Client) Disconnect(addr *net.UDPAddr) error {
	c.servers.Remove(addr.String())
	buf, err := wire.EncodeClient(wire.ClientDisconnect{}, make([]byte, 0, EncodeBufLen))
	if err != nil {
		return err
	}
	return c.sock.Send(buf, addr)
}

// OnTimeout removes every server whose deadline has elapsed as of now,
// notifying each one's Handle.OnDisconnected, and returns their
// addresses for logging.
func (c *Client) OnTimeout(now time.Time) []*net.UDPAddr {
	expired := c.servers.PopExpired(now)
	addrs := make([]*net.UDPAddr, 0, len(expired))
	for _, entry := range expired {
		entry.handle.OnDisconnected()
		addrs = append(addrs, entry.addr)
	}
	return addrs
}

// NextDeadline returns the time the soonest-expiring server times out,
// for sizing the network thread's receive timeout.
func (c *Client) NextDeadline() (time.Time, bool) {
	return c.servers.NextDeadline()
}

// Connected reports whether addr is currently a registered server.
func (c *Client) Connected(addr *net.UDPAddr) bool {
	_, ok := c.servers.Get(addr.String())
	return ok
}

func ioKindPtr(k wire.IOKind) *wire.IOKind { return &k }
