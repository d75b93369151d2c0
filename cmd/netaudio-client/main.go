// Command netaudio-client connects to one netaudio server, negotiates a
// stream format, and drives full-duplex audio through the local sound
// card via PortAudio.
package main

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gordonklaus/portaudio"
	"github.com/spf13/pflag"

	"github.com/netaudio/netaudio/client"
	"github.com/netaudio/netaudio/discovery"
	"github.com/netaudio/netaudio/engine"
	"github.com/netaudio/netaudio/framing"
	"github.com/netaudio/netaudio/interleave"
	"github.com/netaudio/netaudio/netaudioconfig"
	"github.com/netaudio/netaudio/pcm"
	"github.com/netaudio/netaudio/timing"
	"github.com/netaudio/netaudio/transport"
	"github.com/netaudio/netaudio/wire"
)

func main() {
	cfg := netaudioconfig.Default()
	configPath := pflag.StringP("config", "c", "", "Path to a YAML configuration file; overrides any other flag when given.")
	cfg.RegisterFlags(pflag.CommandLine)
	pflag.Parse()

	if *configPath != "" {
		loaded, err := netaudioconfig.Load(*configPath)
		if err != nil {
			log.Fatal("netaudio-client: loading config", "err", err)
		}
		cfg = loaded
	}

	logger := log.New(os.Stderr)
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := portaudio.Initialize(); err != nil {
		logger.Fatal("netaudio-client: portaudio init", "err", err)
	}
	defer portaudio.Terminate()

	discoverAddr, err := net.ResolveUDPAddr("udp", cfg.BeaconAddr)
	if err != nil {
		logger.Fatal("netaudio-client: resolving beacon address", "addr", cfg.BeaconAddr, "err", err)
	}

	sock, err := transport.Listen(cfg.ListenAddr)
	if err != nil {
		logger.Fatal("netaudio-client: binding socket", "addr", cfg.ListenAddr, "err", err)
	}
	defer sock.Close()

	if err := sock.EnableBroadcast(); err != nil {
		logger.Fatal("netaudio-client: enabling broadcast", "err", err)
	}

	connected := make(chan *net.UDPAddr, 1)
	var cli *client.Client
	cli = client.New(sock, logger, func(addr *net.UDPAddr, formats pcm.StreamFormats) (client.Handle, *wire.ErrKind) {
		h, err := newClientHandle(logger, cli, addr, formats)
		if err != nil {
			logger.Error("netaudio-client: opening audio stream", "err", err)
			return nil, wire.Failed()
		}
		select {
		case connected <- addr:
		default:
		}
		return h, nil
	})

	if cfg.MDNSEnabled {
		go func() {
			err := discovery.Browse(ctx, func(s discovery.Server) {
				logger.Info("netaudio-client: discovered server via mDNS", "host", s.Host, "port", s.Port)
			}, func(discovery.Server) {})
			if err != nil && ctx.Err() == nil {
				logger.Error("netaudio-client: mDNS browse stopped", "err", err)
			}
		}()
	}

	// The peer registry (cli.servers, its deadline queue) is owned by
	// this select loop alone. The recv goroutine only reads the socket
	// and hands raw datagrams across inbound; it never touches the
	// registry itself.
	type datagram struct {
		data []byte
		addr *net.UDPAddr
		ts   time.Time
	}
	inbound := make(chan datagram, 32)
	go func() {
		for {
			buf := make([]byte, transport.MaxReceiveSize)
			n, addr, ts, err := sock.Recv(buf)
			if err != nil {
				if transport.IsTimeout(err) {
					continue
				}
				return
			}
			select {
			case inbound <- datagram{data: buf[:n], addr: addr, ts: ts}:
			case <-ctx.Done():
				return
			}
		}
	}()

	beacon := time.NewTicker(cfg.BeaconPeriod)
	defer beacon.Stop()
	poll := time.NewTicker(client.RequestPollPeriod)
	defer poll.Stop()

	logger.Info("netaudio-client: broadcasting for servers", "addr", cfg.BeaconAddr)
	haveServer := false
	for {
		select {
		case <-ctx.Done():
			logger.Info("netaudio-client: shutting down")
			return
		case dg := <-inbound:
			cli.OnMessage(dg.data, dg.addr, dg.ts)
		case addr := <-connected:
			haveServer = true
			logger.Info("netaudio-client: connected", "server", addr)
		case <-poll.C:
			cli.Poll()
			for _, addr := range cli.OnTimeout(time.Now()) {
				haveServer = false
				logger.Warn("netaudio-client: server timed out", "server", addr)
			}
		case <-beacon.C:
			if haveServer {
				continue
			}
			if err := cli.Discover(discoverAddr); err != nil {
				logger.Warn("netaudio-client: sending Discovery", "err", err)
			}
		}
	}
}

// clientHandle drives one server's peer.State callbacks and the audio
// glue for its negotiated format: capture is sent as ClientAudio on the
// server's advertised Outputs stream; playback is decoded from ServerAudio
// on its advertised Inputs stream (see wire.AudioData's doc comment for
// why the naming runs from the server's point of view).
type clientHandle struct {
	log     *log.Logger
	addr    *net.UDPAddr
	formats pcm.StreamFormats
	cli     *client.Client

	stream *portaudio.Stream
	in     *engine.InputStream
	out    *engine.OutputStream
	padder *framing.BytePadder
	waker  *timing.ChanWaker

	sendByteIdx uint64
	tryStart    bool
	active      bool
}

func newClientHandle(logger *log.Logger, cli *client.Client, addr *net.UDPAddr, formats pcm.StreamFormats) (*clientHandle, error) {
	if len(formats.Inputs) == 0 || len(formats.Outputs) == 0 {
		return nil, errNoStreamsOffered
	}
	captureFormat := formats.Outputs[0] // client captures and sends on the server's Output stream
	playbackFormat := formats.Inputs[0] // client plays the server's Input stream

	waker := timing.NewChanWaker()
	h := &clientHandle{
		log:      logger,
		addr:     addr,
		formats:  formats,
		cli:      cli,
		tryStart: true,
		padder:   framing.NewBytePadder(playbackFormat.SampleType.Size()),
		waker:    waker,
	}

	frameCount := int(captureFormat.BufferSize)
	if frameCount == 0 {
		frameCount = 32
	}
	h.in = engine.NewInputStream(captureFormat, frameCount, waker)
	h.out = engine.NewOutputStream(playbackFormat, frameCount)

	inChannels := int(captureFormat.ChannelCount)
	outChannels := int(playbackFormat.ChannelCount)
	inPorts := make([]portBuffer, inChannels)
	inViews := make([]engine.PortBuffer, inChannels)
	for i := range inPorts {
		inPorts[i] = portBuffer{buf: make([]float32, frameCount)}
		inViews[i] = &inPorts[i]
	}
	outPorts := make([]portBuffer, outChannels)
	outViews := make([]engine.PortBuffer, outChannels)
	for i := range outPorts {
		outPorts[i] = portBuffer{buf: make([]float32, frameCount)}
		outViews[i] = &outPorts[i]
	}
	h.in.Bind(inViews)
	h.out.Bind(outViews)

	clock := timing.NewWakingClock(uint64(frameCount*inChannels), waker)
	handler := engine.NewHandler([]*engine.InputStream{h.in}, []*engine.OutputStream{h.out}, clock)

	captureBufs := make([][]float32, inChannels)
	for i := range inPorts {
		captureBufs[i] = inPorts[i].buf
	}
	playbackBufs := make([][]float32, outChannels)
	for i := range outPorts {
		playbackBufs[i] = outPorts[i].buf
	}

	var cycleIdx int64
	callback := func(in, out []float32) {
		_ = interleave.Deinterleave(in, captureBufs)
		handler.Process(len(in)/inChannels, cycleIdx)
		cycleIdx += int64(len(in) / inChannels)
		_ = interleave.Interleave(playbackBufs, out)
	}

	stream, err := portaudio.OpenDefaultStream(inChannels, outChannels, captureFormat.SampleRate.Hz(), frameCount, callback)
	if err != nil {
		return nil, err
	}
	h.stream = stream

	go h.pumpOutbound()

	return h, nil
}

// portBuffer adapts a plain slice to engine.PortBuffer.
type portBuffer struct{ buf []float32 }

func (p *portBuffer) Samples() []float32 { return p.buf }

var errNoStreamsOffered = errors.New("netaudio-client: server offered no streams")

// pumpOutbound parks on the audio thread's waker, so a chunk is sent as
// soon as the callback crosses a boundary rather than waiting for the
// next poll tick.
func (h *clientHandle) pumpOutbound() {
	for range h.waker.C() {
		if !h.active {
			continue
		}
		drained := h.in.Consumer().ReadAll()
		if len(drained) == 0 {
			continue
		}
		audio := wire.AudioData{StreamIdx: 0, Data: wire.AudioStreamData{ByteIndex: h.sendByteIdx, Bytes: drained}}
		if err := h.cli.SendAudio(h.addr, audio); err != nil {
			h.log.Warn("netaudio-client: send audio", "err", err)
			continue
		}
		h.sendByteIdx += uint64(len(drained))
	}
}

func (h *clientHandle) PollStartIO() bool {
	if h.active || !h.tryStart {
		return false
	}
	h.tryStart = false
	return true
}

func (h *clientHandle) PollStopIO() bool { return false }

func (h *clientHandle) OnStarted() {
	h.active = true
	if err := h.stream.Start(); err != nil {
		h.log.Error("netaudio-client: starting audio stream", "err", err)
	}
}

func (h *clientHandle) OnStartRefused() {
	h.log.Warn("netaudio-client: server refused IO start", "server", h.addr)
}

func (h *clientHandle) OnStopped() {
	h.active = false
	_ = h.stream.Stop()
}

func (h *clientHandle) OnStopRefused() {}

func (h *clientHandle) OnAudio(_ time.Time, audio wire.AudioData) {
	playbackFormat := h.formats.Inputs[0]
	silence := playbackFormat.SampleType.Silence()
	samples := h.padder.FeedBytes(audio.Data.ByteIndex, audio.Data.Bytes, func() []byte { return silence })
	if len(samples) == 0 {
		return
	}
	flat := make([]byte, 0, len(samples)*playbackFormat.SampleType.Size())
	for _, s := range samples {
		flat = append(flat, s...)
	}
	h.out.Producer().WriteAll(flat)
}

func (h *clientHandle) OnDisconnected() {
	h.active = false
	_ = h.stream.Close()
	h.log.Warn("netaudio-client: disconnected", "server", h.addr)
}
