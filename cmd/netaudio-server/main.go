// Command netaudio-server offers a fixed stream format to any client
// that discovers it, and drives full-duplex audio through the local
// sound card via PortAudio for every client it accepts.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gordonklaus/portaudio"
	"github.com/spf13/pflag"

	"github.com/netaudio/netaudio/discovery"
	"github.com/netaudio/netaudio/engine"
	"github.com/netaudio/netaudio/framing"
	"github.com/netaudio/netaudio/interleave"
	"github.com/netaudio/netaudio/netaudioconfig"
	"github.com/netaudio/netaudio/pcm"
	"github.com/netaudio/netaudio/server"
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
			log.Fatal("netaudio-server: loading config", "err", err)
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
		logger.Fatal("netaudio-server: portaudio init", "err", err)
	}
	defer portaudio.Terminate()

	formats := pcm.StreamFormats{
		Inputs:  []pcm.Format{stdFormat(cfg)},
		Outputs: []pcm.Format{stdFormat(cfg)},
	}

	discoverySock, err := transport.Listen(cfg.DiscoveryAddr)
	if err != nil {
		logger.Fatal("netaudio-server: binding discovery socket", "addr", cfg.DiscoveryAddr, "err", err)
	}
	defer discoverySock.Close()
	if err := discoverySock.EnableBroadcast(); err != nil {
		logger.Fatal("netaudio-server: enabling broadcast", "err", err)
	}

	var srv *server.Server
	srv = server.New(discoverySock, logger,
		func(*net.UDPAddr) (pcm.StreamFormats, bool) { return formats, true },
		func(addr *net.UDPAddr, formats pcm.StreamFormats) server.Handle {
			h, err := newServerHandle(logger, srv, addr, formats)
			if err != nil {
				logger.Error("netaudio-server: opening audio stream", "addr", addr, "err", err)
				return noopHandle{}
			}
			return h
		},
	)

	if cfg.MDNSEnabled {
		_, portStr, err := net.SplitHostPort(cfg.ListenAddr)
		if err != nil {
			logger.Warn("netaudio-server: parsing listen address for mDNS", "err", err)
		} else if audioPort, err := strconv.Atoi(portStr); err != nil {
			logger.Warn("netaudio-server: parsing audio port for mDNS", "err", err)
		} else if _, err := discovery.Announce(ctx, logger, cfg.MDNSName, audioPort); err != nil {
			logger.Warn("netaudio-server: mDNS announce failed", "err", err)
		}
	}

	// The client registry (srv.clients, its deadline queue, and
	// pendingOffers) is owned by this select loop alone. The recv
	// goroutine only reads the socket and hands raw datagrams across
	// inbound; it never touches the registry itself.
	type datagram struct {
		data []byte
		addr *net.UDPAddr
		ts   time.Time
	}
	inbound := make(chan datagram, 32)
	go func() {
		for {
			buf := make([]byte, transport.MaxReceiveSize)
			n, addr, ts, err := discoverySock.Recv(buf)
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

	heartbeat := time.NewTicker(server.HeartbeatPeriod)
	defer heartbeat.Stop()
	poll := time.NewTicker(wire.RequestPollPeriod)
	defer poll.Stop()

	logger.Info("netaudio-server: listening", "discovery", cfg.DiscoveryAddr, "name", cfg.MDNSName)
	for {
		select {
		case <-ctx.Done():
			logger.Info("netaudio-server: shutting down")
			return
		case dg := <-inbound:
			srv.OnMessage(dg.data, dg.addr, dg.ts)
		case <-heartbeat.C:
			srv.SendHeartbeats()
		case <-poll.C:
			for _, addr := range srv.OnTimeout(time.Now()) {
				logger.Warn("netaudio-server: client timed out", "client", addr)
			}
		}
	}
}

func stdFormat(cfg netaudioconfig.Config) pcm.Format {
	return pcm.Format{
		SampleRate:   pcm.MustSampleRate(cfg.SampleRateHz),
		ChannelCount: pcm.ChannelCount(cfg.Channels),
		BufferSize:   pcm.BufferSize(cfg.BufferFrames),
		SampleType:   pcm.IEEF32,
	}
}

// serverHandle drives one client's I/O decisions and the audio glue for
// the formats offered to it: capture is sent as ServerAudio on the
// server's own Inputs stream; playback from ClientAudio is decoded onto
// the server's Outputs stream.
type serverHandle struct {
	log     *log.Logger
	addr    *net.UDPAddr
	formats pcm.StreamFormats
	srv     *server.Server

	stream *portaudio.Stream
	in     *engine.InputStream
	out    *engine.OutputStream
	padder *framing.BytePadder
	waker  *timing.ChanWaker

	sendByteIdx uint64
	active      bool
}

func newServerHandle(logger *log.Logger, srv *server.Server, addr *net.UDPAddr, formats pcm.StreamFormats) (*serverHandle, error) {
	captureFormat := formats.Inputs[0]  // server captures and sends on its own Input stream
	playbackFormat := formats.Outputs[0] // server plays what clients send on its Output stream

	waker := timing.NewChanWaker()
	h := &serverHandle{
		log:     logger,
		addr:    addr,
		formats: formats,
		srv:     srv,
		padder:  framing.NewBytePadder(playbackFormat.SampleType.Size()),
		waker:   waker,
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
	if err := h.stream.Start(); err != nil {
		return nil, err
	}
	h.active = true

	go h.pumpOutbound()

	return h, nil
}

type portBuffer struct{ buf []float32 }

func (p *portBuffer) Samples() []float32 { return p.buf }

// noopHandle stands in for a client whose audio stream failed to open:
// it accepts IO requests (there is no audio path to refuse) but drops
// everything, so the registry's bookkeeping stays consistent.
type noopHandle struct{}

func (noopHandle) OnIORequested(wire.IOKind) *wire.ErrKind { return nil }
func (noopHandle) OnAudio(time.Time, wire.AudioData)       {}
func (noopHandle) OnDisconnected()                         {}

// pumpOutbound parks on the audio thread's waker, so a chunk is sent as
// soon as the callback crosses a boundary rather than waiting for the
// next poll tick.
func (h *serverHandle) pumpOutbound() {
	for range h.waker.C() {
		if !h.active {
			continue
		}
		drained := h.in.Consumer().ReadAll()
		if len(drained) == 0 {
			continue
		}
		audio := wire.AudioData{StreamIdx: 0, Data: wire.AudioStreamData{ByteIndex: h.sendByteIdx, Bytes: drained}}
		if err := h.srv.SendAudio(h.addr, audio); err != nil {
			h.log.Warn("netaudio-server: send audio", "err", err)
			continue
		}
		h.sendByteIdx += uint64(len(drained))
	}
}

func (h *serverHandle) OnIORequested(state wire.IOKind) *wire.ErrKind {
	h.active = state == wire.IOStart
	return nil
}

func (h *serverHandle) OnAudio(_ time.Time, audio wire.AudioData) {
	playbackFormat := h.formats.Outputs[0]
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

func (h *serverHandle) OnDisconnected() {
	h.active = false
	_ = h.stream.Close()
	h.log.Warn("netaudio-server: client disconnected", "client", h.addr)
}
