// Package discovery announces and browses the netaudio service over
// mDNS/DNS-SD, complementing the UDP broadcast Discovery message with a
// zero-configuration way for a client to find servers across subnets
// that don't forward broadcast traffic.
//
// Built on github.com/brutella/dnssd, retargeted here to the netaudio
// service type and to the ambient charmbracelet/log logger.
package discovery

import (
	"context"

	"github.com/brutella/dnssd"
	"github.com/charmbracelet/log"
)

// ServiceType is the DNS-SD service type netaudio servers announce
// under and clients browse for.
const ServiceType = "_netaudio._udp"

// Announcer holds a running mDNS responder for one advertised service.
type Announcer struct {
	responder dnssd.Responder
}

// Announce registers name/port under ServiceType and starts responding
// to mDNS queries in the background until ctx is cancelled.
func Announce(ctx context.Context, logger *log.Logger, name string, port int) (*Announcer, error) {
	cfg := dnssd.Config{
		Name: name,
		Type: ServiceType,
		Port: port,
	}
	svc, err := dnssd.NewService(cfg)
	if err != nil {
		return nil, err
	}
	responder, err := dnssd.NewResponder()
	if err != nil {
		return nil, err
	}
	if _, err := responder.Add(svc); err != nil {
		return nil, err
	}

	go func() {
		if err := responder.Respond(ctx); err != nil && ctx.Err() == nil {
			logger.Error("discovery: responder stopped", "err", err)
		}
	}()

	return &Announcer{responder: responder}, nil
}

// Server describes one netaudio server found via mDNS browsing.
type Server struct {
	Host string
	IPs  []string
	Port int
}

// Browse watches for netaudio servers appearing and disappearing on the
// local network until ctx is cancelled. added and removed are called
// from a background goroutine.
func Browse(ctx context.Context, added func(Server), removed func(Server)) error {
	toServer := func(e dnssd.BrowseEntry) Server {
		ips := make([]string, len(e.IPs))
		for i, ip := range e.IPs {
			ips[i] = ip.String()
		}
		return Server{Host: e.Host, IPs: ips, Port: e.Port}
	}
	return dnssd.LookupType(ctx, ServiceType,
		func(e dnssd.BrowseEntry) { added(toServer(e)) },
		func(e dnssd.BrowseEntry) { removed(toServer(e)) },
	)
}
