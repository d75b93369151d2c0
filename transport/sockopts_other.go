//go:build !linux

package transport

// EnableBroadcast is a no-op on platforms where this repo does not wire
// golang.org/x/sys/unix socket options; net.ListenUDP already allows
// sending to a broadcast address on most platforms without SO_BROADCAST
// explicitly set from Go.
func (s *Socket) EnableBroadcast() error {
	return nil
}
