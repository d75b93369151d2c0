//go:build linux

package transport

import (
	"golang.org/x/sys/unix"
)

// EnableBroadcast sets SO_BROADCAST and SO_REUSEADDR on the socket, as
// needed for a Discovery beacon sent to a broadcast address. Uses
// golang.org/x/sys/unix for the one place this repo needs raw
// socket-option control.
func (s *Socket) EnableBroadcast() error {
	raw, err := s.conn.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
		if sockErr != nil {
			return
		}
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
