//go:build !linux && !windows

package mcast

import (
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/projectdiscovery/mcastprobe/pkg/sourceset"
)

// receiveControl prepares a receive socket before bind. Only SO_REUSEADDR
// is portable here; the MULTICAST_ALL options are Linux-specific.
func receiveControl(_ sourceset.Family) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var optErr error
		err := c.Control(func(fd uintptr) {
			optErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		})
		if err != nil {
			return err
		}
		return optErr
	}
}
