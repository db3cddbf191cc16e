//go:build linux

package mcast

import (
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/projectdiscovery/mcastprobe/pkg/sourceset"
)

// receiveControl prepares a receive socket before bind: SO_REUSEADDR avoids
// EADDRINUSE across multiple receivers on one port, and clearing
// IP_MULTICAST_ALL / IPV6_MULTICAST_ALL stops the socket from seeing
// packets for groups other sockets on the host joined.
func receiveControl(family sourceset.Family) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var optErr error
		err := c.Control(func(fd uintptr) {
			if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
				optErr = err
				return
			}
			if family == sourceset.FamilyIPv6 {
				optErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IPV6, unix.IPV6_MULTICAST_ALL, 0)
			} else {
				optErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_IP, unix.IP_MULTICAST_ALL, 0)
			}
		})
		if err != nil {
			return err
		}
		return optErr
	}
}
