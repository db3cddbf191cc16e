//go:build windows

package mcast

import (
	"syscall"

	"golang.org/x/sys/windows"

	"github.com/projectdiscovery/mcastprobe/pkg/sourceset"
)

func receiveControl(_ sourceset.Family) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var optErr error
		err := c.Control(func(fd uintptr) {
			optErr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1)
		})
		if err != nil {
			return err
		}
		return optErr
	}
}
