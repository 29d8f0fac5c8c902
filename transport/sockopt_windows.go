//go:build windows

package transport

import (
	"syscall"

	"golang.org/x/sys/windows"
)

// reuseControl enables SO_REUSEADDR before bind. Windows has no
// SO_REUSEPORT; its SO_REUSEADDR is roughly the union of the two POSIX
// options, so multi-bind behavior here is platform-dependent and
// callers must not assume strict round-robin or fan-out delivery.
func reuseControl(network, address string, c syscall.RawConn) error {
	var optErr error
	err := c.Control(func(fd uintptr) {
		optErr = windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return optErr
}
