//go:build !unix && !windows

package transport

import "syscall"

// reuseControl is a no-op on platforms without socket reuse options;
// reuse-bind construction still succeeds but sharing a port does not.
func reuseControl(network, address string, c syscall.RawConn) error {
	return nil
}
