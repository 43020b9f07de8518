//go:build !linux && !windows

package ipc

import "net"

// VerifyPeerIsCurrentUser is a best-effort stub on platforms without a
// peer-credential syscall binding. The 0600 socket mode is the only
// barrier here.
func VerifyPeerIsCurrentUser(conn net.Conn) (bool, error) {
	return true, nil
}
