//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package rtsi

import "net"

// socketReadable cannot peek the socket on this platform; only frames already buffered by the client are
// reported as available.
func socketReadable(net.Conn) bool {
	return false
}
