//go:build linux || darwin || freebsd || netbsd || openbsd || dragonfly

package rtsi

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// socketReadable peeks the kernel receive buffer without consuming data or blocking.
func socketReadable(conn net.Conn) bool {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return false
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return false
	}

	var readable bool
	var buf [1]byte
	_ = raw.Control(func(fd uintptr) {
		n, _, err := unix.Recvfrom(int(fd), buf[:], unix.MSG_PEEK|unix.MSG_DONTWAIT)
		readable = err == nil && n > 0
	})

	return readable
}
