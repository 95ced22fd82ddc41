//go:build linux

package messages

import (
	"net"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// net.Listen always uses the kernel's somaxconn as backlog, so the socket is
// set up by hand to honour the configured value.
func listenTCP(host string, port int, backlog int) (net.Listener, error) {
	addr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, err
	}

	domain := unix.AF_INET
	var sa unix.Sockaddr
	if ip4 := addr.IP.To4(); addr.IP == nil || ip4 != nil {
		sa4 := &unix.SockaddrInet4{Port: addr.Port}
		if ip4 != nil {
			copy(sa4.Addr[:], ip4)
		}
		sa = sa4
	} else {
		domain = unix.AF_INET6
		sa6 := &unix.SockaddrInet6{Port: addr.Port}
		copy(sa6.Addr[:], addr.IP.To16())
		if addr.Zone != "" {
			if ifi, err := net.InterfaceByName(addr.Zone); err == nil {
				sa6.ZoneId = uint32(ifi.Index)
			}
		}
		sa = sa6
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return nil, os.NewSyscallError("socket", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("setsockopt", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("bind", err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, os.NewSyscallError("listen", err)
	}

	// FileListener dups the descriptor, ours is closed with f
	f := os.NewFile(uintptr(fd), "tcp:"+addr.String())
	defer f.Close()
	return net.FileListener(f)
}
