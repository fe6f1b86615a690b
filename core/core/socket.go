//go:build linux

package core

import (
	"encoding/binary"
	"fmt"
	"net/netip"
	"unsafe"

	toukaerrors "github.com/touka-aoi/oneshot/core/errors"
	"golang.org/x/sys/unix"
)

type sockAddr struct {
	Family uint16
	Data   [14]byte
}

type Socket struct {
	Fd        int32
	LocalAddr string
}

// CreateTCPSocket opens a blocking IPv4 stream socket with SO_REUSEADDR set.
func CreateTCPSocket() (*Socket, error) {
	fd, _, errno := unix.Syscall6(
		unix.SYS_SOCKET,
		unix.AF_INET,
		unix.SOCK_STREAM|unix.SOCK_CLOEXEC,
		0,
		0,
		0,
		0)

	if errno != 0 {
		return nil, errno
	}

	s := &Socket{Fd: int32(fd)}

	opVal := int32(1)
	_, _, errno = unix.Syscall6(unix.SYS_SETSOCKOPT, fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, uintptr(unsafe.Pointer(&opVal)), unsafe.Sizeof(opVal), 0)
	if errno != 0 {
		_ = s.Close()
		return nil, errno
	}

	return s, nil
}

func (s *Socket) Bind(address netip.AddrPort) error {
	if !address.Addr().Is4() {
		return fmt.Errorf("bind %s: %w", address, unix.EAFNOSUPPORT)
	}

	// https://man7.org/linux/man-pages/man2/bind.2.html
	sockaddr := sockAddr{
		Family: unix.AF_INET,
	}

	port := address.Port()
	binary.BigEndian.PutUint16(sockaddr.Data[:], port)

	addr := address.Addr().AsSlice()
	for i := 0; i < len(addr); i++ {
		sockaddr.Data[2+i] = addr[i]
	}

	_, _, errno := unix.Syscall6(
		unix.SYS_BIND,
		uintptr(s.Fd),
		uintptr(unsafe.Pointer(&sockaddr)),
		uintptr(unsafe.Sizeof(sockaddr)),
		0,
		0,
		0)

	if errno != 0 {
		return errno
	}

	s.LocalAddr = address.String()
	return nil
}

func (s *Socket) Listen(backlog int) error {
	_, _, errno := unix.Syscall6(
		unix.SYS_LISTEN,
		uintptr(s.Fd),
		uintptr(backlog),
		0,
		0,
		0,
		0)

	if errno != 0 {
		return errno
	}

	return nil
}

// Accept blocks until a connection is queued on the listening socket.
// The accepted descriptor is non-blocking.
func (s *Socket) Accept() (int32, error) {
	for {
		fd, _, errno := unix.Syscall6(
			unix.SYS_ACCEPT4,
			uintptr(s.Fd),
			0,
			0,
			unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC,
			0,
			0)

		if errno == unix.EINTR {
			continue
		}
		if errno != 0 {
			return -1, errno
		}
		return int32(fd), nil
	}
}

func (s *Socket) Close() error {
	return CloseFd(s.Fd)
}

// Recv performs a single recv(2) into b.
// n == 0 with a nil error means the peer has shut down its write side.
// An empty non-blocking socket reports ErrWouldBlock.
func Recv(fd int32, b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	n, _, errno := unix.Syscall6(
		unix.SYS_RECVFROM,
		uintptr(fd),
		uintptr(unsafe.Pointer(&b[0])),
		uintptr(len(b)),
		0,
		0,
		0)

	if errno == unix.EAGAIN {
		return -1, toukaerrors.ErrWouldBlock
	}
	if errno != 0 {
		return -1, errno
	}
	return int(n), nil
}

// Send performs a single send(2). It does not loop on short writes.
func Send(fd int32, b []byte) (int, error) {
	var p unsafe.Pointer
	if len(b) > 0 {
		p = unsafe.Pointer(&b[0])
	}
	n, _, errno := unix.Syscall6(
		unix.SYS_SENDTO,
		uintptr(fd),
		uintptr(p),
		uintptr(len(b)),
		unix.MSG_NOSIGNAL,
		0,
		0)

	if errno != 0 {
		return -1, errno
	}
	return int(n), nil
}

func CloseFd(fd int32) error {
	_, _, errno := unix.Syscall6(unix.SYS_CLOSE, uintptr(fd), 0, 0, 0, 0, 0)
	if errno != 0 {
		//MEMO: touka-aoi errono型を返すのが正しいのか考えたい
		return errno
	}
	return nil
}

func AddrPortOf(sa unix.Sockaddr) (netip.AddrPort, error) {
	switch addr := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(addr.Addr), uint16(addr.Port)), nil
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(addr.Addr), uint16(addr.Port)), nil
	default:
		return netip.AddrPort{}, unix.EAFNOSUPPORT
	}
}
