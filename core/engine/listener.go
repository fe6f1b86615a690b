//go:build linux

package engine

import (
	"fmt"
	"net/netip"

	"github.com/touka-aoi/oneshot/core/core"
	toukaerrors "github.com/touka-aoi/oneshot/core/errors"
)

const (
	DefaultAddress = "127.0.0.1"
	DefaultBacklog = 5
)

type Listener interface {
	Fd() int32
	Addr() string
	Accept() (int32, error)
	Close() error
}

type ListenConfig struct {
	Address string
	Port    int
	Backlog int
}

type TCPListener struct {
	socket *core.Socket
	addr   netip.AddrPort
	closed bool
}

// ListenTCP creates, binds and listens in one step. Every failure is a
// socket init error, and whatever was created before the failure is closed.
func ListenTCP(cfg ListenConfig) (*TCPListener, error) {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, toukaerrors.New(toukaerrors.KindSocketInit, fmt.Sprintf("invalid port %d", cfg.Port))
	}
	if cfg.Address == "" {
		cfg.Address = DefaultAddress
	}
	if cfg.Backlog <= 0 {
		cfg.Backlog = DefaultBacklog
	}

	ip, err := netip.ParseAddr(cfg.Address)
	if err != nil || !ip.Is4() {
		return nil, toukaerrors.New(toukaerrors.KindSocketInit, fmt.Sprintf("invalid IPv4 bind address %q", cfg.Address))
	}
	addr := netip.AddrPortFrom(ip, uint16(cfg.Port))

	s, err := core.CreateTCPSocket()
	if err != nil {
		return nil, toukaerrors.FromError(toukaerrors.KindSocketInit, "socket", err)
	}

	if err := s.Bind(addr); err != nil {
		_ = s.Close()
		return nil, toukaerrors.FromError(toukaerrors.KindSocketInit, "bind "+addr.String(), err)
	}

	if err := s.Listen(cfg.Backlog); err != nil {
		_ = s.Close()
		return nil, toukaerrors.FromError(toukaerrors.KindSocketInit, "listen", err)
	}

	return &TCPListener{
		socket: s,
		addr:   addr,
	}, nil
}

func (l *TCPListener) Fd() int32 {
	return l.socket.Fd
}

func (l *TCPListener) Addr() string {
	return l.addr.String()
}

func (l *TCPListener) Accept() (int32, error) {
	if l.closed {
		return -1, toukaerrors.New(toukaerrors.KindAccept, "listening socket is closed")
	}
	return l.socket.Accept()
}

// Close is safe to call more than once.
func (l *TCPListener) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	return l.socket.Close()
}
