//go:build linux

package engine

import (
	"context"
	"net/netip"
)

const (
	// MaxEvents bounds one wait batch.
	MaxEvents = 5

	// WaitForever makes WaitEvent block until an event fires.
	WaitForever = -1
)

type SockAddr struct {
	Fd         int32
	LocalAddr  netip.AddrPort
	RemoteAddr netip.AddrPort
}

// NetEngine is the readiness side of the server: it hands out accepted
// descriptors and reports when the registered one becomes readable or closed.
type NetEngine interface {
	Accept(ctx context.Context, listener Listener) (int32, error)
	Register(ctx context.Context, fd int32) error
	Deregister(ctx context.Context, fd int32) error
	WaitEvent(ctx context.Context, timeoutMs int) ([]*NetEvent, error)
	GetSockAddr(ctx context.Context, fd int32) (*SockAddr, error)
	Close() error
}
