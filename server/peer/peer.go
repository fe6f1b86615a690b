//go:build linux

package peer

import (
	"context"
	"errors"
	"net/netip"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/touka-aoi/oneshot/core/core"
)

// Registrar is the readiness facility a peer registers its descriptor with.
type Registrar interface {
	Register(ctx context.Context, fd int32) error
	Deregister(ctx context.Context, fd int32) error
}

// Peer is the context of one accepted connection. It owns the descriptor
// and its readiness registration, and releases both in Close.
type Peer struct {
	SessionID  string
	fd         int32
	localAddr  netip.AddrPort
	remoteAddr netip.AddrPort
	status     atomic.Int32

	Reader *RingReader

	registrar  Registrar
	registered bool
}

func NewPeer(fd int32, localAddr netip.AddrPort, remoteAddr netip.AddrPort, readSize int) *Peer {
	sessionID := uuid.NewString()
	return &Peer{
		SessionID:  sessionID,
		fd:         fd,
		localAddr:  localAddr,
		remoteAddr: remoteAddr,
		Reader:     NewRingReader(readSize),
	}
}

func (p *Peer) ID() string {
	return p.SessionID
}

func (p *Peer) Fd() int32 {
	return p.fd
}

func (p *Peer) LocalAddr() netip.AddrPort {
	return p.localAddr
}

func (p *Peer) RemoteAddr() netip.AddrPort {
	return p.remoteAddr
}

func (p *Peer) Status() string {
	return p.State().String()
}

func (p *Peer) State() ConnState {
	return ConnState(p.status.Load())
}

func (p *Peer) SetState(s ConnState) {
	p.status.Store(int32(s))
}

func (p *Peer) Closed() bool {
	return p.State() == StateClosed
}

func (p *Peer) Registered() bool {
	return p.registered
}

// Register hands the descriptor to r. The peer remembers r so that Close can
// deregister before the descriptor goes away.
func (p *Peer) Register(ctx context.Context, r Registrar) error {
	if err := r.Register(ctx, p.fd); err != nil {
		return err
	}
	p.registrar = r
	p.registered = true
	p.SetState(StateActive)
	return nil
}

func (p *Peer) Deregister(ctx context.Context) error {
	if !p.registered {
		return nil
	}
	p.registered = false
	return p.registrar.Deregister(ctx, p.fd)
}

// Close deregisters and closes the descriptor. Calling it again is a no-op.
func (p *Peer) Close(ctx context.Context) error {
	if p.Closed() {
		return nil
	}
	deregErr := p.Deregister(ctx)
	closeErr := core.CloseFd(p.fd)
	p.SetState(StateClosed)
	return errors.Join(deregErr, closeErr)
}
