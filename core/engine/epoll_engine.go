//go:build linux

package engine

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/touka-aoi/oneshot/core/core"
	toukaerrors "github.com/touka-aoi/oneshot/core/errors"
	"github.com/touka-aoi/oneshot/core/event"
	"github.com/touka-aoi/oneshot/logger"
	"golang.org/x/sys/unix"
)

// readinessMask is edge-triggered: consumers must drain the descriptor before waiting again.
const readinessMask = unix.EPOLLIN | unix.EPOLLET | unix.EPOLLRDHUP | unix.EPOLLHUP

const noRegistration int32 = -1

type EpollNetEngine struct {
	epfd       int
	registered int32
	events     [MaxEvents]unix.EpollEvent
	log        zerolog.Logger
}

func NewEpollNetEngine() (*EpollNetEngine, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, toukaerrors.FromError(toukaerrors.KindSocketInit, "epoll_create1", err)
	}
	return &EpollNetEngine{
		epfd:       epfd,
		registered: noRegistration,
		log:        logger.WithComponent("engine"),
	}, nil
}

// Accept blocks on the listening socket. A failure here is an accept error
// even when the kernel reports a would-block condition.
func (e *EpollNetEngine) Accept(ctx context.Context, listener Listener) (int32, error) {
	fd, err := listener.Accept()
	if err != nil {
		if _, ok := toukaerrors.KindOf(err); ok {
			return -1, err
		}
		return -1, toukaerrors.FromError(toukaerrors.KindAccept, "accept4", err)
	}
	e.log.Debug().Int32("fd", fd).Str("listener", listener.Addr()).Msg("Accepted new connection")
	return fd, nil
}

// Register adds fd to the epoll set. Only one descriptor may be registered at a time.
func (e *EpollNetEngine) Register(ctx context.Context, fd int32) error {
	if e.epfd < 0 {
		return toukaerrors.New(toukaerrors.KindRegistration, "engine is closed")
	}
	if e.registered != noRegistration {
		return toukaerrors.New(toukaerrors.KindRegistration,
			fmt.Sprintf("fd %d is still registered, deregister it before registering fd %d", e.registered, fd))
	}

	ev := unix.EpollEvent{
		Events: readinessMask,
		Fd:     fd,
	}
	if err := unix.EpollCtl(e.epfd, unix.EPOLL_CTL_ADD, int(fd), &ev); err != nil {
		return toukaerrors.FromError(toukaerrors.KindRegistration, "epoll ctl add", err)
	}
	e.registered = fd
	e.log.Debug().Int32("fd", fd).Msg("Registered for readiness")
	return nil
}

// Deregister removes fd from the epoll set. Deregistering a descriptor that is
// not registered is a no-op.
func (e *EpollNetEngine) Deregister(ctx context.Context, fd int32) error {
	if e.epfd < 0 || e.registered != fd {
		return nil
	}
	e.registered = noRegistration
	if err := unix.EpollCtl(e.epfd, unix.EPOLL_CTL_DEL, int(fd), nil); err != nil {
		return toukaerrors.FromError(toukaerrors.KindRegistration, "epoll ctl del", err)
	}
	e.log.Debug().Int32("fd", fd).Msg("Deregistered")
	return nil
}

// Registered returns the registered descriptor, or -1.
func (e *EpollNetEngine) Registered() int32 {
	return e.registered
}

// WaitEvent blocks for at most timeoutMs (forever when negative) and returns
// up to MaxEvents events. Signal interruptions are retried.
func (e *EpollNetEngine) WaitEvent(ctx context.Context, timeoutMs int) ([]*NetEvent, error) {
	if e.epfd < 0 {
		return nil, toukaerrors.New(toukaerrors.KindReadinessWait, "engine is closed")
	}
	if timeoutMs < 0 {
		timeoutMs = WaitForever
	}

	var (
		n   int
		err error
	)
	for {
		n, err = unix.EpollWait(e.epfd, e.events[:], timeoutMs)
		if err == unix.EINTR {
			continue
		}
		break
	}
	if err != nil {
		return nil, toukaerrors.FromError(toukaerrors.KindReadinessWait, "epoll wait", err)
	}

	netEvents := make([]*NetEvent, 0, n)
	for i := 0; i < n; i++ {
		ev := e.events[i]
		netEvents = append(netEvents, &NetEvent{
			EventType: event.FromEpoll(ev.Events),
			Fd:        ev.Fd,
		})
	}
	return netEvents, nil
}

func (e *EpollNetEngine) GetSockAddr(ctx context.Context, fd int32) (*SockAddr, error) {
	localSockAddr, err := unix.Getsockname(int(fd))
	if err != nil {
		return nil, err
	}

	remoteSockAddr, err := unix.Getpeername(int(fd))
	if err != nil {
		return nil, err
	}

	localAddrPort, err := core.AddrPortOf(localSockAddr)
	if err != nil {
		return nil, err
	}

	remoteAddrPort, err := core.AddrPortOf(remoteSockAddr)
	if err != nil {
		return nil, err
	}

	return &SockAddr{
		Fd:         fd,
		LocalAddr:  localAddrPort,
		RemoteAddr: remoteAddrPort,
	}, nil
}

// Close releases the epoll descriptor. It is safe to call more than once.
func (e *EpollNetEngine) Close() error {
	if e.epfd < 0 {
		return nil
	}
	epfd := e.epfd
	e.epfd = -1
	e.registered = noRegistration
	if err := unix.Close(epfd); err != nil {
		return fmt.Errorf("close epoll fd: %w", err)
	}
	return nil
}
