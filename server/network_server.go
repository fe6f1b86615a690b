//go:build linux

package server

import (
	"context"
	"errors"
	"net/netip"

	"github.com/rs/zerolog"
	"github.com/touka-aoi/oneshot/core/core"
	"github.com/touka-aoi/oneshot/core/engine"
	toukaerrors "github.com/touka-aoi/oneshot/core/errors"
	"github.com/touka-aoi/oneshot/logger"
	"github.com/touka-aoi/oneshot/middleware"
	"github.com/touka-aoi/oneshot/server/peer"
	"golang.org/x/sys/unix"
)

const (
	DefaultPort       = 5300
	DefaultBufferSize = 512
)

type NetworkServerConfig struct {
	Address    string
	Port       int
	BufferSize int
	Continuous bool
}

type SrvStatus int

const (
	Uninitialized SrvStatus = iota
	Listening
	AwaitingConnection
	Connected
	Closing
	ShutDown
)

var stateName = map[SrvStatus]string{
	Uninitialized:      "uninitialized",
	Listening:          "listening",
	AwaitingConnection: "awaiting-connection",
	Connected:          "connected",
	Closing:            "closing",
	ShutDown:           "shut-down",
}

func (s SrvStatus) String() string {
	return stateName[s]
}

type ServerOption func(*NetworkServer)

// WithPipeline runs p on every payload before it reaches the application.
func WithPipeline(p *middleware.Pipeline) ServerOption {
	return func(s *NetworkServer) {
		s.pipeline = p
	}
}

// WithEngine replaces the epoll engine. The server takes ownership of e.
func WithEngine(e engine.NetEngine) ServerOption {
	return func(s *NetworkServer) {
		s.engine = e
	}
}

// NetworkServer drives one connection at a time through
// accept, register, wait, read, write and close.
// It is not safe for concurrent use.
type NetworkServer struct {
	engine   engine.NetEngine
	listener engine.Listener
	config   NetworkServerConfig
	pipeline *middleware.Pipeline
	status   SrvStatus
	log      zerolog.Logger

	// per accept cycle
	conn       *peer.Peer
	events     []*engine.NetEvent
	waitErr    error
	continuous bool
	listening  bool
}

// NewNetworkServer binds the listening socket and opens the readiness engine.
// On failure nothing is left open.
func NewNetworkServer(config NetworkServerConfig, opts ...ServerOption) (*NetworkServer, error) {
	if config.Address == "" {
		config.Address = engine.DefaultAddress
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBufferSize
	}

	ns := &NetworkServer{
		config: config,
		status: Uninitialized,
		log:    logger.WithComponent("server"),
	}
	for _, opt := range opts {
		opt(ns)
	}
	if ns.pipeline == nil {
		ns.pipeline = middleware.NewPipeline()
	}

	listener, err := engine.ListenTCP(engine.ListenConfig{
		Address: config.Address,
		Port:    config.Port,
		Backlog: engine.DefaultBacklog,
	})
	if err != nil {
		if ns.engine != nil {
			_ = ns.engine.Close()
		}
		return nil, err
	}
	ns.listener = listener

	if ns.engine == nil {
		e, err := engine.NewEpollNetEngine()
		if err != nil {
			_ = listener.Close()
			return nil, err
		}
		ns.engine = e
	}

	ns.status = Listening
	ns.log.Info().Str("address", listener.Addr()).Int("middlewares", ns.pipeline.Len()).Msg("Server listening")
	return ns, nil
}

func (ns *NetworkServer) Status() SrvStatus {
	return ns.status
}

func (ns *NetworkServer) Addr() string {
	return ns.listener.Addr()
}

func (ns *NetworkServer) Config() NetworkServerConfig {
	return ns.config
}

// Conn returns the current connection, or nil before the first Listen.
func (ns *NetworkServer) Conn() *peer.Peer {
	return ns.conn
}

// Listen accepts the next connection, registers it for readiness and blocks
// until it is readable or closed. continuous decides what Close tears down.
func (ns *NetworkServer) Listen(ctx context.Context, continuous bool) error {
	if ns.status == ShutDown {
		return toukaerrors.New(toukaerrors.KindNotListening, "server is shut down")
	}
	if ns.conn != nil && !ns.conn.Closed() {
		ns.log.Warn().Str("session", ns.conn.ID()).Msg("Previous connection was not closed, closing it before accepting")
		if err := ns.conn.Close(ctx); err != nil {
			ns.log.Warn().Err(err).Msg("Failed to close previous connection")
		}
	}

	ns.continuous = continuous
	ns.events = nil
	ns.waitErr = nil
	ns.status = AwaitingConnection

	fd, err := ns.engine.Accept(ctx, ns.listener)
	if err != nil {
		ns.log.Error().Err(err).Bool("continuous", continuous).Msg("Server listen error")
		return err
	}

	local, remote := ns.addrsOf(ctx, fd)
	p := peer.NewPeer(fd, local, remote, ns.config.BufferSize)
	ns.conn = p

	if err := p.Register(ctx, ns.engine); err != nil {
		ns.log.Error().Err(err).Int32("fd", fd).Msg("Failed to add file descriptor to epoll")
		_ = p.Close(ctx)
		return err
	}

	ns.status = Connected
	ns.listening = true
	ns.log.Debug().
		Str("session", p.ID()).
		Int32("fd", fd).
		Str("remote", remote.String()).
		Msg("Connection registered")

	return ns.wait(ctx)
}

func (ns *NetworkServer) addrsOf(ctx context.Context, fd int32) (local, remote netip.AddrPort) {
	sa, err := ns.engine.GetSockAddr(ctx, fd)
	if err != nil {
		ns.log.Warn().Err(err).Int32("fd", fd).Msg("Failed to get peer name")
		return local, remote
	}
	return sa.LocalAddr, sa.RemoteAddr
}

// wait blocks for the next batch of events on the current connection.
// A failed wait leaves the connection unusable but does not end the server.
func (ns *NetworkServer) wait(ctx context.Context) error {
	events, err := ns.engine.WaitEvent(ctx, engine.WaitForever)
	if err != nil {
		ns.log.Error().Err(err).Msg("Server wait error: epoll failure")
		ns.waitErr = err
		return err
	}
	ns.events = events
	return nil
}

// Read drains the current connection. Every readable event is consumed until
// the socket would block, in bufferSize chunks, so no data is left behind
// under edge-triggered notification.
func (ns *NetworkServer) Read(ctx context.Context, bufferSize int) ([]byte, error) {
	if !ns.listening || ns.conn == nil {
		return nil, toukaerrors.ErrNotListening
	}
	if ns.waitErr != nil {
		return nil, ns.waitErr
	}
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}

	p := ns.conn
	if len(ns.events) == 0 && p.Registered() {
		if err := ns.wait(ctx); err != nil {
			return nil, err
		}
	}
	events := ns.events
	ns.events = nil

	var (
		recvErr    error
		peerClosed bool
		chunk      = make([]byte, bufferSize)
	)
	for _, ev := range events {
		if ev.Fd != p.Fd() || p.Closed() {
			continue
		}

		n, eof := 0, false
		if ev.Readable() {
			var err error
			n, eof, err = ns.drain(p, chunk)
			if err != nil {
				ns.log.Warn().Err(err).Str("session", p.ID()).Msg("Server read error")
				recvErr = err
				break
			}
		}

		closedByPeer := eof || ev.PeerClosed()
		if ev.Hangup() || (closedByPeer && n == 0) {
			ns.log.Info().Str("session", p.ID()).Stringer("events", ev.EventType).Msg("Server read: connection is closed")
			peerClosed = peerClosed || n == 0
			if err := p.Close(ctx); err != nil {
				ns.log.Warn().Err(err).Str("session", p.ID()).Msg("Failed to close connection")
			}
			continue
		}
		if closedByPeer {
			// the peer is done sending but may still be waiting for the reply
			if err := p.Deregister(ctx); err != nil {
				ns.log.Warn().Err(err).Str("session", p.ID()).Msg("Failed to deregister half-closed connection")
			}
			p.SetState(peer.StateHalfClosed)
		}
	}

	data := p.Reader.Drain()
	if len(data) > 0 {
		return data, nil
	}
	if recvErr != nil {
		return nil, recvErr
	}
	if peerClosed || p.Closed() {
		return nil, toukaerrors.ErrPeerClosed
	}
	return nil, nil
}

// drain receives into chunk until the socket would block or the peer shuts
// down, feeding the connection's reader. eof reports a zero-byte receive.
func (ns *NetworkServer) drain(p *peer.Peer, chunk []byte) (total int, eof bool, err error) {
	for {
		n, err := core.Recv(p.Fd(), chunk)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if errors.Is(err, toukaerrors.ErrWouldBlock) {
				return total, false, nil
			}
			return total, false, toukaerrors.FromError(toukaerrors.KindReceive, "recv", err)
		}
		if n == 0 {
			return total, true, nil
		}
		p.Reader.Feed(chunk[:n])
		total += n
	}
}

// Write sends msg with a single send call and returns msg. Short writes are
// logged, not retried.
func (ns *NetworkServer) Write(ctx context.Context, msg []byte) ([]byte, error) {
	if !ns.listening || ns.conn == nil {
		return nil, toukaerrors.ErrNotListening
	}
	p := ns.conn
	if p.Closed() {
		return nil, toukaerrors.New(toukaerrors.KindPeerClosed, "connection is already closed")
	}

	n, err := core.Send(p.Fd(), msg)
	if err != nil {
		sendErr := toukaerrors.FromError(toukaerrors.KindSend, "send", err)
		ns.log.Error().Err(sendErr).Str("session", p.ID()).Msg("Server send error")
		return nil, sendErr
	}
	if n < len(msg) {
		ns.log.Warn().Str("session", p.ID()).Int("sent", n).Int("length", len(msg)).Msg("Short write, remaining bytes dropped")
	}
	return msg, nil
}

// Close ends the current connection. In continuous mode the listening socket
// stays open for the next Listen; otherwise everything is released.
func (ns *NetworkServer) Close(ctx context.Context) error {
	if ns.status == ShutDown {
		return nil
	}
	ns.status = Closing

	var errs []error
	if ns.conn != nil {
		errs = append(errs, ns.conn.Close(ctx))
	}
	ns.events = nil
	ns.waitErr = nil

	if ns.continuous {
		ns.status = AwaitingConnection
		return errors.Join(errs...)
	}

	errs = append(errs, ns.releaseServerResources())
	return errors.Join(errs...)
}

// Shutdown releases the connection, the listening socket and the engine.
// It is safe to call in any state and more than once.
func (ns *NetworkServer) Shutdown(ctx context.Context) error {
	if ns.status == ShutDown {
		return nil
	}
	var errs []error
	if ns.conn != nil {
		errs = append(errs, ns.conn.Close(ctx))
	}
	errs = append(errs, ns.releaseServerResources())
	ns.log.Info().Msg("Server shut down")
	return errors.Join(errs...)
}

func (ns *NetworkServer) releaseServerResources() error {
	ns.events = nil
	ns.status = ShutDown
	// deregistration happened with the connection, the epoll fd goes last
	return errors.Join(ns.listener.Close(), ns.engine.Close())
}
