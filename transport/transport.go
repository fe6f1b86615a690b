package transport

import (
	"context"

	"github.com/touka-aoi/oneshot/server/peer"
)

// Transport is the application side of a connection. OnData receives the bytes
// of one read and returns the bytes to send back verbatim; nil sends nothing.
type Transport interface {
	OnConnect(ctx context.Context, peer peer.Endpoint) error
	OnData(ctx context.Context, peer peer.Endpoint, data []byte) ([]byte, error)
	OnDisconnect(ctx context.Context, peer peer.Endpoint) error
}
