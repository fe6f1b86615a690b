//go:build linux

package engine

import (
	"github.com/touka-aoi/oneshot/core/event"
)

// NetEvent is one readiness notification taken from a wait batch.
type NetEvent struct {
	EventType event.EventType
	Fd        int32
}

func (e *NetEvent) Readable() bool {
	return e.EventType.Has(event.EVENT_TYPE_READABLE)
}

func (e *NetEvent) PeerClosed() bool {
	return e.EventType.Has(event.EVENT_TYPE_PEER_CLOSED)
}

func (e *NetEvent) Hangup() bool {
	return e.EventType.Has(event.EVENT_TYPE_HANGUP | event.EVENT_TYPE_ERROR)
}
