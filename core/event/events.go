//go:build linux

package event

import (
	"fmt"
	"strings"

	"golang.org/x/sys/unix"
)

// EventType is a set of readiness conditions reported for one descriptor.
type EventType uint32

const (
	EVENT_TYPE_READABLE EventType = 1 << iota
	EVENT_TYPE_PEER_CLOSED
	EVENT_TYPE_HANGUP
	EVENT_TYPE_ERROR
)

var typeName = []struct {
	t    EventType
	name string
}{
	{EVENT_TYPE_READABLE, "EVENT_TYPE_READABLE"},
	{EVENT_TYPE_PEER_CLOSED, "EVENT_TYPE_PEER_CLOSED"},
	{EVENT_TYPE_HANGUP, "EVENT_TYPE_HANGUP"},
	{EVENT_TYPE_ERROR, "EVENT_TYPE_ERROR"},
}

func (et EventType) Has(t EventType) bool {
	return et&t != 0
}

func (et EventType) String() string {
	if et == 0 {
		return "EVENT_TYPE_NONE"
	}
	var names []string
	rest := et
	for _, n := range typeName {
		if et.Has(n.t) {
			names = append(names, n.name)
			rest &^= n.t
		}
	}
	if rest != 0 {
		names = append(names, fmt.Sprintf("UNKNOWN: %d", uint32(rest)))
	}
	return strings.Join(names, "|")
}

// FromEpoll translates the epoll event mask.
func FromEpoll(events uint32) EventType {
	var et EventType
	if events&unix.EPOLLIN != 0 {
		et |= EVENT_TYPE_READABLE
	}
	if events&unix.EPOLLRDHUP != 0 {
		et |= EVENT_TYPE_PEER_CLOSED
	}
	if events&unix.EPOLLHUP != 0 {
		et |= EVENT_TYPE_HANGUP
	}
	if events&unix.EPOLLERR != 0 {
		et |= EVENT_TYPE_ERROR
	}
	return et
}
