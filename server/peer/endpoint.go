package peer

import "net/netip"

type Endpoint interface {
	ID() string
	Fd() int32
	LocalAddr() netip.AddrPort
	RemoteAddr() netip.AddrPort
	Status() string
}
