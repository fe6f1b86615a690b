package peer

// 参考: https://go.googlesource.com/go/%2B/master/src/net/http/server.go#3267
type ConnState int32

const (
	StateNew        ConnState = iota
	StateActive               // registered, waiting for or moving data
	StateHalfClosed           // peer shut its write side, reply still possible
	StateClosed
)

var stateName = map[ConnState]string{
	StateNew:        "new",
	StateActive:     "active",
	StateHalfClosed: "half-closed",
	StateClosed:     "closed",
}

func (s ConnState) String() string {
	return stateName[s]
}
