package terrr

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// ErrWouldBlock は、非ブロッキング操作がすぐに完了できない場合に返されるエラー
var ErrWouldBlock = errors.New("operation would block")

// noErrnoMessage is reported when an error is built from the system error
// without any system error being set.
const noErrnoMessage = "no error recorded, was a SocketError raised without a cause?"

type Kind int

const (
	KindSocketInit Kind = iota
	KindAccept
	KindRegistration
	KindReadinessWait
	KindReceive
	KindPeerClosed
	KindSend
	KindNotListening
)

var kindName = map[Kind]string{
	KindSocketInit:    "socket init",
	KindAccept:        "accept",
	KindRegistration:  "registration",
	KindReadinessWait: "readiness wait",
	KindReceive:       "receive",
	KindPeerClosed:    "peer closed",
	KindSend:          "send",
	KindNotListening:  "not listening",
}

func (k Kind) String() string {
	if name, ok := kindName[k]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(k))
}

// Fatal reports whether the kind ends the server under the default policy.
// Peer-side conditions and a failed wait only cost the current connection.
func (k Kind) Fatal() bool {
	switch k {
	case KindReadinessWait, KindReceive, KindPeerClosed:
		return false
	default:
		return true
	}
}

// SocketError is the single error type raised by the socket layers.
// It carries either the message of a system error or a message supplied by the caller.
type SocketError struct {
	Kind  Kind
	Op    string
	Errno unix.Errno
	msg   string
}

// FromErrno builds a SocketError from a system error.
func FromErrno(kind Kind, op string, errno unix.Errno) *SocketError {
	msg := noErrnoMessage
	if errno != 0 {
		msg = errno.Error()
	}
	return &SocketError{Kind: kind, Op: op, Errno: errno, msg: msg}
}

// FromError is FromErrno for errors returned by the unix helpers.
// Anything that is not an errno keeps its own message.
func FromError(kind Kind, op string, err error) *SocketError {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return FromErrno(kind, op, errno)
	}
	if err == nil {
		return FromErrno(kind, op, 0)
	}
	return &SocketError{Kind: kind, Op: op, msg: err.Error()}
}

// New builds a SocketError with a caller supplied description.
func New(kind Kind, msg string) *SocketError {
	return &SocketError{Kind: kind, msg: msg}
}

func (e *SocketError) Error() string {
	if e.Op == "" {
		return e.msg
	}
	return e.Op + ": " + e.msg
}

func (e *SocketError) Unwrap() error {
	if e.Errno == 0 {
		return nil
	}
	return e.Errno
}

// Is matches any SocketError of the same kind, so the sentinels below work with errors.Is.
func (e *SocketError) Is(target error) bool {
	t, ok := target.(*SocketError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrSocketInit    = New(KindSocketInit, "socket initialization failed")
	ErrAccept        = New(KindAccept, "accept failed")
	ErrRegistration  = New(KindRegistration, "readiness registration failed")
	ErrReadinessWait = New(KindReadinessWait, "readiness wait failed")
	ErrReceive       = New(KindReceive, "receive failed")
	ErrPeerClosed    = New(KindPeerClosed, "socket is closed or disconnected")
	ErrSend          = New(KindSend, "send failed")
	ErrNotListening  = New(KindNotListening, "no listening socket, did you forget to call Listen?")
)

// IsFatal reports whether err should tear the server down.
// Errors outside the taxonomy are treated as fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var se *SocketError
	if errors.As(err, &se) {
		return se.Kind.Fatal()
	}
	return true
}

// KindOf returns the kind of err and whether err belongs to the taxonomy.
func KindOf(err error) (Kind, bool) {
	var se *SocketError
	if errors.As(err, &se) {
		return se.Kind, true
	}
	return 0, false
}
