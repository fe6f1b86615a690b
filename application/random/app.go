package random

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"math/rand/v2"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/touka-aoi/oneshot/logger"
	"github.com/touka-aoi/oneshot/server/peer"
)

const (
	RequestType = "random"
	MaxValue    = 100
)

// InvalidReply is sent back for well-formed JSON that is not a random request.
var InvalidReply = []byte("invalid json data")

var (
	errTrailingData = errors.New("invalid character after top-level value")
	errInvalidUTF8  = errors.New("invalid UTF-8 in request")
)

type Option func(*Application)

// WithIntn replaces the source of random numbers. intn(n) must return a value in [0, n).
func WithIntn(intn func(n int) int) Option {
	return func(a *Application) {
		a.intn = intn
	}
}

// Application answers {"type":"random"} with the same object plus a "value"
// between 1 and 100. Anything that is not JSON is echoed back.
type Application struct {
	intn func(n int) int
	log  zerolog.Logger
}

func New(opts ...Option) *Application {
	a := &Application{
		intn: rand.IntN,
		log:  logger.WithComponent("random"),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Application) OnConnect(ctx context.Context, p peer.Endpoint) error {
	a.log.Debug().Str("session", p.ID()).Str("remote", p.RemoteAddr().String()).Msg("Client connected")
	return nil
}

func (a *Application) OnData(ctx context.Context, p peer.Endpoint, data []byte) ([]byte, error) {
	v, err := decode(data)
	if err != nil {
		ev := a.log.Warn().Str("session", p.ID())
		var syntaxErr *json.SyntaxError
		if errors.As(err, &syntaxErr) {
			ev = ev.Int64("byte", syntaxErr.Offset)
		}
		ev.Err(err).Msg("Parse error, send back string data")
		return data, nil
	}

	obj, ok := v.(map[string]any)
	if !ok || obj["type"] != RequestType {
		a.log.Info().Str("session", p.ID()).Msg("Send back invalid json data")
		return InvalidReply, nil
	}

	obj["value"] = a.intn(MaxValue) + 1
	reply, err := encode(obj)
	if err != nil {
		return nil, err
	}
	a.log.Info().Str("session", p.ID()).RawJSON("reply", reply).Msg("Send back json data")
	return reply, nil
}

func (a *Application) OnDisconnect(ctx context.Context, p peer.Endpoint) error {
	a.log.Debug().Str("session", p.ID()).Msg("Client disconnected")
	return nil
}

// decode parses exactly one JSON value. Numbers are kept as written.
// Invalid UTF-8 is a parse error rather than being replaced.
func decode(data []byte) (any, error) {
	if !utf8.Valid(data) {
		return nil, errInvalidUTF8
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, errTrailingData
	}
	return v, nil
}

func encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
