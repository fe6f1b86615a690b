package random

import (
	"context"
	"encoding/json"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubEndpoint struct{}

func (stubEndpoint) ID() string                 { return "session-1" }
func (stubEndpoint) Fd() int32                  { return 7 }
func (stubEndpoint) LocalAddr() netip.AddrPort  { return netip.MustParseAddrPort("127.0.0.1:5300") }
func (stubEndpoint) RemoteAddr() netip.AddrPort { return netip.MustParseAddrPort("127.0.0.1:40000") }
func (stubEndpoint) Status() string             { return "active" }

func fixed(v int) Option {
	return WithIntn(func(int) int { return v })
}

func TestOnDataRandom(t *testing.T) {
	app := New(fixed(41))

	reply, err := app.OnData(context.Background(), stubEndpoint{}, []byte(`{"type":"random"}`))
	require.NoError(t, err)
	assert.Equal(t, `{"type":"random","value":42}`, string(reply))
}

func TestOnDataKeepsOtherFields(t *testing.T) {
	app := New(fixed(0))

	reply, err := app.OnData(context.Background(), stubEndpoint{}, []byte(`{"z":1.50,"type":"random","a":"<b>"}`+"\n"))
	require.NoError(t, err)
	assert.Equal(t, `{"a":"<b>","type":"random","value":1,"z":1.50}`, string(reply))
}

func TestOnDataValueRange(t *testing.T) {
	app := New()

	for i := 0; i < 200; i++ {
		reply, err := app.OnData(context.Background(), stubEndpoint{}, []byte(`{"type":"random"}`))
		require.NoError(t, err)

		var got struct {
			Type  string `json:"type"`
			Value int    `json:"value"`
		}
		require.NoError(t, json.Unmarshal(reply, &got))
		assert.Equal(t, "random", got.Type)
		assert.GreaterOrEqual(t, got.Value, 1)
		assert.LessOrEqual(t, got.Value, MaxValue)
	}
}

func TestOnDataInvalidRequest(t *testing.T) {
	app := New(fixed(0))

	for _, in := range []string{
		`{"type":"other"}`,
		`{"type":1}`,
		`{}`,
		`[1,2]`,
		`"random"`,
		`null`,
	} {
		reply, err := app.OnData(context.Background(), stubEndpoint{}, []byte(in))
		require.NoError(t, err, in)
		assert.Equal(t, "invalid json data", string(reply), in)
	}
}

func TestOnDataEchoesUnparsable(t *testing.T) {
	app := New(fixed(0))

	for _, in := range []string{
		"hello",
		`{"type":"random"`,
		`{"type":"random"} {}`,
		"{\"type\":\"random\",\"x\":\"\xff\"}",
		"",
	} {
		reply, err := app.OnData(context.Background(), stubEndpoint{}, []byte(in))
		require.NoError(t, err, in)
		assert.Equal(t, in, string(reply))
	}
}

func TestConnectAndDisconnect(t *testing.T) {
	app := New()
	assert.NoError(t, app.OnConnect(context.Background(), stubEndpoint{}))
	assert.NoError(t, app.OnDisconnect(context.Background(), stubEndpoint{}))
}
