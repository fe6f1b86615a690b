//go:build linux

package server_test

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/touka-aoi/oneshot/application/random"
	toukaerrors "github.com/touka-aoi/oneshot/core/errors"
	"github.com/touka-aoi/oneshot/middleware"
	"github.com/touka-aoi/oneshot/server"
	"github.com/touka-aoi/oneshot/server/peer"
)

func serveAsync(ctx context.Context, ns *server.NetworkServer, app *random.Application) <-chan error {
	done := make(chan error, 1)
	go func() {
		done <- ns.Serve(ctx, app)
	}()
	return done
}

func waitServe(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return")
		return nil
	}
}

// roundTrip sends msg and reads until the server closes the connection.
func roundTrip(t *testing.T, addr, msg string) string {
	t.Helper()
	c := dial(t, addr)
	send(t, c, msg)
	got, err := io.ReadAll(c)
	require.NoError(t, err)
	return string(got)
}

func TestServeScenarios(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "random request gets a value", in: `{"type":"random"}`, want: `{"type":"random","value":42}`},
		{name: "other type is rejected", in: `{"type":"other"}`, want: "invalid json data"},
		{name: "non json is echoed", in: "hello", want: "hello"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ns := newServer(t, false)
			app := random.New(random.WithIntn(func(int) int { return 41 }))
			done := serveAsync(context.Background(), ns, app)

			assert.Equal(t, tt.want, roundTrip(t, ns.Addr(), tt.in))
			require.NoError(t, waitServe(t, done))
			assert.Equal(t, server.ShutDown, ns.Status())
		})
	}
}

func TestServePeerClosedWithoutData(t *testing.T) {
	ns := newServer(t, false)
	done := serveAsync(context.Background(), ns, random.New())

	c := dial(t, ns.Addr())
	require.NoError(t, c.Close())

	require.NoError(t, waitServe(t, done))
	assert.Equal(t, server.ShutDown, ns.Status())
}

func TestServeContinuous(t *testing.T) {
	ns := newServer(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := serveAsync(ctx, ns, random.New(random.WithIntn(func(int) int { return 6 })))

	assert.Equal(t, `{"type":"random","value":7}`, roundTrip(t, ns.Addr(), `{"type":"random"}`))
	assert.Equal(t, "again", roundTrip(t, ns.Addr(), "again"))

	// the loop notices the cancellation after the next connection, or right away
	// if it had not yet gone back to accept
	cancel()
	if c, err := net.DialTimeout("tcp", ns.Addr(), time.Second); err == nil {
		_ = c.Close()
	}

	require.NoError(t, waitServe(t, done))
	assert.Equal(t, server.ShutDown, ns.Status())

	_, err := net.DialTimeout("tcp", ns.Addr(), time.Second)
	assert.Error(t, err)
}

func TestServeRunsPipeline(t *testing.T) {
	var seen []string
	pipeline := middleware.NewPipeline().Use(func(ctx *middleware.Context, next middleware.NextFunc) error {
		seen = append(seen, string(ctx.Data))
		return next(ctx)
	})

	ns, err := server.NewNetworkServer(server.NetworkServerConfig{Port: freePort(t)}, server.WithPipeline(pipeline))
	require.NoError(t, err)
	done := serveAsync(context.Background(), ns, random.New())

	assert.Equal(t, "hello", roundTrip(t, ns.Addr(), "hello"))
	require.NoError(t, waitServe(t, done))
	assert.Equal(t, []string{"hello"}, seen)
}

func TestServePipelineErrorSendsNothing(t *testing.T) {
	pipeline := middleware.NewPipeline().Use(func(ctx *middleware.Context, next middleware.NextFunc) error {
		return errors.New("rejected")
	})

	ns, err := server.NewNetworkServer(server.NetworkServerConfig{Port: freePort(t)}, server.WithPipeline(pipeline))
	require.NoError(t, err)
	done := serveAsync(context.Background(), ns, random.New())

	assert.Empty(t, roundTrip(t, ns.Addr(), "hello"))
	require.NoError(t, waitServe(t, done))
}

func TestServeAfterShutdownIsFatal(t *testing.T) {
	ns := newServer(t, true)
	require.NoError(t, ns.Shutdown(context.Background()))

	err := ns.Serve(context.Background(), random.New())
	require.ErrorIs(t, err, toukaerrors.ErrNotListening)
	assert.True(t, toukaerrors.IsFatal(err))
}

func TestServeStopsOnCancelledContext(t *testing.T) {
	ns := newServer(t, true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, ns.Serve(ctx, random.New()))
	assert.Equal(t, server.ShutDown, ns.Status())
}

type recordingApp struct {
	connected, disconnected []string
}

func (r *recordingApp) OnConnect(ctx context.Context, p peer.Endpoint) error {
	r.connected = append(r.connected, p.ID())
	return nil
}

func (r *recordingApp) OnData(ctx context.Context, p peer.Endpoint, data []byte) ([]byte, error) {
	return nil, errors.New("no answer")
}

func (r *recordingApp) OnDisconnect(ctx context.Context, p peer.Endpoint) error {
	r.disconnected = append(r.disconnected, p.ID())
	return nil
}

func TestServeCallsApplicationHooks(t *testing.T) {
	ns := newServer(t, false)
	app := &recordingApp{}
	done := make(chan error, 1)
	go func() { done <- ns.Serve(context.Background(), app) }()

	assert.Empty(t, roundTrip(t, ns.Addr(), "hello"))
	require.NoError(t, waitServe(t, done))

	require.Len(t, app.connected, 1)
	assert.Equal(t, app.connected, app.disconnected)
}
