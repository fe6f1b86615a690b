//go:build linux

package server

import (
	"context"

	toukaerrors "github.com/touka-aoi/oneshot/core/errors"
	"github.com/touka-aoi/oneshot/middleware"
	"github.com/touka-aoi/oneshot/transport"
)

// Serve runs accept/read/write/close cycles for app until a fatal error, until
// ctx is done, or after one cycle when the server is not continuous.
// A fatal error tears the server down and is returned.
// ctx is only checked between cycles, a blocked accept is not interrupted.
func (ns *NetworkServer) Serve(ctx context.Context, app transport.Transport) error {
	defer func() {
		if shutdownErr := ns.Shutdown(ctx); shutdownErr != nil {
			ns.log.Warn().Err(shutdownErr).Msg("Failed to release server resources")
		}
	}()

	for {
		if ctx.Err() != nil {
			ns.log.Info().Msg("Server stopping")
			return nil
		}

		if err := ns.serveOne(ctx, app); err != nil {
			ns.log.Error().Err(err).Stringer("status", ns.status).Msg("Fatal server error, shutting down")
			return err
		}

		if !ns.config.Continuous {
			return nil
		}
		ns.log.Info().Msg("Waiting for client data ...")
	}
}

// serveOne handles a single connection. Only fatal errors are returned.
func (ns *NetworkServer) serveOne(ctx context.Context, app transport.Transport) error {
	if err := ns.Listen(ctx, ns.config.Continuous); err != nil {
		if toukaerrors.IsFatal(err) {
			return err
		}
		ns.endCycle(ctx, app, false)
		return nil
	}

	conn := ns.conn
	if err := app.OnConnect(ctx, conn); err != nil {
		ns.log.Warn().Err(err).Str("session", conn.ID()).Msg("Application error on connect")
	}

	data, err := ns.Read(ctx, ns.config.BufferSize)
	if err != nil {
		if toukaerrors.IsFatal(err) {
			return err
		}
		ns.log.Info().Err(err).Str("session", conn.ID()).Msg("Nothing to answer")
	}

	if len(data) > 0 {
		reply := ns.handle(ctx, app, data)
		if len(reply) > 0 {
			if _, err := ns.Write(ctx, reply); err != nil {
				if toukaerrors.IsFatal(err) {
					return err
				}
				ns.log.Warn().Err(err).Str("session", conn.ID()).Msg("Reply dropped")
			}
		}
	}

	ns.endCycle(ctx, app, true)
	return nil
}

// handle runs the pipeline and the application on one payload.
// Application failures are logged and answered with nothing.
func (ns *NetworkServer) handle(ctx context.Context, app transport.Transport, data []byte) []byte {
	conn := ns.conn
	mctx := middleware.NewContext(data, conn)
	if err := ns.pipeline.Execute(mctx); err != nil {
		ns.log.Warn().Err(err).Str("session", conn.ID()).Msg("Pipeline rejected data")
		return nil
	}

	reply, err := app.OnData(ctx, conn, mctx.Data)
	if err != nil {
		ns.log.Warn().Err(err).Str("session", conn.ID()).Msg("Application error on data")
		return nil
	}
	return reply
}

func (ns *NetworkServer) endCycle(ctx context.Context, app transport.Transport, connected bool) {
	if connected && ns.conn != nil {
		if err := app.OnDisconnect(ctx, ns.conn); err != nil {
			ns.log.Warn().Err(err).Str("session", ns.conn.ID()).Msg("Application error on disconnect")
		}
	}
	if err := ns.Close(ctx); err != nil {
		ns.log.Warn().Err(err).Msg("Failed to close connection")
	}
}
