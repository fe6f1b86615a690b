package middleware

import (
	"time"

	"github.com/rs/zerolog"
)

// RequestLogger logs every payload that goes through the pipeline and how long
// the rest of the chain took.
func RequestLogger(l zerolog.Logger) MiddlewareFunc {
	return func(ctx *Context, next NextFunc) error {
		start := time.Now()
		l.Info().
			Str("session", ctx.Peer.ID()).
			Str("remote", ctx.Peer.RemoteAddr().String()).
			Int("bytes", len(ctx.Data)).
			Msgf("rcvd client data: %s", ctx.Data)

		err := next(ctx)

		ev := l.Debug()
		if err != nil {
			ev = l.Error().Err(err)
		}
		ev.Str("session", ctx.Peer.ID()).Dur("elapsed", time.Since(start)).Msg("pipeline done")
		return err
	}
}
