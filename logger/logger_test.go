package logger

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestInitParsesLevel(t *testing.T) {
	var out bytes.Buffer
	t.Cleanup(func() { InitWithWriter(&out, "info") })

	assert.Equal(t, zerolog.DebugLevel, InitWithWriter(&out, "DEBUG"))
	assert.Equal(t, zerolog.WarnLevel, InitWithWriter(&out, " warn "))
	assert.Equal(t, zerolog.InfoLevel, InitWithWriter(&out, "loud"))
	assert.Equal(t, zerolog.InfoLevel, InitWithWriter(&out, ""))
}

func TestWithComponent(t *testing.T) {
	var out bytes.Buffer
	InitWithWriter(&out, "debug")
	t.Cleanup(func() { InitWithWriter(&out, "info") })

	l := WithComponent("engine")
	l.Debug().Int("fd", 7).Msg("registered")

	assert.Contains(t, out.String(), "component=engine")
	assert.Contains(t, out.String(), "fd=7")
	assert.Contains(t, out.String(), "registered")

	out.Reset()
	log.Trace().Msg("hidden")
	assert.Empty(t, out.String())
}
