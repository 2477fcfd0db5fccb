package services

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

type namedService string

func (n namedService) ID() string { return string(n) }

func TestServiceLoggerTagsEvents(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	l := NewServiceLogger(namedService("aggregator")).With("chain", "2020")
	l.Info().Msg("started")

	out := buf.String()
	assert.Contains(t, out, `"service":"aggregator"`)
	assert.Contains(t, out, `"chain":"2020"`)
	assert.Contains(t, out, `"message":"started"`)

	buf.Reset()
	child := l.Logger()
	child.Warn().Msg("direct")
	assert.Contains(t, buf.String(), `"service":"aggregator"`)
}
