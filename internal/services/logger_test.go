package services

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedService string

func (n namedService) ID() string { return string(n) }

func TestRequestLoggerCarriesIDs(t *testing.T) {
	var buf bytes.Buffer
	l := &ServiceLogger{logger: zerolog.New(&buf).With().Str("service", "router").Logger()}

	logger, id := l.Request("")
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	logger.Info().Msg("routed")
	assert.Contains(t, buf.String(), `"service":"router"`)
	assert.Contains(t, buf.String(), `"request_id":"`+id+`"`)

	_, kept := l.Request("abc")
	assert.Equal(t, "abc", kept)
}

func TestNewServiceLogger(t *testing.T) {
	l := NewServiceLogger(namedService("svc"))
	assert.NotNil(t, l.Info())
}

func TestSetLogLevel(t *testing.T) {
	prev := zerolog.GlobalLevel()
	defer zerolog.SetGlobalLevel(prev)

	assert.Equal(t, zerolog.WarnLevel, SetLogLevel("WARN"))
	assert.Equal(t, zerolog.WarnLevel, zerolog.GlobalLevel())
	assert.Equal(t, zerolog.WarnLevel, SetLogLevel("loud"))
}
