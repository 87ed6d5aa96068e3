package reqctx

import (
	"bytes"
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/stretchr/testify/assert"
)

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, RequestID(ctx))
	assert.Empty(t, Actor(ctx))

	ctx = WithActor(WithRequestID(ctx, "rid-1"), "user-1")
	assert.Equal(t, "rid-1", RequestID(ctx))
	assert.Equal(t, "user-1", Actor(ctx))
}

func TestLoggerCarriesIDs(t *testing.T) {
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })

	ctx := WithActor(WithRequestID(context.Background(), "rid-2"), "user-2")
	Logger(ctx).Info().Msg("hello")

	out := buf.String()
	assert.Contains(t, out, `"request_id":"rid-2"`)
	assert.Contains(t, out, `"actor":"user-2"`)
	assert.Contains(t, out, `"message":"hello"`)
}
