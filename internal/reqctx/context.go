package reqctx

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type ctxKey string

const (
	keyRequestID ctxKey = "request_id"
	keyActor     ctxKey = "actor_uid"
)

// WithRequestID stores the correlation id of the current request.
func WithRequestID(ctx context.Context, rid string) context.Context {
	return context.WithValue(ctx, keyRequestID, rid)
}

// RequestID returns correlation id if present.
func RequestID(ctx context.Context) string {
	v, _ := ctx.Value(keyRequestID).(string)
	return v
}

// WithActor stores the authenticated user id.
func WithActor(ctx context.Context, uid string) context.Context {
	return context.WithValue(ctx, keyActor, uid)
}

func Actor(ctx context.Context) string {
	v, _ := ctx.Value(keyActor).(string)
	return v
}

// Logger returns the global logger enriched with whatever ids ctx carries.
func Logger(ctx context.Context) *zerolog.Logger {
	lc := log.Logger.With()
	if rid := RequestID(ctx); rid != "" {
		lc = lc.Str("request_id", rid)
	}
	if uid := Actor(ctx); uid != "" {
		lc = lc.Str("actor", uid)
	}
	l := lc.Logger()
	return &l
}
