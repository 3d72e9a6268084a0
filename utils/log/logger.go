package log

import (
	"context"
	"os"

	"go.uber.org/zap"
)

var logger *zap.Logger

func init() {
	if os.Getenv("DEBUG") == "true" {
		logger, _ = zap.NewDevelopment()
	} else {
		logger, _ = zap.NewProduction()
	}
}

type ctxKey string

const (
	SessionIDKey ctxKey = "session_id"
	RemoteKey    ctxKey = "remote"
)

func WithCtx(ctx context.Context) *zap.Logger {
	fields := []zap.Field{}

	if v := ctx.Value(SessionIDKey); v != nil {
		fields = append(fields, zap.Any("session_id", v))
	}
	if v := ctx.Value(RemoteKey); v != nil {
		fields = append(fields, zap.Any("remote", v))
	}

	return logger.With(fields...)
}

func With(fields ...zap.Field) *zap.Logger {
	return logger.With(fields...)
}
