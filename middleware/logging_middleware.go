package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// LoggingMiddleware records the operation name, duration, and any error
// for each broker call. It captures the start time before calling next,
// and logs the elapsed time after next returns.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next Step) Step {
		return func(ctx context.Context, op string) (any, error) {
			start := time.Now()
			result, err := next(ctx, op)
			fields := []zap.Field{zap.String("op", op), zap.Duration("duration", time.Since(start))}
			if err != nil {
				fields = append(fields, zap.Error(err))
				logger.Warn("broker call failed", fields...)
			} else {
				logger.Debug("broker call completed", fields...)
			}
			return result, err
		}
	}
}
