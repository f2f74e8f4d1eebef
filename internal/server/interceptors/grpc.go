package interceptors

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// LoggingUnary returns a unary server interceptor that logs each RPC with its status and duration.
// Methods in skipMethods (full method names) are logged at debug level only.
func LoggingUnary(logger *zap.Logger, skipMethods map[string]bool) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		fields := []zap.Field{
			zap.String("method", info.FullMethod),
			zap.String("code", status.Code(err).String()),
			zap.Duration("duration", time.Since(start)),
		}
		switch {
		case err != nil:
			logger.Warn("gRPC request failed", append(fields, zap.Error(err))...)
		case skipMethods[info.FullMethod]:
			logger.Debug("gRPC request completed", fields...)
		default:
			logger.Info("gRPC request completed", fields...)
		}
		return resp, err
	}
}
