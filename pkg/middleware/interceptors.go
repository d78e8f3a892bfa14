package middleware

import (
	"context"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/kevin07696/voucher-ledger/internal/domain/ports"
	"github.com/kevin07696/voucher-ledger/pkg/resilience"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// LoggingInterceptor logs every unary RPC with its duration
func LoggingInterceptor(logger ports.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		if err != nil {
			logger.Error("gRPC request failed",
				ports.String("method", info.FullMethod),
				ports.Duration("duration", time.Since(start)),
				ports.Err(err),
			)
		} else {
			logger.Debug("gRPC request",
				ports.String("method", info.FullMethod),
				ports.Duration("duration", time.Since(start)),
			)
		}
		return resp, err
	}
}

// RecoveryInterceptor turns a handler panic into codes.Internal
func RecoveryInterceptor(logger ports.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("Panic recovered in gRPC handler",
					ports.String("method", info.FullMethod),
					ports.Any("panic", r),
					ports.String("stack", string(debug.Stack())),
				)
				err = status.Error(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

// TimeoutInterceptor bounds unary RPCs that arrive without a deadline
func TimeoutInterceptor(config *resilience.TimeoutConfig) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		if _, ok := ctx.Deadline(); ok {
			return handler(ctx, req)
		}
		ctx, cancel := config.HandlerContext(ctx)
		defer cancel()
		return handler(ctx, req)
	}
}

// Timeout bounds each HTTP request with the handler timeout
func Timeout(config *resilience.TimeoutConfig, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := config.HandlerContext(r.Context())
		defer cancel()
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
