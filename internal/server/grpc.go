package server

import (
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	healthhandler "github.com/rightvendors/portfolyze/internal/health/handler"
	"github.com/rightvendors/portfolyze/internal/server/interceptors"
)

// healthCheckMethods are polled by probes and logged at debug level.
var healthCheckMethods = map[string]bool{
	"/grpc.health.v1.Health/Check": true,
	"/grpc.health.v1.Health/Watch": true,
}

// NewGRPCServer returns a gRPC server with otel instrumentation and request logging,
// with the health service registered.
func NewGRPCServer(health *healthhandler.Server, logger *zap.Logger) *grpc.Server {
	s := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(interceptors.LoggingUnary(logger, healthCheckMethods)),
	)
	RegisterServices(s, health)
	return s
}

// RegisterServices registers the gRPC services with s.
//
// Service → handler mapping:
//   - grpc.health.v1.Health → internal/health/handler
func RegisterServices(s grpc.ServiceRegistrar, health *healthhandler.Server) {
	if health != nil {
		health.Register(s)
	}
}
