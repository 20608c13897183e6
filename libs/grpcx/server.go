package grpcx

import (
	"log/slog"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Server bundles a gRPC server with the standard health service.
type Server struct {
	*grpc.Server
	Health *health.Server
}

// NewServer returns a gRPC server with tracing, request ids and call logging installed and the
// health service registered. Every service starts as SERVING.
func NewServer(logger *slog.Logger, services []string, extra ...grpc.ServerOption) *Server {
	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			UnaryServerRequestIDInterceptor(),
			UnaryServerLoggingInterceptor(logger),
		),
	}
	opts = append(opts, extra...)

	srv := grpc.NewServer(opts...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	for _, name := range services {
		hs.SetServingStatus(name, healthpb.HealthCheckResponse_SERVING)
	}
	return &Server{Server: srv, Health: hs}
}

// Drain marks every service NOT_SERVING and stops the server gracefully.
func (s *Server) Drain() {
	s.Health.Shutdown()
	s.GracefulStop()
}
