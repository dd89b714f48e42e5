package grpc

import (
	"errors"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	log "github.com/sirupsen/logrus"
)

// ServiceName is the health-check service name probes can ask for
const ServiceName = "hcsrelay.Relay"

// HealthServer exposes grpc.health.v1 for orchestrator probes
type HealthServer struct {
	server *grpc.Server
	health *health.Server
	logger log.FieldLogger
}

// NewHealthServer creates a gRPC server reporting SERVING for the relay
func NewHealthServer(logger log.FieldLogger) *HealthServer {
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)

	return &HealthServer{server: srv, health: hs, logger: logger}
}

// Serve blocks serving lis until Stop is called
func (s *HealthServer) Serve(lis net.Listener) error {
	s.logger.Infof("gRPC health server listening on %s", lis.Addr())
	if err := s.server.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return err
	}
	return nil
}

// Stop marks every service NOT_SERVING and drains in-flight RPCs
func (s *HealthServer) Stop() {
	s.health.Shutdown()
	s.server.GracefulStop()
	s.logger.Info("gRPC health server stopped")
}
