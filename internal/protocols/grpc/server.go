// Package grpc serves gRPC health and reflection for the engine. Serving
// status follows the progress store's reachability.
package grpc

import (
	"context"
	"fmt"
	"net"
	"time"

	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpc_zap "github.com/grpc-ecosystem/go-grpc-middleware/logging/zap"
	grpc_recovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"missionhub/pkg/logger"
	"missionhub/pkg/models"
)

// ServiceName is the health-check service name reported for the engine
const ServiceName = "missionhub.v1.MissionEngine"

const probeInterval = 10 * time.Second

// Pinger reports whether the progress store is reachable
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server represents the gRPC server
type Server struct {
	server *grpc.Server
	addr   string
	health *health.Server
	store  Pinger
}

// NewServer creates a gRPC server with recovery and zap logging
func NewServer(addr string, store Pinger) *Server {
	zl := logger.Zap()
	recoveryOpts := []grpc_recovery.Option{
		grpc_recovery.WithRecoveryHandler(func(p interface{}) error {
			logger.Errorf("grpc panic recovered: %v", p)
			return models.NewAppError(fmt.Errorf("panic: %v", p), "internal error").ToGRPCError()
		}),
	}

	server := grpc.NewServer(
		grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(
			grpc_zap.UnaryServerInterceptor(zl),
			grpc_recovery.UnaryServerInterceptor(recoveryOpts...),
		)),
		grpc.StreamInterceptor(grpc_middleware.ChainStreamServer(
			grpc_zap.StreamServerInterceptor(zl),
			grpc_recovery.StreamServerInterceptor(recoveryOpts...),
		)),
	)

	healthServer := health.NewServer()
	healthServer.SetServingStatus(ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	reflection.Register(server)

	return &Server{server: server, addr: addr, health: healthServer, store: store}
}

// Health exposes the health server (for tests and in-process probes)
func (s *Server) Health() *health.Server { return s.health }

// Probe pings the store once and updates the serving status
func (s *Server) Probe(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	err := s.store.Ping(pctx)
	st := grpc_health_v1.HealthCheckResponse_SERVING
	if err != nil {
		st = grpc_health_v1.HealthCheckResponse_NOT_SERVING
		logger.Warnf("grpc health: %s: %v", models.CodeOf(err), err)
	}
	s.health.SetServingStatus(ServiceName, st)
	s.health.SetServingStatus("", st)
	return err
}

// Run serves until ctx is done, then stops gracefully
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	go s.watch(ctx)
	go func() {
		<-ctx.Done()
		logger.Info("gRPC server stopping")
		s.health.Shutdown()
		s.server.GracefulStop()
	}()

	logger.Infof("gRPC server listening on %s", s.addr)
	if err := s.server.Serve(listener); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}

func (s *Server) watch(ctx context.Context) {
	ticker := time.NewTicker(probeInterval)
	defer ticker.Stop()
	_ = s.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.Probe(ctx)
		}
	}
}
