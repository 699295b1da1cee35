package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/dasmlab/nllbgate/pkg/lifecycle"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"
)

// TranslationServiceName is the gRPC health service name that reports
// SERVING only while the engine is Ready.
const TranslationServiceName = "nllbgate.Translation"

// HealthServer exposes the standard gRPC health protocol for the gateway.
// The overall ("") status is SERVING while the process runs; the
// TranslationServiceName status follows the engine lifecycle.
type HealthServer struct {
	grpcServer *grpc.Server
	health     *health.Server
	logger     *logrus.Logger
}

// NewHealthServer creates a gRPC server with keepalive enforcement, health and reflection.
func NewHealthServer(logger *logrus.Logger) *HealthServer {
	if logger == nil {
		logger = logrus.New()
	}

	// Clients ping every 30s; allow down to 15s to avoid "too many pings".
	opts := []grpc.ServerOption{
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             15 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     5 * time.Minute,
			MaxConnectionAge:      30 * time.Minute,
			MaxConnectionAgeGrace: 5 * time.Second,
			Time:                  30 * time.Second,
			Timeout:               10 * time.Second,
		}),
	}

	s := grpc.NewServer(opts...)
	hs := health.NewServer()
	grpc_health_v1.RegisterHealthServer(s, hs)
	hs.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	hs.SetServingStatus(TranslationServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	// Reflection lets grpcurl discover the health service.
	reflection.Register(s)

	return &HealthServer{grpcServer: s, health: hs, logger: logger}
}

// ObserveEngine updates the translation service status from an engine
// state. It is meant to be passed to lifecycle.Manager.Subscribe.
func (h *HealthServer) ObserveEngine(state lifecycle.State) {
	status := grpc_health_v1.HealthCheckResponse_NOT_SERVING
	if state.Phase == lifecycle.Ready {
		status = grpc_health_v1.HealthCheckResponse_SERVING
	}
	h.health.SetServingStatus(TranslationServiceName, status)
	h.logger.WithFields(logrus.Fields{
		"service": TranslationServiceName,
		"status":  status.String(),
	}).Debug("Updated gRPC health status")
}

// Check answers a health query directly, without a network round trip.
func (h *HealthServer) Check(ctx context.Context, service string) (grpc_health_v1.HealthCheckResponse_ServingStatus, error) {
	resp, err := h.health.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		return grpc_health_v1.HealthCheckResponse_UNKNOWN, err
	}
	return resp.GetStatus(), nil
}

// Serve accepts connections on lis until Stop is called.
func (h *HealthServer) Serve(lis net.Listener) error {
	h.logger.WithFields(logrus.Fields{
		"addr": lis.Addr().String(),
	}).Info("gRPC health server listening")
	if err := h.grpcServer.Serve(lis); err != nil {
		return fmt.Errorf("failed to serve: %w", err)
	}
	return nil
}

// ListenAndServe listens on addr and serves.
func (h *HealthServer) ListenAndServe(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return h.Serve(lis)
}

// Stop marks every service NOT_SERVING and stops gracefully, forcing a stop
// once ctx is done.
func (h *HealthServer) Stop(ctx context.Context) {
	h.health.Shutdown()

	stopped := make(chan struct{})
	go func() {
		h.grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		h.logger.Info("gRPC server stopped gracefully")
	case <-ctx.Done():
		h.logger.Warn("Graceful shutdown timeout, forcing stop...")
		h.grpcServer.Stop()
	}
}
