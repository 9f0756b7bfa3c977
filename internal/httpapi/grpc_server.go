package httpapi

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"gestix.app/internal/obs"
)

const serviceName = "gestix-api"

// HealthServer exposes readiness over the standard grpc.health.v1 protocol so
// orchestrators can probe the API without HTTP.
type HealthServer struct {
	health    *health.Server
	readiness readinessChecker
	log       *zap.Logger
}

// NewHealthServer creates the gRPC health wrapper. Status starts NOT_SERVING
// until the first Refresh.
func NewHealthServer(r readinessChecker) *HealthServer {
	s := &HealthServer{
		health:    health.NewServer(),
		readiness: r,
		log:       obs.Logger(),
	}
	s.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return s
}

// Register attaches the health service to srv.
func (s *HealthServer) Register(srv *grpc.Server) {
	healthpb.RegisterHealthServer(srv, s.health)
}

// Refresh evaluates readiness once and publishes the result.
func (s *HealthServer) Refresh(ctx context.Context) bool {
	ok := true
	if s.readiness != nil {
		if err := s.readiness.Check(ctx); err != nil {
			s.log.Warn("readiness check failed", zap.Error(err))
			ok = false
		}
	}
	obs.SetReady(ok)
	if ok {
		s.set(healthpb.HealthCheckResponse_SERVING)
	} else {
		s.set(healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return ok
}

// Run refreshes every interval until ctx is done, then marks the service
// NOT_SERVING so in-flight probes see the shutdown.
func (s *HealthServer) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = 10 * time.Second
	}
	t := time.NewTicker(every)
	defer t.Stop()
	s.Refresh(ctx)
	for {
		select {
		case <-ctx.Done():
			s.health.Shutdown()
			return
		case <-t.C:
			s.Refresh(ctx)
		}
	}
}

func (s *HealthServer) set(st healthpb.HealthCheckResponse_ServingStatus) {
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(serviceName, st)
}
