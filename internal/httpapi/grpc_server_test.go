package httpapi

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1024 * 1024

func startBufGRPC(t *testing.T, srv *HealthServer) (*grpc.ClientConn, func()) {
	t.Helper()

	listener := bufconn.Listen(bufSize)
	server := grpc.NewServer()
	srv.Register(server)

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			t.Logf("grpc serve error: %v", err)
		}
	}()

	dialer := func(ctx context.Context, _ string) (net.Conn, error) {
		return listener.Dial()
	}
	conn, err := grpc.NewClient(
		"passthrough:///bufnet",
		grpc.WithContextDialer(dialer),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial bufnet: %v", err)
	}

	cleanup := func() {
		server.GracefulStop()
		_ = conn.Close()
		_ = listener.Close()
	}
	return conn, cleanup
}

type stubReadiness struct{ err error }

func (s stubReadiness) Check(context.Context) error { return s.err }

func checkStatus(t *testing.T, conn *grpc.ClientConn, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	return resp.GetStatus()
}

func TestHealthServer_Serving(t *testing.T) {
	srv := NewHealthServer(stubReadiness{})
	conn, cleanup := startBufGRPC(t, srv)
	defer cleanup()

	if got := checkStatus(t, conn, serviceName); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING before refresh, got %v", got)
	}
	if !srv.Refresh(context.Background()) {
		t.Fatal("expected refresh to report ready")
	}
	if got := checkStatus(t, conn, serviceName); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected SERVING, got %v", got)
	}
	if got := checkStatus(t, conn, ""); got != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("expected overall SERVING, got %v", got)
	}
}

func TestHealthServer_NotServingOnFailure(t *testing.T) {
	srv := NewHealthServer(stubReadiness{err: errors.New("db down")})
	conn, cleanup := startBufGRPC(t, srv)
	defer cleanup()

	if srv.Refresh(context.Background()) {
		t.Fatal("expected refresh to report not ready")
	}
	if got := checkStatus(t, conn, serviceName); got != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("expected NOT_SERVING, got %v", got)
	}
}

func TestHealthServer_RunStopsWithContext(t *testing.T) {
	srv := NewHealthServer(stubReadiness{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		srv.Run(ctx, 10*time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
