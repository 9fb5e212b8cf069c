// Package health reports record store reachability over the standard gRPC
// health protocol.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name for the record store.
const ServiceName = "trainbot.RecordStore"

const checkTimeout = 5 * time.Second

// Pinger is implemented by every record store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Service tracks store health and exposes it via grpc.health.v1.
type Service struct {
	pinger Pinger
	hs     *health.Server

	mu      sync.RWMutex
	lastErr error
	checked time.Time
}

// New creates a Service that reports NOT_SERVING until the first successful check.
func New(p Pinger) *Service {
	hs := health.NewServer()
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	return &Service{pinger: p, hs: hs}
}

// Check pings the store and updates the served status.
func (s *Service) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	err := s.pinger.Ping(ctx)
	status := healthpb.HealthCheckResponse_SERVING
	if err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.hs.SetServingStatus("", status)
	s.hs.SetServingStatus(ServiceName, status)

	s.mu.Lock()
	s.lastErr = err
	s.checked = time.Now()
	s.mu.Unlock()
	return err
}

// Last returns the result of the most recent check.
func (s *Service) Last() (checked time.Time, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checked, s.lastErr
}

// Watch re-checks the store every interval until ctx is done, then marks
// every service NOT_SERVING.
func (s *Service) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.hs.Shutdown()
			return
		case <-ticker.C:
			if err := s.Check(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("Record store health check failed", "error", err)
			}
		}
	}
}

// Serve listens on addr and serves the health protocol until ctx is done.
func (s *Service) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen grpc health on %s: %w", addr, err)
	}
	return s.ServeListener(ctx, lis)
}

// ServeListener serves the health protocol on lis until ctx is done.
func (s *Service) ServeListener(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, s.hs)

	go func() {
		<-ctx.Done()
		s.hs.Shutdown()
		srv.GracefulStop()
	}()

	slog.Info("gRPC health listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serve grpc health: %w", err)
	}
	return nil
}
