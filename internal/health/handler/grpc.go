// Package handler serves readiness over the standard gRPC health protocol and GET /healthz.
package handler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported alongside the overall ("") status.
const ServiceName = "portfolyze.auth.v1"

const checkTimeout = 2 * time.Second

// Pinger is a dependency whose reachability gates readiness (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// PingContext calls f.
func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

// Server tracks readiness of the configured dependencies and publishes it through grpc/health.
type Server struct {
	hs     *health.Server
	checks map[string]Pinger
	logger *zap.Logger

	mu   sync.RWMutex
	last map[string]error
}

// NewServer returns a health Server for the named checks. nil checks are ignored; with no checks
// the server always reports SERVING.
func NewServer(checks map[string]Pinger, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := make(map[string]Pinger, len(checks))
	for name, p := range checks {
		if p != nil {
			c[name] = p
		}
	}
	return &Server{hs: health.NewServer(), checks: c, logger: logger, last: make(map[string]error)}
}

// Register registers the grpc.health.v1.Health service on r.
func (s *Server) Register(r grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(r, s.hs)
}

// Check pings every dependency and returns the joined failures.
func (s *Server) Check(ctx context.Context) error {
	results := s.run(ctx)
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)
	var errs []error
	for _, name := range names {
		if err := results[name]; err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Server) run(ctx context.Context) map[string]error {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	results := make(map[string]error, len(s.checks))
	for name, p := range s.checks {
		results[name] = p.PingContext(ctx)
	}
	s.mu.Lock()
	s.last = results
	s.mu.Unlock()
	return results
}

// Refresh runs the checks and updates the published serving status.
func (s *Server) Refresh(ctx context.Context) error {
	err := s.Check(ctx)
	st := healthpb.HealthCheckResponse_SERVING
	if err != nil {
		st = healthpb.HealthCheckResponse_NOT_SERVING
		s.logger.Warn("health check failed", zap.Error(err))
	}
	s.hs.SetServingStatus("", st)
	s.hs.SetServingStatus(ServiceName, st)
	return err
}

// Run refreshes the status every interval until ctx is done.
func (s *Server) Run(ctx context.Context, interval time.Duration) {
	_ = s.Refresh(ctx)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_ = s.Refresh(ctx)
		}
	}
}

// Shutdown reports NOT_SERVING for every service so load balancers drain before the listener closes.
func (s *Server) Shutdown() {
	s.hs.Shutdown()
}
