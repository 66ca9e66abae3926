// Package grpc exposes the standard gRPC health service. Serving status
// follows periodic probes of storage and the rate limiter.
package grpc

import (
	"context"
	"net"
	"sort"
	"time"

	"github.com/dmitrijs2005/zkvault/internal/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Pinger is anything whose reachability can be probed.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Overall is the service name reporting the aggregate status.
const Overall = ""

const probeTimeout = 3 * time.Second

type HealthServer struct {
	address  string
	logger   logging.Logger
	health   *health.Server
	checks   map[string]Pinger
	interval time.Duration
}

// NewHealthServer registers one health entry per check plus the overall
// entry. Everything starts as NOT_SERVING until the first probe.
func NewHealthServer(address string, l logging.Logger, interval time.Duration, checks map[string]Pinger) *HealthServer {
	hs := health.NewServer()
	hs.SetServingStatus(Overall, healthpb.HealthCheckResponse_NOT_SERVING)
	for name := range checks {
		hs.SetServingStatus(name, healthpb.HealthCheckResponse_NOT_SERVING)
	}

	return &HealthServer{
		address:  address,
		logger:   l.With("module", "grpc_server"),
		health:   hs,
		checks:   checks,
		interval: interval,
	}
}

// Probe pings every check once and publishes the result.
func (s *HealthServer) Probe(ctx context.Context) bool {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	allOK := true
	for _, name := range names {
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		err := s.checks[name].Ping(pctx)
		cancel()

		st := healthpb.HealthCheckResponse_SERVING
		if err != nil {
			allOK = false
			st = healthpb.HealthCheckResponse_NOT_SERVING
			s.logger.Warn(ctx, "health probe failed", "check", name, "error", err)
		}
		s.health.SetServingStatus(name, st)
	}

	if allOK {
		s.health.SetServingStatus(Overall, healthpb.HealthCheckResponse_SERVING)
	} else {
		s.health.SetServingStatus(Overall, healthpb.HealthCheckResponse_NOT_SERVING)
	}
	return allOK
}

func (s *HealthServer) probeLoop(ctx context.Context) {
	s.Probe(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Probe(ctx)
		}
	}
}

func (s *HealthServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(recoveryInterceptor(s.logger), loggingInterceptor(s.logger)))
	healthpb.RegisterHealthServer(srv, s.health)

	go s.probeLoop(ctx)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gPRC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
