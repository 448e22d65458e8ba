package grpc

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health-check service name of the bill-payment API.
const ServiceName = "billpay.v1.BillPaymentService"

// DefaultProbeInterval is how often the store is pinged.
const DefaultProbeInterval = 10 * time.Second

const probeTimeout = 2 * time.Second

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewGRPCServer creates a new gRPC server with recommended options
func NewGRPCServer() *grpc.Server {
	opts := []grpc.ServerOption{
		grpc.MaxRecvMsgSize(1024 * 1024 * 4), // 4MB max receive message size
		grpc.MaxSendMsgSize(1024 * 1024 * 4), // 4MB max send message size
	}

	return grpc.NewServer(opts...)
}

// HealthReporter serves grpc.health.v1.Health with a status that follows
// the store's ping result.
type HealthReporter struct {
	server   *health.Server
	pinger   Pinger
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	serving bool
}

// NewHealthReporter creates a reporter that starts out NOT_SERVING until
// the first probe succeeds.
func NewHealthReporter(pinger Pinger, interval time.Duration, logger *slog.Logger) *HealthReporter {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	h := &HealthReporter{
		server:   health.NewServer(),
		pinger:   pinger,
		interval: interval,
		logger:   logger,
	}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Register installs the health service and server reflection on s.
func (h *HealthReporter) Register(s *grpc.Server) {
	healthpb.RegisterHealthServer(s, h.server)
	reflection.Register(s)
}

// Probe pings the store once and updates the reported status.
func (h *HealthReporter) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	err := h.pinger.Ping(ctx)
	ok := err == nil

	h.mu.Lock()
	changed := ok != h.serving
	h.serving = ok
	h.mu.Unlock()

	if ok {
		h.set(healthpb.HealthCheckResponse_SERVING)
	} else {
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	}

	if changed {
		if ok {
			h.logger.Info("store reachable, reporting SERVING")
		} else {
			h.logger.Warn("store unreachable, reporting NOT_SERVING", "error", err)
		}
	}
	return ok
}

// Run probes immediately and then on every interval until ctx is done.
// On return every service is marked NOT_SERVING.
func (h *HealthReporter) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.Probe(ctx)
	for {
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return
		case <-ticker.C:
			h.Probe(ctx)
		}
	}
}

func (h *HealthReporter) set(status healthpb.HealthCheckResponse_ServingStatus) {
	h.server.SetServingStatus("", status)
	h.server.SetServingStatus(ServiceName, status)
}
