package health

import (
	"context"
	"sync"

	"github.com/ciricc/e3bench/internal/monitor"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

// MeasurementService is the service name reported while the harness is
// registered.
const MeasurementService = "e3bench.Measurement"

// HealthChecker implements the gRPC health checking protocol.
// It reports NOT_SERVING while a measurement session holds the device.
type HealthChecker struct {
	grpc_health_v1.UnimplementedHealthServer
	mu        sync.RWMutex
	monitor   monitor.SessionMonitor
	statusMap map[string]grpc_health_v1.HealthCheckResponse_ServingStatus
}

// NewHealthChecker creates a new health checker that watches the given
// session monitor.
func NewHealthChecker(m monitor.SessionMonitor) *HealthChecker {
	return &HealthChecker{
		monitor:   m,
		statusMap: make(map[string]grpc_health_v1.HealthCheckResponse_ServingStatus),
	}
}

// Check implements the health check RPC
func (h *HealthChecker) Check(ctx context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	st, ok := h.status(req.GetService())
	if !ok {
		return nil, status.Error(codes.NotFound, "service not found")
	}
	return &grpc_health_v1.HealthCheckResponse{Status: st}, nil
}

// Watch implements the health check streaming RPC. An update is sent
// every time the status changes.
func (h *HealthChecker) Watch(req *grpc_health_v1.HealthCheckRequest, stream grpc_health_v1.Health_WatchServer) error {
	service := req.GetService()

	changes, unsubscribe := h.monitor.Subscribe()
	defer unsubscribe()

	st, ok := h.status(service)
	if !ok {
		st = grpc_health_v1.HealthCheckResponse_SERVICE_UNKNOWN
	}
	if err := stream.Send(&grpc_health_v1.HealthCheckResponse{Status: st}); err != nil {
		return err
	}

	last := st
	for {
		select {
		case <-stream.Context().Done():
			return stream.Context().Err()
		case <-changes:
		}

		st, ok := h.status(service)
		if !ok {
			st = grpc_health_v1.HealthCheckResponse_SERVICE_UNKNOWN
		}
		if st == last {
			continue
		}
		if err := stream.Send(&grpc_health_v1.HealthCheckResponse{Status: st}); err != nil {
			return err
		}
		last = st
	}
}

// SetServingStatus sets the serving status for a specific service
func (h *HealthChecker) SetServingStatus(service string, st grpc_health_v1.HealthCheckResponse_ServingStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statusMap[service] = st
}

// GetMetrics returns current session metrics (useful for monitoring/debugging)
func (h *HealthChecker) GetMetrics() monitor.Metrics {
	return h.monitor.Metrics()
}

// status combines the registered status of service with the device
// state. The empty service name is the whole server.
func (h *HealthChecker) status(service string) (grpc_health_v1.HealthCheckResponse_ServingStatus, bool) {
	st := grpc_health_v1.HealthCheckResponse_SERVING
	if service != "" {
		h.mu.RLock()
		registered, ok := h.statusMap[service]
		h.mu.RUnlock()
		if !ok {
			return grpc_health_v1.HealthCheckResponse_SERVICE_UNKNOWN, false
		}
		st = registered
	}

	// Even if service status is SERVING, override while a session measures
	if st == grpc_health_v1.HealthCheckResponse_SERVING && !h.monitor.IsHealthy() {
		st = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	return st, true
}
