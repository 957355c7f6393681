package server

import (
	"context"
	"log/slog"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/alfredjeanlab/spamwatch/internal/client"
)

// HealthReporter drives the gRPC health service from the telemetry
// connection: SERVING while Connected, NOT_SERVING otherwise. The overall
// server ("") and TelemetryServiceName report the same status.
type HealthReporter struct {
	hs     *health.Server
	logger *slog.Logger
}

// NewHealthReporter returns a reporter whose services start NOT_SERVING.
func NewHealthReporter(logger *slog.Logger) *HealthReporter {
	if logger == nil {
		logger = slog.Default()
	}
	h := &HealthReporter{hs: health.NewServer(), logger: logger}
	h.Set(client.StateIdle)
	return h
}

// Server returns the health service for registration.
func (h *HealthReporter) Server() *health.Server { return h.hs }

// Set records the connection state.
func (h *HealthReporter) Set(st client.State) {
	status := healthpb.HealthCheckResponse_NOT_SERVING
	if st == client.StateConnected {
		status = healthpb.HealthCheckResponse_SERVING
	}
	h.hs.SetServingStatus("", status)
	h.hs.SetServingStatus(TelemetryServiceName, status)
}

// Follow applies every state from states until the channel closes or ctx
// ends.
func (h *HealthReporter) Follow(ctx context.Context, states <-chan client.State) {
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-states:
			if !ok {
				return
			}
			h.Set(st)
			h.logger.Debug("health updated", "state", st.String())
		}
	}
}

// Shutdown marks every service NOT_SERVING permanently.
func (h *HealthReporter) Shutdown() {
	h.hs.Shutdown()
}
