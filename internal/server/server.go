// Package server exposes aggregated telemetry over HTTP and gRPC.
//
// The HTTP surface serves the dashboard projections as JSON, an SSE stream
// of relayed events, start/stop requests and prometheus metrics. The gRPC
// surface carries the standard health service, which follows the telemetry
// connection.
package server

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/alfredjeanlab/spamwatch/internal/client"
	"github.com/alfredjeanlab/spamwatch/internal/model"
	"github.com/alfredjeanlab/spamwatch/internal/store"
	"github.com/alfredjeanlab/spamwatch/internal/view"
)

// Source is the read side the handlers serve from.
type Source interface {
	view.Dashboard
	Stats() store.Stats
	Transaction(hash string) (model.TxRecord, bool)
}

// Controller forwards start/stop requests to the spammer.
type Controller interface {
	RequestStart() error
	RequestStop() error
}

// Link describes the live telemetry connection.
type Link interface {
	State() client.State
	SessionID() string
}

// Option configures a Server.
type Option func(*Server)

// WithLink reports connection details in /v1/status.
func WithLink(l Link) Option {
	return func(s *Server) { s.link = l }
}

// WithHub sets the SSE hub. Without one the server creates its own.
func WithHub(h *Hub) Option {
	return func(s *Server) { s.hub = h }
}

// WithGatherer serves the gatherer's metrics on GET /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithLogger sets the server's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// WithClock overrides the clock used to stamp snapshots.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// Server holds the dependencies shared by the HTTP handlers.
type Server struct {
	src      Source
	ctl      Controller
	link     Link
	hub      *Hub
	gatherer prometheus.Gatherer
	logger   *slog.Logger
	now      func() time.Time
}

// New returns a Server reading from src and sending commands through ctl.
func New(src Source, ctl Controller, opts ...Option) *Server {
	s := &Server{
		src:    src,
		ctl:    ctl,
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.hub == nil {
		s.hub = NewHub()
	}
	return s
}

// Hub returns the SSE hub, for wiring into the event relay.
func (s *Server) Hub() *Hub { return s.hub }
