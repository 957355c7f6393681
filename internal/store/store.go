// Package store accumulates decoded telemetry.
//
// A Store is the single writer of all telemetry state: metric events, the
// transaction table, the spammer's reported run state and the connection
// status. OnEnvelope and OnStatus are its only mutation surfaces and are
// driven by one goroutine (the client's reader). Everything else reads.
package store

import (
	"log/slog"
	"sync"

	"github.com/alfredjeanlab/spamwatch/internal/model"
	"github.com/alfredjeanlab/spamwatch/internal/protocol"
)

// Commander sends control commands to the spammer.
type Commander interface {
	SendCommand(kind protocol.MessageKind) error
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for dropped envelopes.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithRetention caps the number of stored metric events. The oldest events
// are evicted first. Zero keeps everything.
func WithRetention(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.retention = n
		}
	}
}

// Store is the telemetry aggregator.
type Store struct {
	mu sync.RWMutex

	nextID     uint64
	events     []model.MetricEvent // ascending by ID
	txs        map[string]model.TxRecord
	lastMetric *protocol.MetricSummary
	running    bool
	echoes     uint64 // accepted state updates
	conn       model.ConnStatus

	retention int
	commander Commander
	logger    *slog.Logger
}

// New creates an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		txs:    make(map[string]model.TxRecord),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Bind attaches the commander used by RequestStart and RequestStop.
func (s *Store) Bind(c Commander) {
	s.mu.Lock()
	s.commander = c
	s.mu.Unlock()
}

// OnEnvelope applies one decoded envelope. Unknown kinds and inbound
// start/stop echoes are dropped without changing state.
func (s *Store) OnEnvelope(env protocol.Envelope) {
	switch env.Kind {
	case protocol.MessageState:
		st, ok := env.State()
		if !ok {
			s.logger.Debug("store: state envelope without payload dropped")
			return
		}
		s.mu.Lock()
		s.running = st.Running
		s.echoes++
		s.mu.Unlock()

	case protocol.MessageMetric:
		m, ok := env.Metric()
		if !ok || !m.Kind.Valid() {
			s.logger.Debug("store: metric envelope without valid payload dropped")
			return
		}
		s.addMetric(m, env)

	default:
		s.logger.Debug("store: envelope ignored", "kind", env.Kind)
	}
}

func (s *Store) addMetric(m *protocol.Metric, env protocol.Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	ev := model.MetricEvent{
		ID:        s.nextID,
		Kind:      m.Kind,
		Payload:   m,
		Timestamp: env.Timestamp,
	}
	s.events = append(s.events, ev)
	if s.retention > 0 && len(s.events) > s.retention {
		drop := len(s.events) - s.retention
		s.events = append(s.events[:0:0], s.events[drop:]...)
	}

	switch m.Kind {
	case protocol.Summary:
		if m.Summary != nil {
			sum := *m.Summary
			s.lastMetric = &sum
		}
	case protocol.IncSuccessfulTx:
		if m.Tx != nil {
			s.txs[m.Tx.Hash] = model.TxRecord{
				Hash:       m.Tx.Hash,
				Count:      m.Tx.Count,
				ObservedAt: env.Timestamp,
				EventID:    ev.ID,
			}
		}
	}
}

// OnStatus records the connection status reported by the transport.
func (s *Store) OnStatus(st model.ConnStatus) {
	s.mu.Lock()
	s.conn = st
	s.mu.Unlock()
}

// RequestStart asks the spammer to start. Running only changes when the
// spammer echoes its new state back.
func (s *Store) RequestStart() error {
	return s.request(protocol.MessageStart)
}

// RequestStop asks the spammer to stop. See RequestStart.
func (s *Store) RequestStop() error {
	return s.request(protocol.MessageStop)
}

func (s *Store) request(kind protocol.MessageKind) error {
	s.mu.RLock()
	c := s.commander
	s.mu.RUnlock()
	if c == nil {
		s.logger.Debug("store: no commander bound, command dropped", "command", kind)
		return nil
	}
	return c.SendCommand(kind)
}
