package store

import (
	"github.com/alfredjeanlab/spamwatch/internal/model"
	"github.com/alfredjeanlab/spamwatch/internal/protocol"
)

// Stats counts stored state.
type Stats struct {
	Events       int                         `json:"events"`
	Transactions int                         `json:"transactions"`
	ByKind       map[protocol.MetricKind]int `json:"-"`
	LastID       uint64                      `json:"last_id,string"`
	StateEchoes  uint64                      `json:"state_echoes"`
}

// Running reports the spammer's last echoed run state.
func (s *Store) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// ConnStatus reports the last transport status.
func (s *Store) ConnStatus() model.ConnStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

// LastMetric returns the most recently accepted summary. ok is false until
// the first summary arrives.
func (s *Store) LastMetric() (sum protocol.MetricSummary, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastMetric == nil {
		return protocol.MetricSummary{}, false
	}
	return *s.lastMetric, true
}

// Events returns a copy of every stored metric event in id order.
func (s *Store) Events() []model.MetricEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.MetricEvent, len(s.events))
	copy(out, s.events)
	return out
}

// Summaries returns the stored Summary events in id order.
func (s *Store) Summaries() []model.MetricEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.MetricEvent
	for _, ev := range s.events {
		if ev.Kind == protocol.Summary {
			out = append(out, ev)
		}
	}
	return out
}

// Transactions returns the transaction table in no particular order.
func (s *Store) Transactions() []model.TxRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.TxRecord, 0, len(s.txs))
	for _, tx := range s.txs {
		out = append(out, tx)
	}
	return out
}

// Transaction looks up one record by hash.
func (s *Store) Transaction(hash string) (model.TxRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.txs[hash]
	return tx, ok
}

// Stats returns counts of stored state.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{
		Events:       len(s.events),
		Transactions: len(s.txs),
		ByKind:       make(map[protocol.MetricKind]int),
		LastID:       s.nextID,
		StateEchoes:  s.echoes,
	}
	for _, ev := range s.events {
		st.ByKind[ev.Kind]++
	}
	return st
}
