package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/spamwatch/internal/model"
	"github.com/alfredjeanlab/spamwatch/internal/protocol"
)

// Sink is what a Relay forwards to; the store satisfies it.
type Sink interface {
	OnEnvelope(env protocol.Envelope)
	OnStatus(status model.ConnStatus)
}

// Relay forwards to its sink first, then publishes. Publish failures are
// logged and never reach the caller.
type Relay struct {
	next   Sink
	pub    Publisher
	logger *slog.Logger
	now    func() time.Time
}

// NewRelay returns a Relay in front of next.
func NewRelay(next Sink, pub Publisher, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{next: next, pub: pub, logger: logger, now: time.Now}
}

func (r *Relay) OnEnvelope(env protocol.Envelope) {
	r.next.OnEnvelope(env)

	switch env.Kind {
	case protocol.MessageState:
		st, ok := env.State()
		if !ok {
			return
		}
		r.publish(TopicStateChanged, StateChanged{Running: st.Running, Timestamp: env.Timestamp})

	case protocol.MessageMetric:
		m, ok := env.Metric()
		if !ok || !m.Kind.Valid() {
			return
		}
		r.publish(MetricTopic(m.Kind), MetricObserved{
			Kind:      m.Kind,
			Summary:   m.Summary,
			Tx:        m.Tx,
			Timestamp: env.Timestamp,
		})
		if m.Kind == protocol.IncSuccessfulTx && m.Tx != nil {
			r.publish(TopicTxObserved, TxObserved{
				Hash:      m.Tx.Hash,
				Count:     m.Tx.Count,
				Timestamp: env.Timestamp,
			})
		}
	}
}

func (r *Relay) OnStatus(status model.ConnStatus) {
	r.next.OnStatus(status)
	r.publish(TopicConnectionChanged, ConnectionChanged{Status: status, Timestamp: r.now().UTC()})
}

func (r *Relay) publish(topic string, event any) {
	if err := r.pub.Publish(context.Background(), topic, event); err != nil {
		r.logger.Warn("events: publish failed", "topic", topic, "err", err)
	}
}
