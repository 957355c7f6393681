// Package events relays telemetry to an event bus.
//
// The store stays free of I/O; a Relay sits in front of it, forwards every
// envelope and status change, then publishes a derived event on a topic
// below TopicRoot. Publishers are NATS, the server's SSE hub, or nothing.
package events

import (
	"context"
	"time"

	"github.com/alfredjeanlab/spamwatch/internal/model"
	"github.com/alfredjeanlab/spamwatch/internal/protocol"
)

// Event topic constants
const (
	TopicRoot = "spamwatch"
	TopicAll  = "spamwatch.>"

	// TopicMetricPrefix is followed by the metric kind name,
	// e.g. "spamwatch.metric.summary".
	TopicMetricPrefix = "spamwatch.metric."
	TopicMetricAll    = "spamwatch.metric.*"

	TopicTxObserved        = "spamwatch.tx.observed"
	TopicStateChanged      = "spamwatch.state.changed"
	TopicConnectionChanged = "spamwatch.connection.changed"
)

// MetricTopic returns the topic a metric of the given kind is published on.
func MetricTopic(kind protocol.MetricKind) string {
	return TopicMetricPrefix + kind.String()
}

// Event types

type MetricObserved struct {
	Kind      protocol.MetricKind     `json:"kind"`
	Summary   *protocol.MetricSummary `json:"summary,omitempty"`
	Tx        *protocol.Tx            `json:"tx,omitempty"`
	Timestamp time.Time               `json:"ts"`
}

type TxObserved struct {
	Hash      string    `json:"hash"`
	Count     int       `json:"count"`
	Timestamp time.Time `json:"ts"`
}

type StateChanged struct {
	Running   bool      `json:"running"`
	Timestamp time.Time `json:"ts"`
}

type ConnectionChanged struct {
	Status    model.ConnStatus `json:"status"`
	Timestamp time.Time        `json:"ts"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}
