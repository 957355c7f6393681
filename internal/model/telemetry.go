package model

import (
	"time"

	"github.com/alfredjeanlab/spamwatch/internal/protocol"
)

// ConnStatus is the connectivity of the telemetry channel as seen by the
// aggregator. The zero value is Disconnected.
type ConnStatus int

const (
	Disconnected ConnStatus = iota
	Connected
)

func (s ConnStatus) String() string {
	if s == Connected {
		return "connected"
	}
	return "disconnected"
}

// MarshalJSON encodes the status by name.
func (s ConnStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON accepts the status by name. Anything but "connected" is
// Disconnected.
func (s *ConnStatus) UnmarshalJSON(data []byte) error {
	*s = Disconnected
	if string(data) == `"connected"` {
		*s = Connected
	}
	return nil
}

// MetricEvent is a locally stored, id-assigned metric occurrence. Stored
// events are never modified.
type MetricEvent struct {
	ID        uint64              `json:"id,string"` // assigned by the store, strictly increasing
	Kind      protocol.MetricKind `json:"kind"`
	Payload   *protocol.Metric    `json:"payload"`
	Timestamp time.Time           `json:"ts"`
}

// Summary returns the summary payload when the event is a Summary.
func (e MetricEvent) Summary() (protocol.MetricSummary, bool) {
	if e.Kind != protocol.Summary || e.Payload == nil || e.Payload.Summary == nil {
		return protocol.MetricSummary{}, false
	}
	return *e.Payload.Summary, true
}

// TxRecord is the deduplicated record of an observed successful transaction,
// keyed by Hash.
type TxRecord struct {
	Hash       string    `json:"hash"`
	Count      int       `json:"count"`
	ObservedAt time.Time `json:"created_on"`
	EventID    uint64    `json:"event_id,string"`
}
