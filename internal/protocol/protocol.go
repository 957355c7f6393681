// Package protocol defines the tagged-message contract spoken by the spammer's
// control endpoint: the wire envelope, its closed tag enumerations, and the
// payloads carried by metric and state messages.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// MsgType is the numeric msg_type tag carried on the wire.
type MsgType uint8

// Wire values for msg_type.
const (
	MsgStart  MsgType = 1
	MsgStop   MsgType = 2
	MsgMetric MsgType = 3
	MsgState  MsgType = 4
)

// MessageKind is the decoded, closed form of MsgType.
type MessageKind int

const (
	MessageUnknown MessageKind = iota
	MessageStart
	MessageStop
	MessageMetric
	MessageState
)

// MessageKindFromWire maps a wire tag to its MessageKind. Unrecognised tags
// map to MessageUnknown.
func MessageKindFromWire(t MsgType) MessageKind {
	switch t {
	case MsgStart:
		return MessageStart
	case MsgStop:
		return MessageStop
	case MsgMetric:
		return MessageMetric
	case MsgState:
		return MessageState
	default:
		return MessageUnknown
	}
}

// Wire returns the msg_type tag for k, or 0 for MessageUnknown.
func (k MessageKind) Wire() MsgType {
	switch k {
	case MessageStart:
		return MsgStart
	case MessageStop:
		return MsgStop
	case MessageMetric:
		return MsgMetric
	case MessageState:
		return MsgState
	default:
		return 0
	}
}

func (k MessageKind) String() string {
	switch k {
	case MessageStart:
		return "start"
	case MessageStop:
		return "stop"
	case MessageMetric:
		return "metric"
	case MessageState:
		return "state"
	default:
		return "unknown"
	}
}

// MetricKind identifies what a metric message reports. Wire values are 0..7.
type MetricKind int

const (
	IncMilestoneBranch MetricKind = iota
	IncMilestoneTrunk
	IncBadTrunk
	IncBadBranch
	IncBadTrunkAndBranch
	IncFailedTx
	IncSuccessfulTx
	Summary

	// MetricUnknown is any inner kind outside the wire range.
	MetricUnknown MetricKind = -1
)

var metricKindNames = [...]string{
	IncMilestoneBranch:   "inc_milestone_branch",
	IncMilestoneTrunk:    "inc_milestone_trunk",
	IncBadTrunk:          "inc_bad_trunk",
	IncBadBranch:         "inc_bad_branch",
	IncBadTrunkAndBranch: "inc_bad_trunk_and_branch",
	IncFailedTx:          "inc_failed_tx",
	IncSuccessfulTx:      "inc_successful_tx",
	Summary:              "summary",
}

// MetricKindFromWire maps a wire value to its MetricKind.
func MetricKindFromWire(v int) MetricKind {
	if v < int(IncMilestoneBranch) || v > int(Summary) {
		return MetricUnknown
	}
	return MetricKind(v)
}

// Valid reports whether k is one of the eight wire kinds.
func (k MetricKind) Valid() bool {
	return k >= IncMilestoneBranch && k <= Summary
}

func (k MetricKind) String() string {
	if !k.Valid() {
		return "unknown"
	}
	return metricKindNames[k]
}

// MarshalJSON encodes the kind by name so exported records stay readable.
func (k MetricKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// UnmarshalJSON accepts the kind's name. Unrecognised names decode to
// MetricUnknown.
func (k *MetricKind) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	*k = MetricKindFromName(name)
	return nil
}

// MetricKindFromName is the inverse of MetricKind.String.
func MetricKindFromName(name string) MetricKind {
	for i, n := range metricKindNames {
		if n == name {
			return MetricKind(i)
		}
	}
	return MetricUnknown
}

// Envelope is one decoded unit of inbound traffic. Payload is *Metric for
// MessageMetric, State for MessageState and nil otherwise.
type Envelope struct {
	Kind      MessageKind
	Payload   any
	Timestamp time.Time
}

// Metric returns the metric payload, if the envelope carries one.
func (e Envelope) Metric() (*Metric, bool) {
	m, ok := e.Payload.(*Metric)
	return m, ok && m != nil
}

// State returns the state payload, if the envelope carries one.
func (e Envelope) State() (State, bool) {
	s, ok := e.Payload.(State)
	return s, ok
}

// Metric is the payload of a MessageMetric envelope.
type Metric struct {
	Kind MetricKind `json:"kind"`

	// Summary is set when Kind == Summary.
	Summary *MetricSummary `json:"summary,omitempty"`
	// Tx is set when Kind == IncSuccessfulTx.
	Tx *Tx `json:"tx,omitempty"`

	// Raw is the inner payload exactly as received.
	Raw json.RawMessage `json:"data,omitempty"`
}

// MetricSummary is the periodic aggregate snapshot reported by the spammer.
type MetricSummary struct {
	TxsSucceeded      int64   `json:"txs_succeeded"`
	TxsFailed         int64   `json:"txs_failed"`
	BadBranch         int64   `json:"bad_branch"`
	BadTrunk          int64   `json:"bad_trunk"`
	BadTrunkAndBranch int64   `json:"bad_trunk_and_branch"`
	MilestoneBranch   int64   `json:"milestone_branch"`
	MilestoneTrunk    int64   `json:"milestone_trunk"`
	TPS               float64 `json:"tps"`
	ErrorRate         float64 `json:"error_rate"`
}

func (s MetricSummary) validate() error {
	for name, v := range map[string]int64{
		"txs_succeeded":        s.TxsSucceeded,
		"txs_failed":           s.TxsFailed,
		"bad_branch":           s.BadBranch,
		"bad_trunk":            s.BadTrunk,
		"bad_trunk_and_branch": s.BadTrunkAndBranch,
		"milestone_branch":     s.MilestoneBranch,
		"milestone_trunk":      s.MilestoneTrunk,
	} {
		if v < 0 {
			return fmt.Errorf("%s is negative (%d)", name, v)
		}
	}
	if s.TPS < 0 {
		return fmt.Errorf("tps is negative (%g)", s.TPS)
	}
	if s.ErrorRate < 0 {
		return fmt.Errorf("error_rate is negative (%g)", s.ErrorRate)
	}
	return nil
}

// Tx is the payload of an IncSuccessfulTx metric.
type Tx struct {
	Hash  string `json:"hash"`
	Count int    `json:"count"`
}

func (t Tx) validate() error {
	if t.Hash == "" {
		return fmt.Errorf("hash is empty")
	}
	if t.Count < 1 {
		return fmt.Errorf("count must be >= 1, got %d", t.Count)
	}
	return nil
}

// State is the payload of a MessageState envelope.
type State struct {
	Running bool `json:"running"`
}
