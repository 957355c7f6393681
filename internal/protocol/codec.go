package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// epochMillisThreshold separates epoch seconds from epoch milliseconds in
// numeric timestamps. 1e12 ms is September 2001; 1e12 s is far in the future.
const epochMillisThreshold = 1e12

// frame is the JSON shape of every message on the wire.
type frame struct {
	MsgType *MsgType        `json:"msg_type"`
	Data    json.RawMessage `json:"data,omitempty"`
	TS      json.RawMessage `json:"ts,omitempty"`
}

// metricFrame is the data of a msg_type=3 frame.
type metricFrame struct {
	Kind *int            `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type stateFrame struct {
	Running *bool `json:"running"`
}

// command is the outbound shape; it deliberately carries nothing but the tag.
type command struct {
	MsgType MsgType `json:"msg_type"`
}

// Decode parses one transport payload into an Envelope. Any structural
// problem or unrecognised tag yields a *DecodeError and a zero Envelope.
func Decode(raw []byte) (Envelope, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '{' {
		return Envelope{}, decodeErr(ErrMalformed, "frame is not a JSON object")
	}

	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Envelope{}, wrapDecodeErr(ErrMalformed, "unmarshal frame", err)
	}
	if f.MsgType == nil {
		return Envelope{}, decodeErr(ErrMalformed, "missing msg_type")
	}

	ts, err := parseTimestamp(f.TS)
	if err != nil {
		return Envelope{}, wrapDecodeErr(ErrMalformed, "parse ts", err)
	}

	env := Envelope{Kind: MessageKindFromWire(*f.MsgType), Timestamp: ts}
	switch env.Kind {
	case MessageStart, MessageStop:
		// Commands carry no payload.
	case MessageState:
		st, err := decodeState(f.Data)
		if err != nil {
			return Envelope{}, err
		}
		env.Payload = st
	case MessageMetric:
		m, err := decodeMetric(f.Data)
		if err != nil {
			return Envelope{}, err
		}
		env.Payload = m
	case MessageUnknown:
		return Envelope{}, decodeErr(ErrUnknownMessage, fmt.Sprintf("msg_type %d", *f.MsgType))
	}
	return env, nil
}

func decodeState(data json.RawMessage) (State, error) {
	if isNull(data) {
		return State{}, decodeErr(ErrInvalidPayload, "state frame without data")
	}
	var sf stateFrame
	if err := json.Unmarshal(data, &sf); err != nil {
		return State{}, wrapDecodeErr(ErrInvalidPayload, "unmarshal state", err)
	}
	if sf.Running == nil {
		return State{}, decodeErr(ErrInvalidPayload, "state frame without running")
	}
	return State{Running: *sf.Running}, nil
}

func decodeMetric(data json.RawMessage) (*Metric, error) {
	if isNull(data) {
		return nil, decodeErr(ErrInvalidPayload, "metric frame without data")
	}
	var mf metricFrame
	if err := json.Unmarshal(data, &mf); err != nil {
		return nil, wrapDecodeErr(ErrInvalidPayload, "unmarshal metric", err)
	}
	if mf.Kind == nil {
		return nil, decodeErr(ErrInvalidPayload, "metric without kind")
	}
	kind := MetricKindFromWire(*mf.Kind)
	if kind == MetricUnknown {
		return nil, decodeErr(ErrUnknownMetric, fmt.Sprintf("metric kind %d", *mf.Kind))
	}

	m := &Metric{Kind: kind, Raw: mf.Data}
	switch kind {
	case Summary:
		if isNull(mf.Data) {
			return nil, decodeErr(ErrInvalidPayload, "summary without data")
		}
		var s MetricSummary
		if err := json.Unmarshal(mf.Data, &s); err != nil {
			return nil, wrapDecodeErr(ErrInvalidPayload, "unmarshal summary", err)
		}
		if err := s.validate(); err != nil {
			return nil, wrapDecodeErr(ErrInvalidPayload, "summary", err)
		}
		m.Summary = &s
	case IncSuccessfulTx:
		if isNull(mf.Data) {
			return nil, decodeErr(ErrInvalidPayload, "tx without data")
		}
		var tx Tx
		if err := json.Unmarshal(mf.Data, &tx); err != nil {
			return nil, wrapDecodeErr(ErrInvalidPayload, "unmarshal tx", err)
		}
		if err := tx.validate(); err != nil {
			return nil, wrapDecodeErr(ErrInvalidPayload, "tx", err)
		}
		m.Tx = &tx
	}
	return m, nil
}

// parseTimestamp accepts an RFC 3339 string or an epoch number (seconds, or
// milliseconds at and above epochMillisThreshold). Absent or null yields the
// zero time.
func parseTimestamp(raw json.RawMessage) (time.Time, error) {
	if isNull(raw) {
		return time.Time{}, nil
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return time.Time{}, err
		}
		if s == "" {
			return time.Time{}, nil
		}
		return time.Parse(time.RFC3339Nano, s)
	}

	n, err := strconv.ParseFloat(string(raw), 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("ts %s is neither a string nor a number", raw)
	}
	if n < 0 || math.IsInf(n, 0) || math.IsNaN(n) {
		return time.Time{}, fmt.Errorf("ts %s out of range", raw)
	}
	if n >= epochMillisThreshold {
		return time.UnixMilli(int64(n)).UTC(), nil
	}
	sec, frac := math.Modf(n)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
}

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// EncodeCommand serialises an outbound start or stop command.
func EncodeCommand(kind MessageKind) ([]byte, error) {
	switch kind {
	case MessageStart, MessageStop:
		return json.Marshal(command{MsgType: kind.Wire()})
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotCommand, kind)
	}
}
