package protocol

import "errors"

var (
	// ErrMalformed means the frame is not a well-formed envelope.
	ErrMalformed = errors.New("malformed frame")
	// ErrUnknownMessage means msg_type is not one of the known tags.
	ErrUnknownMessage = errors.New("unknown message type")
	// ErrUnknownMetric means a metric's inner kind is outside 0..7.
	ErrUnknownMetric = errors.New("unknown metric kind")
	// ErrInvalidPayload means the tag is known but its data is not.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrNotCommand is returned when encoding a kind that is not start/stop.
	ErrNotCommand = errors.New("not a command")
)

// DecodeError reports a frame that could not be turned into an Envelope.
// It wraps one of the sentinel errors above.
type DecodeError struct {
	kind   error
	detail string
	err    error
}

func decodeErr(kind error, detail string) *DecodeError {
	return &DecodeError{kind: kind, detail: detail}
}

func wrapDecodeErr(kind error, detail string, err error) *DecodeError {
	return &DecodeError{kind: kind, detail: detail, err: err}
}

func (e *DecodeError) Error() string {
	msg := "decode: " + e.kind.Error() + ": " + e.detail
	if e.err != nil {
		msg += ": " + e.err.Error()
	}
	return msg
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *DecodeError) Unwrap() []error {
	if e.err == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.err}
}

// Reason is a short stable label for the failure class, suitable for metric
// labels.
func (e *DecodeError) Reason() string {
	switch e.kind {
	case ErrMalformed:
		return "malformed"
	case ErrUnknownMessage:
		return "unknown_message"
	case ErrUnknownMetric:
		return "unknown_metric"
	case ErrInvalidPayload:
		return "invalid_payload"
	default:
		return "other"
	}
}
