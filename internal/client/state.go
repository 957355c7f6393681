package client

import (
	"fmt"

	"github.com/alfredjeanlab/spamwatch/internal/model"
	"github.com/alfredjeanlab/spamwatch/internal/protocol"
)

// State is the lifecycle of the client's single transport connection.
//
//	Idle -> Connecting -> Connected -> Disconnected
//
// Disconnected is re-entered from Connected on remote close, read or write
// failure, or Close. Connect from Disconnected starts over at Connecting.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ConnStatus collapses the lifecycle into the two values the store tracks.
func (s State) ConnStatus() model.ConnStatus {
	if s == StateConnected {
		return model.Connected
	}
	return model.Disconnected
}

// Intake receives everything the client decodes, plus connection status
// changes. OnEnvelope is called from a single goroutine in arrival order.
// OnStatus is called once per change of ConnStatus, in transition order.
type Intake interface {
	OnEnvelope(env protocol.Envelope)
	OnStatus(status model.ConnStatus)
}
