package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/alfredjeanlab/spamwatch/internal/model"
	"github.com/alfredjeanlab/spamwatch/internal/protocol"
	"github.com/alfredjeanlab/spamwatch/internal/view"
)

// Status is what the live status line shows.
type Status struct {
	State        string // connection lifecycle state: idle, connecting, connected, disconnected
	Session      string
	Running      bool
	Last         *protocol.MetricSummary
	Transactions int
	At           time.Time
}

// StatusLine renders s on one line, e.g.
//
//	12:00:01 ● connected  running  tps 12.50  errors 10.0%  txs 3  sess-abc
func StatusLine(s Status) string {
	var b strings.Builder
	if !s.At.IsZero() {
		b.WriteString(RenderMuted(view.Label(s.At)))
		b.WriteByte(' ')
	}
	b.WriteString(renderState(s.State))

	if s.Running {
		b.WriteString("  " + RenderOK("running"))
	} else {
		b.WriteString("  " + RenderMuted("stopped"))
	}

	if s.Last != nil {
		fmt.Fprintf(&b, "  tps %s  errors %s",
			RenderAccent(fmt.Sprintf("%.2f", s.Last.TPS)),
			renderErrorRate(s.Last.ErrorRate))
	} else {
		b.WriteString("  " + RenderMuted("no summary yet"))
	}

	fmt.Fprintf(&b, "  txs %d", s.Transactions)
	if s.Session != "" {
		b.WriteString("  " + RenderMuted(s.Session))
	}
	return b.String()
}

func renderState(state string) string {
	switch state {
	case "connected":
		return RenderOK("● " + state)
	case "connecting":
		return RenderWarn("◌ " + state)
	case "disconnected":
		return RenderError("○ " + state)
	default:
		return RenderMuted("○ " + state)
	}
}

func renderErrorRate(rate float64) string {
	s := fmt.Sprintf("%.1f%%", rate*100)
	switch {
	case rate >= 0.5:
		return RenderError(s)
	case rate > 0:
		return RenderWarn(s)
	default:
		return RenderOK(s)
	}
}

// TxLine renders one transaction log row.
func TxLine(tx model.TxRecord) string {
	return fmt.Sprintf("%s  %s  x%d",
		RenderMuted(view.Label(tx.ObservedAt)), tx.Hash, tx.Count)
}

// PointLine renders one chart sample.
func PointLine(name string, p view.Point) string {
	return fmt.Sprintf("%s  %-10s %.2f", RenderMuted(p.Label), name, p.Value)
}
