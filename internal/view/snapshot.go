package view

import (
	"time"

	"github.com/alfredjeanlab/spamwatch/internal/model"
	"github.com/alfredjeanlab/spamwatch/internal/protocol"
)

// Dashboard is everything Build needs to read.
type Dashboard interface {
	Source
	Running() bool
	ConnStatus() model.ConnStatus
	LastMetric() (protocol.MetricSummary, bool)
}

// Snapshot bundles the projections with the scalar state a dashboard shows.
type Snapshot struct {
	Running      bool                    `json:"running"`
	Connection   model.ConnStatus        `json:"connection"`
	LastMetric   *protocol.MetricSummary `json:"last_metric,omitempty"`
	TPS          []Point                 `json:"tps"`
	ErrorRate    []Point                 `json:"error_rate"`
	Transactions []model.TxRecord        `json:"transactions"`
	GeneratedAt  time.Time               `json:"generated_at"`
}

// Build assembles a Snapshot at the given time.
func Build(src Dashboard, now time.Time) Snapshot {
	snap := Snapshot{
		Running:      src.Running(),
		Connection:   src.ConnStatus(),
		TPS:          TPSSeries(src),
		ErrorRate:    ErrorRateSeries(src),
		Transactions: TransactionLog(src),
		GeneratedAt:  now.UTC(),
	}
	if sum, ok := src.LastMetric(); ok {
		snap.LastMetric = &sum
	}
	return snap
}
