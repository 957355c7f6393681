// Package export writes JSONL snapshots of the dashboard projections to a
// local file or an S3-compatible bucket. Exports are write-only; nothing in
// spamwatch reads them back.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/alfredjeanlab/spamwatch/internal/model"
	"github.com/alfredjeanlab/spamwatch/internal/view"
)

// FormatVersion is written in every header record.
const FormatVersion = "1"

// Record types.
const (
	TypeHeader    = "header"
	TypeTPS       = "tps"
	TypeErrorRate = "error_rate"
	TypeTx        = "tx"
)

// Header is the first JSONL record written by WriteJSONL.
type Header struct {
	Version      string           `json:"version"`
	Type         string           `json:"type"`
	Timestamp    time.Time        `json:"timestamp"`
	Running      bool             `json:"running"`
	Connection   model.ConnStatus `json:"connection"`
	SummaryCount int              `json:"summary_count"`
	TxCount      int              `json:"tx_count"`
}

// Record wraps a single JSONL line with a type discriminator.
type Record struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// WriteJSONL writes snap to w: a header, then the tps points, the
// error-rate points and the transactions, each in the snapshot's order.
func WriteJSONL(w io.Writer, snap view.Snapshot) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(Header{
		Version:      FormatVersion,
		Type:         TypeHeader,
		Timestamp:    snap.GeneratedAt,
		Running:      snap.Running,
		Connection:   snap.Connection,
		SummaryCount: len(snap.TPS),
		TxCount:      len(snap.Transactions),
	}); err != nil {
		return fmt.Errorf("encode header: %w", err)
	}

	for _, p := range snap.TPS {
		if err := enc.Encode(Record{Type: TypeTPS, Data: p}); err != nil {
			return fmt.Errorf("encode tps point: %w", err)
		}
	}
	for _, p := range snap.ErrorRate {
		if err := enc.Encode(Record{Type: TypeErrorRate, Data: p}); err != nil {
			return fmt.Errorf("encode error-rate point: %w", err)
		}
	}
	for _, tx := range snap.Transactions {
		if err := enc.Encode(Record{Type: TypeTx, Data: tx}); err != nil {
			return fmt.Errorf("encode tx %s: %w", tx.Hash, err)
		}
	}
	return nil
}
