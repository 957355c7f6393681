// Package view derives chart- and log-ready sequences from stored telemetry.
// Every function here is pure and recomputes from scratch on each call.
package view

import (
	"slices"
	"time"

	"github.com/alfredjeanlab/spamwatch/internal/model"
	"github.com/alfredjeanlab/spamwatch/internal/protocol"
)

// LabelLayout formats chart labels as HH:MM:SS.
const LabelLayout = "15:04:05"

// Source is the read side of the store used by the series projections.
type Source interface {
	Summaries() []model.MetricEvent
	Transactions() []model.TxRecord
}

// Point is one chart sample.
type Point struct {
	Label     string    `json:"name"`
	Value     float64   `json:"value"`
	Timestamp time.Time `json:"ts"`
}

// TPSSeries returns one point per stored summary, newest first, valued by
// the summary's tps.
func TPSSeries(src Source) []Point {
	return series(src, func(s protocol.MetricSummary) float64 { return s.TPS })
}

// ErrorRateSeries is TPSSeries for error_rate.
func ErrorRateSeries(src Source) []Point {
	return series(src, func(s protocol.MetricSummary) float64 { return s.ErrorRate })
}

func series(src Source, value func(protocol.MetricSummary) float64) []Point {
	events := src.Summaries()
	out := make([]Point, 0, len(events))
	for _, ev := range events {
		sum, ok := ev.Summary()
		if !ok {
			continue
		}
		out = append(out, Point{
			Label:     Label(ev.Timestamp),
			Value:     value(sum),
			Timestamp: ev.Timestamp,
		})
	}
	// Summaries sharing a timestamp have no defined relative order.
	slices.SortFunc(out, func(a, b Point) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return out
}

// TransactionLog returns every transaction record, most recently observed
// first.
func TransactionLog(src Source) []model.TxRecord {
	txs := src.Transactions()
	slices.SortFunc(txs, func(a, b model.TxRecord) int {
		return b.ObservedAt.Compare(a.ObservedAt)
	})
	return txs
}

// Label formats t for a chart axis in local time.
func Label(t time.Time) string {
	return t.Local().Format(LabelLayout)
}
