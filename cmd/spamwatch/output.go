package main

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"

	"github.com/alfredjeanlab/spamwatch/internal/client"
	"github.com/alfredjeanlab/spamwatch/internal/ui"
	"github.com/alfredjeanlab/spamwatch/internal/view"
)

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printProtoJSON(w io.Writer, m proto.Message) error {
	data, err := protojson.MarshalOptions{Multiline: true, Indent: "  "}.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printStatusTable(w io.Writer, st *client.StatusResponse) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "State:\t%s\n", st.State)
	fmt.Fprintf(tw, "Connection:\t%s\n", st.Connection)
	if st.Session != "" {
		fmt.Fprintf(tw, "Session:\t%s\n", st.Session)
	}
	fmt.Fprintf(tw, "Running:\t%t\n", st.Running)
	fmt.Fprintf(tw, "Events:\t%d\n", st.Events)
	fmt.Fprintf(tw, "Transactions:\t%d\n", st.Transactions)
	fmt.Fprintf(tw, "State echoes:\t%d\n", st.StateEchoes)
	for _, kind := range slices.Sorted(maps.Keys(st.ByKind)) {
		fmt.Fprintf(tw, "  %s:\t%d\n", kind, st.ByKind[kind])
	}
	if st.LastMetric != nil {
		fmt.Fprintf(tw, "TPS:\t%.2f\n", st.LastMetric.TPS)
		fmt.Fprintf(tw, "Error rate:\t%.1f%%\n", st.LastMetric.ErrorRate*100)
	}
	return tw.Flush()
}

// printSnapshot writes up to limit samples of each series and limit
// transactions, newest first. limit <= 0 prints everything.
func printSnapshot(w io.Writer, snap *view.Snapshot, limit int) {
	fmt.Fprintln(w, ui.StatusLine(ui.Status{
		State:        snap.Connection.String(),
		Running:      snap.Running,
		Last:         snap.LastMetric,
		Transactions: len(snap.Transactions),
		At:           snap.GeneratedAt,
	}))
	for _, p := range head(snap.TPS, limit) {
		fmt.Fprintln(w, ui.PointLine("tps", p))
	}
	for _, p := range head(snap.ErrorRate, limit) {
		fmt.Fprintln(w, ui.PointLine("error_rate", p))
	}
	for _, tx := range head(snap.Transactions, limit) {
		fmt.Fprintln(w, ui.TxLine(tx))
	}
}

func head[T any](s []T, n int) []T {
	if n > 0 && len(s) > n {
		return s[:n]
	}
	return s
}
