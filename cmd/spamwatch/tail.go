package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/spamwatch/internal/events"
	"github.com/alfredjeanlab/spamwatch/internal/protocol"
	"github.com/alfredjeanlab/spamwatch/internal/ui"
	"github.com/alfredjeanlab/spamwatch/internal/view"
)

var tailCmd = &cobra.Command{
	Use:     "tail [topic]",
	Short:   "Stream relayed telemetry events from NATS",
	GroupID: "live",
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		topic := events.TopicAll
		if len(args) == 1 {
			topic = args[0]
		}
		natsURL, _ := cmd.Flags().GetString("nats")
		if natsURL == "" {
			natsURL = os.Getenv("SPAMWATCH_NATS_URL")
		}
		if natsURL == "" {
			natsURL = activeRemoteNATSURL()
		}
		if natsURL == "" {
			return errors.New("no NATS URL; pass --nats, set SPAMWATCH_NATS_URL, or add one to the active remote")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		sub, err := events.NewNATSSubscriber(natsURL,
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				if err != nil {
					slog.Warn("NATS disconnected", "err", err)
				}
			}),
			nats.ReconnectHandler(func(nc *nats.Conn) {
				slog.Info("NATS reconnected", "url", nc.ConnectedUrl())
			}),
		)
		if err != nil {
			return err
		}
		defer sub.Close()

		ch, cancel, err := sub.Subscribe(topic)
		if err != nil {
			return err
		}
		defer cancel()

		out := cmd.OutOrStdout()
		for {
			select {
			case <-ctx.Done():
				return nil
			case msg, ok := <-ch:
				if !ok {
					return nil
				}
				if err := printEvent(out, msg); err != nil {
					return err
				}
			}
		}
	},
}

func printEvent(w io.Writer, msg events.Message) error {
	if jsonOutput {
		return json.NewEncoder(w).Encode(struct {
			Topic string          `json:"topic"`
			Data  json.RawMessage `json:"data"`
		}{msg.Topic, json.RawMessage(msg.Data)})
	}
	_, err := fmt.Fprintln(w, formatEvent(msg))
	return err
}

// formatEvent renders a relayed event on one line. Payloads that do not
// decode are shown raw.
func formatEvent(msg events.Message) string {
	raw := fmt.Sprintf("%s  %s", ui.RenderAccent(msg.Topic), msg.Data)

	switch {
	case msg.Topic == events.TopicTxObserved:
		var e events.TxObserved
		if json.Unmarshal(msg.Data, &e) != nil {
			return raw
		}
		return fmt.Sprintf("%s  tx  %s  x%d", ui.RenderMuted(view.Label(e.Timestamp)), e.Hash, e.Count)

	case msg.Topic == events.TopicStateChanged:
		var e events.StateChanged
		if json.Unmarshal(msg.Data, &e) != nil {
			return raw
		}
		state := ui.RenderMuted("stopped")
		if e.Running {
			state = ui.RenderOK("running")
		}
		return fmt.Sprintf("%s  spammer %s", ui.RenderMuted(view.Label(e.Timestamp)), state)

	case msg.Topic == events.TopicConnectionChanged:
		var e events.ConnectionChanged
		if json.Unmarshal(msg.Data, &e) != nil {
			return raw
		}
		return fmt.Sprintf("%s  connection %s", ui.RenderMuted(view.Label(e.Timestamp)), e.Status)

	case strings.HasPrefix(msg.Topic, events.TopicMetricPrefix):
		var e events.MetricObserved
		if json.Unmarshal(msg.Data, &e) != nil {
			return raw
		}
		ts := ui.RenderMuted(view.Label(e.Timestamp))
		switch {
		case e.Kind == protocol.Summary && e.Summary != nil:
			return fmt.Sprintf("%s  summary  tps %.2f  errors %.1f%%", ts, e.Summary.TPS, e.Summary.ErrorRate*100)
		case e.Tx != nil:
			return fmt.Sprintf("%s  %s  %s  x%d", ts, e.Kind, e.Tx.Hash, e.Tx.Count)
		default:
			return fmt.Sprintf("%s  %s", ts, e.Kind)
		}
	}
	return raw
}

func init() {
	tailCmd.Flags().String("nats", "", "NATS URL (defaults to SPAMWATCH_NATS_URL or the active remote)")
}
