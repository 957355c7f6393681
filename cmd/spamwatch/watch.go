package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/spamwatch/internal/client"
	"github.com/alfredjeanlab/spamwatch/internal/monitor"
	"github.com/alfredjeanlab/spamwatch/internal/ui"
	"github.com/alfredjeanlab/spamwatch/internal/view"
)

type link interface {
	State() client.State
	SessionID() string
}

// watcher renders the store on each tick. In a terminal the status line is
// redrawn in place; otherwise each tick prints a new line.
type watcher struct {
	out    io.Writer
	src    view.Dashboard
	link   link
	tty    bool
	showTx bool
	json   bool
	now    func() time.Time

	seen map[string]int
}

func (w *watcher) render() error {
	now := w.now()
	if w.json {
		return json.NewEncoder(w.out).Encode(view.Build(w.src, now))
	}

	txs := view.TransactionLog(w.src)
	if w.showTx {
		if w.seen == nil {
			w.seen = make(map[string]int)
		}
		var fresh []string
		// Oldest first so the log scrolls in order.
		for _, tx := range slices.Backward(txs) {
			if w.seen[tx.Hash] == tx.Count {
				continue
			}
			w.seen[tx.Hash] = tx.Count
			fresh = append(fresh, ui.TxLine(tx))
		}
		for _, line := range fresh {
			if w.tty {
				fmt.Fprint(w.out, "\r\033[K")
			}
			fmt.Fprintln(w.out, line)
		}
	}

	st := ui.Status{
		State:        w.link.State().String(),
		Session:      w.link.SessionID(),
		Running:      w.src.Running(),
		Transactions: len(txs),
		At:           now,
	}
	if sum, ok := w.src.LastMetric(); ok {
		st.Last = &sum
	}
	if w.tty {
		_, err := fmt.Fprint(w.out, "\r\033[K"+ui.StatusLine(st))
		return err
	}
	_, err := fmt.Fprintln(w.out, ui.StatusLine(st))
	return err
}

func (w *watcher) run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	defer func() {
		if w.tty {
			fmt.Fprintln(w.out)
		}
	}()
	for {
		if err := w.render(); err != nil {
			return err
		}
		if w.link.State() == client.StateDisconnected {
			return fmt.Errorf("connection to spammer lost")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Connect to the spammer and show live telemetry",
	GroupID: "live",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		interval, _ := cmd.Flags().GetDuration("interval")
		showTx, _ := cmd.Flags().GetBool("tx")
		if interval <= 0 {
			return fmt.Errorf("--interval must be positive")
		}

		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		m, err := monitor.New(cfg, logger)
		if err != nil {
			return err
		}
		defer m.Close()
		if err := m.Start(ctx); err != nil {
			return err
		}

		w := &watcher{
			out:    cmd.OutOrStdout(),
			src:    m.Store(),
			link:   m.Client(),
			tty:    !jsonOutput && ui.IsTerminal(os.Stdout),
			showTx: showTx,
			json:   jsonOutput,
			now:    time.Now,
		}
		return w.run(ctx, interval)
	},
}

func init() {
	watchCmd.Flags().Duration("interval", time.Second, "refresh interval")
	watchCmd.Flags().Bool("tx", false, "print each new or recounted transaction")
}
