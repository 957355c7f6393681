package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/spamwatch/internal/client"
	"github.com/alfredjeanlab/spamwatch/internal/monitor"
)

var startCmd = &cobra.Command{
	Use:     "start",
	Short:   "Ask the spammer to start sending transactions",
	GroupID: "live",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSpammerCommand(cmd, true)
	},
}

var stopCmd = &cobra.Command{
	Use:     "stop",
	Short:   "Ask the spammer to stop sending transactions",
	GroupID: "live",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSpammerCommand(cmd, false)
	},
}

// runSpammerCommand sends start or stop, waits for the spammer's state echo
// and prints the run state it reports.
func runSpammerCommand(cmd *cobra.Command, running bool) error {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	viaServer, _ := cmd.Flags().GetBool("via-server")

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	var (
		reported bool
		err      error
	)
	if viaServer {
		reported, err = commandViaServer(ctx, client.NewHTTPClient(serverURL, authToken), running)
	} else {
		reported, err = commandDirect(ctx, running)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("no state echo from the spammer within %s", timeout)
	}
	if err != nil {
		return err
	}
	if reported != running {
		slog.Warn("spammer did not apply the command", "requested_running", running, "running", reported)
	}
	return printRunning(cmd.OutOrStdout(), reported)
}

// commandDirect connects to the spammer, sends the command and returns the
// run state carried by the first state echo received after it.
func commandDirect(ctx context.Context, running bool) (bool, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return false, err
	}
	cfg.ExportInterval = 0

	m, err := monitor.New(cfg, logger)
	if err != nil {
		return false, err
	}
	defer m.Close()
	if err := m.Start(ctx); err != nil {
		return false, err
	}

	st := m.Store()
	request := st.RequestStop
	if running {
		request = st.RequestStart
	}
	base := st.Stats().StateEchoes
	if err := request(); err != nil {
		return false, fmt.Errorf("sending command: %w", err)
	}
	err = waitFor(ctx, 50*time.Millisecond, func() (bool, error) {
		if st.Stats().StateEchoes > base {
			return true, nil
		}
		if m.Client().State() == client.StateDisconnected {
			return false, errors.New("connection to spammer lost")
		}
		return false, nil
	})
	if err != nil {
		return false, err
	}
	return st.Running(), nil
}

// commandViaServer asks the server to forward the command and polls
// /v1/status until the server's echo counter moves past its value from
// before the request.
func commandViaServer(ctx context.Context, c *client.HTTPClient, running bool) (bool, error) {
	before, err := c.Status(ctx)
	if err != nil {
		return false, err
	}
	send := c.Stop
	if running {
		send = c.Start
	}
	if err := send(ctx); err != nil {
		return false, err
	}
	var reported bool
	err = waitFor(ctx, 200*time.Millisecond, func() (bool, error) {
		st, err := c.Status(ctx)
		if err != nil {
			return false, err
		}
		reported = st.Running
		return st.StateEchoes > before.StateEchoes, nil
	})
	return reported, err
}

// waitFor polls check until it reports true, returns an error, or ctx ends.
func waitFor(ctx context.Context, every time.Duration, check func() (bool, error)) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		done, err := check()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func printRunning(w io.Writer, running bool) error {
	if jsonOutput {
		return printJSON(w, map[string]bool{"running": running})
	}
	if running {
		_, err := fmt.Fprintln(w, "spammer running")
		return err
	}
	_, err := fmt.Fprintln(w, "spammer stopped")
	return err
}

func init() {
	for _, c := range []*cobra.Command{startCmd, stopCmd} {
		c.Flags().Duration("timeout", 10*time.Second, "how long to wait for the state echo")
		c.Flags().Bool("via-server", false, "send through the spamwatch server instead of connecting directly")
	}
}
