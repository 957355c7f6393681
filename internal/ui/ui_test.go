package ui

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/alfredjeanlab/spamwatch/internal/model"
	"github.com/alfredjeanlab/spamwatch/internal/protocol"
	"github.com/alfredjeanlab/spamwatch/internal/view"
)

func plain(t *testing.T) {
	t.Helper()
	SetColor(false)
	t.Cleanup(func() { SetColor(true) })
}

func TestRender_Color(t *testing.T) {
	SetColor(true)
	got := RenderOK("ok")
	if !strings.HasPrefix(got, "\x1b[38;5;71m") || !strings.HasSuffix(got, "\x1b[0m") {
		t.Fatalf("RenderOK = %q", got)
	}

	plain(t)
	for _, render := range []func(string) string{RenderAccent, RenderOK, RenderWarn, RenderError, RenderMuted} {
		if got := render("x"); got != "x" {
			t.Fatalf("render without color = %q", got)
		}
	}
}

func TestShouldUseColor(t *testing.T) {
	// A regular file is never a terminal.
	f, err := os.CreateTemp(t.TempDir(), "out")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	for _, tc := range []struct {
		name    string
		noColor string
		force   string
		cli     string
		want    bool
	}{
		{"NoTTY", "", "", "", false},
		{"Forced", "", "1", "", true},
		{"NoColorWins", "1", "1", "", false},
		{"CliColorOff", "", "", "0", false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("NO_COLOR", tc.noColor)
			t.Setenv("CLICOLOR_FORCE", tc.force)
			t.Setenv("CLICOLOR", tc.cli)
			if got := ShouldUseColor(f); got != tc.want {
				t.Fatalf("ShouldUseColor = %v, want %v", got, tc.want)
			}
		})
	}

	if IsTerminal(f) {
		t.Error("IsTerminal(regular file) = true")
	}
	if w := Width(f, 80); w != 80 {
		t.Errorf("Width = %d, want fallback 80", w)
	}
}

func TestStatusLine(t *testing.T) {
	plain(t)
	at := time.Date(2018, 3, 1, 12, 0, 1, 0, time.UTC)

	for _, tc := range []struct {
		name string
		in   Status
		want []string
	}{
		{
			name: "Connected",
			in: Status{
				State:        "connected",
				Session:      "sess-abc",
				Running:      true,
				Last:         &protocol.MetricSummary{TPS: 12.5, ErrorRate: 0.1},
				Transactions: 3,
				At:           at,
			},
			want: []string{view.Label(at), "● connected", "running", "tps 12.50", "errors 10.0%", "txs 3", "sess-abc"},
		},
		{
			name: "NoSummary",
			in:   Status{State: "disconnected"},
			want: []string{"○ disconnected", "stopped", "no summary yet", "txs 0"},
		},
		{
			name: "Connecting",
			in:   Status{State: "connecting"},
			want: []string{"◌ connecting"},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := StatusLine(tc.in)
			for _, w := range tc.want {
				if !strings.Contains(got, w) {
					t.Errorf("StatusLine = %q, missing %q", got, w)
				}
			}
			if strings.Contains(got, "\n") {
				t.Errorf("StatusLine spans lines: %q", got)
			}
		})
	}
}

func TestStatusLine_NoTimestampWhenZero(t *testing.T) {
	plain(t)
	if got := StatusLine(Status{State: "idle"}); !strings.HasPrefix(got, "○ idle") {
		t.Fatalf("StatusLine = %q", got)
	}
}

func TestRows(t *testing.T) {
	plain(t)
	at := time.Date(2018, 3, 1, 12, 0, 2, 0, time.UTC)

	tx := TxLine(model.TxRecord{Hash: "0xabc", Count: 2, ObservedAt: at})
	if tx != view.Label(at)+"  0xabc  x2" {
		t.Errorf("TxLine = %q", tx)
	}

	p := PointLine("tps", view.Point{Label: "12:00:02", Value: 3.25, Timestamp: at})
	if !strings.HasPrefix(p, "12:00:02  tps") || !strings.HasSuffix(p, "3.25") {
		t.Errorf("PointLine = %q", p)
	}
}
