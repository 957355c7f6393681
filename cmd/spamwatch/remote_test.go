package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	in := RemotesConfig{
		Active: "prod",
		Remotes: map[string]Remote{
			"prod": {
				URL:     "wss://prod.example.com/api/spammer",
				Server:  "https://watch.example.com",
				GRPC:    "watch.example.com:9091",
				Token:   "tok_abc",
				NATSURL: "nats://prod:4222",
			},
			"local": {URL: "ws://localhost:8080/api/spammer"},
		},
	}
	if err := saveRemotesConfig(in); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := loadRemotesConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Active != "prod" {
		t.Errorf("Active = %q, want %q", got.Active, "prod")
	}
	if prod := got.Remotes["prod"]; prod != in.Remotes["prod"] {
		t.Errorf("prod remote = %+v, want %+v", prod, in.Remotes["prod"])
	}
	if local := got.Remotes["local"]; local.URL != "ws://localhost:8080/api/spammer" || local.Server != "" {
		t.Errorf("local remote = %+v", local)
	}
}

func TestLoadRemotesConfig_NoFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := loadRemotesConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Active != "" || len(cfg.Remotes) != 0 || cfg.Remotes == nil {
		t.Errorf("expected empty config, got %+v", cfg)
	}
}

func TestLoadRemotesConfig_Malformed(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	path, err := remoteConfigPath()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("active = [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := loadRemotesConfig(); err == nil {
		t.Fatal("expected error for malformed file")
	}
}

func TestSaveRemotesConfig_Permissions(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if err := saveRemotesConfig(RemotesConfig{Remotes: map[string]Remote{}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	path, _ := remoteConfigPath()
	check := func(p string, want os.FileMode) {
		t.Helper()
		info, err := os.Stat(p)
		if err != nil {
			t.Fatalf("stat %s: %v", p, err)
		}
		if got := info.Mode().Perm(); got != want {
			t.Errorf("%s permissions = %04o, want %04o", p, got, want)
		}
	}
	check(path, 0o600)
	check(filepath.Dir(path), 0o700)
}

func TestRemoteLifecycle(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	var buf bytes.Buffer
	for _, c := range []*cobra.Command{remoteAddCmd, remoteUseCmd, remoteListCmd, remoteShowCmd, remoteRemoveCmd} {
		c.SetOut(&buf)
	}
	mustRun := func(fn func() error) {
		t.Helper()
		if err := fn(); err != nil {
			t.Fatal(err)
		}
	}

	// add, upsert, use, list, show, remove
	mustRun(func() error { return remoteAddCmd.RunE(remoteAddCmd, []string{"local", "ws://localhost:8080/api/spammer"}) })
	mustRun(func() error { return remoteAddCmd.RunE(remoteAddCmd, []string{"local", "ws://localhost:8080/api/spammer"}) })
	mustRun(func() error { return remoteAddCmd.RunE(remoteAddCmd, []string{"other", "ws://other:8080/api/spammer"}) })
	mustRun(func() error { return remoteUseCmd.RunE(remoteUseCmd, []string{"local"}) })

	cfg, _ := loadRemotesConfig()
	if cfg.Active != "local" || len(cfg.Remotes) != 2 {
		t.Fatalf("after add/use: %+v", cfg)
	}

	buf.Reset()
	mustRun(func() error { return remoteListCmd.RunE(remoteListCmd, nil) })
	list := buf.String()
	if !strings.Contains(list, "* local") {
		t.Errorf("list missing active marker; got:\n%s", list)
	}
	if strings.Index(list, "local") > strings.Index(list, "other") {
		t.Errorf("list not sorted by name; got:\n%s", list)
	}

	buf.Reset()
	mustRun(func() error { return remoteShowCmd.RunE(remoteShowCmd, nil) })
	out := buf.String()
	if !strings.Contains(out, "local") || !strings.Contains(out, "ws://localhost:8080") || !strings.Contains(out, "(active)") {
		t.Errorf("show missing expected content; got:\n%s", out)
	}

	buf.Reset()
	mustRun(func() error { return remoteShowCmd.RunE(remoteShowCmd, []string{"other"}) })
	if !strings.Contains(buf.String(), "ws://other:8080") || strings.Contains(buf.String(), "(active)") {
		t.Errorf("show by name; got:\n%s", buf.String())
	}

	mustRun(func() error { return remoteRemoveCmd.RunE(remoteRemoveCmd, []string{"local"}) })
	cfg, _ = loadRemotesConfig()
	if _, ok := cfg.Remotes["local"]; ok {
		t.Error("remote 'local' should be gone")
	}
	if cfg.Active != "" {
		t.Errorf("Active should be cleared, got %q", cfg.Active)
	}

	mustRun(func() error { return remoteUseCmd.RunE(remoteUseCmd, []string{"other"}) })
	mustRun(func() error { return remoteUseCmd.RunE(remoteUseCmd, nil) })
	if cfg, _ = loadRemotesConfig(); cfg.Active != "" {
		t.Errorf("use with no args should clear, got %q", cfg.Active)
	}
}

func TestRemoteTokenHandling(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	if err := remoteAddCmd.Flags().Set("token", "tok_verylongsecret"); err != nil {
		t.Fatalf("set token flag: %v", err)
	}
	t.Cleanup(func() { _ = remoteAddCmd.Flags().Set("token", "") })

	var buf bytes.Buffer
	remoteAddCmd.SetOut(&buf)
	if err := remoteAddCmd.RunE(remoteAddCmd, []string{"prod", "wss://prod.example.com/api/spammer"}); err != nil {
		t.Fatal(err)
	}
	remoteUseCmd.SetOut(&buf)
	if err := remoteUseCmd.RunE(remoteUseCmd, []string{"prod"}); err != nil {
		t.Fatal(err)
	}

	buf.Reset()
	remoteListCmd.SetOut(&buf)
	if err := remoteListCmd.RunE(remoteListCmd, nil); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "tok_verylongsecret") {
		t.Error("full token must not appear in list output")
	}
	if !strings.Contains(buf.String(), "tok_very...") {
		t.Errorf("expected truncated token in list; got:\n%s", buf.String())
	}

	buf.Reset()
	remoteShowCmd.SetOut(&buf)
	if err := remoteShowCmd.RunE(remoteShowCmd, nil); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(buf.String(), "tok_verylongsecret") {
		t.Error("full token must not appear in show output")
	}
	if !strings.Contains(buf.String(), "tok_very**********") {
		t.Errorf("expected masked token in show; got:\n%s", buf.String())
	}
}

func TestRemoteErrorCases(t *testing.T) {
	tests := []struct {
		name string
		fn   func() error
	}{
		{"add non-websocket url", func() error {
			return remoteAddCmd.RunE(remoteAddCmd, []string{"bad", "http://localhost:8080"})
		}},
		{"use unknown", func() error { return remoteUseCmd.RunE(remoteUseCmd, []string{"ghost"}) }},
		{"remove unknown", func() error { return remoteRemoveCmd.RunE(remoteRemoveCmd, []string{"ghost"}) }},
		{"show no active", func() error { return remoteShowCmd.RunE(remoteShowCmd, nil) }},
		{"show unknown", func() error { return remoteShowCmd.RunE(remoteShowCmd, []string{"ghost"}) }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("HOME", t.TempDir())
			if err := tc.fn(); err == nil {
				t.Fatal("expected error, got nil")
			}
		})
	}
}

func TestTokenMasking(t *testing.T) {
	for _, tc := range []struct {
		in, truncated, masked string
	}{
		{"", "", ""},
		{"short", "short", "short"},
		{"exactly8", "exactly8", "exactly8"},
		{"tok_123456", "tok_1234...", "tok_1234**"},
	} {
		if got := truncateToken(tc.in); got != tc.truncated {
			t.Errorf("truncateToken(%q) = %q, want %q", tc.in, got, tc.truncated)
		}
		if got := maskToken(tc.in); got != tc.masked {
			t.Errorf("maskToken(%q) = %q, want %q", tc.in, got, tc.masked)
		}
	}
}

func TestRemotesConfigMethods(t *testing.T) {
	cfg := RemotesConfig{Remotes: map[string]Remote{}}

	if err := cfg.set("a", Remote{URL: "tcp://a"}); err == nil {
		t.Fatal("set accepted a non-websocket URL")
	}
	if err := cfg.set("a", Remote{URL: "ws://a"}); err != nil {
		t.Fatal(err)
	}
	if err := cfg.use("a"); err != nil || cfg.Active != "a" {
		t.Fatalf("use: active=%q err=%v", cfg.Active, err)
	}
	if err := cfg.use("b"); err == nil {
		t.Fatal("use accepted an unknown remote")
	}
	if err := cfg.remove("a"); err != nil || cfg.Active != "" {
		t.Fatalf("remove: active=%q err=%v", cfg.Active, err)
	}
	if err := cfg.remove("a"); err == nil {
		t.Fatal("second remove succeeded")
	}

	var buf bytes.Buffer
	if err := writeRemoteList(&buf, cfg); err != nil {
		t.Fatal(err)
	}
	if got := strings.TrimSpace(buf.String()); got != "no remotes configured" {
		t.Fatalf("empty list = %q", got)
	}
}

func TestWriteRemote_SkipsEmptyFields(t *testing.T) {
	var buf bytes.Buffer
	if err := writeRemote(&buf, "x", Remote{URL: "ws://x"}, false); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "ws://x") || strings.Contains(out, "grpc:") || strings.Contains(out, "(active)") {
		t.Fatalf("output:\n%s", out)
	}
}
