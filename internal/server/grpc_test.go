package server

import (
	"net"
	"testing"

	"google.golang.org/grpc/codes"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/alfredjeanlab/spamwatch/internal/client"
)

// startGRPC serves the telemetry and health services on a loopback port and
// returns a connected client.
func startGRPC(t *testing.T, env *testEnv, hr *HealthReporter, token string) *client.GRPCClient {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := NewGRPCServer(env.srv, hr.Server(), token)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := client.NewGRPCClient(lis.Addr().String(), token)
	if err != nil {
		t.Fatalf("NewGRPCClient: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestGRPC_GetSnapshot(t *testing.T) {
	env := newTestServer(t)
	env.connect()
	env.feedSummary(9, 0.5, t0)
	env.feedTx("0xaa", 2, t0)
	c := startGRPC(t, env, NewHealthReporter(nil), "")

	snap, err := c.Snapshot(t.Context())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	fields := snap.GetFields()
	if got := fields["connection"].GetStringValue(); got != "connected" {
		t.Errorf("connection = %q", got)
	}
	if got := fields["running"].GetBoolValue(); got {
		t.Error("running = true")
	}
	tps := fields["tps"].GetListValue().GetValues()
	if len(tps) != 1 || tps[0].GetStructValue().GetFields()["value"].GetNumberValue() != 9 {
		t.Fatalf("tps = %v", tps)
	}
	txs := fields["transactions"].GetListValue().GetValues()
	if len(txs) != 1 || txs[0].GetStructValue().GetFields()["hash"].GetStringValue() != "0xaa" {
		t.Fatalf("transactions = %v", txs)
	}
}

func TestGRPC_StartStop(t *testing.T) {
	env := newTestServer(t)
	c := startGRPC(t, env, NewHealthReporter(nil), "")
	ctx := t.Context()

	requireCode(t, c.Start(ctx), codes.Unavailable)
	if env.ctl.starts != 0 {
		t.Fatal("start forwarded while disconnected")
	}

	env.connect()
	requireCode(t, c.Start(ctx), codes.OK)
	requireCode(t, c.Stop(ctx), codes.OK)
	if env.ctl.starts != 1 || env.ctl.stops != 1 {
		t.Fatalf("starts=%d stops=%d", env.ctl.starts, env.ctl.stops)
	}
}

func TestGRPC_Auth(t *testing.T) {
	env := newTestServer(t)
	hr := NewHealthReporter(nil)
	good := startGRPC(t, env, hr, "secret")
	ctx := t.Context()

	if _, err := good.Snapshot(ctx); err != nil {
		t.Fatalf("Snapshot with token: %v", err)
	}

	anon, err := client.NewGRPCClient(listenAddr(t, env, hr, "secret"), "")
	if err != nil {
		t.Fatal(err)
	}
	defer anon.Close()

	_, err = anon.Snapshot(ctx)
	requireCode(t, err, codes.Unauthenticated)

	// Health stays reachable without credentials.
	if _, err := anon.Check(ctx, ""); err != nil {
		t.Fatalf("Check without token: %v", err)
	}
}

// listenAddr serves a second server and returns its address.
func listenAddr(t *testing.T, env *testEnv, hr *HealthReporter, token string) string {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := NewGRPCServer(env.srv, hr.Server(), token)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return lis.Addr().String()
}

func TestHealthReporter(t *testing.T) {
	env := newTestServer(t)
	hr := NewHealthReporter(nil)
	c := startGRPC(t, env, hr, "")
	ctx := t.Context()

	check := func(service string) healthpb.HealthCheckResponse_ServingStatus {
		t.Helper()
		resp, err := c.Check(ctx, service)
		if err != nil {
			t.Fatalf("Check(%q): %v", service, err)
		}
		return resp.GetStatus()
	}

	for _, svc := range []string{"", TelemetryServiceName} {
		if got := check(svc); got != healthpb.HealthCheckResponse_NOT_SERVING {
			t.Fatalf("initial %q = %v", svc, got)
		}
	}

	hr.Set(client.StateConnected)
	for _, svc := range []string{"", TelemetryServiceName} {
		if got := check(svc); got != healthpb.HealthCheckResponse_SERVING {
			t.Fatalf("connected %q = %v", svc, got)
		}
	}

	for _, st := range []client.State{client.StateConnecting, client.StateDisconnected} {
		hr.Set(st)
		if got := check(""); got != healthpb.HealthCheckResponse_NOT_SERVING {
			t.Fatalf("%v: status = %v", st, got)
		}
	}

	_, err := c.Check(ctx, "no.such.Service")
	requireCode(t, err, codes.NotFound)
}

func TestHealthReporter_Follow(t *testing.T) {
	hr := NewHealthReporter(nil)
	states := make(chan client.State)
	done := make(chan struct{})
	go func() {
		defer close(done)
		hr.Follow(t.Context(), states)
	}()

	// An unbuffered send returns once Follow has taken the value; the next
	// send proves the previous Set finished.
	states <- client.StateConnected
	states <- client.StateConnected

	resp, err := hr.Server().Check(t.Context(), &healthpb.HealthCheckRequest{Service: TelemetryServiceName})
	if err != nil {
		t.Fatal(err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Fatalf("status = %v", resp.GetStatus())
	}

	close(states)
	<-done

	hr.Shutdown()
	resp, _ = hr.Server().Check(t.Context(), &healthpb.HealthCheckRequest{})
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Fatalf("after Shutdown: %v", resp.GetStatus())
	}
}
