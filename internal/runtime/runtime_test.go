package runtime

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/loqalabs/loqa-scribe/internal/config"
	"github.com/loqalabs/loqa-scribe/internal/dictation"
	"github.com/loqalabs/loqa-scribe/internal/natsserver"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Recognition.Engine = "scripted"
	cfg.Correction.Mode = "mock"
	cfg.EventStore.RetentionMode = "ephemeral"
	return cfg
}

func buildServer(t *testing.T, cfg config.Config) (*Runtime, *httptest.Server) {
	t.Helper()
	r := New(cfg, newLogger())
	handler, err := r.build(context.Background(), nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(r.teardown)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return r, srv
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("get %s: %v", url, err)
	}
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestHealthAndReadiness(t *testing.T) {
	r, srv := buildServer(t, testConfig())

	if resp := get(t, srv.URL+"/healthz"); resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", resp.StatusCode)
	}
	if resp := get(t, srv.URL+"/readyz"); resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("readyz before start: expected 503, got %d", resp.StatusCode)
	}
	r.ready.Store(true)
	if resp := get(t, srv.URL+"/readyz"); resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz: expected 200, got %d", resp.StatusCode)
	}
}

func TestBuildWiresSessionAndCorrection(t *testing.T) {
	_, srv := buildServer(t, testConfig())

	var status struct {
		Available bool `json:"available"`
	}
	if err := json.NewDecoder(get(t, srv.URL+"/correct/status").Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Available {
		t.Fatal("mock corrector should be available")
	}

	var snap dictation.Snapshot
	if err := json.NewDecoder(get(t, srv.URL+"/transcript").Body).Decode(&snap); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if !snap.Supported || snap.SessionID == "" || snap.Correction.Enabled {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestBridgeEngineMountsWebSocket(t *testing.T) {
	cfg := testConfig()
	cfg.Recognition.Engine = "bridge"
	r, srv := buildServer(t, cfg)
	if r.bridge == nil {
		t.Fatal("expected bridge engine")
	}
	// A plain GET without upgrade headers is rejected by the upgrader.
	if resp := get(t, srv.URL+"/recognition/ws"); resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-websocket request, got %d", resp.StatusCode)
	}
}

func TestNoEngineReportsUnsupported(t *testing.T) {
	cfg := testConfig()
	cfg.Recognition.Engine = "none"
	_, srv := buildServer(t, cfg)

	resp, err := http.Post(srv.URL+"/transcript/start", "application/json", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotImplemented {
		t.Fatalf("expected 501, got %d", resp.StatusCode)
	}
}

func TestBusEngineOverRemoteServer(t *testing.T) {
	ns, err := natsserver.StartLocal(newLogger())
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	t.Cleanup(ns.Shutdown)

	cfg := testConfig()
	cfg.Bus.Enabled = true
	cfg.Bus.Embedded = false
	cfg.Bus.Servers = []string{ns.ClientURL()}
	cfg.Recognition.Engine = "bus"
	r, srv := buildServer(t, cfg)

	if r.busEng == nil || r.bus == nil {
		t.Fatal("expected bus engine and client")
	}
	r.ready.Store(true)
	if resp := get(t, srv.URL+"/readyz"); resp.StatusCode != http.StatusOK {
		t.Fatalf("readyz: expected 200, got %d", resp.StatusCode)
	}
}
