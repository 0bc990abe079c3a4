package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/correction"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scribe.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestRunValidate(t *testing.T) {
	if err := runValidate(writeConfig(t, "http:\n  port: 9000\n")); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}
	if err := runValidate(writeConfig(t, "correction:\n  mode: openai\n")); err == nil {
		t.Fatal("expected unknown mode to be rejected")
	}
}

func TestRunCorrectWithMock(t *testing.T) {
	path := writeConfig(t, "correction:\n  mode: mock\n")
	var out bytes.Buffer
	if err := runCorrect(context.Background(), path, "  سلام  ", &out); err != nil {
		t.Fatalf("correct: %v", err)
	}
	if out.String() != "سلام\n" {
		t.Fatalf("unexpected output %q", out.String())
	}

	if err := runCorrect(context.Background(), path, " ", &out); !errors.Is(err, correction.ErrEmptyText) {
		t.Fatalf("expected ErrEmptyText, got %v", err)
	}
}

func TestRunCorrectUnconfigured(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	path := writeConfig(t, "correction:\n  mode: gemini\n")
	err := runCorrect(context.Background(), path, "متن", &bytes.Buffer{})
	if !errors.Is(err, correction.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestRunExport(t *testing.T) {
	final := "آج کا دن"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/transcript" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"final_text":"` + final + `"}`))
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	now := time.Date(2025, 2, 3, 8, 0, 0, 0, time.UTC)
	path, err := runExport(context.Background(), "", srv.URL, dir, now)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if path != filepath.Join(dir, "urdu-transcript-2025-02-03.txt") {
		t.Fatalf("unexpected path %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if string(data) != final {
		t.Fatalf("unexpected content %q", data)
	}

	final = "   "
	if _, err := runExport(context.Background(), "", srv.URL, dir, now); err == nil {
		t.Fatal("expected empty transcript to be refused")
	}
}
