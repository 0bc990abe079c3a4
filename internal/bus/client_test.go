package bus

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/loqalabs/loqa-scribe/internal/config"
	"github.com/loqalabs/loqa-scribe/internal/natsserver"
	"github.com/loqalabs/loqa-scribe/internal/protocol"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func connect(t *testing.T) *Client {
	t.Helper()
	srv, err := natsserver.StartLocal(newLogger())
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := Connect(ctx, config.BusConfig{Servers: []string{srv.ClientURL()}, ConnectTimeout: 2000}, newLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestConnectRequiresServers(t *testing.T) {
	if _, err := Connect(context.Background(), config.BusConfig{}, newLogger()); err == nil {
		t.Fatal("expected error without servers")
	}
}

func TestPublishJSONDeliversToSubscriber(t *testing.T) {
	client := connect(t)
	if !client.Healthy() {
		t.Fatal("expected healthy connection")
	}

	got := make(chan *nats.Msg, 1)
	if _, err := client.Subscribe(protocol.SubjectTranscriptCorrect, func(msg *nats.Msg) { got <- msg }); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := client.Conn().Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	want := protocol.Correction{SessionID: "s-1", Text: "غلط", CorrectedText: "درست"}
	if err := client.PublishJSON(protocol.SubjectTranscriptCorrect, want); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case msg := <-got:
		var c protocol.Correction
		if err := json.Unmarshal(msg.Data, &c); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if c.SessionID != want.SessionID || c.CorrectedText != want.CorrectedText {
			t.Fatalf("unexpected payload %+v", c)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}
}

func TestPublishJSONRejectsUnencodable(t *testing.T) {
	client := connect(t)
	if err := client.PublishJSON(protocol.SubjectTranscriptUpdate, make(chan int)); err == nil {
		t.Fatal("expected encode error")
	}
}

func TestCloseIsNilSafe(t *testing.T) {
	var c *Client
	c.Close()
	if c.Healthy() {
		t.Fatal("nil client must not be healthy")
	}
}
