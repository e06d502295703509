package bus

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/loqalabs/loqa-narrator/internal/config"
	"github.com/loqalabs/loqa-narrator/internal/natsserver"
)

func startBus(t *testing.T) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := config.BusConfig{Embedded: true, Port: -1, StoreDir: t.TempDir(), ConnectTimeout: 2000}
	srv, err := natsserver.Start(cfg, logger)
	if err != nil {
		t.Fatalf("start embedded server: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	cfg.Servers = []string{srv.ClientURL()}
	client, err := Connect(context.Background(), cfg, logger)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestConnectRequiresServers(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if _, err := Connect(context.Background(), config.BusConfig{}, logger); err == nil {
		t.Fatal("expected error without servers")
	}
}

func TestLastValueStreamKeepsNewest(t *testing.T) {
	client := startBus(t)
	if !client.Healthy() {
		t.Fatal("expected healthy connection")
	}
	if err := client.EnsureLastValueStream("STATUS_TEST", "status.>"); err != nil {
		t.Fatalf("ensure stream: %v", err)
	}
	// a second call updates in place
	if err := client.EnsureLastValueStream("STATUS_TEST", "status.>"); err != nil {
		t.Fatalf("ensure stream again: %v", err)
	}

	type status struct {
		Phase string `json:"phase"`
	}
	for _, phase := range []string{"connecting", "playing", "completed"} {
		if err := client.PublishJSON("status.p1", status{Phase: phase}); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if err := client.Conn().FlushTimeout(2 * time.Second); err != nil {
		t.Fatalf("flush: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		data, err := client.LastMessage("STATUS_TEST", "status.p1")
		if err == nil {
			var got status
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.Phase == "completed" {
				break
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("last message never became the newest status (err=%v)", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	if err := client.PublishJSON("status.p1", func() {}); err == nil {
		t.Fatal("expected marshal error")
	}
}
