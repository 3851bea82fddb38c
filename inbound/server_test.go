package inbound

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-webhook-ingest/core"
)

func TestServer_ServeStopsOnContextCancel(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
	server := NewServer(0, handler, time.Second, core.NewObserver(nil, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- server.Serve(ctx, listener)
	}()

	res, err := http.Get("http://" + listener.Addr().String() + "/")
	if err != nil {
		cancel()
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(res.Body)
	_ = res.Body.Close()
	if res.StatusCode != http.StatusOK || string(body) != "ok" {
		cancel()
		t.Fatalf("expected 200 ok, got %d %q", res.StatusCode, body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("server did not stop after cancel")
	}
}

func TestNewServer_DefaultShutdownTimeout(t *testing.T) {
	server := NewServer(8080, http.NotFoundHandler(), 0, core.NewObserver(nil, nil))
	if server.shutdownTimeout != defaultShutdownTimeout {
		t.Fatalf("expected default shutdown timeout, got %s", server.shutdownTimeout)
	}
	if server.Addr() != ":8080" {
		t.Fatalf("expected :8080, got %s", server.Addr())
	}
}
