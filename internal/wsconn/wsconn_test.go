package wsconn

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// mockWSServer creates a test WebSocket server driven by handler.
func mockWSServer(t *testing.T, handler func(conn *websocket.Conn)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			t.Logf("websocket accept error: %v", err)
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		if handler != nil {
			handler(conn)
		}
	}))
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func testConfig(url string) Config {
	cfg := DefaultConfig(url, "test")
	cfg.PingInterval = 0
	cfg.InitialBackoff = 10 * time.Millisecond
	cfg.MaxBackoff = 50 * time.Millisecond
	return cfg
}

func TestClientDeliversMessages(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		ctx := context.Background()
		for i := 0; i < 3; i++ {
			if err := conn.Write(ctx, websocket.MessageText, []byte("frame")); err != nil {
				return
			}
		}
		time.Sleep(time.Second)
	})
	defer server.Close()

	client, err := New(testConfig(wsURL(server)), nil)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	for i := 0; i < 3; i++ {
		select {
		case msg := <-client.Messages():
			if string(msg) != "frame" {
				t.Errorf("message %d = %q, want %q", i, msg, "frame")
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("message %d never arrived", i)
		}
	}
}

func TestClientOnConnectHookRunsPerConnect(t *testing.T) {
	var dials atomic.Int32

	server := mockWSServer(t, func(conn *websocket.Conn) {
		// Read the subscribe frame, then drop the connection to force a
		// reconnect.
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		conn.Read(ctx)
		conn.Close(websocket.StatusGoingAway, "bye")
	})
	defer server.Close()

	hook := func(ctx context.Context, c *Client) error {
		dials.Add(1)
		return c.Send(ctx, []byte(`{"event":"subscribe"}`))
	}

	client, err := New(testConfig(wsURL(server)), hook)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- client.Run(context.Background()) }()

	// Every drop triggers a redial, and the hook must run on each one.
	deadline := time.After(10 * time.Second)
	for dials.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("hook ran %d times, want at least 2 (one per connect)", dials.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}

	client.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v on clean close, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}

func TestClientCloseUnblocksRun(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		ctx := context.Background()
		conn.Read(ctx) // block until the client goes away
	})
	defer server.Close()

	client, err := New(testConfig(wsURL(server)), nil)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- client.Run(context.Background()) }()

	// Give Run a moment to establish the connection.
	time.Sleep(100 * time.Millisecond)
	client.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v on clean close, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Close")
	}

	// Messages channel must be closed.
	if _, open := <-client.Messages(); open {
		t.Error("Messages() still open after Run returned")
	}
}

func TestClientCancellationUnblocksRun(t *testing.T) {
	server := mockWSServer(t, func(conn *websocket.Conn) {
		conn.Read(context.Background())
	})
	defer server.Close()

	client, err := New(testConfig(wsURL(server)), nil)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- client.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v on cancellation, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestClientReconnectsExhausted(t *testing.T) {
	cfg := testConfig("ws://127.0.0.1:1") // nothing listens here
	cfg.MaxReconnects = 2

	client, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Run(ctx); err == nil {
		t.Fatal("Run should return an error once reconnects are exhausted")
	}
	if client.Err() == nil {
		t.Error("Err() should hold the terminal error")
	}
}

func TestClientSendWithoutConnection(t *testing.T) {
	client, err := New(testConfig("ws://127.0.0.1:1"), nil)
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	defer client.Close()

	if err := client.Send(context.Background(), []byte("x")); err == nil {
		t.Error("Send should fail when not connected")
	}
}
