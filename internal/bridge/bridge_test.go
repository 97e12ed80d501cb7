package bridge

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// testBridge wires a Bridge directly to an httptest server without going
// through Start's real net.Listen, which keeps these tests fast and
// hermetic while still exercising the same upgrade/serve/send path.
func testBridge(t *testing.T) (*Bridge, *httptest.Server) {
	t.Helper()
	reg := NewRegistry(nil)
	b := New(Config{Host: "127.0.0.1", DefaultTimeout: time.Second}, reg, nil, nil)
	srv := httptest.NewServer(b.httpServer.Handler)
	t.Cleanup(srv.Close)
	return b, srv
}

func dialPeer(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestBridge_SendWithoutPeerReturnsDisconnected(t *testing.T) {
	b, _ := testBridge(t)

	resp := b.Send(context.Background(), "return 1", time.Second, nil, "req_abc")
	if !resp.IsError() {
		t.Fatal("expected an error response")
	}
	if !strings.HasPrefix(resp.Error, "ILLUSTRATOR_DISCONNECTED:") {
		t.Errorf("expected DISCONNECTED sentinel, got %q", resp.Error)
	}
	if b.registry.Pending() != 0 {
		t.Error("expected no request ID burned for a disconnected send")
	}
}

func TestBridge_HappyPath(t *testing.T) {
	b, srv := testBridge(t)
	conn := dialPeer(t, srv)

	// Give the server goroutine a moment to register the peer before we
	// dispatch through it.
	time.Sleep(50 * time.Millisecond)

	done := make(chan ExecutionResponse, 1)
	go func() {
		done <- b.Send(context.Background(), "return 1+1", 5*time.Second, nil, "req_12345678")
	}()

	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	var frame dispatchFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if frame.Script != "return 1+1" {
		t.Errorf("unexpected script: %q", frame.Script)
	}

	reply, _ := json.Marshal(map[string]any{"id": frame.ID, "result": float64(2)})
	if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
		t.Fatalf("write reply: %v", err)
	}

	select {
	case resp := <-done:
		if resp.IsError() {
			t.Fatalf("unexpected error: %s", resp.Error)
		}
		if resp.Result != float64(2) {
			t.Errorf("expected result 2, got %v", resp.Result)
		}
		if resp.TraceID != "req_12345678" {
			t.Errorf("expected trace id echoed, got %q", resp.TraceID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Send to return")
	}
}

func TestBridge_Timeout(t *testing.T) {
	b, srv := testBridge(t)
	dialPeer(t, srv) // peer connects but never replies

	time.Sleep(50 * time.Millisecond)

	resp := b.Send(context.Background(), "sleep forever", 100*time.Millisecond, nil, "")
	if !resp.IsError() {
		t.Fatal("expected timeout error")
	}
	if !strings.HasPrefix(resp.Error, "TIMEOUT:") {
		t.Errorf("expected TIMEOUT prefix, got %q", resp.Error)
	}
	if b.registry.Pending() != 0 {
		t.Error("expected the timed-out request to be removed from the registry")
	}
}

func TestBridge_Displacement(t *testing.T) {
	b, srv := testBridge(t)
	first := dialPeer(t, srv)
	time.Sleep(30 * time.Millisecond)

	second := dialPeer(t, srv)
	time.Sleep(30 * time.Millisecond)
	_ = second

	_, _, err := first.ReadMessage()
	if err == nil {
		t.Fatal("expected the displaced peer's connection to be closed")
	}
}
