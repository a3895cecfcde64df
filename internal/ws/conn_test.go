package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

// newConnTestServer upgrades each request, registers the connection in
// the manager, and keeps reading to hold it open. Registered clients
// are recorded so tests can send to them.
func newConnTestServer(t *testing.T, cm *ConnManager) (*httptest.Server, func() []*Client) {
	t.Helper()

	var mu sync.Mutex
	var clients []*Client

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		client := NewClient(conn)
		ctx := cm.Add(client)

		mu.Lock()
		clients = append(clients, client)
		mu.Unlock()

		for {
			select {
			case <-ctx.Done():
				return
			default:
			}
			if _, _, err := conn.Read(r.Context()); err != nil {
				return
			}
		}
	}))
	t.Cleanup(ts.Close)

	snapshot := func() []*Client {
		mu.Lock()
		defer mu.Unlock()
		return append([]*Client(nil), clients...)
	}
	return ts, snapshot
}

func dialWS(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(url, "http")
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	return conn
}

func waitForCount(t *testing.T, cm *ConnManager, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for cm.Count() != want && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if cm.Count() != want {
		t.Fatalf("expected %d connections, got %d", want, cm.Count())
	}
}

func TestConnManagerSendReachesWire(t *testing.T) {
	cm := NewConnManager()
	ts, clients := newConnTestServer(t, cm)

	conn := dialWS(t, ts.URL)
	defer conn.Close(websocket.StatusNormalClosure, "")
	waitForCount(t, cm, 1)

	client := clients()[0]
	if !cm.Send(client, []byte("hello")) {
		t.Fatal("expected send to be queued")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "hello" {
		t.Errorf("expected hello, got %s", data)
	}
}

func TestConnManagerRemoveStopsDelivery(t *testing.T) {
	cm := NewConnManager()
	ts, clients := newConnTestServer(t, cm)

	conn := dialWS(t, ts.URL)
	defer conn.Close(websocket.StatusNormalClosure, "")
	waitForCount(t, cm, 1)

	client := clients()[0]
	cm.Remove(client)

	if cm.Count() != 0 {
		t.Fatalf("expected 0 connections after remove, got %d", cm.Count())
	}
	if cm.Send(client, []byte("late")) {
		t.Error("expected send to a removed client to fail")
	}
	// Removing again is a no-op.
	cm.Remove(client)
}

func TestConnManagerMaxConns(t *testing.T) {
	cm := NewConnManager(WithMaxConns(1))
	ts, _ := newConnTestServer(t, cm)

	first := dialWS(t, ts.URL)
	defer first.Close(websocket.StatusNormalClosure, "")
	waitForCount(t, cm, 1)

	second := dialWS(t, ts.URL)
	defer second.Close(websocket.StatusNormalClosure, "")

	// The second connection is rejected server-side; reads fail.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, _, err := second.Read(ctx); err == nil {
		t.Fatal("expected rejected connection to be closed")
	}

	if got := cm.Stats().Rejected; got != 1 {
		t.Errorf("expected 1 rejection, got %d", got)
	}
	if cm.Count() != 1 {
		t.Errorf("expected 1 active connection, got %d", cm.Count())
	}
}

func TestConnManagerShutdown(t *testing.T) {
	cm := NewConnManager()
	ts, _ := newConnTestServer(t, cm)

	conn := dialWS(t, ts.URL)
	defer conn.Close(websocket.StatusNormalClosure, "")
	waitForCount(t, cm, 1)

	cm.Shutdown()

	if cm.Count() != 0 {
		t.Fatalf("expected 0 connections after shutdown, got %d", cm.Count())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, _, err := conn.Read(ctx); err == nil {
		t.Fatal("expected connection to be closed by shutdown")
	}

	// New connections are rejected once closed.
	late := dialWS(t, ts.URL)
	defer late.Close(websocket.StatusNormalClosure, "")
	lateCtx, lateCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer lateCancel()
	if _, _, err := late.Read(lateCtx); err == nil {
		t.Fatal("expected post-shutdown connection to be closed")
	}
}
