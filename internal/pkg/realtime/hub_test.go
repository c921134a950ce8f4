package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestHubDeliversToRoomSubscribers(t *testing.T) {
	hub := NewHub(nil, nil)
	go hub.Run()
	defer hub.Shutdown()

	muralSrv := httptest.NewServer(hub.Handler("mural"))
	defer muralSrv.Close()
	foodSrv := httptest.NewServer(hub.Handler("food"))
	defer foodSrv.Close()

	muralConn := dial(t, muralSrv)
	defer muralConn.Close()
	foodConn := dial(t, foodSrv)
	defer foodConn.Close()

	waitFor(t, func() bool { return hub.ConnectionCount("mural") == 1 && hub.ConnectionCount("food") == 1 })

	hub.Publish("mural", map[string]string{"type": "image.created", "catalog": "mural"})

	muralConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := muralConn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["type"] != "image.created" {
		t.Fatalf("unexpected event: %v", got)
	}

	foodConn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := foodConn.ReadMessage(); err == nil {
		t.Fatal("food subscriber must not receive mural events")
	}
}

func TestHubUnregistersClosedConnections(t *testing.T) {
	hub := NewHub(nil, nil)
	go hub.Run()
	defer hub.Shutdown()

	srv := httptest.NewServer(hub.Handler("mural"))
	defer srv.Close()

	conn := dial(t, srv)
	waitFor(t, func() bool { return hub.ConnectionCount("mural") == 1 })

	conn.Close()
	waitFor(t, func() bool { return hub.ConnectionCount("mural") == 0 })
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	hub := NewHub(nil, []string{"https://mural.example.com"})
	go hub.Run()
	defer hub.Shutdown()

	srv := httptest.NewServer(hub.Handler("mural"))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{"Origin": {"https://evil.example.com"}}
	if _, _, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Fatal("expected handshake to fail for foreign origin")
	}
}

func TestHubClosesSubscribersAfterShutdown(t *testing.T) {
	hub := NewHub(nil, nil)
	go hub.Run()

	srv := httptest.NewServer(hub.Handler("mural"))
	defer srv.Close()

	hub.Shutdown()

	conn := dial(t, srv)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Fatalf("expected going-away close, got %v", err)
	}
	if n := hub.ConnectionCount("mural"); n != 0 {
		t.Fatalf("ConnectionCount = %d after shutdown", n)
	}
}
