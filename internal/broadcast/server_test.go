package broadcast

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/linuxmatters/jivewave/internal/features"
	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// waitFor polls cond until it holds or the test times out.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial(%s) error = %v", url, err)
	}
	resp.Body.Close()
	return conn
}

func TestServerStreamsSnapshots(t *testing.T) {
	fanout := NewFanout()
	s := NewServer("", fanout, quietLogger())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := dial(t, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws")
	defer conn.Close()
	waitFor(t, "subscriber", func() bool { return fanout.Subscribers() == 1 })
	if got := s.Clients(); got != 1 {
		t.Errorf("Clients() = %d, want 1", got)
	}

	fanout.Offer(features.Snapshot{Time: 1.5, Low: 0.25, BeatTimes: []float64{0.5, 1}})

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	kind, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if kind != websocket.TextMessage {
		t.Errorf("message type = %d, want text", kind)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if got["time"] != 1.5 || got["low"] != 0.25 {
		t.Errorf("snapshot time/low = %v/%v, want 1.5/0.25", got["time"], got["low"])
	}
	if times, ok := got["beat_times"].([]any); !ok || len(times) != 2 {
		t.Errorf("beat_times = %v, want two entries", got["beat_times"])
	}

	conn.Close()
	waitFor(t, "disconnect", func() bool { return fanout.Subscribers() == 0 && s.Clients() == 0 })
}

func TestServerClosesClientsWhenFanoutCloses(t *testing.T) {
	fanout := NewFanout()
	s := NewServer("", fanout, quietLogger())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	conn := dial(t, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws")
	defer conn.Close()
	waitFor(t, "subscriber", func() bool { return fanout.Subscribers() == 1 })

	fanout.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("ReadMessage() error = %v, want a going-away close", err)
	}
}

func TestServerHealth(t *testing.T) {
	fanout := NewFanout()
	fanout.Offer(features.Snapshot{})
	s := NewServer("", fanout, quietLogger())
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz error = %v", err)
	}
	defer resp.Body.Close()

	var health struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
		Offered uint64 `json:"offered"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if health.Status != "ok" || health.Clients != 0 || health.Offered != 1 {
		t.Errorf("health = %+v, want ok with 0 clients and 1 offered", health)
	}
}

func TestServerRunShutsDown(t *testing.T) {
	fanout := NewFanout()
	s := NewServer("127.0.0.1:0", fanout, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	waitFor(t, "listener", func() bool { return s.Addr() != "127.0.0.1:0" })

	conn := dial(t, "ws://"+s.Addr()+"/ws")
	defer conn.Close()
	waitFor(t, "subscriber", func() bool { return fanout.Subscribers() == 1 })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.CloseGoingAway) {
		t.Errorf("ReadMessage() error = %v, want a going-away close", err)
	}
}

func TestServerRunBadAddress(t *testing.T) {
	s := NewServer("256.0.0.1:http", NewFanout(), quietLogger())
	if err := s.Run(context.Background()); err == nil {
		t.Error("Run() on an invalid address returned no error")
	}
}
