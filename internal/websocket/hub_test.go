package websocket

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"tradecore/internal/events"
	"tradecore/internal/models"
)

// ============================================================
// Unit Tests
// ============================================================

func TestNewHub(t *testing.T) {
	hub := NewHub(nil)

	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
	if hub.DroppedMessages() != 0 {
		t.Errorf("expected 0 dropped messages, got %d", hub.DroppedMessages())
	}
	if hub.Name() != "websocket" {
		t.Errorf("unexpected sink name %q", hub.Name())
	}
}

func TestOriginChecker_Check(t *testing.T) {
	checker := NewOriginChecker([]string{"http://localhost:3000", " https://example.com "})

	tests := []struct {
		origin string
		want   bool
	}{
		{"", true},
		{"http://localhost:3000", true},
		{"https://example.com", true},
		{"http://evil.com", false},
		{"http://localhost:8080", false},
	}

	for _, tt := range tests {
		if got := checker.Check(tt.origin); got != tt.want {
			t.Errorf("Check(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestOriginChecker_AllowAll(t *testing.T) {
	for _, list := range [][]string{nil, {"*"}, {" "}} {
		checker := NewOriginChecker(list)
		if !checker.Check("https://anything.example.org") {
			t.Errorf("origins %v should allow everything", list)
		}
	}
}

func TestFilter(t *testing.T) {
	q, _ := url.ParseQuery("account=sim,topstep&strategy=s1")
	f := ParseFilter(q)

	tests := []struct {
		account, strategy string
		want              bool
	}{
		{"sim", "s1", true},
		{"topstep", "", true},
		{"", "s1", true},
		{"other", "s1", false},
		{"sim", "s2", false},
	}
	for _, tt := range tests {
		if got := f.match(tt.account, tt.strategy); got != tt.want {
			t.Errorf("match(%q, %q) = %v, want %v", tt.account, tt.strategy, got, tt.want)
		}
	}

	if !(Filter{}).match("any", "any") {
		t.Error("empty filter should match everything")
	}
}

func TestParseSince(t *testing.T) {
	tests := []struct {
		query  string
		want   uint64
		wantOK bool
	}{
		{"", 0, false},
		{"since=42", 42, true},
		{"since=0", 0, true},
		{"since=-1", 0, false},
		{"since=abc", 0, false},
	}
	for _, tt := range tests {
		q, _ := url.ParseQuery(tt.query)
		got, ok := ParseSince(q)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("ParseSince(%q) = %d, %v; want %d, %v", tt.query, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestHub_PublishDropsWhenFull(t *testing.T) {
	hub := NewHub(nil) // Run не запущен, очередь никто не читает

	var dropped int
	for i := 0; i < broadcastBufferSize+10; i++ {
		if err := hub.Publish(models.Event{Seq: uint64(i + 1), Type: models.EventAccountUpdate}); err != nil {
			if err != events.ErrSinkFull {
				t.Fatalf("unexpected error %v", err)
			}
			dropped++
		}
	}

	if dropped != 10 || hub.DroppedMessages() != 10 {
		t.Errorf("expected 10 dropped, got %d (counter %d)", dropped, hub.DroppedMessages())
	}
}

func TestHub_Stop(t *testing.T) {
	hub := NewHub(nil)

	done := make(chan struct{})
	go func() {
		hub.Run()
		close(done)
	}()

	hub.Stop()
	hub.Stop() // повторный вызов безопасен

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Error("Hub.Run() did not exit after Stop()")
	}
}

// ============================================================
// Integration: bus -> hub -> websocket client
// ============================================================

func startStream(t *testing.T) (*events.Bus, string) {
	t.Helper()
	hub := NewHub(nil)
	bus := events.NewBus(64, nil, hub)
	hub.SetReplayer(bus)
	go hub.Run()

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		hub.Stop()
		srv.Close()
	})
	return bus, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, rawURL string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(rawURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type message struct {
	Seq       uint64 `json:"seq"`
	Type      string `json:"type"`
	AccountID string `json:"account_id"`
}

func read(t *testing.T, conn *websocket.Conn) message {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var m message
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("decode %s: %v", data, err)
	}
	return m
}

func TestStream_FiltersByAccount(t *testing.T) {
	bus, base := startStream(t)
	conn := dial(t, base+"/ws/stream?account=sim")

	if hello := read(t, conn); hello.Type != string(MessageTypeHello) {
		t.Fatalf("expected hello, got %+v", hello)
	}

	bus.AccountChanged(&models.Account{ID: "other"})
	bus.AccountChanged(&models.Account{ID: "sim"})

	got := read(t, conn)
	if got.Type != string(models.EventAccountUpdate) || got.AccountID != "sim" || got.Seq != 2 {
		t.Errorf("expected sim account update with seq 2, got %+v", got)
	}
}

func TestStream_ReplaysSince(t *testing.T) {
	bus, base := startStream(t)
	for i := 0; i < 3; i++ {
		bus.AccountChanged(&models.Account{ID: "sim"})
	}

	conn := dial(t, base+"/ws/stream?since=1")

	for _, want := range []uint64{2, 3} {
		if m := read(t, conn); m.Seq != want || m.Type != string(models.EventAccountUpdate) {
			t.Fatalf("expected replayed seq %d, got %+v", want, m)
		}
	}
	hello := read(t, conn)
	if hello.Type != string(MessageTypeHello) || hello.Seq != 3 {
		t.Fatalf("expected hello at seq 3, got %+v", hello)
	}

	bus.AccountChanged(&models.Account{ID: "sim"})
	if m := read(t, conn); m.Seq != 4 {
		t.Errorf("expected live seq 4, got %+v", m)
	}
}
