package viewer

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/sorane/livetl/internal/hub"
	"github.com/sorane/livetl/internal/observe"
	"github.com/sorane/livetl/pkg/types"
)

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m
}

func newTestServer(t *testing.T, h *hub.Hub, cfg Config) (*Server, *httptest.Server) {
	t.Helper()
	s := New(h, cfg, WithMetrics(testMetrics(t)))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return s, ts
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	c, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	t.Cleanup(func() { _ = c.Close(websocket.StatusNormalClosure, "") })
	return c
}

// envelope is loose enough to decode both welcome and subtitle frames.
type envelope struct {
	Type        string    `json:"type"`
	ClientCount int       `json:"client_count"`
	Sequence    uint64    `json:"sequence"`
	Original    string    `json:"original"`
	Translated  string    `json:"translated"`
	EmittedAt   time.Time `json:"emitted_at"`
}

func readFrame(t *testing.T, c *websocket.Conn) envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	var env envelope
	if err := wsjson.Read(ctx, c, &env); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return env
}

func waitForCount(t *testing.T, s *Server, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Count() == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("viewer count = %d, want %d", s.Count(), want)
}

func TestWelcomeMessageOnConnect(t *testing.T) {
	h := hub.New()
	defer h.Close()
	_, ts := newTestServer(t, h, Config{})

	c := dial(t, ts)
	frame := readFrame(t, c)
	if frame.Type != "welcome" {
		t.Fatalf("first frame type = %q, want welcome", frame.Type)
	}
	if frame.ClientCount != 1 {
		t.Fatalf("client_count = %d, want 1", frame.ClientCount)
	}
}

func TestLateJoinerReceivesLatestSnapshot(t *testing.T) {
	h := hub.New()
	defer h.Close()
	_, ts := newTestServer(t, h, Config{})

	h.Publish(context.Background(), types.SubtitleEvent{
		Sequence:   7,
		Original:   "こんにちは",
		Translated: "你好",
		EmittedAt:  time.Now(),
	})

	c := dial(t, ts)
	if frame := readFrame(t, c); frame.Type != "welcome" {
		t.Fatalf("first frame type = %q, want welcome", frame.Type)
	}
	frame := readFrame(t, c)
	if frame.Type != "subtitle" || frame.Sequence != 7 {
		t.Fatalf("snapshot frame = %+v, want subtitle seq 7", frame)
	}
	if frame.Translated != "你好" {
		t.Fatalf("snapshot translated = %q", frame.Translated)
	}
}

func TestBroadcastReachesAllViewers(t *testing.T) {
	h := hub.New()
	defer h.Close()
	s, ts := newTestServer(t, h, Config{})

	c1 := dial(t, ts)
	c2 := dial(t, ts)
	readFrame(t, c1) // welcome
	readFrame(t, c2)
	waitForCount(t, s, 2)

	h.Publish(context.Background(), types.SubtitleEvent{
		Sequence: 1, Original: "a", Translated: "b", EmittedAt: time.Now(),
	})

	for _, c := range []*websocket.Conn{c1, c2} {
		frame := readFrame(t, c)
		if frame.Type != "subtitle" || frame.Sequence != 1 {
			t.Fatalf("frame = %+v, want subtitle seq 1", frame)
		}
	}
}

func TestViewerLimitRefusesConnections(t *testing.T) {
	h := hub.New()
	defer h.Close()
	s, ts := newTestServer(t, h, Config{MaxViewers: 1})

	c := dial(t, ts)
	readFrame(t, c)
	waitForCount(t, s, 1)

	resp, err := http.Get(ts.URL)
	if err != nil {
		t.Fatalf("probe request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}
}

func TestPingIsAnsweredWithPong(t *testing.T) {
	h := hub.New()
	defer h.Close()
	_, ts := newTestServer(t, h, Config{})

	c := dial(t, ts)
	readFrame(t, c) // welcome

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := wsjson.Write(ctx, c, map[string]string{"type": "ping"}); err != nil {
		t.Fatalf("send ping: %v", err)
	}
	frame := readFrame(t, c)
	if frame.Type != "pong" {
		t.Fatalf("reply type = %q, want pong", frame.Type)
	}
}

func TestSilentViewerIsEvicted(t *testing.T) {
	h := hub.New()
	defer h.Close()
	s, ts := newTestServer(t, h, Config{
		HeartbeatInterval: 20 * time.Millisecond,
		HeartbeatTimeout:  60 * time.Millisecond,
	})

	c := dial(t, ts)
	readFrame(t, c) // welcome, then never ping

	waitForCount(t, s, 1)
	waitForCount(t, s, 0)
}

func TestPingingViewerStaysConnected(t *testing.T) {
	h := hub.New()
	defer h.Close()
	s, ts := newTestServer(t, h, Config{
		HeartbeatInterval: 20 * time.Millisecond,
		HeartbeatTimeout:  60 * time.Millisecond,
	})

	c := dial(t, ts)
	readFrame(t, c)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := 0; i < 8; i++ {
		if err := wsjson.Write(ctx, c, map[string]string{"type": "ping"}); err != nil {
			t.Fatalf("send ping %d: %v", i, err)
		}
		if frame := readFrame(t, c); frame.Type != "pong" {
			t.Fatalf("reply type = %q, want pong", frame.Type)
		}
		time.Sleep(30 * time.Millisecond)
	}
	if got := s.Count(); got != 1 {
		t.Fatalf("viewer count = %d, want 1 after sustained pings", got)
	}
}

func TestCloseAllDisconnectsViewers(t *testing.T) {
	h := hub.New()
	defer h.Close()
	s, ts := newTestServer(t, h, Config{})

	c := dial(t, ts)
	readFrame(t, c)
	waitForCount(t, s, 1)

	s.CloseAll()
	waitForCount(t, s, 0)
}
