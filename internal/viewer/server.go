// Package viewer serves the subtitle stream to websocket clients: browser
// overlays, OBS sources, and the bundled terminal viewer.
//
// Each connection gets its own hub subscription and writer goroutine, so a
// stalled viewer only ever loses its own events. Clients are expected to
// send a JSON ping at the configured interval; a viewer whose last ping is
// older than the heartbeat timeout is closed and unregistered.
package viewer

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/sorane/livetl/internal/hub"
	"github.com/sorane/livetl/internal/observe"
	"github.com/sorane/livetl/pkg/types"
)

// writeTimeout bounds a single message write so one wedged TCP connection
// cannot pin a writer goroutine.
const writeTimeout = 5 * time.Second

// Config holds the viewer endpoint settings.
type Config struct {
	// HeartbeatInterval is the expected client ping cadence. The server
	// checks for expired heartbeats on this interval.
	HeartbeatInterval time.Duration

	// HeartbeatTimeout closes a viewer whose last ping is older than this.
	// Must exceed HeartbeatInterval.
	HeartbeatTimeout time.Duration

	// MaxViewers is a soft cap on simultaneous connections; further
	// connection attempts are refused with 503.
	MaxViewers int
}

// Option configures a Server.
type Option func(*Server)

// WithMetrics attaches metric instruments. Defaults to observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// Server manages viewer websocket connections over a broadcast hub.
type Server struct {
	hub     *hub.Hub
	cfg     Config
	metrics *observe.Metrics

	mu    sync.Mutex
	conns map[string]*websocket.Conn
}

// welcomeMessage is the first frame sent on every new connection.
type welcomeMessage struct {
	Type        string `json:"type"`
	ClientCount int    `json:"client_count"`
}

// controlMessage covers the client→server side of the protocol, which is
// currently just pings.
type controlMessage struct {
	Type string `json:"type"`
}

// subtitleMessage is the wire form of a subtitle event.
type subtitleMessage struct {
	Type       string    `json:"type"`
	Sequence   uint64    `json:"sequence"`
	Original   string    `json:"original"`
	Translated string    `json:"translated"`
	EmittedAt  time.Time `json:"emitted_at"`
}

func subtitleFrame(ev types.SubtitleEvent) subtitleMessage {
	return subtitleMessage{
		Type:       "subtitle",
		Sequence:   ev.Sequence,
		Original:   ev.Original,
		Translated: ev.Translated,
		EmittedAt:  ev.EmittedAt,
	}
}

// New creates a viewer Server broadcasting from h.
func New(h *hub.Hub, cfg Config, opts ...Option) *Server {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.HeartbeatTimeout <= cfg.HeartbeatInterval {
		cfg.HeartbeatTimeout = 2*cfg.HeartbeatInterval + cfg.HeartbeatInterval/2
	}
	if cfg.MaxViewers <= 0 {
		cfg.MaxViewers = 256
	}
	s := &Server{
		hub:   h,
		cfg:   cfg,
		conns: make(map[string]*websocket.Conn),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Handler returns the websocket endpoint handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleViewer)
	return mux
}

// Count returns the number of connected viewers.
func (s *Server) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// CloseAll disconnects every viewer. Used during shutdown.
func (s *Server) CloseAll() {
	s.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()
	for _, c := range conns {
		_ = c.Close(websocket.StatusGoingAway, "server shutting down")
	}
}

func (s *Server) handleViewer(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	if len(s.conns) >= s.cfg.MaxViewers {
		s.mu.Unlock()
		http.Error(w, "viewer limit reached", http.StatusServiceUnavailable)
		return
	}
	s.mu.Unlock()

	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		// Overlays are embedded in OBS and local pages with arbitrary
		// origins; the stream is broadcast-only.
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Warn("viewer handshake failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	id := uuid.NewString()
	s.mu.Lock()
	s.conns[id] = c
	count := len(s.conns)
	s.mu.Unlock()

	ctx := r.Context()
	s.metrics.ActiveViewers.Add(ctx, 1)
	slog.Info("viewer connected", "viewer", id, "remote", r.RemoteAddr, "total", count)

	defer func() {
		s.mu.Lock()
		delete(s.conns, id)
		remaining := len(s.conns)
		s.mu.Unlock()
		s.metrics.ActiveViewers.Add(context.Background(), -1)
		slog.Info("viewer disconnected", "viewer", id, "total", remaining)
		_ = c.Close(websocket.StatusNormalClosure, "")
	}()

	s.serve(ctx, c, id, count)
}

// serve runs one connection until the viewer disconnects, stops pinging, or
// the server shuts down. A reader goroutine answers pings while this
// goroutine owns subtitle delivery; the library serialises writes.
func (s *Server) serve(ctx context.Context, c *websocket.Conn, id string, count int) {
	sub := s.hub.Subscribe("viewer:" + id[:8])
	if sub == nil {
		return // hub already closed
	}
	defer sub.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// lastPing holds the UnixNano of the most recent client ping. The
	// connect itself counts so a silent client gets a full timeout window.
	var lastPing atomic.Int64
	lastPing.Store(time.Now().UnixNano())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		s.readLoop(ctx, c, id, &lastPing)
	}()
	defer wg.Wait()
	defer cancel()

	if err := s.write(ctx, c, welcomeMessage{Type: "welcome", ClientCount: count}); err != nil {
		return
	}

	// A joiner mid-stream gets the latest line immediately instead of a
	// blank screen until the next utterance.
	if latest, ok := s.hub.Latest(); ok {
		if err := s.write(ctx, c, subtitleFrame(latest)); err != nil {
			return
		}
	}

	heartbeat := time.NewTicker(s.cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if err := s.write(ctx, c, subtitleFrame(ev)); err != nil {
				slog.Debug("viewer write failed", "viewer", id, "error", err)
				return
			}

		case <-heartbeat.C:
			idle := time.Since(time.Unix(0, lastPing.Load()))
			if idle > s.cfg.HeartbeatTimeout {
				slog.Info("viewer heartbeat expired", "viewer", id, "idle", idle)
				_ = c.Close(websocket.StatusNormalClosure, "heartbeat timeout")
				return
			}
		}
	}
}

// readLoop consumes client messages, answering each ping with a pong and
// refreshing the heartbeat clock. It returns on any read error.
func (s *Server) readLoop(ctx context.Context, c *websocket.Conn, id string, lastPing *atomic.Int64) {
	for {
		var msg controlMessage
		if err := wsjson.Read(ctx, c, &msg); err != nil {
			return
		}
		if msg.Type != "ping" {
			slog.Debug("ignoring viewer message", "viewer", id, "type", msg.Type)
			continue
		}
		lastPing.Store(time.Now().UnixNano())
		if err := s.write(ctx, c, controlMessage{Type: "pong"}); err != nil {
			return
		}
	}
}

func (s *Server) write(ctx context.Context, c *websocket.Conn, v any) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(wctx, c, v)
}
