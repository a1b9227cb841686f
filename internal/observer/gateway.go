package observer

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mikesmullin/daemon-sub001/internal/eventbus"
)

// Websocket framing constants (spec §4.9's event stream), sized and
// timed the way the teacher's ws_control_plane.go runs its control-plane
// connections.
const (
	wsMaxPayloadBytes = 1 << 20
	wsPongWait        = 45 * time.Second
	wsPingInterval    = 15 * time.Second
	wsWriteWait       = 10 * time.Second
)

// wsFrame is the single envelope used for both the init frame and every
// subsequent live event.
type wsFrame struct {
	Type    string      `json:"type"`
	Init    *eventbus.InitFrame `json:"init,omitempty"`
	Event   interface{} `json:"event,omitempty"`
}

// Gateway serves the daemon's read-only HTTP surface: a websocket event
// stream at /events and a Prometheus scrape endpoint at /metrics.
// Neither handler can mutate session, channel, or FSM state — everything
// here is a projection of the event bus and the default Prometheus
// registry (spec §4.9).
type Gateway struct {
	bus      *eventbus.Bus
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewGateway builds a Gateway over bus.
func NewGateway(bus *eventbus.Bus, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		bus:    bus,
		logger: logger.With("component", "observer"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the mux serving /events and /metrics.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", g.serveEvents)
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func (g *Gateway) serveEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	observer, init := g.bus.Attach()
	defer g.bus.Detach(observer)

	session := &wsEventSession{conn: conn, logger: g.logger}
	session.run(observer, init)
}

// wsEventSession owns one connected observer's read/write loops,
// structured after the teacher's wsSession: a dedicated writer goroutine
// draining a channel, a reader goroutine only watching for close/pong,
// and deadline-based liveness checks.
type wsEventSession struct {
	conn   *websocket.Conn
	logger *slog.Logger
}

func (s *wsEventSession) run(observer *eventbus.Observer, init eventbus.InitFrame) {
	done := make(chan struct{})
	go s.readLoop(done)

	if err := s.writeFrame(wsFrame{Type: "init", Init: &init}); err != nil {
		s.conn.Close()
		return
	}

	ticker := time.NewTicker(wsPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			s.conn.Close()
			return
		case event, ok := <-observer.Events():
			if !ok {
				s.conn.Close()
				return
			}
			if err := s.writeFrame(wsFrame{Type: "event", Event: event}); err != nil {
				s.conn.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.conn.Close()
				return
			}
		}
	}
}

// readLoop only exists to detect the client going away — observers never
// send commands over this connection (it is read-only, spec §4.9).
func (s *wsEventSession) readLoop(done chan<- struct{}) {
	defer close(done)
	s.conn.SetReadLimit(wsMaxPayloadBytes)
	_ = s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *wsEventSession) writeFrame(frame wsFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}
