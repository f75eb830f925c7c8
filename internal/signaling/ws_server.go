package signaling

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mirrorcast/signal-relay/internal/config"
	"github.com/mirrorcast/signal-relay/internal/metrics"
	"github.com/mirrorcast/signal-relay/internal/ratelimit"
)

// WebSocketServer terminates client WebSockets and bridges them to the Hub.
// One goroutine per connection reads and routes; a second drains the
// buffered send queue so a stalled peer never blocks the registries.
type WebSocketServer struct {
	cfg      config.Config
	hub      *Hub
	log      *slog.Logger
	metrics  *metrics.Metrics
	clock    ratelimit.Clock
	upgrader websocket.Upgrader
}

func NewWebSocketServer(cfg config.Config, hub *Hub, logger *slog.Logger) *WebSocketServer {
	s := &WebSocketServer{
		cfg:     cfg,
		hub:     hub,
		log:     logger,
		metrics: hub.Metrics(),
		clock:   ratelimit.RealClock{},
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

// SetClock replaces the clock behind each connection's rate limiter. Call
// before serving; tests use it to drive the limiter deterministically.
func (s *WebSocketServer) SetClock(clock ratelimit.Clock) {
	if clock != nil {
		s.clock = clock
	}
}

// checkOrigin admits requests without an Origin header (non-browser clients)
// and browser requests from a configured origin. An empty allowlist admits
// everything.
func (s *WebSocketServer) checkOrigin(r *http.Request) bool {
	if len(s.cfg.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.cfg.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (s *WebSocketServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error (including 403 on origin
		// mismatch).
		s.log.Debug("ws_upgrade_rejected", "remote", r.RemoteAddr, "err", err)
		return
	}

	client := &wsClient{
		ws:           ws,
		send:         make(chan Envelope, s.cfg.ClientSendQueueSize),
		done:         make(chan struct{}),
		writeTimeout: s.cfg.WSWriteTimeout,
		pingInterval: s.cfg.WSPingInterval,
		log:          s.log,
	}

	id, err := s.hub.Register(client)
	if err != nil {
		deadline := time.Now().Add(s.cfg.WSWriteTimeout)
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()), deadline)
		_ = ws.Close()
		return
	}

	go client.writePump()
	s.readLoop(id, ws)
	s.hub.Unregister(id)
}

// readLoop pumps inbound frames into the hub until the peer goes away. Frame
// discipline is enforced here so the hub only ever sees byte payloads: size
// cap, idle deadline refreshed by pongs, a per-connection message-rate
// bucket, and text frames only.
func (s *WebSocketServer) readLoop(id string, ws *websocket.Conn) {
	ws.SetReadLimit(s.cfg.MaxSignalMessageBytes)
	idle := s.cfg.WSIdleTimeout
	_ = ws.SetReadDeadline(time.Now().Add(idle))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(idle))
	})

	var limiter *ratelimit.Limiter
	if rate := s.cfg.MaxSignalMessagesPerSecond; rate > 0 {
		limiter = ratelimit.NewLimiter(s.clock, int64(rate))
	}

	for {
		msgType, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("ws_read_failed", "client_id", id, "err", err)
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(idle))

		if msgType != websocket.TextMessage {
			s.metrics.Inc(metrics.DropReasonMalformed)
			continue
		}
		if limiter != nil && !limiter.Allow() {
			// Drop the excess but keep the connection; a browser mid ICE
			// burst recovers on its own.
			s.metrics.Inc(metrics.DropReasonRateLimited)
			s.log.Debug("ws_rate_limited", "client_id", id)
			continue
		}
		s.hub.HandleMessage(id, data)
	}
}

// wsClient adapts a gorilla connection to the Conn interface. Sends are
// queued; the pump owns all data writes.
type wsClient struct {
	ws           *websocket.Conn
	send         chan Envelope
	done         chan struct{}
	writeTimeout time.Duration
	pingInterval time.Duration
	log          *slog.Logger

	closeOnce sync.Once
}

func (c *wsClient) Enqueue(msg Envelope) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	case <-c.done:
		return false
	default:
		return false
	}
}

func (c *wsClient) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		deadline := time.Now().Add(c.writeTimeout)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		_ = c.ws.Close()
	})
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
			if err := c.ws.WriteJSON(msg); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(c.writeTimeout)
			if err := c.ws.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}
