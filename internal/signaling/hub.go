package signaling

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/mirrorcast/signal-relay/internal/metrics"
	"github.com/mirrorcast/signal-relay/internal/ratelimit"
)

// Conn is the outbound half of a client connection, supplied by the
// transport.
type Conn interface {
	// Enqueue offers msg to the client's send queue without blocking. False
	// means the message was dropped (queue full or connection closing); the
	// Hub treats that as a silent no-op.
	Enqueue(msg Envelope) bool

	// Close tears down the underlying transport. Idempotent.
	Close()
}

type Role string

const (
	RoleHost   Role = "host"
	RoleViewer Role = "viewer"
)

type membership struct {
	roomID string
	role   Role
}

type room struct {
	host    string
	viewers map[string]struct{}
	created time.Time
}

// RoomInfo is a point-in-time view of a live room, for observability and
// tests.
type RoomInfo struct {
	HostID      string
	ViewerCount int
	Created     time.Time
}

type HubConfig struct {
	// MaxClients caps concurrently registered clients. <= 0 means unlimited.
	MaxClients int
	// MaxViewersPerRoom caps the viewer set of a single room. <= 0 means
	// unlimited.
	MaxViewersPerRoom int

	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Clock   ratelimit.Clock
}

// Hub is the single authority over the connection and room registries.
//
// Every mutation (register, room create/join, relay lookup, disconnect
// cleanup) runs under one mutex, because the cross-registry invariants — a
// client belongs to at most one room, a room's host is always a registered
// client id — must be checked and updated together. Outbound sends are
// non-blocking enqueues, so holding the mutex across fan-out never stalls on
// a slow peer.
type Hub struct {
	log     *slog.Logger
	metrics *metrics.Metrics
	clock   ratelimit.Clock

	maxClients        int
	maxViewersPerRoom int

	mu      sync.Mutex
	clients map[string]Conn
	rooms   map[string]*room
	members map[string]membership
}

func NewHub(cfg HubConfig) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	m := cfg.Metrics
	if m == nil {
		m = metrics.New()
	}
	clock := cfg.Clock
	if clock == nil {
		clock = ratelimit.RealClock{}
	}

	return &Hub{
		log:     logger,
		metrics: m,
		clock:   clock,

		maxClients:        cfg.MaxClients,
		maxViewersPerRoom: cfg.MaxViewersPerRoom,

		clients: make(map[string]Conn),
		rooms:   make(map[string]*room),
		members: make(map[string]membership),
	}
}

func (h *Hub) Metrics() *metrics.Metrics { return h.metrics }

// Register allocates a client id, records the connection, and acknowledges
// readiness with a `connected` envelope.
func (h *Hub) Register(conn Conn) (string, error) {
	h.mu.Lock()
	if h.maxClients > 0 && len(h.clients) >= h.maxClients {
		h.mu.Unlock()
		h.metrics.Inc(metrics.DropReasonTooManyClients)
		return "", ErrTooManyClients
	}

	var id string
	for attempt := 0; ; attempt++ {
		candidate, err := newClientID()
		if err != nil {
			h.mu.Unlock()
			return "", err
		}
		if _, taken := h.clients[candidate]; !taken {
			id = candidate
			break
		}
		// ~46 bits of entropy makes a collision among live clients nearly
		// unreachable; bound the retry anyway.
		if attempt >= 3 {
			h.mu.Unlock()
			return "", errors.New("failed to allocate unique client id")
		}
	}
	h.clients[id] = conn
	h.sendLocked(id, Envelope{Type: TypeConnected, ClientID: id})
	total := len(h.clients)
	h.mu.Unlock()

	h.metrics.Inc(metrics.ClientConnected)
	h.log.Info("client_connected", "client_id", id, "clients", total)
	return id, nil
}

// Unregister removes the client and propagates room-level consequences: host
// loss notifies every viewer and deletes the room, viewer loss shrinks the
// viewer set. Idempotent; safe to call for unknown ids.
func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	conn, known := h.clients[id]
	delete(h.clients, id)

	m, inRoom := h.members[id]
	if inRoom {
		delete(h.members, id)
		rm := h.rooms[m.roomID]
		switch m.role {
		case RoleHost:
			for viewerID := range rm.viewers {
				delete(h.members, viewerID)
				h.sendLocked(viewerID, Envelope{Type: TypeHostDisconnected})
			}
			delete(h.rooms, m.roomID)
			h.metrics.Inc(metrics.RoomClosed)
			h.log.Info("room_closed", "room_id", m.roomID, "host_id", id, "viewers", len(rm.viewers))
		case RoleViewer:
			delete(rm.viewers, id)
			h.metrics.Inc(metrics.ViewerLeft)
			h.log.Info("viewer_left", "room_id", m.roomID, "viewer_id", id)
		}
	}
	h.mu.Unlock()

	if known {
		conn.Close()
		h.metrics.Inc(metrics.ClientDisconnected)
		h.log.Info("client_disconnected", "client_id", id)
	}
}

// HandleMessage routes one inbound envelope from senderID. Malformed input
// and unknown types are dropped without a reply.
func (h *Hub) HandleMessage(senderID string, data []byte) {
	env, err := ParseEnvelope(data)
	if err != nil {
		if errors.Is(err, errUnknownMessageType) {
			h.metrics.Inc(metrics.DropReasonUnknownType)
			h.log.Debug("dropped_unknown_type", "client_id", senderID, "err", err)
		} else {
			h.metrics.Inc(metrics.DropReasonMalformed)
			h.log.Debug("dropped_malformed", "client_id", senderID, "err", err)
		}
		return
	}

	switch env.Type {
	case TypeCreateRoom:
		h.createRoom(senderID, env.RoomID)
	case TypeJoinRoom:
		h.joinRoom(senderID, env.RoomID)
	case TypeOffer, TypeAnswer, TypeICECandidate:
		h.relay(senderID, env)
	case TypeViewerConnected:
		h.notifyHost(senderID)
	}
}

func (h *Hub) createRoom(hostID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, known := h.clients[hostID]; !known {
		return
	}
	if _, member := h.members[hostID]; member {
		h.rejectLocked(hostID, ErrAlreadyInRoom)
		return
	}
	if _, exists := h.rooms[roomID]; exists {
		h.rejectLocked(hostID, ErrRoomExists)
		return
	}

	h.rooms[roomID] = &room{
		host:    hostID,
		viewers: make(map[string]struct{}),
		created: h.clock.Now(),
	}
	h.members[hostID] = membership{roomID: roomID, role: RoleHost}
	h.sendLocked(hostID, Envelope{Type: TypeRoomCreated, RoomID: roomID})

	h.metrics.Inc(metrics.RoomCreated)
	h.log.Info("room_created", "room_id", roomID, "host_id", hostID)
}

func (h *Hub) joinRoom(viewerID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, known := h.clients[viewerID]; !known {
		return
	}

	rm, exists := h.rooms[roomID]

	if m, member := h.members[viewerID]; member {
		if m.roomID == roomID && m.role == RoleViewer {
			// Idempotent re-join: viewer set unchanged, acknowledge again.
			h.sendLocked(viewerID, Envelope{Type: TypeRoomJoined, RoomID: roomID, HostID: rm.host})
			return
		}
		h.rejectLocked(viewerID, ErrAlreadyInRoom)
		return
	}

	if !exists {
		h.rejectLocked(viewerID, ErrRoomNotFound)
		return
	}
	if h.maxViewersPerRoom > 0 && len(rm.viewers) >= h.maxViewersPerRoom {
		h.rejectLocked(viewerID, ErrRoomFull)
		return
	}

	rm.viewers[viewerID] = struct{}{}
	h.members[viewerID] = membership{roomID: roomID, role: RoleViewer}
	h.sendLocked(viewerID, Envelope{Type: TypeRoomJoined, RoomID: roomID, HostID: rm.host})

	h.metrics.Inc(metrics.ViewerJoined)
	h.log.Info("viewer_joined", "room_id", roomID, "viewer_id", viewerID)
}

// relay fans an offer/answer/ice-candidate envelope out by sender role: host
// to every viewer, viewer to the host only. A sender in no room is an
// expected race with disconnection and is dropped silently.
func (h *Hub) relay(senderID string, env Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, member := h.members[senderID]
	if !member {
		h.metrics.Inc(metrics.DropReasonNoRoom)
		h.log.Debug("dropped_no_room", "client_id", senderID, "type", env.Type)
		return
	}
	rm := h.rooms[m.roomID]

	out := Envelope{
		Type:      env.Type,
		SDP:       env.SDP,
		Candidate: env.Candidate,
		From:      senderID,
	}

	switch m.role {
	case RoleHost:
		for viewerID := range rm.viewers {
			h.sendLocked(viewerID, out)
		}
	case RoleViewer:
		h.sendLocked(rm.host, out)
	}
	h.metrics.Inc(metrics.RelayForwarded)
}

func (h *Hub) notifyHost(viewerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	m, member := h.members[viewerID]
	if !member || m.role != RoleViewer {
		h.metrics.Inc(metrics.DropReasonNoRoom)
		return
	}
	rm := h.rooms[m.roomID]
	h.sendLocked(rm.host, Envelope{Type: TypeViewerConnected, ViewerID: viewerID})
}

// sendLocked delivers best-effort: unknown target or a full send queue is a
// silent no-op toward the caller.
func (h *Hub) sendLocked(id string, env Envelope) {
	conn, ok := h.clients[id]
	if !ok {
		return
	}
	if !conn.Enqueue(env) {
		h.metrics.Inc(metrics.DropReasonSendQueueFull)
		h.log.Warn("send_queue_full", "client_id", id, "type", env.Type)
	}
}

func (h *Hub) rejectLocked(id string, reason error) {
	h.sendLocked(id, Envelope{Type: TypeError, Message: reason.Error()})
	h.metrics.Inc(metrics.ErrorSent)
}

// Close drops every live connection and clears both registries. Used on
// shutdown; no per-room notifications are sent.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]Conn, 0, len(h.clients))
	for _, c := range h.clients {
		conns = append(conns, c)
	}
	h.clients = make(map[string]Conn)
	h.rooms = make(map[string]*room)
	h.members = make(map[string]membership)
	h.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}

func (h *Hub) ActiveClients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) ActiveRooms() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Room returns a snapshot of one live room.
func (h *Hub) Room(roomID string) (RoomInfo, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rm, ok := h.rooms[roomID]
	if !ok {
		return RoomInfo{}, false
	}
	return RoomInfo{
		HostID:      rm.host,
		ViewerCount: len(rm.viewers),
		Created:     rm.created,
	}, true
}
