package metrics

import "sync"

// Event counter names. Lifecycle events and drop reasons share one registry so
// the Prometheus handler can expose everything as a single counter family.
const (
	ClientConnected    = "client_connected"
	ClientDisconnected = "client_disconnected"
	RoomCreated        = "room_created"
	RoomClosed         = "room_closed"
	ViewerJoined       = "viewer_joined"
	ViewerLeft         = "viewer_left"
	RelayForwarded     = "relay_forwarded"
	ErrorSent          = "error_sent"

	DropReasonMalformed      = "drop_malformed"
	DropReasonUnknownType    = "drop_unknown_type"
	DropReasonNoRoom         = "drop_no_room"
	DropReasonSendQueueFull  = "drop_send_queue_full"
	DropReasonRateLimited    = "drop_rate_limited"
	DropReasonTooManyClients = "drop_too_many_clients"
)

// Metrics is a minimal, concurrency-safe counter registry.
//
// Deployments that want a full metrics backend can scrape the Prometheus
// handler; keeping the registry in-process keeps the routing core testable
// without external collectors.
type Metrics struct {
	mu sync.Mutex
	m  map[string]uint64
}

func New() *Metrics {
	return &Metrics{
		m: make(map[string]uint64),
	}
}

func (m *Metrics) Inc(name string) {
	m.Add(name, 1)
}

func (m *Metrics) Add(name string, delta uint64) {
	m.mu.Lock()
	m.m[name] += delta
	m.mu.Unlock()
}

func (m *Metrics) Get(name string) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.m[name]
}

// Snapshot returns a copy of all counters at a point in time.
func (m *Metrics) Snapshot() map[string]uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]uint64, len(m.m))
	for k, v := range m.m {
		out[k] = v
	}
	return out
}
