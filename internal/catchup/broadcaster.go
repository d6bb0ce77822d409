// Package catchup tracks which plugins changed while a development client
// was unreachable and replays the accumulated set when the client
// reconnects. A client that has never been seen receives everything changed
// since process start (the global set); a previously seen client receives
// only what changed since its last connection. Delivery is
// offline-durable in spirit but bounded by process lifetime: nothing is
// persisted.
package catchup

import (
	"log/slog"
	"sync"
	"time"

	"github.com/xhyrom-forks/BunnyPlugins/internal/metrics"
	"github.com/xhyrom-forks/BunnyPlugins/internal/util/sets"
)

// DefaultHeartbeatInterval is used when no interval is configured.
const DefaultHeartbeatInterval = 20 * time.Second

// Conn is one live bidirectional connection. Implemented by the websocket
// transport and by test fakes. Send must be safe for concurrent use; the
// heartbeat goroutine writes concurrently with broadcasts.
type Conn interface {
	Send(v any) error
	Close() error
}

// client is the broadcaster's bookkeeping for one live connection. A
// connection is inert (no catch-up, no heartbeat) until a handshake binds
// an identity; the identity is immutable afterward.
type client struct {
	identity      string
	stopHeartbeat chan struct{}
}

// Broadcaster owns the identity registry: a global pending set plus one
// pending set per known identity, connected or not. The registry is guarded
// by a single mutex; heartbeat goroutines write to their connection but
// never touch the registry.
type Broadcaster struct {
	heartbeat time.Duration
	rec       metrics.Recorder

	mu      sync.Mutex
	global  sets.Set[string]
	tracked map[string]sets.Set[string]
	conns   map[Conn]*client
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithHeartbeatInterval overrides the heartbeat period.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(b *Broadcaster) {
		if d > 0 {
			b.heartbeat = d
		}
	}
}

// WithRecorder injects a metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(b *Broadcaster) {
		if r != nil {
			b.rec = r
		}
	}
}

// New creates an empty broadcaster.
func New(opts ...Option) *Broadcaster {
	b := &Broadcaster{
		heartbeat: DefaultHeartbeatInterval,
		rec:       metrics.NoopRecorder{},
		global:    sets.New[string](),
		tracked:   make(map[string]sets.Set[string]),
		conns:     make(map[Conn]*client),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// OnConnect registers a connection with no identity yet. It stays inert
// until Handshake binds one.
func (b *Broadcaster) OnConnect(conn Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.conns[conn]; ok {
		return
	}
	b.conns[conn] = &client{}
	b.rec.SetLiveClients(len(b.conns))
	slog.Debug("Dev client connected", "clients", len(b.conns))
}

// Handshake binds an identity to the connection exactly once; handshakes on
// an unknown connection, with an empty identity, or after an identity is
// already bound are ignored. The reply carries the accumulated catch-up set
// (the identity's own set if it is tracked, else the global set), which is
// drained to empty in the same step. The periodic heartbeat starts here.
func (b *Broadcaster) Handshake(conn Conn, identity string) {
	b.mu.Lock()
	c, ok := b.conns[conn]
	if !ok || identity == "" || c.identity != "" {
		b.mu.Unlock()
		return
	}
	c.identity = identity

	var drained []string
	if pending, tracked := b.tracked[identity]; tracked {
		drained = sets.SortedStrings(pending)
		b.tracked[identity] = sets.New[string]()
	} else {
		// First contact: hand over everything changed since process start.
		// The global set itself is kept for future first-time connectors.
		drained = sets.SortedStrings(b.global)
	}

	c.stopHeartbeat = make(chan struct{})
	stop := c.stopHeartbeat
	b.mu.Unlock()

	slog.Info("Dev client identified", "identity", identity, "catchup", len(drained))
	if err := conn.Send(ConnectReply{Op: OpConnect, Catchup: drained}); err != nil {
		slog.Debug("Catch-up reply failed", "identity", identity, "error", err)
	}

	go b.runHeartbeat(conn, identity, stop)
}

// OnDisconnect stops the heartbeat and, when the connection was bound,
// resets that identity's catch-up set to empty: the identity is tracked
// from now on and never again falls back to the global set.
func (b *Broadcaster) OnDisconnect(conn Conn) {
	b.mu.Lock()
	c, ok := b.conns[conn]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.conns, conn)
	if c.stopHeartbeat != nil {
		close(c.stopHeartbeat)
	}
	if c.identity != "" {
		b.tracked[c.identity] = sets.New[string]()
	}
	b.rec.SetLiveClients(len(b.conns))
	b.rec.SetTrackedIdentities(len(b.tracked))
	b.mu.Unlock()

	if c.identity != "" {
		slog.Debug("Dev client disconnected", "identity", c.identity)
	} else {
		slog.Debug("Unidentified dev client disconnected")
	}
}

// NotifyChanged records the changed plugin names in every pending set
// (global and per-identity, connected or not) and pushes an immediate
// update to every live connection. Empty name lists — e.g. from a sentinel
// read racing a write — are a no-op.
func (b *Broadcaster) NotifyChanged(names []string) {
	clean := make([]string, 0, len(names))
	for _, n := range names {
		if n != "" {
			clean = append(clean, n)
		}
	}
	if len(clean) == 0 {
		return
	}

	b.mu.Lock()
	b.global.AddAll(clean...)
	for _, pending := range b.tracked {
		pending.AddAll(clean...)
	}
	live := make([]Conn, 0, len(b.conns))
	for conn := range b.conns {
		live = append(live, conn)
	}
	b.rec.SetTrackedIdentities(len(b.tracked))
	b.mu.Unlock()

	slog.Info("Broadcasting plugin changes", "plugins", clean, "clients", len(live))
	msg := Update{Op: OpUpdate, Update: clean}
	for _, conn := range live {
		if err := conn.Send(msg); err != nil {
			slog.Debug("Update push failed", "error", err)
		}
	}
}

// Shutdown closes every live connection and stops their heartbeats.
func (b *Broadcaster) Shutdown() {
	b.mu.Lock()
	conns := make([]Conn, 0, len(b.conns))
	for conn, c := range b.conns {
		conns = append(conns, conn)
		if c.stopHeartbeat != nil {
			close(c.stopHeartbeat)
			c.stopHeartbeat = nil
		}
	}
	b.conns = make(map[Conn]*client)
	b.rec.SetLiveClients(0)
	b.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}

// LiveClients reports the number of registered connections. Primarily for
// tests and diagnostics.
func (b *Broadcaster) LiveClients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

// TrackedIdentities reports how many identities have a dedicated catch-up
// set. Primarily for tests and diagnostics.
func (b *Broadcaster) TrackedIdentities() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.tracked)
}

func (b *Broadcaster) runHeartbeat(conn Conn, identity string, stop <-chan struct{}) {
	ticker := time.NewTicker(b.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := conn.Send(Ping{Op: OpPing}); err != nil {
				slog.Debug("Heartbeat failed", "identity", identity, "error", err)
			}
		}
	}
}
