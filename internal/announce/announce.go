// Package announce publishes build lifecycle events to NATS so external
// tooling (CI dashboards, bots) can follow batch progress. The publisher is
// optional: a nil *Publisher is a safe no-op.
package announce

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/xhyrom-forks/BunnyPlugins/internal/config"
)

// Event is the envelope published for every lifecycle event.
type Event struct {
	ID      string    `json:"id"`
	Type    string    `json:"type"`
	Time    time.Time `json:"time"`
	Units   []string  `json:"units,omitempty"`
	Count   int       `json:"count,omitempty"`
	Elapsed string    `json:"elapsed,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// Publisher publishes events to a single subject hierarchy.
type Publisher struct {
	conn    *nats.Conn
	subject string
}

// New connects to NATS when the config enables it; otherwise it returns
// (nil, nil) and the caller keeps a no-op publisher.
func New(cfg config.NATSConfig) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	conn, err := nats.Connect(cfg.URL, nats.Name("bunnybuild"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	slog.Info("NATS announcer connected", "url", cfg.URL, "subject", cfg.Subject)
	return &Publisher{conn: conn, subject: cfg.Subject}, nil
}

// Close drains the connection.
func (p *Publisher) Close() {
	if p == nil || p.conn == nil {
		return
	}
	if err := p.conn.Drain(); err != nil {
		slog.Debug("NATS drain failed", "error", err)
	}
}

// BatchStarted announces that a build batch began.
func (p *Publisher) BatchStarted(units []string) {
	p.publish("batch.started", Event{Units: units, Count: len(units)})
}

// BatchCompleted announces a fully successful batch.
func (p *Publisher) BatchCompleted(units []string, elapsed time.Duration) {
	p.publish("batch.completed", Event{Units: units, Count: len(units), Elapsed: elapsed.String()})
}

// BatchFailed announces a rejected batch.
func (p *Publisher) BatchFailed(err error) {
	p.publish("batch.failed", Event{Error: err.Error()})
}

// PluginsChanged announces the plugins from one change notification.
func (p *Publisher) PluginsChanged(units []string) {
	p.publish("plugins.changed", Event{Units: units, Count: len(units)})
}

func (p *Publisher) publish(kind string, evt Event) {
	if p == nil || p.conn == nil {
		return
	}
	evt.ID = uuid.NewString()
	evt.Type = kind
	evt.Time = time.Now().UTC()

	payload, err := json.Marshal(evt)
	if err != nil {
		slog.Error("Failed to marshal announce event", "type", kind, "error", err)
		return
	}
	if err := p.conn.Publish(p.subject+"."+kind, payload); err != nil {
		slog.Debug("Announce publish failed", "type", kind, "error", err)
	}
}
