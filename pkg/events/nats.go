package events

import (
	"context"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/lurkhq/lurk/pkg/natsutil"
)

// SubjectPrefix is the NATS subject root for republished events.
const SubjectPrefix = "lurk.events."

// NATSBridge republishes bus envelopes to NATS so external consumers can
// observe a run without linking the process.
type NATSBridge struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// NewNATSBridge connects to url and returns the bridge.
func NewNATSBridge(url string, logger *slog.Logger) (*NATSBridge, error) {
	if logger == nil {
		logger = slog.Default()
	}
	nc, err := nats.Connect(url, nats.Name("lurk-events"))
	if err != nil {
		return nil, err
	}
	return &NATSBridge{nc: nc, logger: logger}, nil
}

// Attach subscribes the bridge to all bus events.
func (b *NATSBridge) Attach(bus *Bus) func() {
	return bus.Subscribe("*", b.OnEvent)
}

// OnEvent republishes one envelope to lurk.events.<type>.
func (b *NATSBridge) OnEvent(env Envelope) {
	subject := SubjectPrefix + string(env.Type)
	if err := natsutil.Publish(context.Background(), b.nc, subject, env); err != nil {
		b.logger.Warn("nats republish failed", "subject", subject, "error", err)
	}
}

// Close drains and closes the connection.
func (b *NATSBridge) Close() {
	if err := b.nc.Drain(); err != nil {
		b.logger.Warn("nats drain failed", "error", err)
	}
}
