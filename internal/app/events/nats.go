package events

import (
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"wnschat/internal/pkg/logx"
)

// NATS publishes events on core NATS subjects of the form <prefix>.<type>.
type NATS struct {
	conn   *nats.Conn
	prefix string
	logger zerolog.Logger
}

// NewNATS connects to the NATS server at url. Reconnects are handled by the client library.
func NewNATS(url, prefix, clientName string) (*NATS, error) {
	logger := logx.Component("events")

	nc, err := nats.Connect(url,
		nats.Name(clientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn().Err(err).Msg("NATS connection lost")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info().Str("url", c.ConnectedUrl()).Msg("NATS connection restored")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}

	logger.Info().Str("url", nc.ConnectedUrl()).Str("prefix", prefix).Msg("Connected to NATS.")

	return &NATS{conn: nc, prefix: prefix, logger: logger}, nil
}

// Subject returns the subject an event of type t is published on.
func Subject(prefix string, t Type) string {
	return prefix + "." + string(t)
}

func (n *NATS) Publish(e Event) {
	data, err := e.Encode()
	if err != nil {
		n.logger.Error().Err(err).Str("type", string(e.Type)).Msg("Failed to marshal event")
		return
	}

	if err := n.conn.Publish(Subject(n.prefix, e.Type), data); err != nil {
		n.logger.Error().Err(err).Str("type", string(e.Type)).Msg("Failed to publish event to NATS")
	}
}

// Close flushes buffered events and closes the connection.
func (n *NATS) Close() {
	if err := n.conn.Drain(); err != nil {
		n.logger.Warn().Err(err).Msg("NATS drain failed")
		n.conn.Close()
	}
}
