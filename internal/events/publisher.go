package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// Event types published on econ.ledger.events.{type}.
const (
	TypeSessionLoaded   = "session_loaded"
	TypeSessionUnloaded = "session_unloaded"
	TypeAutosaveFlush   = "autosave_flush"
)

// Event is a ledger notification for downstream consumers.
type Event struct {
	Type        string    `json:"type"`
	AccountID   uuid.UUID `json:"account_id,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	Balance     float64   `json:"balance"`
	Accounts    int       `json:"accounts"` // batch size for flush events
	Timestamp   time.Time `json:"timestamp"`
}

// Publisher drains the event channel and publishes to NATS JetStream.
// Publishing is best-effort: producers drop events when the channel is full
// rather than blocking the hot path or the flush path.
type Publisher struct {
	js    jetstream.JetStream
	input <-chan Event
	log   zerolog.Logger
}

func NewPublisher(js jetstream.JetStream, input <-chan Event, log zerolog.Logger) *Publisher {
	return &Publisher{js: js, input: input, log: log}
}

// Run starts the publisher loop. Blocks until ctx is cancelled or the input
// channel closes.
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case evt, ok := <-p.input:
			if !ok {
				return nil
			}
			if evt.Timestamp.IsZero() {
				evt.Timestamp = time.Now()
			}

			data, err := json.Marshal(evt)
			if err != nil {
				p.log.Warn().Err(err).Str("type", evt.Type).Msg("marshal event failed")
				continue
			}

			subject := "econ.ledger.events." + evt.Type
			if _, err := p.js.Publish(ctx, subject, data); err != nil {
				p.log.Warn().Err(err).Str("subject", subject).Msg("publish failed")
			}
		}
	}
}

// EnsureOutboundStream creates the outbound JetStream stream if absent.
func EnsureOutboundStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "ECON_LEDGER_EVENTS",
		Subjects:  []string{"econ.ledger.events.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream ECON_LEDGER_EVENTS: %w", err)
	}
	return nil
}

// Connect establishes a NATS connection and returns a JetStream context.
func Connect(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
