package session

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// Subscriber consumes session join/leave events from NATS JetStream and
// feeds them to the lifecycle. Join messages are ACK'd only after the load
// succeeded: a failed load is NAK'd so the broker redelivers and the session
// start is retried instead of silently defaulting the balance. Leave
// messages are likewise NAK'd when the end-flush fails, so the evict is
// retried after a later autosave has persisted the retained entry.
type Subscriber struct {
	js        jetstream.JetStream
	lifecycle *Lifecycle
	log       zerolog.Logger
	consumers []jetstream.ConsumeContext
}

// sessionEvent is the wire payload on econ.sessions.join / econ.sessions.leave.
type sessionEvent struct {
	AccountID   uuid.UUID `json:"account_id"`
	DisplayName string    `json:"display_name"`
}

func NewSubscriber(js jetstream.JetStream, lifecycle *Lifecycle, log zerolog.Logger) *Subscriber {
	return &Subscriber{js: js, lifecycle: lifecycle, log: log}
}

// EnsureStream creates the session events stream if absent.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      "ECON_SESSIONS",
		Subjects:  []string{"econ.sessions.>"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream ECON_SESSIONS: %w", err)
	}
	return nil
}

// Subscribe creates durable consumers for the join and leave subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (s *Subscriber) Subscribe(ctx context.Context) error {
	subjects := []struct {
		subject  string
		consumer string
		handler  func(jetstream.Msg, sessionEvent)
	}{
		{"econ.sessions.join", "econ-session-join", s.handleJoin},
		{"econ.sessions.leave", "econ-session-leave", s.handleLeave},
	}

	for _, cfg := range subjects {
		consumer, err := s.js.CreateOrUpdateConsumer(ctx, "ECON_SESSIONS", jetstream.ConsumerConfig{
			Durable:       cfg.consumer,
			FilterSubject: cfg.subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.consumer, err)
		}

		handler := cfg.handler
		cc, err := consumer.Consume(func(msg jetstream.Msg) {
			var evt sessionEvent
			if err := json.Unmarshal(msg.Data(), &evt); err != nil {
				// Malformed events are ACK'd to avoid a redelivery loop.
				s.log.Warn().Err(err).Str("subject", msg.Subject()).Msg("unparseable session event")
				msg.Ack()
				return
			}
			if evt.AccountID == uuid.Nil {
				s.log.Warn().Str("subject", msg.Subject()).Msg("session event without account id")
				msg.Ack()
				return
			}
			handler(msg, evt)
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.consumer, err)
		}

		s.consumers = append(s.consumers, cc)
		s.log.Info().Str("subject", cfg.subject).Str("consumer", cfg.consumer).Msg("subscribed")
	}

	return nil
}

func (s *Subscriber) handleJoin(msg jetstream.Msg, evt sessionEvent) {
	s.lifecycle.OnSessionStart(evt.AccountID, evt.DisplayName, func(err error) {
		if err != nil {
			msg.Nak()
			return
		}
		msg.Ack()
	})
}

func (s *Subscriber) handleLeave(msg jetstream.Msg, evt sessionEvent) {
	s.lifecycle.OnSessionEnd(evt.AccountID, func(err error) {
		if err != nil {
			msg.Nak()
			return
		}
		msg.Ack()
	})
}

// Stop gracefully stops all consumers.
func (s *Subscriber) Stop() {
	for _, cc := range s.consumers {
		cc.Stop()
	}
	s.log.Info().Msg("session subscribers stopped")
}
