package events

import (
	"context"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// SubjectTranscriptAppended is the NATS subject transcript events are forwarded to.
const SubjectTranscriptAppended = "gemchat.transcript.appended"

type rawPublisher interface {
	Publish(subject string, data []byte) error
}

// NATSSink forwards bus messages to NATS subjects.
type NATSSink struct {
	pub  rawPublisher
	conn *nats.Conn
}

// NewNATSSink connects to natsURL, retrying in the background on failure.
func NewNATSSink(natsURL string) (*NATSSink, error) {
	logger := log.With().Str("component", "nats").Logger()
	nc, err := nats.Connect(natsURL,
		nats.Name("gemchat"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, errors.Wrap(err, "nats connect")
	}
	return &NATSSink{pub: nc, conn: nc}, nil
}

// Forward relays every message of topic to subject until ctx is done.
func (s *NATSSink) Forward(ctx context.Context, bus *Bus, topic, subject string) error {
	msgs, err := bus.Subscribe(ctx, topic)
	if err != nil {
		return err
	}

	go func() {
		for msg := range msgs {
			if err := s.pub.Publish(subject, msg.Payload); err != nil {
				log.Warn().Err(err).Str("subject", subject).Str("message_id", msg.UUID).Msg("failed to forward event")
			}
			msg.Ack()
		}
	}()
	return nil
}

// Close drains the connection.
func (s *NATSSink) Close() {
	if s.conn == nil {
		return
	}
	if err := s.conn.Drain(); err != nil {
		s.conn.Close()
	}
}
