package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// FileEventHandler processes one decoded FileUploadedPayload. A returned
// error leaves the message unacked so JetStream redelivers it.
type FileEventHandler func(ctx context.Context, payload FileUploadedPayload) error

// NATSFileSubscriber runs a durable JetStream pull consumer on
// "sub002.file.uploaded", handing each message to a FileEventHandler. It is
// the bus-subscription half of internal/orchestrator; NATSPublisher remains
// publish-only per domain.EventPublisher.
type NATSFileSubscriber struct {
	nc  *nats.Conn
	sub *nats.Subscription
	log zerolog.Logger
}

// NewNATSFileSubscriber connects to natsURL and creates (or reuses) a
// durable pull consumer named durableName on the file-upload subject.
func NewNATSFileSubscriber(natsURL, streamName, durableName string, log zerolog.Logger) (*NATSFileSubscriber, error) {
	nc, err := nats.Connect(natsURL,
		nats.ReconnectWait(2_000_000_000),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	subject := "sub002." + TopicFileUploaded
	sub, err := js.PullSubscribe(subject, durableName, nats.BindStream(streamName))
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("pull subscribe %s: %w", subject, err)
	}

	return &NATSFileSubscriber{nc: nc, sub: sub, log: log}, nil
}

// Poll fetches up to batch pending messages, invoking handle for each and
// acking only on success. It returns nil when the context is cancelled or no
// messages are currently pending (nats.ErrTimeout), so callers can run it on
// a ticker without treating an empty poll as an error.
func (s *NATSFileSubscriber) Poll(ctx context.Context, batch int, handle FileEventHandler) error {
	msgs, err := s.sub.Fetch(batch, nats.MaxWait(5_000_000_000))
	if err != nil {
		if err == nats.ErrTimeout || err == context.DeadlineExceeded {
			return nil
		}
		return fmt.Errorf("fetch file events: %w", err)
	}

	for _, msg := range msgs {
		var payload FileUploadedPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			s.log.Error().Err(err).Msg("discarding malformed file-upload event")
			_ = msg.Term()
			continue
		}

		if err := handle(ctx, payload); err != nil {
			s.log.Error().Err(err).
				Str("file_name", payload.FileName).
				Str("file_type", payload.FileType).
				Msg("file-upload handler failed, leaving for redelivery")
			_ = msg.Nak()
			continue
		}
		_ = msg.Ack()
	}
	return nil
}

// Close closes the underlying NATS connection.
func (s *NATSFileSubscriber) Close() {
	s.nc.Close()
}
