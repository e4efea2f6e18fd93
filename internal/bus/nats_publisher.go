// Package bus implements domain.EventPublisher over NATS JetStream, adapted
// from the teacher pack's NATSEventPublisher: the same connect/reconnect and
// stream-provisioning shape, narrowed to the publish-only CloudEvents-style
// envelope spec §6 describes.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/bcgov/sbc-pay-sub002/internal/domain"
)

// NATSPublisher publishes domain.Event envelopes onto a single JetStream
// stream, one NATS subject per event Type.
type NATSPublisher struct {
	nc  *nats.Conn
	js  nats.JetStreamContext
	log zerolog.Logger
}

// NewNATSPublisher connects to natsURL and ensures the named stream exists,
// subscribed to every subject under "sub002.>".
func NewNATSPublisher(natsURL, streamName string, log zerolog.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(natsURL,
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}

	js, err := nc.JetStream()
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	p := &NATSPublisher{nc: nc, js: js, log: log}
	if err := p.ensureStream(streamName); err != nil {
		nc.Close()
		return nil, err
	}
	return p, nil
}

func (p *NATSPublisher) ensureStream(name string) error {
	cfg := &nats.StreamConfig{
		Name:     name,
		Subjects: []string{"sub002.>"},
		MaxAge:   90 * 24 * time.Hour,
		Storage:  nats.FileStorage,
		Replicas: 1,
	}

	if _, err := p.js.StreamInfo(name); err != nil {
		if _, err := p.js.AddStream(cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", name, err)
		}
		p.log.Info().Str("stream", name).Msg("created nats stream")
		return nil
	}

	if _, err := p.js.UpdateStream(cfg); err != nil {
		p.log.Warn().Err(err).Str("stream", name).Msg("failed to update stream config")
	}
	return nil
}

// Publish serializes event and publishes it to "sub002.<topic>", blocking
// for the JetStream ack or a 5s timeout.
func (p *NATSPublisher) Publish(ctx context.Context, topic string, event domain.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	subject := "sub002." + topic
	publishCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	ack, err := p.js.PublishAsync(subject, data, nats.MsgId(event.ID))
	if err != nil {
		return fmt.Errorf("publish event %s: %w", event.ID, err)
	}

	select {
	case <-ack.Ok():
		return nil
	case err := <-ack.Err():
		return fmt.Errorf("event publish failed: %w", err)
	case <-publishCtx.Done():
		return fmt.Errorf("event publish timeout: %w", publishCtx.Err())
	}
}

// Close closes the underlying NATS connection.
func (p *NATSPublisher) Close() {
	p.nc.Close()
}
