package bus

import (
	"context"

	"github.com/bcgov/sbc-pay-sub002/internal/domain"
)

// Noop discards every event. Used in tests and in local runs with no NATS
// endpoint configured.
type Noop struct{}

func (Noop) Publish(ctx context.Context, topic string, event domain.Event) error {
	return nil
}
