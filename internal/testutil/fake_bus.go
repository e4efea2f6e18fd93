package testutil

import (
	"context"
	"sync"

	"github.com/bcgov/sbc-pay-sub002/internal/domain"
)

// FakePublisher is an in-memory domain.EventPublisher that records every
// published event for assertions, following the teacher's append-to-slice
// mock style.
type FakePublisher struct {
	mu     sync.Mutex
	Events []PublishedEvent

	PublishFn func(ctx context.Context, topic string, event domain.Event) error
}

// PublishedEvent pairs a topic with the event published to it.
type PublishedEvent struct {
	Topic string
	Event domain.Event
}

func NewFakePublisher() *FakePublisher { return &FakePublisher{} }

func (p *FakePublisher) Publish(ctx context.Context, topic string, event domain.Event) error {
	if p.PublishFn != nil {
		return p.PublishFn(ctx, topic, event)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Events = append(p.Events, PublishedEvent{Topic: topic, Event: event})
	return nil
}

// Len reports how many events have been published so far.
func (p *FakePublisher) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Events)
}
