package opsfeed

// Publisher publishes run-lifecycle events to every connected operator.
type Publisher interface {
	Publish(event Event)
}

var _ Publisher = (*Hub)(nil)

// Publish implements Publisher by broadcasting the event to all clients.
func (h *Hub) Publish(event Event) {
	h.Broadcast(event)
}

// NoOpPublisher discards every event (used when no operator stream is
// configured, or in tests).
type NoOpPublisher struct{}

// Publish does nothing.
func (NoOpPublisher) Publish(Event) {}
