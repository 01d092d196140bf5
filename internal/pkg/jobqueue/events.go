package jobqueue

import (
	"context"
	"fmt"

	"github.com/ManuelReschke/MarketFox/internal/pkg/events"
)

// EventPublisher hands domain events to the queue instead of dispatching
// them in the request goroutine.
type EventPublisher struct {
	queue *Queue
}

func NewEventPublisher(q *Queue) *EventPublisher {
	return &EventPublisher{queue: q}
}

func (p *EventPublisher) Publish(ctx context.Context, ev events.Event) error {
	if _, err := p.queue.Enqueue(ctx, ev); err != nil {
		return fmt.Errorf("queue event %s (%s): %w", ev.ID, ev.Type, err)
	}
	return nil
}
