package events

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2/log"
)

// Publisher hands an event to its subscribers.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, ev Event) error

func (f PublisherFunc) Publish(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// SyncPublisher dispatches in the caller's goroutine.
type SyncPublisher struct {
	dispatcher *Dispatcher
}

func NewSyncPublisher(d *Dispatcher) *SyncPublisher {
	return &SyncPublisher{dispatcher: d}
}

func (p *SyncPublisher) Publish(ctx context.Context, ev Event) error {
	return p.dispatcher.Handle(ctx, ev)
}

// FanoutPublisher publishes to every configured publisher. The first one is
// primary: its error is returned. Failures of the others are logged only.
type FanoutPublisher struct {
	primary Publisher
	mirrors []Publisher
}

func NewFanoutPublisher(primary Publisher, mirrors ...Publisher) *FanoutPublisher {
	return &FanoutPublisher{primary: primary, mirrors: mirrors}
}

func (p *FanoutPublisher) Publish(ctx context.Context, ev Event) error {
	var primaryErr error
	if p.primary != nil {
		primaryErr = p.primary.Publish(ctx, ev)
	}
	for i, m := range p.mirrors {
		if err := m.Publish(ctx, ev); err != nil {
			log.Warnf("[Events] mirror %d failed to publish %s (%s): %v", i, ev.Type, ev.ID, err)
		}
	}
	if primaryErr != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, primaryErr)
	}
	return nil
}

// NopPublisher drops every event.
var NopPublisher Publisher = PublisherFunc(func(context.Context, Event) error { return nil })
