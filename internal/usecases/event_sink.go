package usecases

import (
	"context"
	"errors"

	"keyguard.backend/internal/domain/entities"
)

// EventSink receives engine events after the operation that produced them
// has committed. Delivery is best effort.
type EventSink interface {
	Publish(ctx context.Context, event entities.Event) error
}

// NopSink drops every event.
type NopSink struct{}

func (NopSink) Publish(context.Context, entities.Event) error { return nil }

// MultiSink fans an event out to every sink, returning the joined errors.
// A failing sink does not stop delivery to the rest.
type MultiSink []EventSink

func (m MultiSink) Publish(ctx context.Context, event entities.Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
