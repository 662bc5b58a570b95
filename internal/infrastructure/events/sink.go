package events

import (
	"context"

	"go.uber.org/zap"
	"keyguard.backend/internal/domain/entities"
	"keyguard.backend/internal/infrastructure/monitoring"
	"keyguard.backend/pkg/logger"
)

// Sink receives engine events.
type Sink interface {
	Publish(ctx context.Context, event entities.Event) error
}

type guardedSink struct {
	name string
	next Sink
}

// Guard wraps a sink so that delivery failures are logged and counted
// before being returned.
func Guard(name string, next Sink) Sink {
	return &guardedSink{name: name, next: next}
}

func (g *guardedSink) Publish(ctx context.Context, event entities.Event) error {
	err := g.next.Publish(ctx, event)
	if err != nil {
		monitoring.RecordSinkError(g.name)
		logger.Warn(ctx, "Event delivery failed",
			zap.String("sink", g.name),
			zap.String("type", string(event.Type)),
			zap.String("service_id", event.ServiceID.String()),
			zap.Error(err),
		)
	}
	return err
}

func eventFields(event entities.Event) []zap.Field {
	fields := []zap.Field{
		zap.String("type", string(event.Type)),
		zap.String("service_id", event.ServiceID.String()),
		zap.Int64("occurred_at", event.OccurredAt),
	}
	if event.KeyHash != nil {
		fields = append(fields, zap.String("key_hash", event.KeyHash.String()))
	}
	switch event.Type {
	case entities.EventPermissionChecked:
		fields = append(fields,
			zap.String("required", event.Required.String()),
			zap.Bool("granted", event.Granted),
		)
	case entities.EventKeyValidated:
		fields = append(fields, zap.Uint32("remaining", event.Remaining))
	case entities.EventKeyClosed:
		fields = append(fields, zap.Uint64("refunded", event.Refunded))
	}
	return fields
}
