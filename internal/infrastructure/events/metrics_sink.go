package events

import (
	"context"

	"keyguard.backend/internal/domain/entities"
	"keyguard.backend/internal/infrastructure/monitoring"
)

// MetricsSink turns events into Prometheus counters and gauges.
type MetricsSink struct{}

func NewMetricsSink() *MetricsSink {
	return &MetricsSink{}
}

func (s *MetricsSink) Publish(_ context.Context, event entities.Event) error {
	monitoring.RecordEvent(string(event.Type))

	serviceID := event.ServiceID.String()
	switch event.Type {
	case entities.EventUsageRecorded:
		monitoring.RecordUsage(serviceID)
	case entities.EventServiceCreated, entities.EventServiceUpdated:
		if event.Service != nil {
			monitoring.SetActiveKeys(serviceID, float64(event.Service.ActiveKeys))
		}
	}
	return nil
}
