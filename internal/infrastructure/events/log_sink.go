package events

import (
	"context"

	"keyguard.backend/internal/domain/entities"
	"keyguard.backend/pkg/logger"
)

// LogSink writes every event as a structured log line.
type LogSink struct{}

func NewLogSink() *LogSink {
	return &LogSink{}
}

func (s *LogSink) Publish(ctx context.Context, event entities.Event) error {
	logger.Info(ctx, "Engine event", eventFields(event)...)
	return nil
}
