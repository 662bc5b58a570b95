package events

import (
	"context"

	"keyguard.backend/internal/domain/entities"
	"keyguard.backend/internal/domain/repositories"
)

// AuditSink appends events to the persistent audit trail.
type AuditSink struct {
	repo repositories.KeyEventRepository
}

func NewAuditSink(repo repositories.KeyEventRepository) *AuditSink {
	return &AuditSink{repo: repo}
}

func (s *AuditSink) Publish(ctx context.Context, event entities.Event) error {
	return s.repo.Append(ctx, event)
}
