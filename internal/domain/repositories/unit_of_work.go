package repositories

import (
	"context"
)

// UnitOfWork defines the interface for atomic operations
type UnitOfWork interface {
	// Do executes the given function within a transaction scope. Either every
	// write made through ctx commits or none does.
	Do(ctx context.Context, fn func(ctx context.Context) error) error

	// WithLock marks ctx so that repository reads take row locks until the
	// surrounding transaction ends.
	WithLock(ctx context.Context) context.Context
}
