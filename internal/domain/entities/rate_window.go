package entities

import (
	"math"

	domainerrors "keyguard.backend/internal/domain/errors"
)

// Accepted rate limit window sizes, in seconds.
const (
	WindowOneMinute int64 = 60
	WindowOneHour   int64 = 3600
	WindowOneDay    int64 = 86400
)

// IsValidWindow reports whether size is one of the fixed window sizes.
func IsValidWindow(size int64) bool {
	return size == WindowOneMinute || size == WindowOneHour || size == WindowOneDay
}

// RateWindow is a fixed-window quota tracker. All times are unix seconds.
type RateWindow struct {
	Limit uint32
	Size  int64
	Usage uint32
	Start int64
}

// Elapsed reports whether the window that began at Start has ended by now.
func (w RateWindow) Elapsed(now int64) bool {
	return saturatingSub(now, w.Start) >= w.Size
}

// EffectiveUsage is the usage the next admission would see. An elapsed
// window counts as empty without being reset.
func (w RateWindow) EffectiveUsage(now int64) uint32 {
	if w.Elapsed(now) {
		return 0
	}
	return w.Usage
}

// Allows reports whether one more request fits in the window at now.
func (w RateWindow) Allows(now int64) bool {
	return w.EffectiveUsage(now) < w.Limit
}

// Remaining is the number of requests still admissible at now.
func (w RateWindow) Remaining(now int64) uint32 {
	used := w.EffectiveUsage(now)
	if used >= w.Limit {
		return 0
	}
	return w.Limit - used
}

// ResetAt is the unix time at which the current window ends. For an
// elapsed window the next one would start at now.
func (w RateWindow) ResetAt(now int64) int64 {
	if w.Elapsed(now) {
		return now + w.Size
	}
	return w.Start + w.Size
}

// Admit is the mutating admission step: reset an elapsed window, then
// count one request. On rejection w is left unchanged.
func (w *RateWindow) Admit(now int64) error {
	start, usage := w.Start, w.Usage
	if w.Elapsed(now) {
		start, usage = now, 0
	}
	if usage >= w.Limit {
		return domainerrors.ErrRateLimitExceeded
	}
	w.Start = start
	w.Usage = usage + 1
	return nil
}

func saturatingSub(a, b int64) int64 {
	if b > 0 && a < math.MinInt64+b {
		return math.MinInt64
	}
	if b < 0 && a > math.MaxInt64+b {
		return math.MaxInt64
	}
	return a - b
}
