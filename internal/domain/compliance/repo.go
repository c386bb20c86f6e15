package compliance

import (
	"context"
	"time"
)

type Repository interface {
	// TransitionCounts buckets journey steps by day and step type over
	// [from, to).
	TransitionCounts(ctx context.Context, from, to time.Time) ([]*TransitionCount, error)
	// DurationStats averages checked_in->called waits and started->completed
	// consultation durations over [from, to).
	DurationStats(ctx context.Context, from, to time.Time) (*DurationStats, error)
	// Divergences lists queue entries whose status does not match their
	// latest journey step.
	Divergences(ctx context.Context, limit int) ([]*Divergence, error)
}
