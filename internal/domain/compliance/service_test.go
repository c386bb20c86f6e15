package compliance

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

type mockRepo struct {
	counts      []*TransitionCount
	stats       *DurationStats
	divergences []*Divergence

	lastLimit int
}

func (m *mockRepo) TransitionCounts(ctx context.Context, from, to time.Time) ([]*TransitionCount, error) {
	return m.counts, nil
}

func (m *mockRepo) DurationStats(ctx context.Context, from, to time.Time) (*DurationStats, error) {
	return m.stats, nil
}

func (m *mockRepo) Divergences(ctx context.Context, limit int) ([]*Divergence, error) {
	m.lastLimit = limit
	return m.divergences, nil
}

func TestWindowValidation(t *testing.T) {
	svc := NewService(&mockRepo{})
	ctx := context.Background()
	now := time.Now().UTC()

	cases := []struct {
		name string
		from time.Time
		to   time.Time
	}{
		{"zero from", time.Time{}, now},
		{"zero to", now, time.Time{}},
		{"inverted", now, now.Add(-time.Hour)},
		{"empty", now, now},
		{"over a year", now, now.Add(400 * 24 * time.Hour)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.TransitionCounts(ctx, tc.from, tc.to); err == nil {
				t.Error("want window validation error")
			}
			if _, err := svc.DurationStats(ctx, tc.from, tc.to); err == nil {
				t.Error("want window validation error")
			}
		})
	}

	if _, err := svc.TransitionCounts(ctx, now.Add(-24*time.Hour), now); err != nil {
		t.Errorf("valid window rejected: %v", err)
	}
}

func TestTransitionCounts_PassThrough(t *testing.T) {
	repo := &mockRepo{counts: []*TransitionCount{
		{Day: time.Now().UTC(), StepType: "called", Count: 12},
	}}
	svc := NewService(repo)

	now := time.Now().UTC()
	counts, err := svc.TransitionCounts(context.Background(), now.Add(-24*time.Hour), now)
	if err != nil {
		t.Fatal(err)
	}
	if len(counts) != 1 || counts[0].Count != 12 {
		t.Errorf("counts = %+v", counts)
	}
}

func TestDivergences_LimitClamped(t *testing.T) {
	repo := &mockRepo{divergences: []*Divergence{
		{QueueEntryID: uuid.New(), EntryStatus: "waiting", LastStepType: "called"},
	}}
	svc := NewService(repo)
	ctx := context.Background()

	if _, err := svc.Divergences(ctx, 0); err != nil {
		t.Fatal(err)
	}
	if repo.lastLimit != 100 {
		t.Errorf("zero limit clamped to %d, want 100", repo.lastLimit)
	}

	if _, err := svc.Divergences(ctx, 10_000); err != nil {
		t.Fatal(err)
	}
	if repo.lastLimit != 100 {
		t.Errorf("oversized limit clamped to %d, want 100", repo.lastLimit)
	}

	if _, err := svc.Divergences(ctx, 25); err != nil {
		t.Fatal(err)
	}
	if repo.lastLimit != 25 {
		t.Errorf("limit = %d, want 25", repo.lastLimit)
	}
}
