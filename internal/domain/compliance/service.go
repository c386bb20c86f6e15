package compliance

import (
	"context"
	"fmt"
	"time"
)

const maxReportWindow = 366 * 24 * time.Hour

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) TransitionCounts(ctx context.Context, from, to time.Time) ([]*TransitionCount, error) {
	if err := validateWindow(from, to); err != nil {
		return nil, err
	}
	return s.repo.TransitionCounts(ctx, from, to)
}

func (s *Service) DurationStats(ctx context.Context, from, to time.Time) (*DurationStats, error) {
	if err := validateWindow(from, to); err != nil {
		return nil, err
	}
	return s.repo.DurationStats(ctx, from, to)
}

func (s *Service) Divergences(ctx context.Context, limit int) ([]*Divergence, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.repo.Divergences(ctx, limit)
}

func validateWindow(from, to time.Time) error {
	if from.IsZero() || to.IsZero() {
		return fmt.Errorf("from and to are required")
	}
	if !to.After(from) {
		return fmt.Errorf("to must be after from")
	}
	if to.Sub(from) > maxReportWindow {
		return fmt.Errorf("reporting window exceeds one year")
	}
	return nil
}
