// Package summary reports aggregate damage statistics over calendar periods.
package summary

import (
	"context"
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/quakesim/internal/database"
)

// Period names a reporting window.
type Period string

const (
	Daily   Period = "daily"
	Weekly  Period = "weekly"
	Monthly Period = "monthly"
	AllTime Period = "all_time"
)

// Periods lists every supported window, shortest first.
var Periods = []Period{Daily, Weekly, Monthly, AllTime}

// ParsePeriod validates a period name. Empty means AllTime.
func ParsePeriod(s string) (Period, error) {
	if s == "" {
		return AllTime, nil
	}
	for _, p := range Periods {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown period %q", s)
}

// Start returns the beginning of the period containing now, in UTC. Weeks
// start on Monday. AllTime starts at the zero time.
func (p Period) Start(now time.Time) time.Time {
	now = now.UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch p {
	case Daily:
		return today
	case Weekly:
		days := (int(now.Weekday()) + 6) % 7
		return today.AddDate(0, 0, -days)
	case Monthly:
		return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Time{}
}

// Report is the summary of one period.
type Report struct {
	Period      Period    `json:"period"`
	PeriodStart time.Time `json:"period_start,omitzero"`
	GeneratedAt time.Time `json:"generated_at"`
	database.Summary
}

// Source aggregates history since a point in time.
type Source interface {
	Summarize(ctx context.Context, since time.Time) (*database.Summary, error)
}

// Service builds period reports, serving them from cache when it can.
type Service struct {
	source Source
	cache  *ReportCache
	now    func() time.Time
}

// NewService creates a summary service. A nil cache disables caching.
func NewService(source Source, cache *ReportCache) *Service {
	return &Service{source: source, cache: cache, now: time.Now}
}

// Report returns the summary for period.
func (s *Service) Report(ctx context.Context, period Period) (*Report, error) {
	if s.cache != nil {
		if report, ok := s.cache.Get(ctx, period); ok {
			return report, nil
		}
	}

	report, err := s.build(ctx, period)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(ctx, report)
	}
	return report, nil
}

func (s *Service) build(ctx context.Context, period Period) (*Report, error) {
	now := s.now().UTC()
	start := period.Start(now)

	sum, err := s.source.Summarize(ctx, start)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize %s: %w", period, err)
	}
	return &Report{
		Period:      period,
		PeriodStart: start,
		GeneratedAt: now,
		Summary:     *sum,
	}, nil
}

// Refresh rebuilds every period and replaces the cached copies.
func (s *Service) Refresh(ctx context.Context) error {
	for _, period := range Periods {
		report, err := s.build(ctx, period)
		if err != nil {
			return err
		}
		if s.cache != nil {
			s.cache.Set(ctx, report)
		}
	}
	return nil
}
