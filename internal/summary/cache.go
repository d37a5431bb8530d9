package summary

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ZanzyTHEbar/quakesim/internal/cache"
)

// ReportCache keeps rendered reports in a cache.Store
type ReportCache struct {
	store cache.Store
}

// NewReportCache wraps store
func NewReportCache(store cache.Store) *ReportCache {
	return &ReportCache{store: store}
}

func cacheKey(period Period) string {
	return "summary:" + string(period)
}

// Get retrieves a cached report
func (rc *ReportCache) Get(ctx context.Context, period Period) (*Report, bool) {
	data, found, err := rc.store.Get(ctx, cacheKey(period))
	if err != nil {
		slog.Warn("Summary cache lookup failed", "error", err, "period", period)
		return nil, false
	}
	if !found {
		return nil, false
	}

	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		slog.Error("Failed to unmarshal cached summary", "error", err, "period", period)
		return nil, false
	}
	return &report, true
}

// Set caches a report
func (rc *ReportCache) Set(ctx context.Context, report *Report) {
	data, err := json.Marshal(report)
	if err != nil {
		slog.Error("Failed to marshal summary for cache", "error", err, "period", report.Period)
		return
	}
	if err := rc.store.Set(ctx, cacheKey(report.Period), data); err != nil {
		slog.Warn("Failed to cache summary", "error", err, "period", report.Period)
	}
}

// AutoRefresh rebuilds all reports on every interval until ctx is done.
func (s *Service) AutoRefresh(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			slog.Debug("Refreshing summary cache")
			if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
				slog.Error("Failed to refresh summaries", "error", err)
			}
		}
	}
}
