// Package privacy enforces the retention window of stored building data.
package privacy

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/quakesim/internal/database"
)

// Config controls history retention. RetentionDays of zero keeps
// records forever.
type Config struct {
	RetentionDays int           `yaml:"retention_days"`
	Interval      time.Duration `yaml:"purge_interval"`
}

// Purger deletes records older than a cutoff.
type Purger interface {
	DeleteSimulationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Service purges simulations that fall outside the retention window
type Service struct {
	repo Purger
	cfg  Config
	now  func() time.Time

	mu          sync.Mutex
	lastPurge   time.Time
	lastDeleted int64
	totalPurged int64
}

// NewService creates a retention service
func NewService(repo Purger, cfg Config) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	return &Service{repo: repo, cfg: cfg, now: time.Now}
}

// Enabled reports whether records ever expire
func (s *Service) Enabled() bool {
	return s.cfg.RetentionDays > 0
}

// Cutoff is the creation time before which records are purged
func (s *Service) Cutoff() time.Time {
	return s.now().UTC().AddDate(0, 0, -s.cfg.RetentionDays)
}

// Purge deletes expired records once
func (s *Service) Purge(ctx context.Context) (int64, error) {
	if !s.Enabled() {
		return 0, nil
	}

	cutoff := s.Cutoff()
	deleted, err := s.repo.DeleteSimulationsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.lastPurge = s.now().UTC()
	s.lastDeleted = deleted
	s.totalPurged += deleted
	s.mu.Unlock()

	if deleted > 0 {
		slog.Info("Purged expired simulations", "cutoff", cutoff, "deleted", deleted)
	}
	return deleted, nil
}

// Run purges immediately and then on every interval until ctx is done.
func (s *Service) Run(ctx context.Context) {
	if !s.Enabled() {
		return
	}

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.Purge(ctx); err != nil && ctx.Err() == nil {
			slog.Error("Failed to purge expired simulations", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Info describes the retention policy and the last purge
func (s *Service) Info() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	info := map[string]interface{}{
		"retention_days":   s.cfg.RetentionDays,
		"purge_interval_s": s.cfg.Interval.Seconds(),
		"last_deleted":     s.lastDeleted,
		"total_purged":     s.totalPurged,
	}
	if !s.lastPurge.IsZero() {
		info["last_purge"] = s.lastPurge.Format(time.RFC3339)
	}
	return info
}

var _ Purger = (*database.Repository)(nil)
