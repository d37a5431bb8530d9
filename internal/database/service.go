package database

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// SaveHook is called after a record was written.
type SaveHook func(ctx context.Context, sim *Simulation)

// HistoryService persists simulations off the request goroutine. Records
// are dropped, with a warning, when the queue is full.
type HistoryService struct {
	repo    *Repository
	queue   chan *Simulation
	hooks   []SaveHook
	onWrite func(success bool)
	timeout time.Duration

	wg       sync.WaitGroup
	closeMu  sync.RWMutex
	closed   bool
	stopOnce sync.Once
}

// NewHistoryService starts workers draining a queue of the given size.
// onWrite may be nil.
func NewHistoryService(repo *Repository, workers, queueSize int, onWrite func(success bool), hooks ...SaveHook) *HistoryService {
	if workers <= 0 {
		workers = 2
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if onWrite == nil {
		onWrite = func(bool) {}
	}

	s := &HistoryService{
		repo:    repo,
		queue:   make(chan *Simulation, queueSize),
		hooks:   hooks,
		onWrite: onWrite,
		timeout: 5 * time.Second,
	}
	for i := 0; i < workers; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s
}

// Repository returns the underlying repository for reads.
func (s *HistoryService) Repository() *Repository { return s.repo }

// Record queues sim for persistence. It never blocks.
func (s *HistoryService) Record(sim *Simulation) bool {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()

	if s.closed {
		return false
	}
	select {
	case s.queue <- sim:
		return true
	default:
		slog.Warn("History queue full, dropping simulation", "simulation_id", sim.ID)
		s.onWrite(false)
		return false
	}
}

func (s *HistoryService) worker() {
	defer s.wg.Done()

	for sim := range s.queue {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		err := s.repo.SaveSimulation(ctx, sim)
		if err != nil {
			slog.Error("Failed to persist simulation", "simulation_id", sim.ID, "error", err)
			s.onWrite(false)
		} else {
			s.onWrite(true)
			for _, hook := range s.hooks {
				hook(ctx, sim)
			}
		}
		cancel()
	}
}

// Close stops accepting records and waits for queued ones to be written,
// up to ctx's deadline.
func (s *HistoryService) Close(ctx context.Context) error {
	s.stopOnce.Do(func() {
		s.closeMu.Lock()
		s.closed = true
		close(s.queue)
		s.closeMu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
