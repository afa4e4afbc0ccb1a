package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultSweepSchedule runs a sweep every ten minutes.
const DefaultSweepSchedule = "@every 10m"

// Sweeper runs a function on a cron schedule.
type Sweeper struct {
	cron    *cron.Cron
	mu      sync.Mutex
	started bool
}

// NewSweeper schedules fn. Each invocation gets a context bounded by timeout.
func NewSweeper(schedule string, timeout time.Duration, fn func(ctx context.Context) error) (*Sweeper, error) {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			slog.Error("Scheduled sweep failed.", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("add cron job %q: %w", schedule, err)
	}
	return &Sweeper{cron: c}, nil
}

// Start begins the schedule.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		s.cron.Start()
		s.started = true
	}
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		<-s.cron.Stop().Done()
		s.started = false
	}
}
