package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/NavanKen/Eventify/internal/clock"
	"github.com/NavanKen/Eventify/internal/metrics"
)

// Sweeper returns units held by reservations that never reached a commit,
// e.g. when the process died between reserve and the compensating release.
type Sweeper struct {
	releaser StaleReservationReleaser
	clock    clock.Clock
	maxAge   time.Duration
	interval time.Duration
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewSweeper(releaser StaleReservationReleaser, clk clock.Clock, maxAge, interval time.Duration, logger *slog.Logger, m *metrics.Metrics) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		releaser: releaser,
		clock:    clk,
		maxAge:   maxAge,
		interval: interval,
		logger:   logger,
		metrics:  m,
	}
}

// SweepOnce releases reservations held for longer than maxAge and returns
// the number of units given back.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := s.clock.Now().Add(-s.maxAge)
	released, err := s.releaser.ReleaseStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if released > 0 {
		s.metrics.ObserveStaleReleased(released)
		s.logger.Warn("released stale reservations", "units", released, "held_before", cutoff)
	}
	return released, nil
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("sweep stale reservations", "error", err)
			}
		}
	}
}
