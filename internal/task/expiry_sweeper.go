package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// maxBatchesPerSweep bounds one sweep run when every batch comes back full.
const maxBatchesPerSweep = 100

// CardExpirer moves past-expiry cards to EXPIRED. It is satisfied by
// service.CardService.
type CardExpirer interface {
	ExpireCards(ctx context.Context, batch int) (int, error)
}

// ExpirySweeperConfig holds configuration for the expiry sweeper
type ExpirySweeperConfig struct {
	// Interval between sweeps. Must be positive.
	Interval time.Duration

	// BatchSize is the number of cards examined per ExpireCards call.
	// If zero, defaults to 100.
	BatchSize int

	// RunTimeout bounds a single sweep. If zero, defaults to Interval.
	RunTimeout time.Duration
}

// ExpirySweeper periodically marks cards past their expiry date as EXPIRED.
// Transfer eligibility never depends on it; it only brings the stored status
// in line with the calendar.
type ExpirySweeper struct {
	expirer CardExpirer
	config  ExpirySweeperConfig
	logger  *slog.Logger
}

// NewExpirySweeper creates a new ExpirySweeper
func NewExpirySweeper(expirer CardExpirer, config ExpirySweeperConfig, logger *slog.Logger) (*ExpirySweeper, error) {
	if expirer == nil {
		return nil, errors.New("expirer cannot be nil")
	}
	if config.Interval <= 0 {
		return nil, fmt.Errorf("sweep interval must be positive, got %s", config.Interval)
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = config.Interval
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &ExpirySweeper{
		expirer: expirer,
		config:  config,
		logger:  logger.With(slog.String("component", "expiry_sweeper")),
	}, nil
}

// Run sweeps once immediately and then on every tick until ctx is done.
// It always returns nil after ctx is cancelled; sweep failures are logged
// and retried on the next tick.
func (s *ExpirySweeper) Run(ctx context.Context) error {
	s.logger.Info("starting expiry sweeper",
		slog.Duration("interval", s.config.Interval),
		slog.Int("batch_size", s.config.BatchSize))

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		s.runOnce(ctx)

		select {
		case <-ctx.Done():
			s.logger.Info("stopping expiry sweeper")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *ExpirySweeper) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	runCtx, cancel := context.WithTimeout(ctx, s.config.RunTimeout)
	defer cancel()

	start := time.Now()
	n, err := s.Sweep(runCtx)
	if ctx.Err() != nil {
		// Shutting down; whatever the expirer returned is a side effect
		// of the cancellation.
		s.logger.Debug("expiry sweep interrupted",
			slog.Int("expired", n))
		return
	}
	if err != nil {
		s.logger.Error("expiry sweep failed",
			slog.Int("expired", n),
			slog.String("error", err.Error()))
		return
	}
	if n > 0 {
		s.logger.Info("expiry sweep completed",
			slog.Int("expired", n),
			slog.Duration("duration", time.Since(start)))
	}
}

// Sweep expires cards batch by batch until a batch comes back short and
// returns the total number of cards changed.
func (s *ExpirySweeper) Sweep(ctx context.Context) (int, error) {
	total := 0
	for i := 0; i < maxBatchesPerSweep; i++ {
		n, err := s.expirer.ExpireCards(ctx, s.config.BatchSize)
		total += n
		if err != nil {
			return total, err
		}
		if n < s.config.BatchSize {
			return total, nil
		}
	}
	s.logger.Warn("expiry sweep stopped after maximum number of batches",
		slog.Int("batches", maxBatchesPerSweep))
	return total, nil
}
