// Package scheduler runs periodic jobs, currently the escrow release sweep.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Releaser ends the escrow hold of due payments.
type Releaser interface {
	ReleaseDue(ctx context.Context, now time.Time, limit int64) (int, error)
}

// Scheduler owns the cron runner.
type Scheduler struct {
	cron     *cron.Cron
	releaser Releaser
	batch    int64
	timeout  time.Duration
	logger   *zap.Logger
}

// New registers the escrow release job on spec (six fields, seconds first, UTC).
func New(spec string, releaser Releaser, batch int, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithSeconds(),
			cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)),
		),
		releaser: releaser,
		batch:    int64(batch),
		timeout:  5 * time.Minute,
		logger:   logger,
	}
	if _, err := s.cron.AddFunc(spec, s.releaseEscrow); err != nil {
		return nil, fmt.Errorf("register escrow release %q: %w", spec, err)
	}
	return s, nil
}

// Start begins the cron scheduler.
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) releaseEscrow() {
	s.runWithRecovery("escrow_release", func(ctx context.Context) error {
		n, err := s.releaser.ReleaseDue(ctx, time.Now().UTC(), s.batch)
		if err != nil {
			return err
		}
		s.logger.Debug("escrow sweep done", zap.Int("released", n))
		return nil
	})
}

// runWithRecovery keeps a panicking job from taking down the process.
func (s *Scheduler) runWithRecovery(name string, fn func(ctx context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("scheduled job panicked", zap.String("job", name), zap.Any("panic", r))
		}
	}()
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	start := time.Now()
	if err := fn(ctx); err != nil {
		s.logger.Error("scheduled job failed", zap.String("job", name), zap.Error(err), zap.Duration("took", time.Since(start)))
	}
}
