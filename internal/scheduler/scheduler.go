// Package scheduler runs automatic allocation on a fixed interval.
package scheduler

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"dormitory-housing-backend/config"
	"dormitory-housing-backend/internal/allocation"
	"dormitory-housing-backend/internal/apperr"
)

// Allocator is the part of the allocation engine the scheduler drives.
type Allocator interface {
	ProcessAutomatic(ctx context.Context) (allocation.Summary, error)
}

// Service triggers automatic allocation passes.
type Service struct {
	cfg       *config.AllocationConfig
	allocator Allocator
	log       *zap.Logger
}

// NewService creates a scheduler.
func NewService(cfg *config.AllocationConfig, allocator Allocator, log *zap.Logger) *Service {
	return &Service{cfg: cfg, allocator: allocator, log: log.Named("scheduler")}
}

// Run executes a pass immediately and then every configured interval until
// ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.AutoEnabled {
		s.log.Info("automatic allocation is disabled, scheduler not started")
		return
	}
	s.log.Info("starting scheduler", zap.Duration("interval", s.cfg.AutoInterval))

	s.RunOnce(ctx)

	timer := time.NewTimer(s.cfg.AutoInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler shutting down")
			return
		case <-timer.C:
			s.RunOnce(ctx)
			timer.Reset(s.cfg.AutoInterval)
		}
	}
}

// RunOnce performs a single pass. Failures are logged; the next tick retries.
func (s *Service) RunOnce(ctx context.Context) {
	summary, err := s.allocator.ProcessAutomatic(ctx)
	switch {
	case err == nil:
		s.log.Info("scheduled allocation pass complete",
			zap.Int("allocated", summary.Allocated),
			zap.Int("skipped", summary.Skipped))
	case errors.Is(err, context.Canceled):
	case errors.Is(err, apperr.ErrConflict):
		// A manual pass holds the batch lock.
		s.log.Info("allocation pass already running, skipping tick")
	default:
		s.log.Error("scheduled allocation pass failed", zap.Error(err))
	}
}
