package scheduler

import (
	"context"
	"time"

	"log/slog"

	"github.com/mrolabs/growthwatch/internal/models"
	"github.com/mrolabs/growthwatch/internal/poller"
)

// PollScheduler runs the check cycle for every active tracked account on
// a fixed interval. The poller's per-account busy guard makes overlap
// with manually triggered checks harmless.
type PollScheduler struct {
	accounts      models.TrackedAccountRepository
	poller        *poller.Poller
	logger        *slog.Logger
	stopChan      chan struct{}
	checkInterval time.Duration
}

// NewPollScheduler creates a scheduler with the given check interval.
func NewPollScheduler(
	accounts models.TrackedAccountRepository,
	p *poller.Poller,
	checkInterval time.Duration,
	logger *slog.Logger,
) *PollScheduler {
	if checkInterval <= 0 {
		checkInterval = time.Minute
	}
	return &PollScheduler{
		accounts:      accounts,
		poller:        p,
		logger:        logger,
		stopChan:      make(chan struct{}),
		checkInterval: checkInterval,
	}
}

// Start begins the scheduler loop
func (s *PollScheduler) Start(ctx context.Context) {
	s.logger.Info("starting poll scheduler", "check_interval", s.checkInterval)
	ticker := time.NewTicker(s.checkInterval)
	defer ticker.Stop()

	// Run once immediately on start
	s.checkActiveAccounts(ctx)

	for {
		select {
		case <-ticker.C:
			s.checkActiveAccounts(ctx)
		case <-s.stopChan:
			s.logger.Info("poll scheduler stopped")
			return
		case <-ctx.Done():
			s.logger.Info("poll scheduler stopping due to context cancellation")
			return
		}
	}
}

// Stop stops the scheduler
func (s *PollScheduler) Stop() {
	close(s.stopChan)
}

func (s *PollScheduler) checkActiveAccounts(ctx context.Context) {
	accounts, err := s.accounts.ListActive(ctx)
	if err != nil {
		s.logger.Error("failed to list active accounts", "error", err)
		return
	}

	for _, account := range accounts {
		result, err := s.poller.Check(ctx, account.Username)
		if err != nil {
			s.logger.Warn("scheduled check failed",
				"username", account.Username,
				"error", err)
			continue
		}
		if result.Busy {
			s.logger.Debug("scheduled check skipped, account busy", "username", account.Username)
		}
	}
}
