package welcome

import (
	"context"
	"log/slog"

	"github.com/mrolabs/growthwatch/internal/metrics"
	"github.com/mrolabs/growthwatch/internal/models"
)

// Notifier delivers a composed welcome message to a follower.
type Notifier interface {
	Send(ctx context.Context, follower *models.KnownFollower, message string) error
}

// LogNotifier writes the composed message to the log instead of
// delivering it anywhere. Used until a real delivery channel is wired up.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n *LogNotifier) Send(_ context.Context, follower *models.KnownFollower, message string) error {
	n.Logger.Info("welcome message ready",
		"follower", follower.Handle,
		"message", message)
	return nil
}

// Dispatcher composes and delivers welcome messages for newly
// discovered followers, then marks them welcomed in the ledger.
type Dispatcher struct {
	composer Composer
	notifier Notifier
	ledger   models.KnownFollowerRepository
	metrics  *metrics.Collector
	logger   *slog.Logger
}

func NewDispatcher(composer Composer, notifier Notifier, ledger models.KnownFollowerRepository, collector *metrics.Collector, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		composer: composer,
		notifier: notifier,
		ledger:   ledger,
		metrics:  collector,
		logger:   logger,
	}
}

// Dispatch is best-effort: a failure at any step leaves the follower
// not-welcomed so a later pass can retry. It never returns an error to
// the caller because reconciliation must not fail on welcome delivery.
func (d *Dispatcher) Dispatch(ctx context.Context, account *models.TrackedAccount, follower *models.KnownFollower) {
	message, err := d.composer.Compose(ctx, account.Username, follower)
	if err != nil {
		d.logger.Warn("failed to compose welcome message",
			"account", account.Username,
			"follower", follower.Handle,
			"error", err)
		d.metrics.RecordWelcome(false)
		return
	}

	if err := d.notifier.Send(ctx, follower, message); err != nil {
		d.logger.Warn("failed to deliver welcome message",
			"account", account.Username,
			"follower", follower.Handle,
			"error", err)
		d.metrics.RecordWelcome(false)
		return
	}

	if err := d.ledger.MarkWelcomed(ctx, follower.AccountID, follower.FollowerID); err != nil {
		d.logger.Error("failed to mark follower welcomed",
			"account", account.Username,
			"follower", follower.Handle,
			"error", err)
		d.metrics.RecordWelcome(false)
		return
	}

	d.metrics.RecordWelcome(true)
	d.logger.Info("welcomed new follower",
		"account", account.Username,
		"follower", follower.Handle)
}
