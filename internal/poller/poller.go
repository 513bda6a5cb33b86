package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mrolabs/growthwatch/internal/config"
	"github.com/mrolabs/growthwatch/internal/metrics"
	"github.com/mrolabs/growthwatch/internal/models"
	"github.com/mrolabs/growthwatch/internal/social"
)

// ErrAccountNotFound is returned when an operation names a username that
// was never activated.
var ErrAccountNotFound = errors.New("tracked account not found")

// CountProber reads the current follower count for an account. Cheap,
// side-effect free.
type CountProber interface {
	FollowerCount(ctx context.Context, accountID, credential string) (int, error)
}

// FollowerScraper fetches an account's most recent followers. Expensive;
// the poller only calls it after the prober reports growth at or above
// the account threshold.
type FollowerScraper interface {
	RecentFollowers(ctx context.Context, username string) []social.Follower
}

// Poller owns the per-account polling state machine: activate,
// deactivate, status and the main check cycle.
type Poller struct {
	accounts   models.TrackedAccountRepository
	ledger     models.KnownFollowerRepository
	prober     CountProber
	scraper    FollowerScraper
	reconciler *Reconciler
	metrics    *metrics.Collector
	logger     *slog.Logger
	cfg        config.PollerConfig

	mu   sync.Mutex
	busy map[string]bool
}

// New creates a poller. The reconciler carries the ledger-mutation side
// of a detected-growth cycle.
func New(
	accounts models.TrackedAccountRepository,
	ledger models.KnownFollowerRepository,
	prober CountProber,
	scraper FollowerScraper,
	reconciler *Reconciler,
	collector *metrics.Collector,
	logger *slog.Logger,
	cfg config.PollerConfig,
) *Poller {
	return &Poller{
		accounts:   accounts,
		ledger:     ledger,
		prober:     prober,
		scraper:    scraper,
		reconciler: reconciler,
		metrics:    collector,
		logger:     logger,
		cfg:        cfg,
		busy:       make(map[string]bool),
	}
}

// CheckResult describes the outcome of one check cycle.
type CheckResult struct {
	Username      string `json:"username"`
	Skipped       bool   `json:"skipped,omitempty"`
	Busy          bool   `json:"busy,omitempty"`
	Baseline      int    `json:"baseline"`
	CurrentCount  int    `json:"current_count"`
	Diff          int    `json:"diff"`
	ScraperCalled bool   `json:"scraper_called"`
	ScrapeFailed  bool   `json:"scrape_failed,omitempty"`
	NewFollowers  int    `json:"new_followers"`
}

// Status is a read-only projection of an account's polling state.
type Status struct {
	Username      string             `json:"username"`
	BaselineCount int                `json:"baseline_count"`
	Threshold     int                `json:"threshold"`
	PollingActive bool               `json:"polling_active"`
	LastCheckAt   *time.Time         `json:"last_check_at,omitempty"`
	Ledger        models.LedgerStats `json:"ledger"`
}

// Activate starts polling for a username. A brand-new account gets its
// baseline seeded from a best-effort count read (0 when unavailable) and
// its ledger seeded from one scrape, pre-marked welcomed so activation
// does not retroactively welcome pre-existing followers. Re-activating a
// known account resumes with its persisted baseline and ledger.
func (p *Poller) Activate(ctx context.Context, username, credential string) (*models.TrackedAccount, error) {
	username = models.NormalizeUsername(username)
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}

	account, err := p.accounts.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}

	now := time.Now()

	if account != nil {
		account.Credential = credential
		account.PollingActive = true
		account.LastCheckAt = &now
		if err := p.accounts.Store(ctx, account); err != nil {
			return nil, fmt.Errorf("failed to resume account: %w", err)
		}
		p.logger.Info("polling resumed", "username", username, "baseline", account.BaselineCount)
		return account, nil
	}

	account = &models.TrackedAccount{
		Username:      username,
		Credential:    credential,
		Threshold:     p.cfg.DefaultThreshold,
		PollingActive: true,
		LastCheckAt:   &now,
	}

	// Best-effort baseline seed; 0 when the prober cannot reach upstream
	count, err := p.prober.FollowerCount(ctx, username, credential)
	p.metrics.RecordProbe(err == nil)
	if err != nil {
		p.logger.Warn("baseline seed probe failed, starting at 0",
			"username", username,
			"error", err,
		)
		count = 0
	}
	account.BaselineCount = count

	if err := p.accounts.Store(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to store account: %w", err)
	}

	p.seedLedger(ctx, account)

	p.logger.Info("polling activated",
		"username", username,
		"baseline", account.BaselineCount,
		"threshold", account.Threshold,
	)

	return account, nil
}

// seedLedger records up to SeedLimit recent followers as already
// welcomed. Best-effort: a failed seed scrape leaves the ledger empty
// and the first growth cycle simply discovers more "new" followers.
func (p *Poller) seedLedger(ctx context.Context, account *models.TrackedAccount) {
	scraped := p.scraper.RecentFollowers(ctx, account.Username)
	p.metrics.RecordScrape(len(scraped) > 0)
	if len(scraped) == 0 {
		return
	}

	if len(scraped) > p.cfg.SeedLimit {
		scraped = scraped[:p.cfg.SeedLimit]
	}

	records := make([]*models.KnownFollower, 0, len(scraped))
	for _, f := range scraped {
		id := f.ID
		if id == "" {
			id = strings.ToLower(f.Handle)
		}
		if id == "" {
			continue
		}
		records = append(records, &models.KnownFollower{
			AccountID:  account.ID,
			FollowerID: id,
			Handle:     f.Handle,
			Welcomed:   true,
		})
	}

	inserted, err := p.ledger.InsertIfAbsent(ctx, records)
	if err != nil {
		p.logger.Error("failed to seed follower ledger",
			"username", account.Username,
			"error", err,
		)
		return
	}

	p.logger.Info("follower ledger seeded",
		"username", account.Username,
		"seeded", len(inserted),
	)
}

// Deactivate stops polling. Baseline and ledger persist for resume.
func (p *Poller) Deactivate(ctx context.Context, username string) error {
	account, err := p.requireAccount(ctx, username)
	if err != nil {
		return err
	}

	if err := p.accounts.SetPollingActive(ctx, account.ID, false); err != nil {
		return fmt.Errorf("failed to deactivate polling: %w", err)
	}

	p.logger.Info("polling deactivated", "username", account.Username)
	return nil
}

// Status returns the account's polling state without mutating anything.
func (p *Poller) Status(ctx context.Context, username string) (*Status, error) {
	account, err := p.requireAccount(ctx, username)
	if err != nil {
		return nil, err
	}

	stats, err := p.ledger.Stats(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger stats: %w", err)
	}

	return &Status{
		Username:      account.Username,
		BaselineCount: account.BaselineCount,
		Threshold:     account.Threshold,
		PollingActive: account.PollingActive,
		LastCheckAt:   account.LastCheckAt,
		Ledger:        stats,
	}, nil
}

// Check runs one polling cycle. Ordering is load-bearing: prober before
// scraper, scraper before ledger mutation, ledger mutation before the
// baseline advance. Advancing the baseline before the ledger is updated
// would permanently lose track of real new followers.
func (p *Poller) Check(ctx context.Context, username string) (CheckResult, error) {
	username = models.NormalizeUsername(username)
	result := CheckResult{Username: username}

	// Only one check per account at a time; a concurrent call is a no-op
	if !p.tryAcquire(username) {
		result.Busy = true
		return result, nil
	}
	defer p.release(username)

	account, err := p.requireAccount(ctx, username)
	if err != nil {
		return result, err
	}

	if !account.PollingActive {
		result.Skipped = true
		return result, nil
	}

	// Record the attempt up front so a stalled cycle stays visible
	now := time.Now()
	if err := p.accounts.UpdateLastCheck(ctx, account.ID, now); err != nil {
		return result, fmt.Errorf("failed to record check attempt: %w", err)
	}

	count, err := p.prober.FollowerCount(ctx, account.Username, account.Credential)
	p.metrics.RecordProbe(err == nil)
	if err != nil {
		// No stale fallback and no scrape on a failed probe
		return result, fmt.Errorf("count probe failed: %w", err)
	}

	result.Baseline = account.BaselineCount
	result.CurrentCount = count
	result.Diff = count - account.BaselineCount

	if result.Diff < account.Threshold {
		// Below threshold the baseline stays put: sub-threshold growth
		// accumulates until it crosses the threshold in one jump
		p.logger.Debug("below threshold",
			"username", username,
			"diff", result.Diff,
			"threshold", account.Threshold,
		)
		return result, nil
	}

	result.ScraperCalled = true
	scraped := p.scraper.RecentFollowers(ctx, account.Username)
	p.metrics.RecordScrape(len(scraped) > 0)

	if len(scraped) == 0 {
		// Still advance the baseline so the same delta does not
		// re-trigger a paid scrape every cycle
		result.ScrapeFailed = true
		if err := p.accounts.UpdateBaseline(ctx, account.ID, count, now); err != nil {
			return result, fmt.Errorf("failed to advance baseline: %w", err)
		}
		p.logger.Warn("scrape returned nothing on detected growth",
			"username", username,
			"diff", result.Diff,
		)
		return result, nil
	}

	newFollowers, err := p.reconciler.Reconcile(ctx, account, scraped)
	if err != nil {
		// Ledger was not updated; leave the baseline so the next cycle
		// retries the same delta
		return result, fmt.Errorf("reconciliation failed: %w", err)
	}

	if err := p.accounts.UpdateBaseline(ctx, account.ID, count, now); err != nil {
		return result, fmt.Errorf("failed to advance baseline: %w", err)
	}

	result.NewFollowers = newFollowers
	p.metrics.AddNewFollowers(newFollowers)

	p.logger.Info("check cycle complete",
		"username", username,
		"count", count,
		"diff", result.Diff,
		"new_followers", newFollowers,
	)

	return result, nil
}

func (p *Poller) requireAccount(ctx context.Context, username string) (*models.TrackedAccount, error) {
	username = models.NormalizeUsername(username)

	account, err := p.accounts.GetByUsername(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("failed to load account: %w", err)
	}
	if account == nil {
		return nil, fmt.Errorf("username %q: %w", username, ErrAccountNotFound)
	}

	return account, nil
}

func (p *Poller) tryAcquire(username string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.busy[username] {
		return false
	}
	p.busy[username] = true
	return true
}

func (p *Poller) release(username string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.busy, username)
}
