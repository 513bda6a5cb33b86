package poller

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mrolabs/growthwatch/internal/config"
	"github.com/mrolabs/growthwatch/internal/models"
	"github.com/mrolabs/growthwatch/internal/social"
)

type pollerFixture struct {
	poller   *Poller
	accounts *memoryAccounts
	ledger   *memoryLedger
	prober   *fakeProber
	scraper  *fakeScraper
	welcomer *fakeWelcomer
}

func newPollerFixture(t *testing.T, prober *fakeProber, scraper *fakeScraper) *pollerFixture {
	t.Helper()

	accounts := newMemoryAccounts()
	ledger := newMemoryLedger()
	welcomer := &fakeWelcomer{}
	logger := testLogger()

	reconciler := NewReconciler(ledger, nil, welcomer, logger, 30)
	cfg := config.PollerConfig{
		DefaultThreshold: 5,
		SeedLimit:        50,
		ReconcileBatch:   30,
	}

	p := New(accounts, ledger, prober, scraper, reconciler, testCollector(t), logger, cfg)

	return &pollerFixture{
		poller:   p,
		accounts: accounts,
		ledger:   ledger,
		prober:   prober,
		scraper:  scraper,
		welcomer: welcomer,
	}
}

func activateAccount(t *testing.T, fx *pollerFixture, username string) *models.TrackedAccount {
	t.Helper()

	account, err := fx.poller.Activate(context.Background(), username, "token")
	if err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	return account
}

func TestActivateSeedsBaselineAndLedger(t *testing.T) {
	prober := &fakeProber{counts: []int{100}}
	scraper := &fakeScraper{followers: []social.Follower{
		{ID: "1", Handle: "existing_one"},
		{ID: "2", Handle: "existing_two"},
	}}
	fx := newPollerFixture(t, prober, scraper)

	account := activateAccount(t, fx, "Mro_Account")

	if account.Username != "mro_account" {
		t.Errorf("expected normalized username, got %q", account.Username)
	}
	if account.BaselineCount != 100 {
		t.Errorf("expected baseline 100, got %d", account.BaselineCount)
	}
	if !account.PollingActive {
		t.Error("expected polling active after activation")
	}

	// Seeded followers must be pre-marked welcomed so activation does
	// not retroactively welcome pre-existing followers
	stored, err := fx.ledger.ListByAccount(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("failed to list ledger: %v", err)
	}
	if len(stored) != 2 {
		t.Fatalf("expected 2 seeded records, got %d", len(stored))
	}
	for _, record := range stored {
		if !record.Welcomed {
			t.Errorf("seeded follower %s must be welcomed", record.Handle)
		}
	}
	if fx.welcomer.count() != 0 {
		t.Error("activation must not dispatch welcomes")
	}
}

func TestActivateProberFailureSeedsZeroBaseline(t *testing.T) {
	prober := &fakeProber{err: errors.New("graph down")}
	scraper := &fakeScraper{}
	fx := newPollerFixture(t, prober, scraper)

	account := activateAccount(t, fx, "mro_account")

	if account.BaselineCount != 0 {
		t.Errorf("expected baseline 0 on probe failure, got %d", account.BaselineCount)
	}
	if !account.PollingActive {
		t.Error("activation must still succeed when the probe fails")
	}
}

func TestReactivateResumesPersistedState(t *testing.T) {
	prober := &fakeProber{counts: []int{100}}
	scraper := &fakeScraper{followers: []social.Follower{{ID: "1", Handle: "fan"}}}
	fx := newPollerFixture(t, prober, scraper)

	account := activateAccount(t, fx, "mro_account")
	if err := fx.poller.Deactivate(context.Background(), "mro_account"); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}

	scrapesBefore := fx.scraper.callCount()
	resumed := activateAccount(t, fx, "mro_account")

	if resumed.ID != account.ID {
		t.Error("re-activation must resume the same account")
	}
	if resumed.BaselineCount != 100 {
		t.Errorf("expected persisted baseline 100, got %d", resumed.BaselineCount)
	}
	if fx.scraper.callCount() != scrapesBefore {
		t.Error("re-activation must not re-seed the ledger with a new scrape")
	}
}

func TestCheckBelowThresholdNeverScrapes(t *testing.T) {
	prober := &fakeProber{counts: []int{100, 103}}
	scraper := &fakeScraper{}
	fx := newPollerFixture(t, prober, scraper)
	activateAccount(t, fx, "mro_account")

	scrapesAfterSeed := fx.scraper.callCount()

	result, err := fx.poller.Check(context.Background(), "mro_account")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	if result.ScraperCalled {
		t.Error("scraper_called must be false below threshold")
	}
	if fx.scraper.callCount() != scrapesAfterSeed {
		t.Error("scraper must never be invoked when diff < threshold")
	}
	if result.Diff != 3 {
		t.Errorf("expected diff 3, got %d", result.Diff)
	}

	account, _ := fx.accounts.GetByUsername(context.Background(), "mro_account")
	if account.BaselineCount != 100 {
		t.Errorf("baseline must not advance below threshold, got %d", account.BaselineCount)
	}
}

func TestCheckGrowthCycle(t *testing.T) {
	// Full growth cycle: baseline 100, threshold 5. First probe reads
	// 103 (no scrape), second reads 107 (scrape, 2 new followers).
	prober := &fakeProber{counts: []int{100, 103, 107}}
	scraper := &fakeScraper{followers: []social.Follower{
		{ID: "10", Handle: "brand_new_a"},
		{ID: "11", Handle: "brand_new_b"},
	}}
	fx := newPollerFixture(t, prober, scraper)
	activateAccount(t, fx, "mro_account")

	// Clear the seed records so the scraped pair is genuinely new
	fx.ledger.records = map[string]*models.KnownFollower{}

	first, err := fx.poller.Check(context.Background(), "mro_account")
	if err != nil {
		t.Fatalf("first check failed: %v", err)
	}
	if first.ScraperCalled || first.NewFollowers != 0 {
		t.Fatalf("first cycle should be below threshold: %+v", first)
	}

	second, err := fx.poller.Check(context.Background(), "mro_account")
	if err != nil {
		t.Fatalf("second check failed: %v", err)
	}
	if !second.ScraperCalled {
		t.Error("expected scraper call at diff >= threshold")
	}
	if second.NewFollowers != 2 {
		t.Errorf("expected 2 new followers, got %d", second.NewFollowers)
	}

	account, _ := fx.accounts.GetByUsername(context.Background(), "mro_account")
	if account.BaselineCount != 107 {
		t.Errorf("baseline must advance to 107 after reconciliation, got %d", account.BaselineCount)
	}

	stats, _ := fx.ledger.Stats(context.Background(), account.ID)
	if stats.PendingWelcome != 2 {
		t.Errorf("expected 2 pending welcomes, got %d", stats.PendingWelcome)
	}
	if fx.welcomer.count() != 2 {
		t.Errorf("expected 2 welcome dispatches, got %d", fx.welcomer.count())
	}
}

func TestCheckEmptyScrapeStillAdvancesBaseline(t *testing.T) {
	prober := &fakeProber{counts: []int{100, 110}}
	scraper := &fakeScraper{}
	fx := newPollerFixture(t, prober, scraper)
	activateAccount(t, fx, "mro_account")

	result, err := fx.poller.Check(context.Background(), "mro_account")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	if !result.ScrapeFailed {
		t.Error("expected scrape_failed on empty scrape")
	}

	// The baseline still advances so the same delta does not re-trigger
	// a paid scrape next cycle
	account, _ := fx.accounts.GetByUsername(context.Background(), "mro_account")
	if account.BaselineCount != 110 {
		t.Errorf("expected baseline 110 after empty scrape, got %d", account.BaselineCount)
	}
}

func TestCheckProberFailureIsExplicit(t *testing.T) {
	prober := &fakeProber{counts: []int{100}}
	scraper := &fakeScraper{}
	fx := newPollerFixture(t, prober, scraper)
	activateAccount(t, fx, "mro_account")

	before := time.Now()
	fx.prober.err = errors.New("both endpoints down")
	scrapesBefore := fx.scraper.callCount()

	_, err := fx.poller.Check(context.Background(), "mro_account")
	if err == nil {
		t.Fatal("expected error when the probe fails")
	}

	if fx.scraper.callCount() != scrapesBefore {
		t.Error("scraper must not run after a failed probe")
	}

	// The attempt must still be visible via last-check
	account, _ := fx.accounts.GetByUsername(context.Background(), "mro_account")
	if account.LastCheckAt == nil || account.LastCheckAt.Before(before) {
		t.Error("last-check must be updated even when the probe fails")
	}
	if account.BaselineCount != 100 {
		t.Errorf("baseline must not move on failure, got %d", account.BaselineCount)
	}
}

func TestCheckSkipsWhenDeactivated(t *testing.T) {
	prober := &fakeProber{counts: []int{100}}
	scraper := &fakeScraper{}
	fx := newPollerFixture(t, prober, scraper)
	activateAccount(t, fx, "mro_account")

	if err := fx.poller.Deactivate(context.Background(), "mro_account"); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}

	probesBefore := fx.prober.calls
	result, err := fx.poller.Check(context.Background(), "mro_account")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	if !result.Skipped {
		t.Error("expected skipped result while deactivated")
	}
	if fx.prober.calls != probesBefore {
		t.Error("no probe should run while deactivated")
	}
}

func TestCheckBusyGuard(t *testing.T) {
	prober := &fakeProber{counts: []int{100}}
	scraper := &fakeScraper{}
	fx := newPollerFixture(t, prober, scraper)
	activateAccount(t, fx, "mro_account")

	if !fx.poller.tryAcquire("mro_account") {
		t.Fatal("expected to acquire the account lock")
	}
	defer fx.poller.release("mro_account")

	result, err := fx.poller.Check(context.Background(), "mro_account")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if !result.Busy {
		t.Error("concurrent check must return a busy no-op result")
	}
}

func TestCheckUnknownAccount(t *testing.T) {
	fx := newPollerFixture(t, &fakeProber{counts: []int{0}}, &fakeScraper{})

	if _, err := fx.poller.Check(context.Background(), "ghost"); err == nil {
		t.Fatal("expected error for unknown account")
	}
}

func TestStatusIsReadOnly(t *testing.T) {
	prober := &fakeProber{counts: []int{42}}
	scraper := &fakeScraper{followers: []social.Follower{{ID: "1", Handle: "fan"}}}
	fx := newPollerFixture(t, prober, scraper)
	account := activateAccount(t, fx, "mro_account")

	probesBefore := fx.prober.calls

	status, err := fx.poller.Status(context.Background(), "mro_account")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}

	if status.BaselineCount != 42 {
		t.Errorf("expected baseline 42, got %d", status.BaselineCount)
	}
	if status.Threshold != 5 {
		t.Errorf("expected threshold 5, got %d", status.Threshold)
	}
	if !status.PollingActive {
		t.Error("expected polling active")
	}
	if status.Ledger.Total != 1 || status.Ledger.PendingWelcome != 0 {
		t.Errorf("unexpected ledger stats: %+v", status.Ledger)
	}
	if fx.prober.calls != probesBefore {
		t.Error("status must not probe upstream")
	}

	account2, _ := fx.accounts.GetByUsername(context.Background(), "mro_account")
	if account2.UpdatedAt.After(account.UpdatedAt.Add(time.Second)) {
		t.Error("status must not mutate the account")
	}
}

func TestBaselineNeverDecreases(t *testing.T) {
	// An upstream count lower than the baseline (unfollows) yields a
	// negative diff, stays below threshold, and leaves the baseline put.
	prober := &fakeProber{counts: []int{100, 90}}
	scraper := &fakeScraper{}
	fx := newPollerFixture(t, prober, scraper)
	activateAccount(t, fx, "mro_account")

	result, err := fx.poller.Check(context.Background(), "mro_account")
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if result.ScraperCalled {
		t.Error("negative diff must not trigger a scrape")
	}

	account, _ := fx.accounts.GetByUsername(context.Background(), "mro_account")
	if account.BaselineCount != 100 {
		t.Errorf("baseline decreased to %d", account.BaselineCount)
	}
}
