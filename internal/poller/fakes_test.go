package poller

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/mrolabs/growthwatch/internal/metrics"
	"github.com/mrolabs/growthwatch/internal/models"
	"github.com/mrolabs/growthwatch/internal/social"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testCollector(t *testing.T) *metrics.Collector {
	t.Helper()
	collector, err := metrics.NewCollector()
	if err != nil {
		t.Fatalf("failed to create collector: %v", err)
	}
	return collector
}

// memoryAccounts implements models.TrackedAccountRepository in memory.
type memoryAccounts struct {
	mu       sync.Mutex
	accounts map[string]*models.TrackedAccount
	nextID   int
}

func newMemoryAccounts() *memoryAccounts {
	return &memoryAccounts{accounts: make(map[string]*models.TrackedAccount)}
}

func (m *memoryAccounts) Store(ctx context.Context, account *models.TrackedAccount) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if account.ID == "" {
		m.nextID++
		account.ID = fmt.Sprintf("acct-%d", m.nextID)
		account.CreatedAt = time.Now()
	}
	account.UpdatedAt = time.Now()

	copied := *account
	m.accounts[account.Username] = &copied
	return nil
}

func (m *memoryAccounts) GetByUsername(ctx context.Context, username string) (*models.TrackedAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	account, ok := m.accounts[username]
	if !ok {
		return nil, nil
	}
	copied := *account
	return &copied, nil
}

func (m *memoryAccounts) ListActive(ctx context.Context) ([]*models.TrackedAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var active []*models.TrackedAccount
	for _, account := range m.accounts {
		if account.PollingActive {
			copied := *account
			active = append(active, &copied)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].Username < active[j].Username })
	return active, nil
}

func (m *memoryAccounts) UpdateBaseline(ctx context.Context, id string, baseline int, checkedAt time.Time) error {
	return m.update(id, func(a *models.TrackedAccount) {
		a.BaselineCount = baseline
		a.LastCheckAt = &checkedAt
	})
}

func (m *memoryAccounts) UpdateLastCheck(ctx context.Context, id string, checkedAt time.Time) error {
	return m.update(id, func(a *models.TrackedAccount) {
		a.LastCheckAt = &checkedAt
	})
}

func (m *memoryAccounts) SetPollingActive(ctx context.Context, id string, active bool) error {
	return m.update(id, func(a *models.TrackedAccount) {
		a.PollingActive = active
	})
}

func (m *memoryAccounts) update(id string, fn func(*models.TrackedAccount)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, account := range m.accounts {
		if account.ID == id {
			fn(account)
			account.UpdatedAt = time.Now()
			return nil
		}
	}
	return fmt.Errorf("tracked account not found: %s", id)
}

// memoryLedger implements models.KnownFollowerRepository in memory with
// the same insert-if-absent semantics as the postgres repository.
type memoryLedger struct {
	mu      sync.Mutex
	records map[string]*models.KnownFollower // key: accountID/followerID
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{records: make(map[string]*models.KnownFollower)}
}

func ledgerKey(accountID, followerID string) string {
	return accountID + "/" + followerID
}

func (m *memoryLedger) InsertIfAbsent(ctx context.Context, followers []*models.KnownFollower) ([]*models.KnownFollower, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var inserted []*models.KnownFollower
	for _, f := range followers {
		key := ledgerKey(f.AccountID, f.FollowerID)
		if _, exists := m.records[key]; exists {
			continue
		}
		copied := *f
		copied.CreatedAt = time.Now()
		m.records[key] = &copied
		inserted = append(inserted, f)
	}
	return inserted, nil
}

func (m *memoryLedger) ListByAccount(ctx context.Context, accountID string) ([]*models.KnownFollower, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*models.KnownFollower
	for _, f := range m.records {
		if f.AccountID == accountID {
			copied := *f
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].FollowerID < result[j].FollowerID })
	return result, nil
}

func (m *memoryLedger) MarkWelcomed(ctx context.Context, accountID, followerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.records[ledgerKey(accountID, followerID)]
	if !ok {
		return fmt.Errorf("known follower not found: %s/%s", accountID, followerID)
	}
	record.Welcomed = true
	return nil
}

func (m *memoryLedger) Stats(ctx context.Context, accountID string) (models.LedgerStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var stats models.LedgerStats
	for _, f := range m.records {
		if f.AccountID != accountID {
			continue
		}
		stats.Total++
		if !f.Welcomed {
			stats.PendingWelcome++
		}
	}
	return stats, nil
}

// fakeProber returns queued counts or errors and records call counts.
type fakeProber struct {
	mu     sync.Mutex
	counts []int
	err    error
	calls  int
}

func (f *fakeProber) FollowerCount(ctx context.Context, accountID, credential string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	if f.err != nil {
		return 0, f.err
	}
	if len(f.counts) == 0 {
		return 0, fmt.Errorf("fake prober has no more counts")
	}
	count := f.counts[0]
	if len(f.counts) > 1 {
		f.counts = f.counts[1:]
	}
	return count, nil
}

// fakeScraper returns a fixed list and records call counts.
type fakeScraper struct {
	mu        sync.Mutex
	followers []social.Follower
	calls     int
}

func (f *fakeScraper) RecentFollowers(ctx context.Context, username string) []social.Follower {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	return f.followers
}

func (f *fakeScraper) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// fakeResolver maps handles to resolved platform ids.
type fakeResolver struct {
	ids map[string]string
	err error
}

func (f *fakeResolver) ResolveID(ctx context.Context, handle, accountID, credential string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	id, ok := f.ids[strings.ToLower(handle)]
	if !ok {
		return "", fmt.Errorf("unknown handle: %s", handle)
	}
	return id, nil
}

// fakeWelcomer records dispatched followers.
type fakeWelcomer struct {
	mu         sync.Mutex
	dispatched []*models.KnownFollower
}

func (f *fakeWelcomer) Dispatch(ctx context.Context, account *models.TrackedAccount, follower *models.KnownFollower) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatched = append(f.dispatched, follower)
}

func (f *fakeWelcomer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.dispatched)
}
