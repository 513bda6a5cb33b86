package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"github.com/mrolabs/growthwatch/internal/auth"
	"github.com/mrolabs/growthwatch/internal/config"
	"github.com/mrolabs/growthwatch/internal/metrics"
	"github.com/mrolabs/growthwatch/internal/models"
	"github.com/mrolabs/growthwatch/internal/poller"
	"github.com/mrolabs/growthwatch/internal/social"
	"github.com/mrolabs/growthwatch/internal/syncqueue"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testAuthConfig() auth.Config {
	return auth.Config{
		JWTSecret:     "test-secret",
		AdminPassword: "hunter2",
		TokenDuration: time.Hour,
	}
}

// stubAccounts is a minimal in-memory TrackedAccountRepository.
type stubAccounts struct {
	mu       sync.Mutex
	accounts map[string]*models.TrackedAccount
}

func newStubAccounts() *stubAccounts {
	return &stubAccounts{accounts: make(map[string]*models.TrackedAccount)}
}

func (s *stubAccounts) Store(_ context.Context, account *models.TrackedAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if account.ID == "" {
		account.ID = uuid.New().String()
	}
	stored := *account
	s.accounts[account.Username] = &stored
	return nil
}

func (s *stubAccounts) GetByUsername(_ context.Context, username string) (*models.TrackedAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.accounts[username]
	if !ok {
		return nil, nil
	}
	out := *stored
	return &out, nil
}

func (s *stubAccounts) ListActive(_ context.Context) ([]*models.TrackedAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.TrackedAccount
	for _, a := range s.accounts {
		if a.PollingActive {
			copied := *a
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *stubAccounts) update(id string, fn func(*models.TrackedAccount)) {
	for _, a := range s.accounts {
		if a.ID == id {
			fn(a)
			return
		}
	}
}

func (s *stubAccounts) UpdateBaseline(_ context.Context, id string, baseline int, checkedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.update(id, func(a *models.TrackedAccount) {
		a.BaselineCount = baseline
		a.LastCheckAt = &checkedAt
	})
	return nil
}

func (s *stubAccounts) UpdateLastCheck(_ context.Context, id string, checkedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.update(id, func(a *models.TrackedAccount) {
		a.LastCheckAt = &checkedAt
	})
	return nil
}

func (s *stubAccounts) SetPollingActive(_ context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.update(id, func(a *models.TrackedAccount) {
		a.PollingActive = active
	})
	return nil
}

// stubLedger is a minimal in-memory KnownFollowerRepository.
type stubLedger struct {
	mu      sync.Mutex
	records map[string]*models.KnownFollower
}

func newStubLedger() *stubLedger {
	return &stubLedger{records: make(map[string]*models.KnownFollower)}
}

func (s *stubLedger) InsertIfAbsent(_ context.Context, followers []*models.KnownFollower) ([]*models.KnownFollower, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var inserted []*models.KnownFollower
	for _, f := range followers {
		key := f.AccountID + "/" + f.FollowerID
		if _, ok := s.records[key]; ok {
			continue
		}
		stored := *f
		s.records[key] = &stored
		inserted = append(inserted, f)
	}
	return inserted, nil
}

func (s *stubLedger) ListByAccount(_ context.Context, accountID string) ([]*models.KnownFollower, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*models.KnownFollower
	for _, f := range s.records {
		if f.AccountID == accountID {
			copied := *f
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (s *stubLedger) MarkWelcomed(_ context.Context, accountID, followerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f, ok := s.records[accountID+"/"+followerID]; ok {
		f.Welcomed = true
	}
	return nil
}

func (s *stubLedger) Stats(_ context.Context, accountID string) (models.LedgerStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := models.LedgerStats{}
	for _, f := range s.records {
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

type stubProber struct {
	count int
	err   error
}

func (s *stubProber) FollowerCount(context.Context, string, string) (int, error) {
	return s.count, s.err
}

type stubScraper struct{}

func (stubScraper) RecentFollowers(context.Context, string) []social.Follower { return nil }

type stubProfiles struct {
	mu       sync.Mutex
	profiles map[string]*models.SyncedProfile
}

func newStubProfiles() *stubProfiles {
	return &stubProfiles{profiles: make(map[string]*models.SyncedProfile)}
}

func (s *stubProfiles) GetByUsername(_ context.Context, username string) (*models.SyncedProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.profiles[username]
	if !ok {
		return nil, nil
	}
	out := *stored
	return &out, nil
}

func (s *stubProfiles) Upsert(_ context.Context, profile *models.SyncedProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *profile
	s.profiles[profile.Username] = &stored
	return nil
}

func (s *stubProfiles) AppendGrowthPoint(context.Context, string, models.GrowthPoint) error {
	return nil
}

func (s *stubProfiles) Delete(_ context.Context, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.profiles, username)
	return nil
}

// stubFetcher blocks on release when it is non-nil, so tests can hold a
// sync run open.
type stubFetcher struct {
	release chan struct{}
}

func (s *stubFetcher) FetchProfile(_ context.Context, username string) (*social.ProfileSnapshot, error) {
	if s.release != nil {
		<-s.release
	}
	return &social.ProfileSnapshot{Username: username, FollowerCount: 42}, nil
}

type apiFixture struct {
	server   *httptest.Server
	accounts *stubAccounts
	fetcher  *stubFetcher
}

func newAPIFixture(t *testing.T, prober *stubProber) *apiFixture {
	t.Helper()

	logger := testLogger()
	collector, err := metrics.NewCollector()
	if err != nil {
		t.Fatalf("failed to create collector: %v", err)
	}

	accounts := newStubAccounts()
	ledger := newStubLedger()
	if prober == nil {
		prober = &stubProber{count: 100}
	}

	reconciler := poller.NewReconciler(ledger, nil, nil, logger, 30)
	cfg := config.PollerConfig{DefaultThreshold: 5, SeedLimit: 50, ReconcileBatch: 30}
	pollEngine := poller.New(accounts, ledger, prober, stubScraper{}, reconciler, collector, logger, cfg)

	fetcher := &stubFetcher{}
	syncManager := syncqueue.NewManager(newStubProfiles(), fetcher, syncqueue.NoDelay{}, collector, logger)

	mux := http.NewServeMux()
	SetupRoutes(mux, pollEngine, syncManager, context.Background(), testAuthConfig(), logger)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &apiFixture{server: server, accounts: accounts, fetcher: fetcher}
}

func (f *apiFixture) login(t *testing.T) string {
	t.Helper()
	resp := f.post(t, "/api/auth/login", "", map[string]string{"password": "hunter2"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d, want 200", resp.StatusCode)
	}
	var body LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode login response: %v", err)
	}
	return body.Token
}

func (f *apiFixture) post(t *testing.T, path, token string, payload interface{}) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, f.server.URL+path, bytes.NewReader(body))
	if err != nil {
		t.Fatalf("failed to build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

func (f *apiFixture) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(f.server.URL + path)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}
