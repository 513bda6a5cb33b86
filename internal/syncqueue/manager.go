package syncqueue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/mrolabs/growthwatch/internal/metrics"
	"github.com/mrolabs/growthwatch/internal/models"
	"github.com/mrolabs/growthwatch/internal/social"
)

// ErrAlreadyRunning is returned by Start when a sync run is in flight.
var ErrAlreadyRunning = errors.New("sync run already in progress")

// ProfileFetcher loads a public profile snapshot for a username. A nil
// snapshot with a nil error means the profile does not exist.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, username string) (*social.ProfileSnapshot, error)
}

// Manager walks a roster of usernames one at a time, refreshing each
// synced profile at most once per calendar day and recording a growth
// history point whenever the follower count changes.
type Manager struct {
	profiles models.SyncedProfileRepository
	fetcher  ProfileFetcher
	delay    DelayStrategy
	metrics  *metrics.Collector
	logger   *slog.Logger

	// now is swappable so tests can control the calendar day.
	now func() time.Time

	mu      sync.Mutex
	state   models.SyncQueueState
	running bool
	wake    chan struct{}
	done    chan struct{}
}

func NewManager(profiles models.SyncedProfileRepository, fetcher ProfileFetcher, delay DelayStrategy, collector *metrics.Collector, logger *slog.Logger) *Manager {
	if delay == nil {
		delay = NoDelay{}
	}
	return &Manager{
		profiles: profiles,
		fetcher:  fetcher,
		delay:    delay,
		metrics:  collector,
		logger:   logger,
		now:      time.Now,
		state:    models.SyncQueueState{Phase: models.SyncPhaseIdle},
	}
}

// Start begins a new run over the given roster. Usernames are
// normalized and deduplicated; order is otherwise preserved. Only one
// run may be active at a time.
func (m *Manager) Start(ctx context.Context, roster []string) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}

	queue := make([]string, 0, len(roster))
	seen := make(map[string]bool, len(roster))
	for _, raw := range roster {
		username := models.NormalizeUsername(raw)
		if username == "" || seen[username] {
			continue
		}
		seen[username] = true
		queue = append(queue, username)
	}

	// A new run keeps the previous run's last-sync timestamp until it
	// produces its own.
	m.state = models.SyncQueueState{
		Phase:          models.SyncPhaseRunning,
		Queue:          queue,
		Total:          len(queue),
		LastFullSyncAt: m.state.LastFullSyncAt,
	}
	m.running = true
	m.wake = make(chan struct{}, 1)
	m.done = make(chan struct{})
	m.mu.Unlock()

	m.logger.Info("sync run started", "roster_size", len(roster), "queue_size", len(queue))
	go m.run(ctx)
	return nil
}

// Pause halts processing after the in-flight item finishes. The queue
// is retained so Resume can pick up where it left off.
func (m *Manager) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running || m.state.Stopped {
		return
	}
	m.state.Paused = true
	m.state.Phase = models.SyncPhasePaused
	m.logger.Info("sync run paused", "remaining", len(m.state.Queue))
}

// Resume clears the paused flag and continues the run.
func (m *Manager) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running || !m.state.Paused {
		return
	}
	m.state.Paused = false
	m.state.Stopped = false
	m.state.Phase = models.SyncPhaseRunning
	m.signalLocked()
	m.logger.Info("sync run resumed", "remaining", len(m.state.Queue))
}

// Stop abandons the run. The remaining queue is discarded, the stop
// time is recorded as the last-sync timestamp and the run is terminal;
// a new run must be started explicitly. The in-flight item, if any, is
// allowed to finish.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.state.Stopped = true
	m.state.Paused = false
	m.state.Queue = nil
	m.state.Phase = models.SyncPhaseStopped
	now := m.now()
	m.state.LastFullSyncAt = &now
	m.signalLocked()
	m.logger.Info("sync run stopped", "processed", m.state.Processed)
}

// Status reports a snapshot of the run state.
func (m *Manager) Status() models.SyncQueueState {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.state
	out.Queue = append([]string(nil), m.state.Queue...)
	return out
}

func (m *Manager) signalLocked() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)
	for {
		m.mu.Lock()
		if m.state.Stopped || ctx.Err() != nil {
			if ctx.Err() != nil {
				m.state.Stopped = true
				m.state.Queue = nil
				m.state.Phase = models.SyncPhaseStopped
				now := m.now()
				m.state.LastFullSyncAt = &now
			}
			m.state.CurrentlySyncing = ""
			m.running = false
			m.mu.Unlock()
			return
		}
		if m.state.Paused {
			wake := m.wake
			m.mu.Unlock()
			select {
			case <-wake:
			case <-ctx.Done():
			}
			continue
		}
		if len(m.state.Queue) == 0 {
			m.state.Phase = models.SyncPhaseCompleted
			m.state.CurrentlySyncing = ""
			now := m.now()
			m.state.LastFullSyncAt = &now
			m.running = false
			processed := m.state.Processed
			m.mu.Unlock()
			m.logger.Info("sync run completed", "processed", processed)
			return
		}
		username := m.state.Queue[0]
		m.state.Queue = m.state.Queue[1:]
		m.state.CurrentlySyncing = username
		remaining := len(m.state.Queue)
		m.mu.Unlock()

		m.syncProfile(ctx, username)

		m.mu.Lock()
		m.state.Processed++
		m.mu.Unlock()

		if remaining > 0 {
			m.sleep(ctx, m.delay.NextDelay())
		}
	}
}

func (m *Manager) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	case <-m.wake:
	}
}

// syncProfile refreshes one profile. It never fails the run: fetch and
// storage errors are logged and the item is skipped.
func (m *Manager) syncProfile(ctx context.Context, username string) {
	existing, err := m.profiles.GetByUsername(ctx, username)
	if err != nil {
		m.logger.Error("failed to load synced profile", "username", username, "error", err)
		m.metrics.RecordSyncFetch("error")
		return
	}

	now := m.now()
	if existing != nil && sameDay(existing.LastUpdatedAt, now) {
		m.logger.Debug("profile already synced today", "username", username)
		m.metrics.RecordSyncFetch("skipped_today")
		return
	}

	snapshot, err := m.fetcher.FetchProfile(ctx, username)
	if err != nil {
		m.logger.Warn("profile fetch failed", "username", username, "error", err)
		m.metrics.RecordSyncFetch("error")
		return
	}
	if snapshot == nil {
		m.logger.Info("profile not found upstream", "username", username)
		m.metrics.RecordSyncFetch("not_found")
		return
	}

	now = m.now()
	if existing == nil {
		profile := &models.SyncedProfile{
			Username:       username,
			FollowerCount:  snapshot.FollowerCount,
			FollowingCount: snapshot.FollowingCount,
			PostCount:      snapshot.PostCount,
			Bio:            snapshot.Bio,
			FirstSyncedAt:  now,
			LastUpdatedAt:  now,
		}
		if err := m.profiles.Upsert(ctx, profile); err != nil {
			m.logger.Error("failed to store synced profile", "username", username, "error", err)
			m.metrics.RecordSyncFetch("error")
			return
		}
		if err := m.profiles.AppendGrowthPoint(ctx, username, models.GrowthPoint{RecordedAt: now, FollowerCount: snapshot.FollowerCount}); err != nil {
			m.logger.Error("failed to record growth point", "username", username, "error", err)
		}
		m.metrics.RecordSyncFetch("success")
		return
	}

	previousCount := lastRecordedCount(existing)
	existing.FollowerCount = snapshot.FollowerCount
	existing.FollowingCount = snapshot.FollowingCount
	existing.PostCount = snapshot.PostCount
	existing.Bio = snapshot.Bio
	existing.LastUpdatedAt = now
	if err := m.profiles.Upsert(ctx, existing); err != nil {
		m.logger.Error("failed to update synced profile", "username", username, "error", err)
		m.metrics.RecordSyncFetch("error")
		return
	}

	// Growth history is sparse: a point is appended only when the
	// follower count actually moved.
	if previousCount == nil || *previousCount != snapshot.FollowerCount {
		if err := m.profiles.AppendGrowthPoint(ctx, username, models.GrowthPoint{RecordedAt: now, FollowerCount: snapshot.FollowerCount}); err != nil {
			m.logger.Error("failed to record growth point", "username", username, "error", err)
		}
	}
	m.metrics.RecordSyncFetch("success")
}

func lastRecordedCount(profile *models.SyncedProfile) *int {
	if len(profile.GrowthHistory) == 0 {
		return nil
	}
	count := profile.GrowthHistory[len(profile.GrowthHistory)-1].FollowerCount
	return &count
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
