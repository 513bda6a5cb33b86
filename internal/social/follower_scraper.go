package social

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/mrolabs/growthwatch/internal/config"
)

// Follower is one entry from a scraped follower list. The platform ID
// may be weak (scraped, not authoritative) and resolved lazily later.
type Follower struct {
	ID     string `json:"id"`
	Handle string `json:"handle"`
}

// FollowerScraper fetches an account's most recent followers. Scraping
// is expensive and rate-limited, so callers must only invoke it after
// the count prober has reported growth at or above the threshold.
//
// Two methods are attempted in order: an authenticated-session direct
// fetch, then the vendor dataset API. The first non-empty list wins.
// All failures degrade to an empty list; "no new data" is a valid,
// retryable outcome for the caller, never a fatal condition.
type FollowerScraper struct {
	cfg          config.ScraperConfig
	client       *http.Client
	logger       *slog.Logger
	pollInterval time.Duration
}

func NewFollowerScraper(cfg config.ScraperConfig, logger *slog.Logger) *FollowerScraper {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.instagram.com"
	}

	return &FollowerScraper{
		cfg:          cfg,
		client:       &http.Client{Timeout: timeout},
		logger:       logger,
		pollInterval: 3 * time.Second,
	}
}

// RecentFollowers returns a best-effort list of the account's most
// recent followers. The list is not guaranteed complete or ordered.
func (s *FollowerScraper) RecentFollowers(ctx context.Context, username string) []Follower {
	if s.cfg.SessionCookie != "" {
		followers, err := s.sessionFollowers(ctx, username)
		if err != nil {
			s.logger.Warn("session scrape failed, trying vendor",
				"username", username,
				"error", err,
			)
		} else if len(followers) > 0 {
			s.logger.Info("scraped followers via session",
				"username", username,
				"count", len(followers),
			)
			return followers
		}
	}

	if s.cfg.VendorToken != "" {
		followers, err := s.vendorFollowers(ctx, username)
		if err != nil {
			s.logger.Warn("vendor scrape failed",
				"username", username,
				"error", err,
			)
		} else if len(followers) > 0 {
			s.logger.Info("scraped followers via vendor",
				"username", username,
				"count", len(followers),
			)
			return followers
		}
	}

	s.logger.Info("scrape yielded no followers", "username", username)
	return nil
}

// sessionFollowers fetches the follower list directly with the
// configured session cookie.
func (s *FollowerScraper) sessionFollowers(ctx context.Context, username string) ([]Follower, error) {
	endpoint := fmt.Sprintf("%s/api/v1/friendships/%s/followers/?count=50",
		s.cfg.BaseURL, url.PathEscape(username))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Cookie", s.cfg.SessionCookie)
	req.Header.Set("X-IG-App-ID", "936619743392459")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("session request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("session endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var payload struct {
		Users []struct {
			PK       json.Number `json:"pk"`
			Username string      `json:"username"`
		} `json:"users"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse session response: %w", err)
	}

	followers := make([]Follower, 0, len(payload.Users))
	for _, u := range payload.Users {
		if u.Username == "" {
			continue
		}
		followers = append(followers, Follower{ID: u.PK.String(), Handle: u.Username})
	}

	return followers, nil
}

// vendorFollowers triggers a vendor dataset collection and polls for the
// snapshot until it is ready or the budget runs out.
func (s *FollowerScraper) vendorFollowers(ctx context.Context, username string) ([]Follower, error) {
	snapshotID, err := s.triggerVendorCollection(ctx, username)
	if err != nil {
		return nil, err
	}

	// The vendor builds snapshots asynchronously; poll with a bounded
	// budget instead of waiting indefinitely.
	const maxPolls = 10
	for attempt := 0; attempt < maxPolls; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.pollInterval):
		}

		followers, ready, err := s.fetchVendorSnapshot(ctx, snapshotID)
		if err != nil {
			return nil, err
		}
		if ready {
			return followers, nil
		}
	}

	return nil, fmt.Errorf("vendor snapshot %s not ready after %d polls", snapshotID, maxPolls)
}

func (s *FollowerScraper) triggerVendorCollection(ctx context.Context, username string) (string, error) {
	endpoint := fmt.Sprintf("%s/datasets/v3/trigger?dataset_id=followers&format=json", baseURL(s.cfg.VendorHost))

	payload, err := json.Marshal([]map[string]string{{"username": username}})
	if err != nil {
		return "", fmt.Errorf("failed to marshal trigger payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create trigger request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.VendorToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("vendor trigger failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read trigger response: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", fmt.Errorf("vendor trigger returned status %d", resp.StatusCode)
	}

	var trigger struct {
		SnapshotID string `json:"snapshot_id"`
	}
	if err := json.Unmarshal(body, &trigger); err != nil || trigger.SnapshotID == "" {
		return "", fmt.Errorf("vendor trigger response missing snapshot_id")
	}

	return trigger.SnapshotID, nil
}

func (s *FollowerScraper) fetchVendorSnapshot(ctx context.Context, snapshotID string) ([]Follower, bool, error) {
	endpoint := fmt.Sprintf("%s/datasets/v3/snapshot/%s?format=json",
		baseURL(s.cfg.VendorHost), url.PathEscape(snapshotID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create snapshot request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.VendorToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("vendor snapshot request failed: %w", err)
	}
	defer resp.Body.Close()

	// 202 means the snapshot is still building
	if resp.StatusCode == http.StatusAccepted {
		return nil, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false, fmt.Errorf("vendor snapshot returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, false, fmt.Errorf("failed to read snapshot: %w", err)
	}

	followers, err := parseVendorFollowers(body)
	if err != nil {
		return nil, false, err
	}

	return followers, true, nil
}

type vendorFollower struct {
	ID       json.Number `json:"id"`
	Username string      `json:"username"`
	Handle   string      `json:"handle"`
}

// parseVendorFollowers accepts both the bare-array and the wrapped
// {"data": [...]} snapshot shapes.
func parseVendorFollowers(body []byte) ([]Follower, error) {
	var entries []vendorFollower
	if err := json.Unmarshal(body, &entries); err != nil {
		var wrapped struct {
			Data []vendorFollower `json:"data"`
		}
		if err := json.Unmarshal(body, &wrapped); err != nil {
			return nil, fmt.Errorf("failed to parse vendor snapshot: %w", err)
		}
		entries = wrapped.Data
	}

	followers := make([]Follower, 0, len(entries))
	for _, e := range entries {
		handle := e.Username
		if handle == "" {
			handle = e.Handle
		}
		if handle == "" {
			continue
		}
		followers = append(followers, Follower{ID: e.ID.String(), Handle: handle})
	}

	return followers, nil
}
