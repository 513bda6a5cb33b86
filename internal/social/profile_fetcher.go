package social

import (
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

// ProfileSnapshot is a point-in-time view of a public profile, consumed
// by the sync queue.
type ProfileSnapshot struct {
	Username       string `json:"username"`
	FollowerCount  int    `json:"follower_count"`
	FollowingCount int    `json:"following_count"`
	PostCount      int    `json:"post_count"`
	Bio            string `json:"bio"`
}

// WebProfileFetcher fetches public profile snapshots through the web
// profile endpoint. Transient upstream failures are retried with backoff
// inside the adapter; a missing profile is reported as nil, not an error.
type WebProfileFetcher struct {
	cfg    config.ScraperConfig
	policy RetryPolicy
	client *http.Client
	logger *slog.Logger
}

func NewWebProfileFetcher(cfg config.ScraperConfig, logger *slog.Logger) *WebProfileFetcher {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://www.instagram.com"
	}

	return &WebProfileFetcher{
		cfg:    cfg,
		policy: DefaultRetryPolicy(),
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// FetchProfile returns the current snapshot for a username. A nil
// snapshot with a nil error means the profile does not exist.
func (f *WebProfileFetcher) FetchProfile(ctx context.Context, username string) (*ProfileSnapshot, error) {
	var snapshot *ProfileSnapshot
	var notFound bool

	err := Retry(ctx, f.policy, func() error {
		s, nf, err := f.fetchOnce(ctx, username)
		if err != nil {
			return err
		}
		snapshot, notFound = s, nf
		return nil
	})
	if err != nil {
		return nil, err
	}

	if notFound {
		return nil, nil
	}
	return snapshot, nil
}

func (f *WebProfileFetcher) fetchOnce(ctx context.Context, username string) (*ProfileSnapshot, bool, error) {
	endpoint := fmt.Sprintf("%s/api/v1/users/web_profile_info/?username=%s",
		f.cfg.BaseURL, url.QueryEscape(username))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-IG-App-ID", "936619743392459")
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7)")
	if f.cfg.SessionCookie != "" {
		req.Header.Set("Cookie", f.cfg.SessionCookie)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, false, NewRetryableError(fmt.Errorf("profile request failed: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, true, nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, false, NewRetryableError(fmt.Errorf("profile endpoint returned status %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("profile endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, false, fmt.Errorf("failed to read response: %w", err)
	}

	var payload struct {
		Data struct {
			User *struct {
				Username string `json:"username"`
				Bio      string `json:"biography"`
				Edges    struct {
					Count int `json:"count"`
				} `json:"edge_followed_by"`
				Following struct {
					Count int `json:"count"`
				} `json:"edge_follow"`
				Media struct {
					Count int `json:"count"`
				} `json:"edge_owner_to_timeline_media"`
			} `json:"user"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, false, fmt.Errorf("failed to parse profile response: %w", err)
	}

	// The endpoint answers 200 with a null user for unknown profiles
	if payload.Data.User == nil {
		return nil, true, nil
	}

	u := payload.Data.User
	return &ProfileSnapshot{
		Username:       u.Username,
		FollowerCount:  u.Edges.Count,
		FollowingCount: u.Following.Count,
		PostCount:      u.Media.Count,
		Bio:            u.Bio,
	}, false, nil
}
