package social

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mrolabs/growthwatch/internal/config"
)

// GraphCountClient reads the current follower count for an account from
// the graph API. The read is cheap and side-effect free; it is the gate
// that decides whether a paid scrape is worth triggering at all.
type GraphCountClient struct {
	hosts  []string
	client *http.Client
	logger *slog.Logger
}

// NewGraphCountClient creates a prober that tries the primary host first
// and falls back to the secondary host on any per-endpoint failure.
func NewGraphCountClient(cfg config.GraphConfig, logger *slog.Logger) *GraphCountClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	hosts := []string{cfg.PrimaryHost}
	if cfg.FallbackHost != "" && cfg.FallbackHost != cfg.PrimaryHost {
		hosts = append(hosts, cfg.FallbackHost)
	}

	return &GraphCountClient{
		hosts:  hosts,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// FollowerCount returns the account's current follower count. A
// transient failure on one endpoint is not fatal while another endpoint
// succeeds; only when every endpoint fails is an error returned.
func (c *GraphCountClient) FollowerCount(ctx context.Context, accountID, credential string) (int, error) {
	if credential == "" {
		return 0, ErrMissingCredential
	}

	var lastErr error
	for _, host := range c.hosts {
		count, err := c.fetchCount(ctx, host, accountID, credential)
		if err != nil {
			if err == ErrNotFound {
				return 0, err
			}
			c.logger.Warn("count endpoint failed, trying next",
				"host", host,
				"account_id", accountID,
				"error", err,
			)
			lastErr = err
			continue
		}
		return count, nil
	}

	return 0, fmt.Errorf("all count endpoints failed: %w", lastErr)
}

func (c *GraphCountClient) fetchCount(ctx context.Context, host, accountID, credential string) (int, error) {
	endpoint := fmt.Sprintf("%s/v2/accounts/%s?fields=followers_count&access_token=%s",
		baseURL(host), url.PathEscape(accountID), url.QueryEscape(credential))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("count request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return 0, fmt.Errorf("count endpoint returned status %d", resp.StatusCode)
	}

	count, err := ExtractFollowerCount(body)
	if err != nil {
		return 0, fmt.Errorf("failed to parse count response from %s: %w", host, err)
	}

	return count, nil
}

// baseURL allows hosts to be given with or without a scheme; bare hosts
// default to https.
func baseURL(host string) string {
	if strings.Contains(host, "://") {
		return host
	}
	return "https://" + host
}
