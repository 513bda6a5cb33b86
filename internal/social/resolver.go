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

// GraphIDResolver resolves a stronger platform identifier for a handle
// via the graph API's discovery endpoint. Best-effort: callers fall back
// to the originally scraped identifier on failure.
type GraphIDResolver struct {
	host   string
	client *http.Client
	logger *slog.Logger
}

func NewGraphIDResolver(cfg config.GraphConfig, logger *slog.Logger) *GraphIDResolver {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}

	return &GraphIDResolver{
		host:   cfg.PrimaryHost,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// ResolveID looks up the platform ID for a follower handle, scoped to
// the tracked account's credential.
func (r *GraphIDResolver) ResolveID(ctx context.Context, handle, accountID, credential string) (string, error) {
	if credential == "" {
		return "", ErrMissingCredential
	}

	endpoint := fmt.Sprintf("https://%s/v2/accounts/%s/discovery?handle=%s&access_token=%s",
		r.host, url.PathEscape(accountID), url.QueryEscape(handle), url.QueryEscape(credential))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("discovery request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", ErrNotFound
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("discovery endpoint returned status %d", resp.StatusCode)
	}

	var payload struct {
		ID   string `json:"id"`
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", fmt.Errorf("failed to parse discovery response: %w", err)
	}

	id := payload.ID
	if id == "" {
		id = payload.Data.ID
	}
	if id == "" {
		return "", fmt.Errorf("discovery response missing id for handle %s", handle)
	}

	return id, nil
}
