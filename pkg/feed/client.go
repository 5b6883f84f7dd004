// Package feed provides a ThingSpeak-compatible HTTP client for fetching
// the latest telemetry record of a device channel.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// DefaultBaseURL is the public ThingSpeak API endpoint.
const DefaultBaseURL = "https://api.thingspeak.com"

const requestTimeout = 10 * time.Second

// ErrNoFeedData is returned when the channel exists but has no entries yet.
var ErrNoFeedData = errors.New("feed contains no data")

// Client fetches telemetry records from a ThingSpeak-style feed API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// Config holds the configuration for the feed Client.
type Config struct {
	Logger *slog.Logger
	// BaseURL overrides the API endpoint (tests point this at a local server).
	BaseURL string
}

// NewClient creates a new feed Client.
func NewClient(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("feed config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     cfg.Logger,
	}, nil
}

// feedsResponse is the relevant subset of the feeds.json payload. Entries are
// kept as raw maps: the normalizer owns field interpretation, and the original
// record must survive untouched for the reading's audit trail.
type feedsResponse struct {
	Feeds []map[string]any `json:"feeds"`
}

// Latest returns the most recent raw record of the given channel, or
// ErrNoFeedData when the feed is empty.
func (c *Client) Latest(ctx context.Context, channelID int64, readKey string) (map[string]any, error) {
	url := fmt.Sprintf("%s/channels/%d/feeds.json?api_key=%s&results=1", c.baseURL, channelID, readKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build feed request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Error("failed to close feed response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed request returned status %d", resp.StatusCode)
	}

	var payload feedsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("failed to decode feed response: %w", err)
	}

	if len(payload.Feeds) == 0 {
		return nil, ErrNoFeedData
	}

	c.logger.Debug("fetched feed entry", "channel_id", channelID)

	return payload.Feeds[0], nil
}
