// Package client ships batches of log lines to the ingestion endpoint.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"

	"github.com/yairfalse/logship/pkg/domain"
)

// Config configures the shipper.
type Config struct {
	// URL is the ingestion endpoint.
	URL string

	// APIKey authenticates the agent.
	APIKey string

	// Hostname tags shipped lines. Defaults to os.Hostname.
	Hostname string

	// Timeout bounds one ship request.
	Timeout time.Duration
}

// Validate checks required fields and fills defaults.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("ingestion URL is required")
	}
	if c.Hostname == "" {
		hostname, err := os.Hostname()
		if err != nil {
			return fmt.Errorf("unable to determine hostname: %w", err)
		}
		c.Hostname = hostname
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return nil
}

// Client posts gzip-compressed line batches. It applies no retry policy;
// callers decide what to do with a failed batch.
type Client struct {
	config Config
	http   *http.Client
	logger *zap.Logger
}

// New creates a shipper.
func New(config Config, logger *zap.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &Client{
		config: config,
		http:   &http.Client{Timeout: config.Timeout},
		logger: logger,
	}, nil
}

type ingestBody struct {
	Lines []*domain.Line `json:"lines"`
}

// Send ships one batch. Empty batches are a no-op.
func (c *Client) Send(ctx context.Context, lines []*domain.Line) error {
	if len(lines) == 0 {
		return nil
	}

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := json.NewEncoder(gz).Encode(ingestBody{Lines: lines}); err != nil {
		gz.Close()
		return fmt.Errorf("failed to encode line batch: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to compress line batch: %w", err)
	}

	query := url.Values{}
	query.Set("hostname", c.config.Hostname)
	query.Set("now", strconv.FormatInt(time.Now().UnixMilli(), 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL+"?"+query.Encode(), &buf)
	if err != nil {
		return fmt.Errorf("failed to build ingest request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	req.Header.Set("apikey", c.config.APIKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to ship line batch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("ingestion endpoint returned status %d", resp.StatusCode)
	}

	c.logger.Debug("shipped line batch", zap.Int("lines", len(lines)))
	return nil
}
