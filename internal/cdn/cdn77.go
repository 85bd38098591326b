// Package cdn purges cached copies of stored files from the CDN after the
// files are replaced or removed.
package cdn

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/armchr/graphogm/internal/config"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrPurge is returned when at least one purge request fails.
var ErrPurge = errors.New("cdn purge failed")

// Purger invalidates CDN cache entries for the given paths.
type Purger interface {
	Purge(ctx context.Context, paths []string) error
}

// Noop is a Purger that does nothing. Used when no CDN is configured.
type Noop struct{}

func (Noop) Purge(ctx context.Context, paths []string) error {
	return nil
}

// CDN77 implements Purger using the CDN77 purge job API
type CDN77 struct {
	baseURL    string
	resourceID string
	apiKey     string
	batchSize  int
	concurrent int
	logger     *zap.Logger
	client     *http.Client
}

type purgeRequest struct {
	Paths []string `json:"paths"`
}

type purgeErrorResponse struct {
	Message string   `json:"message"`
	Errors  []string `json:"errors"`
}

// NewCDN77 creates a purge client. cfg should already have defaults applied.
func NewCDN77(cfg config.CDNConfig, logger *zap.Logger) (*CDN77, error) {
	if cfg.ResourceID == "" || cfg.APIKey == "" {
		return nil, fmt.Errorf("CDN77 resource id and API key are required")
	}
	cfg = cfg.GetDefaults()

	return &CDN77{
		baseURL:    strings.TrimRight(cfg.APIURL, "/"),
		resourceID: cfg.ResourceID,
		apiKey:     cfg.APIKey,
		batchSize:  cfg.MaxBatchSize,
		concurrent: cfg.Concurrency,
		logger:     logger,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// WithHTTPClient replaces the HTTP client, mainly for tests.
func (c *CDN77) WithHTTPClient(client *http.Client) *CDN77 {
	c.client = client
	return c
}

// Purge splits paths into batches of at most the configured size and sends
// them concurrently. Every batch is attempted; the first failure is returned.
func (c *CDN77) Purge(ctx context.Context, paths []string) error {
	paths = normalizePaths(paths)
	if len(paths) == 0 {
		return nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrent)
	for _, batch := range Batches(paths, c.batchSize) {
		batch := batch
		g.Go(func() error {
			return c.purgeBatch(ctx, batch)
		})
	}
	return g.Wait()
}

func (c *CDN77) purgeBatch(ctx context.Context, paths []string) error {
	jsonData, err := json.Marshal(purgeRequest{Paths: paths})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v3/cdn/%s/job/purge", c.baseURL, c.resourceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	c.logger.Debug("Sending purge request to CDN77",
		zap.String("resource_id", c.resourceID),
		zap.Int("paths", len(paths)))

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: failed to send request: %w", ErrPurge, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read response: %w", ErrPurge, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp purgeErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Message != "" {
			return fmt.Errorf("%w: CDN77 API error (%d): %s", ErrPurge, resp.StatusCode, errResp.Message)
		}
		return fmt.Errorf("%w: API request failed with status %d: %s", ErrPurge, resp.StatusCode, string(body))
	}
	return nil
}

// Batches splits paths into consecutive slices of at most size elements.
func Batches(paths []string, size int) [][]string {
	if size <= 0 {
		size = len(paths)
	}
	var out [][]string
	for start := 0; start < len(paths); start += size {
		end := start + size
		if end > len(paths) {
			end = len(paths)
		}
		out = append(out, paths[start:end])
	}
	return out
}

// normalizePaths drops empty entries and makes every path absolute, which
// is the form the purge API matches cached objects by.
func normalizePaths(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		out = append(out, p)
	}
	return out
}
