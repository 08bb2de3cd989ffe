package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"chemrecon/internal/config"
)

const maxAttempts = 5

// Client downloads the master workbook when CANONICAL_PATH is an http(s) URL.
type Client struct {
	cfg        config.Config
	httpClient *http.Client
	limiter    *RateLimiter
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.CanonicalTimeoutMs) * time.Millisecond},
		limiter:    NewRateLimiter(cfg.CanonicalRateLimitRPS),
	}
}

func IsRemote(location string) bool {
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// Download fetches rawURL and returns the body with the file name taken from the
// URL path. Transient statuses are retried with exponential backoff.
func (c *Client) Download(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", err
	}
	name := path.Base(u.Path)
	if name == "" || name == "/" || name == "." {
		name = "canonical.xlsx"
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, "", err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, "", err
		}
		if token := strings.TrimSpace(c.cfg.CanonicalToken); token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if isRetryableStatus(resp.StatusCode) && attempt < maxAttempts {
				backoff := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
				lastErr = fmt.Errorf("canonical download status %d", resp.StatusCode)
				select {
				case <-ctx.Done():
					return nil, "", ctx.Err()
				case <-time.After(backoff):
				}
				continue
			}
			return nil, "", fmt.Errorf("canonical download failed: status=%d body=%s", resp.StatusCode, truncate(body, 200))
		}
		return body, name, nil
	}

	if lastErr == nil {
		lastErr = errors.New("canonical download failed")
	}
	return nil, "", lastErr
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
