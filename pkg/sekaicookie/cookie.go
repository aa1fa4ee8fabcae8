// Package sekaicookie fetches and caches the JP region's upstream session
// cookie via a one-shot HTTPS POST with bounded retry.
package sekaicookie

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/apperror"
)

const (
	userAgent  = "UnityPlayer/2020.3.32f1 (UnityWebRequest/1.0, libcurl/7.80.0-DEV)"
	timeout    = 10 * time.Second
	attempts   = 4
	retryDelay = time.Second
)

// Helper fetches and caches the Set-Cookie header returned by a configured
// cookie endpoint.
type Helper struct {
	url    string
	client *http.Client
	log    zerolog.Logger

	mu     sync.RWMutex
	cookie string
}

// New creates a Helper that posts to url. transport, if non-nil, is used as
// the HTTP client's RoundTripper (allowing a shared proxy-aware transport).
func New(url string, transport http.RoundTripper, log zerolog.Logger) *Helper {
	client := &http.Client{Timeout: timeout}
	if transport != nil {
		client.Transport = transport
	}
	return &Helper{url: url, client: client, log: log}
}

// Get returns the last-fetched cookie, if any.
func (h *Helper) Get() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cookie
}

// Refresh issues a POST to the cookie endpoint and caches the first
// Set-Cookie header value seen in the response, making up to 4 attempts with
// a 1-second gap between attempts.
func (h *Helper) Refresh(ctx context.Context) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
			}
		}
		cookie, err := h.fetchOnce(ctx)
		if err == nil {
			h.mu.Lock()
			h.cookie = cookie
			h.mu.Unlock()
			return nil
		}
		lastErr = err
		h.log.Warn().Err(err).Int("attempt", i+1).Msg("cookie fetch attempt failed")
	}
	return apperror.New(apperror.KindNetworkError, "cookie fetch failed after %d attempts: %v", attempts, lastErr)
}

func (h *Helper) fetchOnce(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	req.Header.Set("X-Unity-Version", "2020.3.32f1")

	resp, err := h.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	sc := resp.Header.Get("Set-Cookie")
	if sc == "" {
		return "", apperror.New(apperror.KindNetworkError, "no Set-Cookie header in response")
	}
	return sc, nil
}
