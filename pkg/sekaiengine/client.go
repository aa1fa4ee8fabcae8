package sekaiengine

import (
	"net"
	"net/http"
	"net/url"
	"time"
)

const (
	// GameAPITimeout bounds a single game-API call (§5).
	GameAPITimeout = 45 * time.Second
	// MasterFetchTimeout bounds a single master-fragment/blob fetch.
	MasterFetchTimeout = 30 * time.Second
	// ShortTimeout bounds cookie and app-hash fetches.
	ShortTimeout = 10 * time.Second
)

// newHTTPClient builds the shared transport used by a region's engine: a
// connection pool with 20 idle connections per host, a 90s idle timeout and
// a 60s TCP keep-alive, optionally routed through a configured proxy. Callers
// apply their own per-call timeout via context.
func newHTTPClient(proxyURL string) (*http.Client, error) {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 60 * time.Second,
		}).DialContext,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
	}
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, err
		}
		transport.Proxy = http.ProxyURL(u)
	}
	return &http.Client{Transport: transport}, nil
}
