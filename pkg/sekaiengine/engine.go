// Package sekaiengine implements the regional game-client engine: a pool of
// logged-in sessions per region, the encrypted request/response protocol,
// upstream status classification, and the bounded-retry recovery loop.
package sekaiengine

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/apperror"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekaicookie"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekaicrypto"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekairegion"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekaisession"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekaiversion"
)

const maxRetryRounds = 4

// LoginResponse is the decoded shape of a successful /user/auth exchange,
// covering both the session-refresh fields the engine itself consumes and
// the version/master-path fields the master sync task reads from a probe
// login.
type LoginResponse struct {
	SessionToken         string   `msgpack:"sessionToken"`
	AppVersion           string   `msgpack:"appVersion"`
	AppHash              string   `msgpack:"appHash"`
	DataVersion          string   `msgpack:"dataVersion"`
	AssetVersion         string   `msgpack:"assetVersion"`
	AssetHash            string   `msgpack:"assetHash"`
	CdnVersion           string   `msgpack:"cdnVersion"`
	SuiteMasterSplitPath []string `msgpack:"suiteMasterSplitPath"`
	UserRegistration     struct {
		UserID string `msgpack:"userId"`
	} `msgpack:"userRegistration"`
}

// Engine is one region's regional game-client engine.
type Engine struct {
	region sekairegion.Region
	cfg    Config
	log    zerolog.Logger

	crypto  *sekaicrypto.Cryptor
	headers *HeaderBook
	version *sekaiversion.Store
	cookie  *sekaicookie.Helper
	client  *http.Client

	pool      pool
	reloading atomic.Bool
}

// New constructs the engine for one region. proxyURL and cookieURL are
// process-wide config values (proxy, jp_sekai_cookie_url); cookieURL is only
// used when cfg.RequireCookies is set.
func New(region sekairegion.Region, cfg Config, proxyURL, cookieURL string, log zerolog.Logger) (*Engine, error) {
	crypto, err := sekaicrypto.FromHex(cfg.AESKeyHex, cfg.AESIVHex)
	if err != nil {
		return nil, err
	}
	versionStore, err := sekaiversion.Load(cfg.VersionPath)
	if err != nil {
		return nil, err
	}
	client, err := newHTTPClient(proxyURL)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		region:  region,
		cfg:     cfg,
		log:     log,
		crypto:  crypto,
		headers: newHeaderBook(cfg.Headers),
		version: versionStore,
		client:  client,
	}
	if cfg.RequireCookies && cookieURL != "" {
		e.cookie = sekaicookie.New(cookieURL, client.Transport, log)
	}
	e.applyVersionToHeaders()
	return e, nil
}

func (e *Engine) applyVersionToHeaders() {
	v := e.version.Get()
	e.headers.Set("X-App-Version", v.AppVersion)
	e.headers.Set("X-Data-Version", v.DataVersion)
	e.headers.Set("X-Asset-Version", v.AssetVersion)
	e.headers.Set("X-App-Hash", v.AppHash)
}

func (e *Engine) applyCookieToHeaders() {
	if e.cookie == nil {
		return
	}
	if c := e.cookie.Get(); c != "" {
		e.headers.Set("Cookie", c)
	}
}

// PoolSize returns the number of currently logged-in sessions.
func (e *Engine) PoolSize() int { return e.pool.len() }

// PickAnySession returns a session from the pool by round-robin (used by the
// master sync task's login probe, which doesn't care which account it uses).
func (e *Engine) PickAnySession() (*sekaisession.Session, error) {
	return e.pool.next()
}

// Region returns the region this engine serves.
func (e *Engine) Region() sekairegion.Region { return e.region }

// Config returns a copy of the region configuration this engine was built from.
func (e *Engine) Config() Config { return e.cfg }

// VersionStore returns the engine's version manifest store.
func (e *Engine) VersionStore() *sekaiversion.Store { return e.version }

// Cookie returns the engine's JP cookie helper, or nil if require_cookies is
// unset for this region.
func (e *Engine) Cookie() *sekaicookie.Helper { return e.cookie }

// HTTPClient returns the engine's shared HTTP client, for sync tasks that
// need to issue requests outside the session-authenticated API surface
// (e.g. the asset-updater fan-out).
func (e *Engine) HTTPClient() *http.Client { return e.client }

// WrapTransport wraps the engine's HTTP client transport with wrap, in
// place. Used to splice in optional diagnostics (HAR capture) after
// construction without threading an extra dependency through New.
func (e *Engine) WrapTransport(wrap func(http.RoundTripper) http.RoundTripper) {
	e.client.Transport = wrap(e.client.Transport)
}

// Crypto returns the engine's codec, for components that need to decrypt
// blobs fetched outside the session-locked request path (e.g. the Nuverse
// master blob).
func (e *Engine) Crypto() *sekaicrypto.Cryptor { return e.crypto }

// FetchOrdered issues a single session-locked GET, classifies the response,
// and decodes it with the ordered-map variant. Unlike HighLevelGet it does
// not retry or recover from SessionError/CookieExpired/UpgradeRequired —
// used by the master sync task's split-path downloads, which run against a
// session that was just freshly logged in by the sync task itself.
func (e *Engine) FetchOrdered(ctx context.Context, session *sekaisession.Session, path string) (*sekaicrypto.OrderedValue, error) {
	raw, err := e.callAPI(ctx, session, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	body, err := classifyResponse(raw.status, raw.contentType, raw.body)
	if err != nil {
		return nil, err
	}
	return e.crypto.UnpackOrdered(body)
}

// FetchRawURL issues a bare GET (no session headers, no classification) to
// an absolute URL through the engine's shared HTTP client, bounded by
// timeout. Used for the Nuverse master blob, which lives outside the
// session-authenticated API surface.
func (e *Engine) FetchRawURL(ctx context.Context, url string, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return nil, apperror.New(apperror.KindNetworkError, "fetch %s: %v", url, err)
	}
	return readBody(resp)
}

// Login performs the dialect-conditional auth exchange for session and
// updates its token/user-id from the response.
func (e *Engine) Login(ctx context.Context, session *sekaisession.Session) (*LoginResponse, error) {
	payload, err := session.DumpAccount()
	if err != nil {
		return nil, err
	}
	packed, err := e.crypto.Pack(payload)
	if err != nil {
		return nil, err
	}

	var method, path string
	if e.region.Dialect() == sekairegion.DialectNuverse {
		method, path = http.MethodPost, "/user/auth"
	} else {
		method, path = http.MethodPut, "/user/{userId}/auth?refreshUpdatedResources=False"
	}

	raw, err := e.callAPI(ctx, session, method, path, packed)
	if err != nil {
		return nil, err
	}
	body, err := classifyResponse(raw.status, raw.contentType, raw.body)
	if err != nil {
		return nil, err
	}

	var resp LoginResponse
	if err := e.crypto.Unpack(body, &resp); err != nil {
		return nil, err
	}
	if resp.SessionToken != "" {
		session.SetToken(resp.SessionToken)
	}
	if e.region.Dialect() == sekairegion.DialectNuverse {
		if uid := resp.UserRegistration.UserID; uid != "" && uid != "0" {
			session.SetUserID(uid)
		}
	}
	return &resp, nil
}

// HighLevelGet is the game-API entry point: bounded-retry GET with recovery
// per §4.6's state machine.
func (e *Engine) HighLevelGet(ctx context.Context, path string, query url.Values) (*sekaicrypto.OrderedValue, error) {
	for e.reloading.Load() {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}

	fullPath := path
	if len(query) > 0 {
		fullPath += "?" + query.Encode()
	}

	session, err := e.pool.next()
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < maxRetryRounds; attempt++ {
		raw, err := e.callAPI(ctx, session, http.MethodGet, fullPath, nil)
		if err != nil {
			return nil, err
		}

		body, cerr := classifyResponse(raw.status, raw.contentType, raw.body)
		if cerr == nil {
			ordered, derr := e.crypto.UnpackOrdered(body)
			if derr != nil {
				return nil, derr
			}
			return ordered, nil
		}

		appErr, ok := cerr.(*apperror.Error)
		if !ok {
			return nil, cerr
		}
		switch appErr.Kind {
		case apperror.KindSessionError:
			if _, lerr := e.Login(ctx, session); lerr != nil {
				return nil, apperror.New(apperror.KindSessionError, "session error and relogin failed: %v", lerr)
			}
		case apperror.KindCookieExpired:
			if e.cfg.RequireCookies && e.cookie != nil {
				if rerr := e.cookie.Refresh(ctx); rerr != nil {
					return nil, rerr
				}
				e.applyCookieToHeaders()
			} else {
				return nil, cerr
			}
		case apperror.KindUpgradeRequired:
			if verr := e.version.Reload(); verr != nil {
				return nil, verr
			}
			e.applyVersionToHeaders()
		case apperror.KindUnderMaintenance:
			return nil, cerr
		default:
			return nil, cerr
		}
	}
	return nil, apperror.New(apperror.KindNetworkError, "Max retry attempts reached")
}


type rawResponse struct {
	status      int
	contentType string
	body        []byte
}

// callAPI acquires the session's serialization lock, builds the full
// upstream URL, and sends up to four attempts with a 1s pause between
// transport failures. The returned response is unclassified; callers apply
// classifyResponse.
func (e *Engine) callAPI(ctx context.Context, session *sekaisession.Session, method, path string, body []byte) (*rawResponse, error) {
	unlock := session.LockAPI()
	defer unlock()

	ctx, cancel := context.WithTimeout(ctx, GameAPITimeout)
	defer cancel()

	fullURL := buildURL(e.cfg.APIURL, path, session.UserID())

	var lastErr error
	for attempt := 0; attempt < maxRetryRounds; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Second):
			}
		}

		req, err := e.prepare(ctx, method, fullURL, session, body)
		if err != nil {
			return nil, err
		}
		resp, err := e.client.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				e.log.Warn().Err(err).Msg("upstream request timed out")
			} else {
				e.log.Warn().Err(err).Int("attempt", attempt+1).Msg("upstream transport error")
			}
			continue
		}

		if token := resp.Header.Get("X-Session-Token"); token != "" {
			session.SetToken(token)
		}
		respBody, err := readBody(resp)
		if err != nil {
			lastErr = err
			continue
		}
		return &rawResponse{status: resp.StatusCode, contentType: resp.Header.Get("Content-Type"), body: respBody}, nil
	}
	return nil, apperror.New(apperror.KindNetworkError, "transport error after %d attempts: %v", maxRetryRounds, lastErr)
}

func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// prepare builds a request from the header book snapshot (excluding any
// in-book X-Request-Id), the session's current token, and a fresh
// X-Request-Id.
func (e *Engine) prepare(ctx context.Context, method, url string, session *sekaisession.Session, body []byte) (*http.Request, error) {
	headers := e.headers.Snapshot()
	delete(headers, "X-Request-Id")

	var bodyReader io.Reader
	if len(body) > 0 {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if token := session.Token(); token != "" {
		req.Header.Set("X-Session-Token", token)
	}
	req.Header.Set("X-Request-Id", uuid.NewString())
	return req, nil
}

func buildURL(apiURL, path, userID string) string {
	full := apiURL + "/api" + path
	return strings.ReplaceAll(full, "{userId}", userID)
}
