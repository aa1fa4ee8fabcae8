// Package sekaiapi is the public HTTP surface in front of the per-region
// sekaiengine.Engine pool: health, an image passthrough, and a handful of
// authenticated game-API proxies. Routing and middleware chaining follow the
// teacher's stdlib net/http + rs/zerolog/hlog idiom (pkg/atlas/server.go),
// grounded on original_source/src/api/routes.rs for the path table and
// original_source/src/api/apis.rs / image.rs for per-route proxy targets.
package sekaiapi

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/authstore"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekaiengine"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekairegion"
)

// Server is the public-facing API server. It holds one Engine per configured
// region and dispatches the `{server}` path segment to it.
type Server struct {
	Logger  zerolog.Logger
	Engines map[sekairegion.Region]*sekaiengine.Engine
	Auth    *authstore.Store
	Version string

	startedAt time.Time
}

// New builds a Server. engines should contain exactly the regions enabled in
// configuration; auth may be nil (or Store.Enabled() false) to skip bearer
// checks entirely, matching the original's "no db configured" passthrough.
func New(engines map[sekairegion.Region]*sekaiengine.Engine, auth *authstore.Store, version string, log zerolog.Logger) *Server {
	return &Server{
		Logger:    log,
		Engines:   engines,
		Auth:      auth,
		Version:   version,
		startedAt: time.Now(),
	}
}

// Handler builds the routed, middleware-wrapped http.Handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /image/{server}/mysekai/{param1}/{param2}", s.handleMysekaiImage)

	mux.Handle("GET /api/{server}/{user_id}/profile", s.requireAuth(http.HandlerFunc(s.handleProfile)))
	mux.Handle("GET /api/{server}/system", s.requireAuth(http.HandlerFunc(s.handleSystem)))
	mux.Handle("GET /api/{server}/information", s.requireAuth(http.HandlerFunc(s.handleInformation)))
	mux.Handle("GET /api/{server}/event/{event_id}/ranking-top100", s.requireAuth(http.HandlerFunc(s.handleRankingTop100)))
	mux.Handle("GET /api/{server}/event/{event_id}/ranking-border", s.requireAuth(http.HandlerFunc(s.handleRankingBorder)))

	var m middlewares
	m.Add(hlog.NewHandler(s.Logger))
	m.Add(hlog.RequestIDHandler("rid", ""))
	m.Add(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		e := s.Logger.Info()
		if rid, ok := hlog.IDFromRequest(r); ok {
			e = e.Stringer("rid", rid)
		}
		e.
			Str("method", r.Method).
			Stringer("uri", r.URL).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("handled request")
	}))

	return m.Then(mux)
}

type middlewares []func(http.Handler) http.Handler

func (ms *middlewares) Add(m func(http.Handler) http.Handler) *middlewares {
	*ms = append(*ms, m)
	return ms
}

func (ms *middlewares) Then(h http.Handler) http.Handler {
	for i := len(*ms) - 1; i >= 0; i-- {
		h = (*ms)[i](h)
	}
	return h
}

func (s *Server) engineFor(r *http.Request) (*sekaiengine.Engine, sekairegion.Region, error) {
	region, err := sekairegion.Parse(r.PathValue("server"))
	if err != nil {
		return nil, "", err
	}
	engine, ok := s.Engines[region]
	if !ok {
		return nil, region, notAvailable(region)
	}
	return engine, region, nil
}
