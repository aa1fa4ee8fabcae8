// Package authstore verifies the bearer token pkg/sekaiapi receives on every
// request and authorizes the caller for a given regional server. Verification
// is HS256 JWT decoding (golang-jwt/jwt/v5) against the configured signing
// key, grounded on original_source/src/api/middleware.rs's auth_middleware;
// authorization is a relational (uid, server) lookup against db/authdb,
// fronted by an in-process TTL cache keyed haruki_sekai_api:<uid>:<server>
// that stands in for the original's optional Redis cache, modeled on the
// teacher's pkg/storage/memstore sync.Map cache idiom.
package authstore

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/haruki-proxy/haruki-sekai-proxy/db/authdb"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/apperror"
)

// CacheTTL is how long a successful (uid, server) authorization is
// remembered before the next request re-checks the database.
const CacheTTL = 43200 * time.Second

// Claims is the payload of the bearer token minted for a sekai user.
type Claims struct {
	UID        string `json:"uid"`
	Credential string `json:"credential"`
	jwt.RegisteredClaims
}

// User identifies the caller once a token has been verified.
type User struct {
	UID        string
	Credential string
}

// Store verifies tokens and authorizes callers against db/authdb, with a
// CacheTTL in-process cache standing in for the optional Redis layer.
type Store struct {
	signingKey   []byte
	db           *authdb.DB
	cache        *MemCache
	cacheEnabled bool
}

// New builds a Store. db may be nil, in which case every request is let
// through unauthenticated -- this mirrors original_source's behavior when no
// database is configured (state.db.is_none() short-circuits the middleware).
//
// cacheEnabled should be cfg.Redis.Enabled: original_source/src/api/
// middleware.rs only caches a successful authorization when a Redis backend
// is configured, and re-checks the database on every request otherwise so a
// revoked grant takes effect immediately. With cacheEnabled false, Authorize
// never reads or writes the cache, matching that behavior exactly.
func New(signingKey string, db *authdb.DB, cacheEnabled bool) *Store {
	return &Store{
		signingKey:   []byte(signingKey),
		db:           db,
		cache:        NewMemCache(),
		cacheEnabled: cacheEnabled,
	}
}

// Enabled reports whether this store actually checks tokens. When disabled,
// callers should skip authentication entirely.
func (s *Store) Enabled() bool {
	return len(s.signingKey) > 0 && s.db != nil
}

// Authorize verifies token and checks that the embedded uid is authorized
// for server, using the cache before falling back to the database.
func (s *Store) Authorize(token, server string) (*User, error) {
	if !s.Enabled() {
		return nil, nil
	}

	claims, err := s.verify(token)
	if err != nil {
		return nil, err
	}
	if claims.UID == "" || claims.Credential == "" {
		return nil, apperror.New(apperror.KindAuthError, "invalid token payload")
	}

	cacheKey := server
	if s.cacheEnabled && s.cache.Get(claims.UID, cacheKey) {
		return &User{UID: claims.UID, Credential: claims.Credential}, nil
	}

	user, err := s.db.GetUser(claims.UID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, apperror.New(apperror.KindAuthError, "user %q not found", claims.UID)
	}
	if user.Credential != claims.Credential {
		return nil, apperror.New(apperror.KindAuthError, "invalid credential for user %q", claims.UID)
	}

	ok, err := s.db.IsAuthorizedForServer(claims.UID, server)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.New(apperror.KindForbidden, "user %q not authorized for server %q", claims.UID, server)
	}

	if s.cacheEnabled {
		s.cache.Set(claims.UID, cacheKey, CacheTTL)
	}
	return &User{UID: claims.UID, Credential: claims.Credential}, nil
}

func (s *Store) verify(token string) (*Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apperror.New(apperror.KindAuthError, "unexpected signing method %v", t.Header["alg"])
		}
		return s.signingKey, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, apperror.New(apperror.KindAuthError, "invalid token: %v", err)
	}
	return &claims, nil
}
