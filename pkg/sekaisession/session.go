// Package sekaisession holds one authenticated account together with its
// mutable session token and the lock that serializes API calls against it.
package sekaisession

import (
	"sync"

	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekaiaccount"
)

// Session pairs an account with a mutable session-token cell and a mutex
// that guarantees at most one in-flight API call per session, since the
// upstream invalidates the previous session token on every response.
type Session struct {
	mu      sync.Mutex // guards Account's mutable fields (UserID)
	account sekaiaccount.Account

	tokenMu sync.RWMutex
	token   string

	apiLock sync.Mutex
}

// New creates a session for the given account. No network calls are made;
// the caller is responsible for logging in before the session is usable.
func New(account sekaiaccount.Account) *Session {
	return &Session{account: account}
}

// LockAPI acquires the per-session serialization lock for the duration of
// one upstream API exchange. The caller must call the returned unlock func.
func (s *Session) LockAPI() func() {
	s.apiLock.Lock()
	return s.apiLock.Unlock
}

// UserID returns the session's current user id.
func (s *Session) UserID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account.UserID()
}

// SetUserID overwrites the session's user id, used when the upstream login
// response carries an authoritative id (Nuverse dialect).
func (s *Session) SetUserID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account.SetUserID(id)
}

// Token returns the current session token, or "" if none has been set.
func (s *Session) Token() string {
	s.tokenMu.RLock()
	defer s.tokenMu.RUnlock()
	return s.token
}

// SetToken unconditionally replaces the session token. The upstream rotates
// this on every response that carries one.
func (s *Session) SetToken(token string) {
	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()
	s.token = token
}

// DumpAccount serializes the login payload for this session's account.
func (s *Session) DumpAccount() (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account.Dump()
}

// Account exposes the underlying account descriptor (read-mostly access for
// callers that only need DeviceID/dialect-specific fields).
func (s *Session) Account() sekaiaccount.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account
}
