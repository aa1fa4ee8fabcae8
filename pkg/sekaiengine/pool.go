package sekaiengine

import (
	"sync"
	"sync/atomic"

	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/apperror"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekaisession"
)

// pool is the round-robin session list. Reads take a read guard for the time
// of index computation and clone; reloads take a write guard for the brief
// swap window. The index is reset to zero on every swap.
type pool struct {
	mu       sync.RWMutex
	sessions []*sekaisession.Session
	idx      uint64
}

func (p *pool) next() (*sekaisession.Session, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	n := len(p.sessions)
	if n == 0 {
		return nil, apperror.New(apperror.KindNoClientAvailable, "no sessions available in pool")
	}
	i := atomic.AddUint64(&p.idx, 1) - 1
	return p.sessions[i%uint64(n)], nil
}

func (p *pool) swap(sessions []*sekaisession.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sessions = sessions
	atomic.StoreUint64(&p.idx, 0)
}

func (p *pool) snapshot() []*sekaisession.Session {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*sekaisession.Session, len(p.sessions))
	copy(out, p.sessions)
	return out
}

func (p *pool) len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.sessions)
}
