package sekaisession

import (
	"sync"
	"testing"

	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekaiaccount"
)

func TestSetTokenAndUserID(t *testing.T) {
	s := New(&sekaiaccount.CP{UserID_: "1", Credential: "c"})
	if s.Token() != "" {
		t.Fatalf("Token() = %q, want empty", s.Token())
	}
	s.SetToken("abc")
	if s.Token() != "abc" {
		t.Fatalf("Token() = %q, want %q", s.Token(), "abc")
	}
	s.SetUserID("2")
	if s.UserID() != "2" {
		t.Fatalf("UserID() = %q, want %q", s.UserID(), "2")
	}
}

func TestLockAPISerializes(t *testing.T) {
	s := New(&sekaiaccount.CP{UserID_: "1", Credential: "c"})
	var wg sync.WaitGroup
	var counter int
	var maxConcurrent, current int
	var mu sync.Mutex
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := s.LockAPI()
			defer unlock()
			mu.Lock()
			current++
			if current > maxConcurrent {
				maxConcurrent = current
			}
			mu.Unlock()
			counter++
			mu.Lock()
			current--
			mu.Unlock()
		}()
	}
	wg.Wait()
	if maxConcurrent != 1 {
		t.Fatalf("maxConcurrent = %d, want 1", maxConcurrent)
	}
	if counter != 20 {
		t.Fatalf("counter = %d, want 20", counter)
	}
}
