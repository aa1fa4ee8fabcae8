package sekaiengine

import (
	"testing"

	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekaiaccount"
	"github.com/haruki-proxy/haruki-sekai-proxy/pkg/sekaisession"
)

func TestPoolRoundRobinFairness(t *testing.T) {
	const n = 5
	const k = 20

	var p pool
	sessions := make([]*sekaisession.Session, n)
	counts := make(map[*sekaisession.Session]int, n)
	for i := range sessions {
		sessions[i] = sekaisession.New(&sekaiaccount.CP{UserID_: "u", DeviceID_: "d", Credential: "c"})
	}
	p.swap(sessions)

	for i := 0; i < n*k; i++ {
		s, err := p.next()
		if err != nil {
			t.Fatal(err)
		}
		counts[s]++
	}

	for _, s := range sessions {
		if counts[s] != k {
			t.Fatalf("session got %d picks, want %d", counts[s], k)
		}
	}
}

func TestPoolNextEmptyErrors(t *testing.T) {
	var p pool
	if _, err := p.next(); err == nil {
		t.Fatal("expected error from empty pool")
	}
}
