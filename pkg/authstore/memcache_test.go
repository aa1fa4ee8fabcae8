package authstore

import (
	"testing"
	"time"
)

func TestMemCacheGetSet(t *testing.T) {
	c := NewMemCache()

	if c.Get("u1", "jp") {
		t.Fatal("expected empty cache to miss")
	}

	c.Set("u1", "jp", time.Minute)
	if !c.Get("u1", "jp") {
		t.Fatal("expected cache hit after Set")
	}
	if c.Get("u1", "en") {
		t.Fatal("expected miss for a different server")
	}
}

func TestMemCacheExpires(t *testing.T) {
	c := NewMemCache()
	c.Set("u1", "jp", time.Millisecond)
	time.Sleep(5 * time.Millisecond)
	if c.Get("u1", "jp") {
		t.Fatal("expected expired entry to miss")
	}
}
