package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestCustomerKeyNormalizesEmail(t *testing.T) {
	a := customerKey("Shop A", " Ada@Example.com")
	b := customerKey("Shop A", "ada@example.com")
	if a != b {
		t.Fatalf("expected equal keys, got %s and %s", a, b)
	}
	if !strings.HasPrefix(a, "checkout:customer:Shop A:") {
		t.Fatalf("unexpected key prefix: %s", a)
	}
	if strings.Contains(a, "example.com") {
		t.Fatal("expected email to be hashed in the key")
	}
	if a == customerKey("Shop B", "ada@example.com") {
		t.Fatal("expected keys to differ per account")
	}
}

func TestCustomerCacheSurfacesConnectionErrors(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	c := NewCustomerCache(rdb, 0)
	if c.ttl != DefaultCustomerTTL {
		t.Fatalf("expected default ttl, got %s", c.ttl)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := c.Get(ctx, "Shop A", "ada@example.com"); err == nil {
		t.Fatal("expected connection error")
	}
}
