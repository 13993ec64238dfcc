package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client, err := New("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return client
}

func TestNew_EmptyURL(t *testing.T) {
	_, err := New("")
	if err == nil {
		t.Fatal("expected error for empty URL")
	}
}

func TestNew_InvalidURL(t *testing.T) {
	_, err := New("not-a-redis-url")
	if err == nil {
		t.Fatal("expected error for invalid URL")
	}
}

func TestDefaultClientConfig(t *testing.T) {
	cfg := DefaultClientConfig()

	if cfg.PoolSize != 100 {
		t.Errorf("expected pool size 100, got %d", cfg.PoolSize)
	}
	if cfg.MinIdleConns != 10 {
		t.Errorf("expected 10 min idle conns, got %d", cfg.MinIdleConns)
	}
	if cfg.DialTimeout <= 0 {
		t.Error("expected positive dial timeout")
	}
	if cfg.MaxConnAge != 30*time.Minute {
		t.Errorf("expected 30m max conn age, got %v", cfg.MaxConnAge)
	}
}

func TestClient_Ping(t *testing.T) {
	client := newTestClient(t)

	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("ping failed: %v", err)
	}
}

func TestClient_HashCounters(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	const key = "mediation_bridge:test:counters"

	n, err := client.HIncrBy(ctx, key, "impression", 1)
	if err != nil {
		t.Fatalf("HIncrBy failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected counter 1, got %d", n)
	}

	if _, err := client.HIncrBy(ctx, key, "impression", 2); err != nil {
		t.Fatalf("HIncrBy failed: %v", err)
	}

	fields, err := client.HGetAll(ctx, key)
	if err != nil {
		t.Fatalf("HGetAll failed: %v", err)
	}
	if fields["impression"] != "3" {
		t.Errorf("expected counter 3, got %q", fields["impression"])
	}
}

func TestClient_HGetAll_MissingKey(t *testing.T) {
	client := newTestClient(t)

	fields, err := client.HGetAll(context.Background(), "no-such-hash")
	if err != nil {
		t.Fatalf("HGetAll failed: %v", err)
	}
	if len(fields) != 0 {
		t.Errorf("expected empty map, got %v", fields)
	}
}

func TestClient_IncrByFloat(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()

	const key = "mediation_bridge:test:rewards"

	v, err := client.IncrByFloat(ctx, key, 2.5)
	if err != nil {
		t.Fatalf("IncrByFloat failed: %v", err)
	}
	if v != 2.5 {
		t.Errorf("expected 2.5, got %f", v)
	}

	v, err = client.IncrByFloat(ctx, key, 10)
	if err != nil {
		t.Fatalf("IncrByFloat failed: %v", err)
	}
	if v != 12.5 {
		t.Errorf("expected 12.5, got %f", v)
	}

	got, err := client.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got != "12.5" {
		t.Errorf("expected 12.5, got %q", got)
	}
}

func TestClient_Get_MissingKey(t *testing.T) {
	client := newTestClient(t)

	v, err := client.Get(context.Background(), "no-such-key")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if v != "" {
		t.Errorf("expected empty string, got %q", v)
	}
}
