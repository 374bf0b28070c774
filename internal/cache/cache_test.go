package cache

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"pagekit/api/internal/logging"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
)

func setupTestRedis(t *testing.T) (*RedisCache, *miniredis.Miniredis) {
	t.Helper()
	s := miniredis.RunT(t)
	c, err := NewRedisCache("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("failed to create redis cache: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c, s
}

func TestNewRedisCache(t *testing.T) {
	c, _ := setupTestRedis(t)
	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
	if !c.Enabled() {
		t.Error("expected redis cache to report enabled")
	}
}

func TestNewRedisCacheBadURL(t *testing.T) {
	if _, err := NewRedisCache("not a url"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestInvalidateDeletesSinglePost(t *testing.T) {
	c, s := setupTestRedis(t)
	s.Set("css:42", "body{}")
	s.Set("css:7", "h1{}")

	c.Invalidate(context.Background(), 42)

	if s.Exists("css:42") {
		t.Error("expected css:42 to be deleted")
	}
	if !s.Exists("css:7") {
		t.Error("expected css:7 to survive")
	}
}

func TestInvalidateMissingKeyIsQuiet(t *testing.T) {
	c, _ := setupTestRedis(t)
	c.Invalidate(context.Background(), 999)
}

func TestInvalidateAllDeletesOnlyCSSKeys(t *testing.T) {
	c, s := setupTestRedis(t)
	for i := 0; i < 250; i++ {
		s.Set(fmt.Sprintf("css:%d", i), "x")
	}
	s.Set("session:abc", "keep")

	c.InvalidateAll(context.Background())

	if keys := s.Keys(); len(keys) != 1 || keys[0] != "session:abc" {
		t.Errorf("expected only session:abc to remain, got %v", keys)
	}
}

func TestInvalidateLogsWhenRedisIsDown(t *testing.T) {
	c, s := setupTestRedis(t)
	s.Close()

	var buf bytes.Buffer
	ctx := logging.WithContext(context.Background(), zerolog.New(&buf))

	c.Invalidate(ctx, 1)
	c.InvalidateAll(ctx)

	out := buf.String()
	if !strings.Contains(out, "cache invalidate failed") {
		t.Errorf("expected invalidate failure to be logged, got %q", out)
	}
	if !strings.Contains(out, "cache flush failed") {
		t.Errorf("expected flush failure to be logged, got %q", out)
	}
}

func TestNoop(t *testing.T) {
	var inv Invalidator = Noop{}
	inv.Invalidate(context.Background(), 1)
	inv.InvalidateAll(context.Background())
	if inv.Enabled() {
		t.Error("noop must report disabled")
	}
}
