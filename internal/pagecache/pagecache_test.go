package pagecache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseCache(t *testing.T, cache Cache) {
	t.Helper()
	ctx := context.Background()

	_, ok := cache.Get(ctx, "u1", "home")
	assert.False(t, ok)

	cache.Set(ctx, "u1", "home", []byte("<p>home</p>"))
	cache.Set(ctx, "u1", "my-banks", []byte("<p>banks</p>"))
	cache.Set(ctx, "u2", "home", []byte("<p>other</p>"))

	body, ok := cache.Get(ctx, "u1", "home")
	require.True(t, ok)
	assert.Equal(t, "<p>home</p>", string(body))

	cache.Revalidate(ctx, "u1")
	_, ok = cache.Get(ctx, "u1", "home")
	assert.False(t, ok)
	_, ok = cache.Get(ctx, "u1", "my-banks")
	assert.False(t, ok)

	_, ok = cache.Get(ctx, "u2", "home")
	assert.True(t, ok)
	cache.Revalidate(ctx, "u2")
}

func TestMemory(t *testing.T) {
	exerciseCache(t, NewMemory(time.Minute))
}

func TestMemoryExpires(t *testing.T) {
	cache := NewMemory(time.Minute)
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	cache.now = func() time.Time { return now }
	ctx := context.Background()

	cache.Set(ctx, "u1", "home", []byte("x"))
	now = now.Add(59 * time.Second)
	_, ok := cache.Get(ctx, "u1", "home")
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok = cache.Get(ctx, "u1", "home")
	assert.False(t, ok)
}

func TestNop(t *testing.T) {
	var cache Cache = Nop{}
	cache.Set(context.Background(), "u1", "home", []byte("x"))
	_, ok := cache.Get(context.Background(), "u1", "home")
	assert.False(t, ok)
}

// TestRedis runs against a real server when TEST_REDIS_ADDR is set.
func TestRedis(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR is not set")
	}

	cache, err := NewRedis(context.Background(), addr, "", time.Minute)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, cache.Close())
	}()

	exerciseCache(t, cache)
}
