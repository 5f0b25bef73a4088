package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }

func TestMemoryStore_Expiry(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewMemoryStore(10)
	m.now = clock.now
	ctx := context.Background()

	m.Set(ctx, "k", []byte("v"), time.Hour)

	got, ok := m.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "v", string(got))

	clock.t = clock.t.Add(59 * time.Minute)
	_, ok = m.Get(ctx, "k")
	assert.True(t, ok)

	clock.t = clock.t.Add(2 * time.Minute)
	_, ok = m.Get(ctx, "k")
	assert.False(t, ok)
}

func TestMemoryStore_EvictsOldest(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	m := NewMemoryStore(2)
	m.now = clock.now
	ctx := context.Background()

	m.Set(ctx, "a", []byte("1"), time.Hour)
	clock.t = clock.t.Add(time.Second)
	m.Set(ctx, "b", []byte("2"), time.Hour)
	clock.t = clock.t.Add(time.Second)
	m.Set(ctx, "c", []byte("3"), time.Hour)

	assert.Equal(t, 2, m.Len())
	_, ok := m.Get(ctx, "a")
	assert.False(t, ok)
	_, ok = m.Get(ctx, "c")
	assert.True(t, ok)
}

func TestMemoryStore_OverwriteDoesNotEvict(t *testing.T) {
	m := NewMemoryStore(1)
	ctx := context.Background()
	m.Set(ctx, "a", []byte("1"), time.Hour)
	m.Set(ctx, "a", []byte("2"), time.Hour)

	got, ok := m.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, "2", string(got))
}

func TestJSONHelpers(t *testing.T) {
	type item struct {
		Title string `json:"title"`
	}
	m := NewMemoryStore(10)
	ctx := context.Background()

	SetJSON(ctx, m, "items", []item{{Title: "x"}}, time.Hour, zaptest.NewLogger(t))

	got, ok := GetJSON[[]item](ctx, m, "items")
	require.True(t, ok)
	assert.Equal(t, []item{{Title: "x"}}, got)

	m.Set(ctx, "garbage", []byte("{"), time.Hour)
	_, ok = GetJSON[[]item](ctx, m, "garbage")
	assert.False(t, ok)
}

// Requires a Redis server at REDIS_TEST_ADDR.
func TestRedisStore_RoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}
	ctx := context.Background()
	r, err := NewRedisStore(ctx, RedisConfig{Addr: addr, Prefix: "nexus-test:" + t.Name() + ":"}, zaptest.NewLogger(t))
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	defer r.Close()

	r.Set(ctx, "k", []byte("v"), time.Minute)
	got, ok := r.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "v", string(got))

	_, ok = r.Get(ctx, "missing")
	assert.False(t, ok)
}
