package geo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/fleet-rides/internal/models"
)

func TestPrefix(t *testing.T) {
	cases := []struct {
		hash          string
		accuracy, max int
		want          string
		wantLen       int
	}{
		{"u4pruydqqvj", 0, 4, "u4pr", 4},
		{"u4pruydqqvj", 6, 4, "u4pruy", 6},
		{"u4pruydqqvj", 2, 4, "u4pr", 4},
		{"u4p", 0, 4, "u4p", 4},
	}
	for _, c := range cases {
		got, n := Prefix(c.hash, c.accuracy, c.max)
		assert.Equal(t, c.want, got, c.hash)
		assert.Equal(t, c.wantLen, n)
	}
}

func TestMemoryIndex_Lifecycle(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	g := NewMemoryIndex(15*time.Second, time.Minute)
	g.now = func() time.Time { return now }
	ctx := context.Background()

	res, err := g.Lookup(ctx, "u4pr")
	require.NoError(t, err)
	assert.Equal(t, Missing, res.State)

	require.NoError(t, g.MarkPending(ctx, "u4pr"))
	res, _ = g.Lookup(ctx, "u4pr")
	assert.Equal(t, Pending, res.State)

	now = now.Add(16 * time.Second)
	res, _ = g.Lookup(ctx, "u4pr")
	assert.Equal(t, Missing, res.State, "pending marker expires")

	require.NoError(t, g.Store(ctx, "u4pr", []models.Vehicle{{ID: "v1"}}))
	res, _ = g.Lookup(ctx, "u4pr")
	assert.Equal(t, Ready, res.State)
	require.Len(t, res.Vehicles, 1)
	assert.Equal(t, "v1", res.Vehicles[0].ID)
}

type fakeRedis struct {
	data map[string]string
	ttls map[string]time.Duration
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, exp time.Duration) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}
	f.data[key] = string(value.([]byte))
	f.ttls[key] = exp
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func TestRedisIndex_PendingThenReady(t *testing.T) {
	f := newFakeRedis()
	g := newRedisIndex(f, "vehicle_search:", 15*time.Second, time.Minute)
	ctx := context.Background()

	res, err := g.Lookup(ctx, "u4pr")
	require.NoError(t, err)
	assert.Equal(t, Missing, res.State)

	require.NoError(t, g.MarkPending(ctx, "u4pr"))
	assert.Equal(t, 15*time.Second, f.ttls["vehicle_search:u4pr"])
	res, err = g.Lookup(ctx, "u4pr")
	require.NoError(t, err)
	assert.Equal(t, Pending, res.State)

	require.NoError(t, g.Store(ctx, "u4pr", nil))
	assert.Equal(t, time.Minute, f.ttls["vehicle_search:u4pr"])
	res, err = g.Lookup(ctx, "u4pr")
	require.NoError(t, err)
	assert.Equal(t, Ready, res.State)
	assert.NotNil(t, res.Vehicles, "an empty search is still a result")
}

func TestRedisIndex_BackendErrors(t *testing.T) {
	f := newFakeRedis()
	f.err = errors.New("connection refused")
	g := newRedisIndex(f, "vs:", 0, 0)

	_, err := g.Lookup(context.Background(), "u4pr")
	assert.ErrorContains(t, err, "connection refused")
	assert.Error(t, g.MarkPending(context.Background(), "u4pr"))
}
