package jobs

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

// fakeRedis implements redisClient over a map and records TTLs.
type fakeRedis struct {
	data    map[string]string
	ttls    map[string]time.Duration
	failAll error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: map[string]string{}, ttls: map[string]time.Duration{}}
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, exp time.Duration) *redis.StatusCmd {
	if f.failAll != nil {
		return redis.NewStatusResult("", f.failAll)
	}
	f.data[key] = string(value.([]byte))
	f.ttls[key] = exp
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) SetArgs(_ context.Context, key string, value interface{}, a redis.SetArgs) *redis.StatusCmd {
	if f.failAll != nil {
		return redis.NewStatusResult("", f.failAll)
	}
	if _, ok := f.data[key]; !ok && a.Mode == "XX" {
		return redis.NewStatusResult("", redis.Nil)
	}
	f.data[key] = string(value.([]byte))
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	if f.failAll != nil {
		return redis.NewStringResult("", f.failAll)
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	if f.failAll != nil {
		return redis.NewIntResult(0, f.failAll)
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.data[k]; ok {
			delete(f.data, k)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestRedisStore_InsertUsesPrefixAndTTL(t *testing.T) {
	fr := newFakeRedis()
	s := newRedisStore(fr, "user_jobs:", 0, nil)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, models.Job{ID: "r1", State: models.JobPending, Type: models.JobUnlock}))
	assert.Equal(t, DefaultTTL, fr.ttls["user_jobs:r1"])

	got, err := s.Get(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, models.Job{ID: "r1", State: models.JobPending, Type: models.JobUnlock}, got)
}

func TestRedisStore_GetMissing(t *testing.T) {
	s := newRedisStore(newFakeRedis(), "p:", time.Minute, nil)
	_, err := s.Get(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_SetStateKeepsRecord(t *testing.T) {
	fr := newFakeRedis()
	s := newRedisStore(fr, "p:", time.Minute, nil)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, models.Job{ID: "j", State: models.JobPending, Type: models.JobVehicleStatusChange}))

	require.NoError(t, s.SetState(ctx, "j", models.JobFailed))
	got, err := s.Get(ctx, "j")
	require.NoError(t, err)
	assert.Equal(t, models.JobFailed, got.State)
	assert.Equal(t, models.JobVehicleStatusChange, got.Type)

	assert.ErrorIs(t, s.SetState(ctx, "missing", models.JobStarted), ErrNotFound)
}

func TestRedisStore_DeleteAndBackendErrors(t *testing.T) {
	fr := newFakeRedis()
	s := newRedisStore(fr, "p:", time.Minute, nil)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, models.Job{ID: "j", State: models.JobPending, Type: models.JobUnlock}))
	require.NoError(t, s.Delete(ctx, "j"))
	_, err := s.Get(ctx, "j")
	assert.ErrorIs(t, err, ErrNotFound)

	fr.failAll = errors.New("connection refused")
	err = s.Insert(ctx, models.Job{ID: "j", State: models.JobPending, Type: models.JobUnlock})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
	_, err = s.Get(ctx, "j")
	assert.NotErrorIs(t, err, ErrNotFound)
}

func TestStores_RejectIncompleteJobs(t *testing.T) {
	ctx := context.Background()
	for _, s := range []Store{NewMemoryStore(time.Minute), newRedisStore(newFakeRedis(), "p:", time.Minute, nil)} {
		assert.ErrorIs(t, s.Insert(ctx, models.Job{ID: "x"}), ErrInvalidJob)
	}
}

func TestMemoryStore_Expires(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemoryStore(5 * time.Minute).WithClock(func() time.Time { return now })
	ctx := context.Background()
	require.NoError(t, m.Insert(ctx, models.Job{ID: "r1", State: models.JobPending, Type: models.JobUnlock}))

	now = now.Add(4*time.Minute + 59*time.Second)
	_, err := m.Get(ctx, "r1")
	require.NoError(t, err)

	now = now.Add(time.Second)
	_, err = m.Get(ctx, "r1")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, m.SetState(ctx, "r1", models.JobStarted), ErrNotFound)
}
