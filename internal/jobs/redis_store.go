package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/fleet-rides/internal/logging"
	"github.com/example/fleet-rides/internal/models"
)

// redisClient is the subset of *redis.Client the store needs; tests swap in a fake.
type redisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetArgs(ctx context.Context, key string, value interface{}, a redis.SetArgs) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisStore stores each job as a JSON string under prefix+id with SET EX.
type RedisStore struct {
	client redisClient
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

func NewRedisStore(client *redis.Client, prefix string, ttl time.Duration, logger *slog.Logger) *RedisStore {
	return newRedisStore(client, prefix, ttl, logger)
}

func newRedisStore(client redisClient, prefix string, ttl time.Duration, logger *slog.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl, logger: logging.Component(logger, "jobs")}
}

func (s *RedisStore) key(id string) string { return s.prefix + id }

func (s *RedisStore) Insert(ctx context.Context, job models.Job) error {
	if err := validate(job); err != nil {
		return err
	}
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}
	if err := s.client.Set(ctx, s.key(job.ID), b, s.ttl).Err(); err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}
	s.logger.Debug("job inserted", "job_id", job.ID, "type", job.Type, "ttl", s.ttl.String())
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (models.Job, error) {
	raw, err := s.client.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.Job{}, ErrNotFound
	}
	if err != nil {
		return models.Job{}, fmt.Errorf("get job %s: %w", id, err)
	}
	var job models.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return models.Job{}, fmt.Errorf("decode job %s: %w", id, err)
	}
	return job, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("delete job %s: %w", id, err)
	}
	return nil
}

// SetState rewrites an existing job keeping its remaining TTL.
func (s *RedisStore) SetState(ctx context.Context, id string, state models.JobState) error {
	job, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	job.State = state
	b, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", id, err)
	}
	err = s.client.SetArgs(ctx, s.key(id), b, redis.SetArgs{Mode: "XX", KeepTTL: true}).Err()
	if errors.Is(err, redis.Nil) {
		// expired between the read and the write
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("set job %s state: %w", id, err)
	}
	return nil
}
