package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/example/fleet-rides/internal/models"
)

type redisClient interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
}

// RedisIndex stores each prefix as one JSON document under key+prefix. A
// pending marker and a ready result differ only in state and TTL.
type RedisIndex struct {
	client     redisClient
	key        string
	pendingTTL time.Duration
	resultTTL  time.Duration
}

type document struct {
	State    string           `json:"state"`
	Vehicles []models.Vehicle `json:"vehicles,omitempty"`
}

func NewRedisIndex(client *redis.Client, key string, pendingTTL, resultTTL time.Duration) *RedisIndex {
	return newRedisIndex(client, key, pendingTTL, resultTTL)
}

func newRedisIndex(client redisClient, key string, pendingTTL, resultTTL time.Duration) *RedisIndex {
	if pendingTTL <= 0 {
		pendingTTL = DefaultPendingTTL
	}
	if resultTTL <= 0 {
		resultTTL = DefaultResultTTL
	}
	return &RedisIndex{client: client, key: key, pendingTTL: pendingTTL, resultTTL: resultTTL}
}

func (r *RedisIndex) Lookup(ctx context.Context, prefix string) (Result, error) {
	raw, err := r.client.Get(ctx, r.key+prefix).Result()
	if errors.Is(err, redis.Nil) {
		return Result{State: Missing}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("get search %s: %w", prefix, err)
	}
	var doc document
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return Result{}, fmt.Errorf("decode search %s: %w", prefix, err)
	}
	if doc.State != "ready" {
		return Result{State: Pending}, nil
	}
	if doc.Vehicles == nil {
		doc.Vehicles = []models.Vehicle{}
	}
	return Result{State: Ready, Vehicles: doc.Vehicles}, nil
}

func (r *RedisIndex) MarkPending(ctx context.Context, prefix string) error {
	return r.set(ctx, prefix, document{State: "pending"}, r.pendingTTL)
}

func (r *RedisIndex) Store(ctx context.Context, prefix string, vehicles []models.Vehicle) error {
	return r.set(ctx, prefix, document{State: "ready", Vehicles: vehicles}, r.resultTTL)
}

func (r *RedisIndex) set(ctx context.Context, prefix string, doc document, ttl time.Duration) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key+prefix, b, ttl).Err(); err != nil {
		return fmt.Errorf("set search %s: %w", prefix, err)
	}
	return nil
}
