package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/user/priceharvest/internal/domain"
)

const (
	lastRunKey    = "harvest:last_run"
	failedURLsKey = "harvest:failed_urls"
	runStateTTL   = 7 * 24 * time.Hour
)

// RedisStore keeps run bookkeeping readable by the status endpoint and
// external dashboards. Harvest correctness never depends on it.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(addr string, db int) *RedisStore {
	rdb := redis.NewClient(&redis.Options{Addr: addr, DB: db})
	return &RedisStore{client: rdb}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// RecordRun stores the run summary and replaces the failed-URL list.
func (s *RedisStore) RecordRun(ctx context.Context, summary domain.RunSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, lastRunKey, payload, runStateTTL).Err(); err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, failedURLsKey)
	if len(summary.FailedURLs) > 0 {
		urls := make([]interface{}, len(summary.FailedURLs))
		for i, u := range summary.FailedURLs {
			urls[i] = u
		}
		pipe.RPush(ctx, failedURLsKey, urls...)
		pipe.Expire(ctx, failedURLsKey, runStateTTL)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// LastRun returns the most recent run summary, or nil when none is stored.
func (s *RedisStore) LastRun(ctx context.Context) (*domain.RunSummary, error) {
	payload, err := s.client.Get(ctx, lastRunKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var summary domain.RunSummary
	if err := json.Unmarshal(payload, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// FailedURLs returns the permanently failed URLs from the last run.
func (s *RedisStore) FailedURLs(ctx context.Context) ([]string, error) {
	return s.client.LRange(ctx, failedURLsKey, 0, -1).Result()
}
