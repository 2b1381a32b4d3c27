package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores jobs in a sorted set scored by run time plus a hash of payloads.
//
//	<prefix>:due     ZSET  job id -> RunAt (unix ms)
//	<prefix>:data    HASH  job id -> job JSON
//	<prefix>:failed  LIST  failed job JSON, newest first
type RedisBackend struct {
	client    redis.UniversalClient
	dueKey    string
	dataKey   string
	failedKey string
}

// NewRedisBackend creates a backend on an existing client. The client is owned by the caller.
func NewRedisBackend(client redis.UniversalClient, prefix string) *RedisBackend {
	return &RedisBackend{
		client:    client,
		dueKey:    prefix + ":due",
		dataKey:   prefix + ":data",
		failedKey: prefix + ":failed",
	}
}

// pushScript stores and schedules a job in one step. A job counts as queued
// only while it has a score, so a payload left without one is overwritten.
var pushScript = redis.NewScript(`
if redis.call('ZSCORE', KEYS[1], ARGV[1]) then
	return 0
end
redis.call('HSET', KEYS[2], ARGV[1], ARGV[2])
redis.call('ZADD', KEYS[1], ARGV[3], ARGV[1])
return 1
`)

// claimScript removes a due job and returns its payload. It returns nil when
// another process claimed the job first.
var claimScript = redis.NewScript(`
if redis.call('ZREM', KEYS[1], ARGV[1]) == 0 then
	return false
end
local data = redis.call('HGET', KEYS[2], ARGV[1])
redis.call('HDEL', KEYS[2], ARGV[1])
return data or ''
`)

func score(t time.Time) float64 {
	return float64(t.UnixMilli())
}

func (r *RedisBackend) Push(ctx context.Context, job Job) (bool, error) {
	data, err := json.Marshal(job)
	if err != nil {
		return false, fmt.Errorf("marshal job: %w", err)
	}

	added, err := pushScript.Run(ctx, r.client, []string{r.dueKey, r.dataKey},
		job.ID, data, score(job.RunAt)).Int()
	if err != nil {
		return false, fmt.Errorf("schedule job: %w", err)
	}
	return added == 1, nil
}

func (r *RedisBackend) PopDue(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	if limit <= 0 {
		return nil, nil
	}

	ids, err := r.client.ZRangeByScore(ctx, r.dueKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list due jobs: %w", err)
	}

	var errs []error
	jobs := make([]Job, 0, len(ids))
	for _, id := range ids {
		raw, err := claimScript.Run(ctx, r.client, []string{r.dueKey, r.dataKey}, id).Text()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("claim job %s: %w", id, err))
			continue
		}
		if raw == "" {
			errs = append(errs, fmt.Errorf("claim job %s: payload missing", id))
			continue
		}

		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			errs = append(errs, fmt.Errorf("decode job %s: %w", id, err))
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, errors.Join(errs...)
}

func (r *RedisBackend) Fail(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, r.failedKey, data)
		pipe.LTrim(ctx, r.failedKey, 0, failedHistory-1)
		return nil
	})
	return err
}

func (r *RedisBackend) Failed(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = failedHistory
	}
	raws, err := r.client.LRange(ctx, r.failedKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list failed jobs: %w", err)
	}

	jobs := make([]Job, 0, len(raws))
	for _, raw := range raws {
		var job Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (r *RedisBackend) Pending(ctx context.Context) (int64, error) {
	return r.client.ZCard(ctx, r.dueKey).Result()
}

// Close is a no-op; the shared client is closed by its owner.
func (r *RedisBackend) Close() error { return nil }
