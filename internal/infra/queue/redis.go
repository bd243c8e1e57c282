package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"profile-feed/internal/domain"
	"profile-feed/internal/infra/metrics"
)

// RedisExposureQueue реализует очередь задач фиксации показов на Redis lists.
type RedisExposureQueue struct {
	client *redis.Client
	key    string
}

// NewRedisExposureQueue создаёт очередь по указанному ключу.
func NewRedisExposureQueue(client *redis.Client, key string) *RedisExposureQueue {
	return &RedisExposureQueue{client: client, key: key}
}

// Enqueue публикует задачу в очередь.
func (q *RedisExposureQueue) Enqueue(ctx context.Context, job domain.ExposureJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}
	start := time.Now()
	err = q.client.LPush(ctx, q.key, payload).Err()
	metrics.ObserveNetworkRequest("redis", "lpush", q.key, start, err)
	if err != nil {
		return fmt.Errorf("push job: %w", err)
	}
	return nil
}

// Receive блокирующе читает задачу из очереди. BRPOP снимает задачу сразу,
// поэтому ack(false) возвращает её в очередь повторной публикацией.
func (q *RedisExposureQueue) Receive(ctx context.Context) (domain.ExposureJob, domain.ExposureAckFunc, error) {
	for {
		if err := ctx.Err(); err != nil {
			return domain.ExposureJob{}, nil, err
		}

		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return domain.ExposureJob{}, nil, ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return domain.ExposureJob{}, nil, err
		}
		if len(res) != 2 {
			return domain.ExposureJob{}, nil, errors.New("redis queue: unexpected response")
		}
		raw := res[1]
		var job domain.ExposureJob
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			return domain.ExposureJob{}, nil, fmt.Errorf("decode job: %w", err)
		}
		ack := func(success bool) error {
			if success {
				return nil
			}
			return q.client.LPush(context.Background(), q.key, raw).Err()
		}
		return job, ack, nil
	}
}
