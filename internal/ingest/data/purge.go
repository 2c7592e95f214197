package data

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/lk2023060901/file-ingest-backend/internal/pkg/logger"
	pkgredis "github.com/lk2023060901/file-ingest-backend/internal/pkg/redis"
)

// PurgeTask is a staged or quarantined file waiting for deletion.
type PurgeTask struct {
	Path       string    `json:"path"`
	RetryCount int       `json:"retry_count"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// PurgeQueue is a Redis list used FIFO: LPush to enqueue, RPop to dequeue.
type PurgeQueue struct {
	redis  *pkgredis.Client
	key    string
	logger *logger.Logger
}

func NewPurgeQueue(redis *pkgredis.Client, key string, log *logger.Logger) *PurgeQueue {
	return &PurgeQueue{redis: redis, key: key, logger: log.Named("purge")}
}

func (q *PurgeQueue) Enqueue(ctx context.Context, path string) error {
	return q.Push(ctx, PurgeTask{Path: path, EnqueuedAt: time.Now().UTC()})
}

// Push is also used to requeue a failed task.
func (q *PurgeQueue) Push(ctx context.Context, task PurgeTask) error {
	taskJSON, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal purge task: %w", err)
	}
	if _, err := q.redis.LPush(ctx, q.key, string(taskJSON)); err != nil {
		return fmt.Errorf("failed to enqueue purge task: %w", err)
	}

	q.logger.Info("purge task enqueued",
		zap.String("path", task.Path),
		zap.Int("retry_count", task.RetryCount),
	)
	return nil
}

// Pop returns nil when the queue is empty.
func (q *PurgeQueue) Pop(ctx context.Context) (*PurgeTask, error) {
	taskJSON, err := q.redis.RPop(ctx, q.key)
	if pkgredis.IsNil(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var task PurgeTask
	if err := json.Unmarshal([]byte(taskJSON), &task); err != nil {
		// a task that cannot be decoded is dropped so it never blocks the queue
		q.logger.Error("dropping malformed purge task", zap.String("raw", taskJSON), zap.Error(err))
		return nil, nil
	}
	return &task, nil
}

func (q *PurgeQueue) Len(ctx context.Context) (int64, error) {
	return q.redis.LLen(ctx, q.key)
}

// RedisLocker is a cross-instance mutex built on SetNX.
type RedisLocker struct {
	redis *pkgredis.Client
}

func NewRedisLocker(redis *pkgredis.Client) *RedisLocker {
	return &RedisLocker{redis: redis}
}

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.redis.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl)
}

func (l *RedisLocker) Unlock(ctx context.Context, key string) error {
	_, err := l.redis.Del(ctx, key)
	return err
}
