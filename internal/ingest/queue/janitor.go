// Package queue runs background cleanup: it drains the purge queue and
// sweeps expired staged files.
package queue

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lk2023060901/file-ingest-backend/internal/ingest/data"
	"github.com/lk2023060901/file-ingest-backend/internal/pkg/logger"
	"github.com/lk2023060901/file-ingest-backend/internal/pkg/metrics"
)

const (
	// MaxRetries bounds how often one path is retried.
	MaxRetries = 3

	lockKey = "lock:ingest:janitor"
	// a round stops after this many tasks even if producers keep pushing
	maxTasksPerRound = 256
)

// TaskStore is the purge queue.
type TaskStore interface {
	Push(ctx context.Context, task data.PurgeTask) error
	Pop(ctx context.Context) (*data.PurgeTask, error)
}

// Locker keeps a single janitor active across instances.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// Sweeper removes expired staged files.
type Sweeper interface {
	Sweep(ctx context.Context, ttl time.Duration) (int, error)
}

type Options struct {
	Interval   time.Duration
	StagingTTL time.Duration
	// queued paths outside these directories are dropped
	Roots []string
}

// Janitor deletes queued files and sweeps staging on an interval.
type Janitor struct {
	opts    Options
	tasks   TaskStore
	locker  Locker
	sweeper Sweeper
	remove  func(string) error
	logger  *logger.Logger

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// NewJanitor builds a janitor. tasks and locker are nil when Redis is disabled.
func NewJanitor(opts Options, tasks TaskStore, locker Locker, sweeper Sweeper, log *logger.Logger) *Janitor {
	if opts.Interval <= 0 {
		opts.Interval = time.Minute
	}
	if opts.StagingTTL <= 0 {
		opts.StagingTTL = time.Hour
	}
	if log == nil {
		log = logger.NewNop()
	}

	roots := make([]string, 0, len(opts.Roots))
	for _, r := range opts.Roots {
		if abs, err := filepath.Abs(r); err == nil {
			roots = append(roots, abs)
		}
	}
	opts.Roots = roots

	return &Janitor{
		opts:    opts,
		tasks:   tasks,
		locker:  locker,
		sweeper: sweeper,
		remove:  os.Remove,
		logger:  log.Named("janitor"),
	}
}

func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.running {
		return fmt.Errorf("janitor already running")
	}
	j.running = true
	j.stopCh = make(chan struct{})

	j.logger.Info("starting janitor",
		zap.Duration("interval", j.opts.Interval),
		zap.Duration("staging_ttl", j.opts.StagingTTL),
	)

	j.wg.Add(1)
	go j.loop(ctx)
	return nil
}

// Stop waits for the current round to finish.
func (j *Janitor) Stop() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.running {
		return
	}
	close(j.stopCh)
	j.wg.Wait()
	j.running = false
	j.logger.Info("janitor stopped")
}

func (j *Janitor) loop(ctx context.Context) {
	defer j.wg.Done()

	ticker := time.NewTicker(j.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-j.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce takes the lock, drains the purge queue, then sweeps staging.
func (j *Janitor) RunOnce(ctx context.Context) {
	if j.locker != nil {
		ok, err := j.locker.TryLock(ctx, lockKey, j.opts.Interval)
		if err != nil {
			j.logger.Warn("failed to acquire janitor lock", zap.Error(err))
			return
		}
		if !ok {
			j.logger.Debug("janitor lock held elsewhere, skipping round")
			return
		}
		defer func() {
			if err := j.locker.Unlock(context.WithoutCancel(ctx), lockKey); err != nil {
				j.logger.Warn("failed to release janitor lock", zap.Error(err))
			}
		}()
	}

	j.drain(ctx)

	if j.sweeper != nil {
		n, err := j.sweeper.Sweep(ctx, j.opts.StagingTTL)
		if err != nil {
			j.logger.Error("staging sweep failed", zap.Error(err))
		}
		if n > 0 {
			metrics.JanitorRemoved.WithLabelValues("sweep").Add(float64(n))
			j.logger.Info("stale staged files removed", zap.Int("count", n))
		}
	}
}

// drain handles queued tasks. Failures are pushed back for the next round.
func (j *Janitor) drain(ctx context.Context) {
	if j.tasks == nil {
		return
	}

	var retry []data.PurgeTask
	for i := 0; i < maxTasksPerRound; i++ {
		if ctx.Err() != nil {
			break
		}
		task, err := j.tasks.Pop(ctx)
		if err != nil {
			j.logger.Error("failed to pop purge task", zap.Error(err))
			break
		}
		if task == nil {
			break
		}
		if failed := j.process(task); failed {
			retry = append(retry, *task)
		}
	}

	for _, task := range retry {
		if err := j.tasks.Push(context.WithoutCancel(ctx), task); err != nil {
			j.logger.Error("failed to re-enqueue purge task", zap.String("path", task.Path), zap.Error(err))
		}
	}
}

// process removes one file and reports whether it should be retried.
func (j *Janitor) process(task *data.PurgeTask) bool {
	log := j.logger.With(zap.String("path", task.Path), zap.Int("retry_count", task.RetryCount))

	if !j.contained(task.Path) {
		log.Warn("dropping purge task outside managed directories")
		return false
	}

	err := j.remove(task.Path)
	if err == nil || errors.Is(err, os.ErrNotExist) {
		metrics.JanitorRemoved.WithLabelValues("queue").Inc()
		log.Info("purged file")
		return false
	}

	if task.RetryCount >= MaxRetries {
		log.Error("giving up on purge after max retries", zap.Error(err))
		return false
	}
	task.RetryCount++
	log.Warn("purge failed, will retry", zap.Error(err))
	return true
}

func (j *Janitor) contained(path string) bool {
	if !filepath.IsAbs(path) {
		return false
	}
	clean := filepath.Clean(path)
	for _, root := range j.opts.Roots {
		rel, err := filepath.Rel(root, clean)
		if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			continue
		}
		return true
	}
	return false
}
