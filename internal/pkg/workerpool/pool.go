package workerpool

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// Priority 优先级定义
type Priority int

const (
	PriorityLow    Priority = 0
	PriorityNormal Priority = 5
	PriorityHigh   Priority = 10
)

var (
	ErrPoolClosed = errors.New("worker pool is closed")
	ErrQueueFull  = errors.New("worker pool queue is full")
	// ErrTaskPanicked 任务执行中发生 panic，结果 channel 仍会收到该错误
	ErrTaskPanicked = errors.New("worker pool task panicked")
)

// TaskResult 任务结果
type TaskResult struct {
	Data  interface{}
	Error error
}

// Config Worker Pool 配置
type Config struct {
	Workers        int  `mapstructure:"workers"`         // worker 数量，即同时进行的转码数
	QueueSize      int  `mapstructure:"queue_size"`      // 等待队列上限
	EnablePriority bool `mapstructure:"enable_priority"` // 是否启用优先级队列
}

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Workers:        4,
		QueueSize:      64,
		EnablePriority: true,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Workers <= 0 {
		return errors.New("workerpool: workers must be > 0")
	}
	if c.QueueSize <= 0 {
		return errors.New("workerpool: queue_size must be > 0")
	}
	return nil
}

// ============= 统计信息 =============

// Statistics 统计信息
type Statistics struct {
	Submitted int64 // 已提交
	Completed int64 // 已完成
	Failed    int64 // 失败（任务返回错误或提交失败）
	Running   int64 // 运行中

	HighPriority   int64
	NormalPriority int64
	LowPriority    int64
}

type statsCounter struct {
	mu sync.RWMutex
	s  Statistics
}

func (c *statsCounter) incSubmitted(priority Priority) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.Submitted++
	switch {
	case priority >= PriorityHigh:
		c.s.HighPriority++
	case priority >= PriorityNormal:
		c.s.NormalPriority++
	default:
		c.s.LowPriority++
	}
}

func (c *statsCounter) begin() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.Running++
}

func (c *statsCounter) end(failed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.Running--
	if failed {
		c.s.Failed++
	} else {
		c.s.Completed++
	}
}

func (c *statsCounter) incFailed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.s.Failed++
}

func (c *statsCounter) get() Statistics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.s
}

// ============= 优先级队列 =============

type priorityTask struct {
	Priority  Priority
	Task      func() bool
	Abort     func(error)
	Timestamp time.Time
	index     int
}

type priorityQueue []*priorityTask

func (pq priorityQueue) Len() int { return len(pq) }

// 优先级高者先出，同优先级按提交时间先后
func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].Priority != pq[j].Priority {
		return pq[i].Priority > pq[j].Priority
	}
	return pq[i].Timestamp.Before(pq[j].Timestamp)
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x interface{}) {
	task := x.(*priorityTask)
	task.index = len(*pq)
	*pq = append(*pq, task)
}

func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	task := old[n-1]
	old[n-1] = nil
	task.index = -1
	*pq = old[0 : n-1]
	return task
}

// ============= 工作池 =============

// Pool 有界 Worker Pool，限制同时进行的转码数量
type Pool struct {
	pool   *ants.Pool
	config *Config

	// 优先级队列（可选）
	priorityQueue *priorityQueue
	queueMu       sync.Mutex
	queueClosed   bool
	notEmpty      chan struct{}
	freed         chan struct{}

	// inflight 已交给 ants 且尚未结束的任务数。ants 的 Running 包含空闲 worker，不能用来判断是否有空位
	inflight atomic.Int32

	stats *statsCounter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	logger *zap.Logger
}

// New 创建 Worker Pool
func New(config *Config, logger *zap.Logger) (*Pool, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// 未启用优先级时由 ants 自身排队，等待数即 QueueSize
	opts := []ants.Option{
		ants.WithPanicHandler(func(err interface{}) {
			logger.Error("worker panic", zap.Any("error", err))
		}),
	}
	if !config.EnablePriority {
		opts = append(opts, ants.WithMaxBlockingTasks(config.QueueSize))
	}

	antsPool, err := ants.NewPool(config.Workers, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create ants pool: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	p := &Pool{
		pool:   antsPool,
		config: config,
		stats:  &statsCounter{},
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}

	if config.EnablePriority {
		pq := make(priorityQueue, 0, config.QueueSize)
		heap.Init(&pq)
		p.priorityQueue = &pq
		p.notEmpty = make(chan struct{}, 1)
		p.freed = make(chan struct{}, 1)

		p.wg.Add(1)
		go p.scheduler()
	}

	return p, nil
}

// Submit 提交任务
func (p *Pool) Submit(task func()) error {
	return p.submit(PriorityNormal, func() bool {
		task()
		return false
	}, nil)
}

// SubmitWithResult 提交任务并获取结果
func (p *Pool) SubmitWithResult(task func() (interface{}, error)) <-chan TaskResult {
	return p.SubmitWithPriorityAndResult(PriorityNormal, task)
}

// SubmitWithPriorityAndResult 提交带优先级的任务并获取结果。
// 返回的 channel 总会收到恰好一个结果，提交失败时结果中携带提交错误。
func (p *Pool) SubmitWithPriorityAndResult(
	priority Priority,
	task func() (interface{}, error),
) <-chan TaskResult {
	resultCh := make(chan TaskResult, 1)

	fail := func(err error) {
		resultCh <- TaskResult{Error: err}
		close(resultCh)
	}

	err := p.submit(priority, func() (failed bool) {
		// ants 的 PanicHandler 只记录日志，这里保证调用方一定能收到结果
		defer func() {
			if r := recover(); r != nil {
				p.logger.Error("task panic", zap.Any("panic", r), zap.Stack("stack"))
				resultCh <- TaskResult{Error: fmt.Errorf("%w: %v", ErrTaskPanicked, r)}
				close(resultCh)
				failed = true
			}
		}()

		result, err := task()
		resultCh <- TaskResult{Data: result, Error: err}
		close(resultCh)
		return err != nil
	}, fail)
	if err != nil {
		fail(err)
	}

	return resultCh
}

func (p *Pool) submit(priority Priority, task func() bool, abort func(error)) error {
	select {
	case <-p.ctx.Done():
		return ErrPoolClosed
	default:
	}

	if p.config.EnablePriority {
		p.queueMu.Lock()
		if p.queueClosed {
			p.queueMu.Unlock()
			return ErrPoolClosed
		}
		if p.priorityQueue.Len() >= p.config.QueueSize {
			p.queueMu.Unlock()
			p.stats.incFailed()
			return ErrQueueFull
		}
		heap.Push(p.priorityQueue, &priorityTask{
			Priority:  priority,
			Task:      task,
			Abort:     abort,
			Timestamp: time.Now(),
		})
		p.queueMu.Unlock()

		p.stats.incSubmitted(priority)

		select {
		case p.notEmpty <- struct{}{}:
		default:
		}
		return nil
	}

	p.stats.incSubmitted(priority)
	p.inflight.Add(1)
	if err := p.pool.Submit(p.wrap(task)); err != nil {
		p.inflight.Add(-1)
		p.stats.incFailed()
		if errors.Is(err, ants.ErrPoolOverload) {
			return ErrQueueFull
		}
		if errors.Is(err, ants.ErrPoolClosed) {
			return ErrPoolClosed
		}
		return err
	}
	return nil
}

func (p *Pool) wrap(task func() bool) func() {
	return func() {
		p.stats.begin()
		failed := true
		defer func() {
			p.stats.end(failed)
			p.inflight.Add(-1)
			if p.freed != nil {
				select {
				case p.freed <- struct{}{}:
				default:
				}
			}
		}()
		failed = task()
	}
}

// scheduler 调度器（仅在启用优先级队列时运行）
func (p *Pool) scheduler() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.notEmpty:
			p.dispatch()
		case <-p.freed:
			p.dispatch()
		}
	}
}

// dispatch 只在有空闲 worker 时出队，保证高优先级任务不会被压在 ants 内部队列之后
func (p *Pool) dispatch() {
	for {
		select {
		case <-p.ctx.Done():
			return
		default:
		}

		if int(p.inflight.Load()) >= p.config.Workers {
			return
		}

		p.queueMu.Lock()
		if p.priorityQueue.Len() == 0 {
			p.queueMu.Unlock()
			return
		}
		pt := heap.Pop(p.priorityQueue).(*priorityTask)
		p.queueMu.Unlock()

		p.inflight.Add(1)
		if err := p.pool.Submit(p.wrap(pt.Task)); err != nil {
			p.inflight.Add(-1)
			p.queueMu.Lock()
			heap.Push(p.priorityQueue, pt)
			p.queueMu.Unlock()
			time.Sleep(10 * time.Millisecond)
			return
		}
	}
}

// ============= 公共方法 =============

// QueueLength 获取等待中的任务数
func (p *Pool) QueueLength() int {
	if p.config.EnablePriority {
		p.queueMu.Lock()
		defer p.queueMu.Unlock()
		return p.priorityQueue.Len()
	}
	return p.pool.Waiting()
}

// Running 获取正在执行的任务数
func (p *Pool) Running() int {
	return int(p.inflight.Load())
}

// Stats 获取统计信息
func (p *Pool) Stats() Statistics {
	return p.stats.get()
}

// Shutdown 关闭。排队中未开始的任务会被丢弃，已提交结果任务的调用方收到 ErrPoolClosed
func (p *Pool) Shutdown() {
	p.cancel()
	p.wg.Wait()

	if p.config.EnablePriority {
		p.queueMu.Lock()
		p.queueClosed = true
		pending := make([]*priorityTask, 0, p.priorityQueue.Len())
		for p.priorityQueue.Len() > 0 {
			pending = append(pending, heap.Pop(p.priorityQueue).(*priorityTask))
		}
		p.queueMu.Unlock()
		for _, pt := range pending {
			p.stats.incFailed()
			if pt.Abort != nil {
				pt.Abort(ErrPoolClosed)
			}
		}
		if len(pending) > 0 {
			p.logger.Warn("dropping queued tasks on shutdown", zap.Int("count", len(pending)))
		}
	}

	p.pool.Release()
}
