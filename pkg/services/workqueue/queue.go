package workqueue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// finishedTaskRetention caps how many terminal task states the queue
// keeps for Snapshot. Without a cap a long-lived server accumulates one
// entry per ingestion run forever.
const finishedTaskRetention = 64

// RetryConfig configures retry behavior for failed tasks.
type RetryConfig struct {
	MaxRetries     int           // Maximum number of retry attempts (0 = no retries)
	InitialBackoff time.Duration // Initial backoff duration
	MaxBackoff     time.Duration // Maximum backoff duration (cap)
	BackoffFactor  float64       // Multiplier for exponential backoff
}

// DefaultRetryConfig returns sensible defaults for retry behavior.
// Backoff schedule: 1s, 2s, 4s, then 10s (capped).
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: time.Second,
		MaxBackoff:     10 * time.Second,
		BackoffFactor:  2.0,
	}
}

// Queue runs ingestion tasks with bounded concurrency. Tasks that share
// a key (the project ID) are serialized: a task stays pending while
// another task with the same key is running.
type Queue struct {
	mu          sync.Mutex
	tasks       []*TaskState
	runningKeys map[string]bool
	running     int
	maxWorkers  int
	cancelled   bool

	retryConfig RetryConfig

	done chan struct{}
	wg   sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	logger *zap.Logger
}

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithMaxWorkers caps how many tasks run concurrently across all keys.
func WithMaxWorkers(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.maxWorkers = n
		}
	}
}

// WithRetryConfig sets the retry configuration.
func WithRetryConfig(config RetryConfig) QueueOption {
	return func(q *Queue) {
		q.retryConfig = config
	}
}

// New creates a new work queue with the given options.
func New(logger *zap.Logger, opts ...QueueOption) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		tasks:       make([]*TaskState, 0),
		runningKeys: make(map[string]bool),
		maxWorkers:  2,
		retryConfig: DefaultRetryConfig(),
		done:        make(chan struct{}),
		ctx:         ctx,
		cancel:      cancel,
		logger:      logger.Named("workqueue"),
	}

	for _, opt := range opts {
		opt(q)
	}

	return q
}

// Enqueue adds a task to the queue and starts it when its key is free
// and a worker slot is available.
func (q *Queue) Enqueue(task Task) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.cancelled {
		q.logger.Warn("queue cancelled, ignoring enqueue",
			zap.String("task_id", task.ID()),
			zap.String("task_name", task.Name()))
		return
	}

	q.resetDoneLocked()

	state := NewTaskState(task)
	q.tasks = append(q.tasks, state)

	q.logger.Info("task enqueued",
		zap.String("task_id", task.ID()),
		zap.String("task_name", task.Name()),
		zap.String("key", task.Key()))

	q.startEligibleLocked()
}

// startEligibleLocked launches every pending task whose key is free,
// up to the worker cap. Caller must hold q.mu.
func (q *Queue) startEligibleLocked() {
	for _, state := range q.tasks {
		if q.running >= q.maxWorkers {
			return
		}
		if state.GetStatus() != TaskStatusPending {
			continue
		}
		key := state.Task.Key()
		if q.runningKeys[key] {
			continue
		}

		q.runningKeys[key] = true
		q.running++
		state.SetStatus(TaskStatusRunning)

		q.wg.Add(1)
		go q.run(state)
	}
}

func (q *Queue) run(state *TaskState) {
	defer q.wg.Done()

	task := state.Task
	err := q.executeWithRetry(state)

	q.mu.Lock()
	defer q.mu.Unlock()

	delete(q.runningKeys, task.Key())
	q.running--

	switch {
	case q.cancelled:
		state.SetStatus(TaskStatusCancelled)
	case err != nil:
		state.SetError(err)
		state.SetStatus(TaskStatusFailed)
		q.logger.Error("task failed",
			zap.String("task_id", task.ID()),
			zap.String("task_name", task.Name()),
			zap.Error(err))
	default:
		state.SetStatus(TaskStatusCompleted)
		q.logger.Info("task completed",
			zap.String("task_id", task.ID()),
			zap.String("task_name", task.Name()))
	}

	q.pruneFinishedLocked()
	q.startEligibleLocked()
	q.signalIfDrainedLocked()
}

// pruneFinishedLocked drops the oldest terminal task states beyond the
// retention cap. Caller must hold q.mu.
func (q *Queue) pruneFinishedLocked() {
	finished := 0
	for _, state := range q.tasks {
		if state.GetStatus().Terminal() {
			finished++
		}
	}
	drop := finished - finishedTaskRetention
	if drop <= 0 {
		return
	}

	kept := make([]*TaskState, 0, len(q.tasks)-drop)
	for _, state := range q.tasks {
		if drop > 0 && state.GetStatus().Terminal() {
			drop--
			continue
		}
		kept = append(kept, state)
	}
	q.tasks = kept
}

// executeWithRetry runs the task, retrying with exponential backoff.
func (q *Queue) executeWithRetry(state *TaskState) error {
	task := state.Task
	backoff := q.retryConfig.InitialBackoff

	var err error
	for attempt := 0; ; attempt++ {
		err = task.Execute(q.ctx)
		if err == nil || q.ctx.Err() != nil || attempt >= q.retryConfig.MaxRetries {
			return err
		}

		q.logger.Warn("task failed, retrying",
			zap.String("task_id", task.ID()),
			zap.Int("attempt", attempt+1),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		select {
		case <-q.ctx.Done():
			return q.ctx.Err()
		case <-time.After(backoff):
		}

		backoff = time.Duration(float64(backoff) * q.retryConfig.BackoffFactor)
		if backoff > q.retryConfig.MaxBackoff {
			backoff = q.retryConfig.MaxBackoff
		}
	}
}

// Wait blocks until every enqueued task has finished.
func (q *Queue) Wait() {
	q.mu.Lock()
	if q.pendingOrRunningLocked() == 0 {
		q.mu.Unlock()
		return
	}
	done := q.done
	q.mu.Unlock()

	<-done
}

// Cancel stops the queue: running tasks see a cancelled context and
// pending tasks never start.
func (q *Queue) Cancel() {
	q.mu.Lock()
	if q.cancelled {
		q.mu.Unlock()
		return
	}
	q.cancelled = true
	q.cancel()

	for _, state := range q.tasks {
		if state.GetStatus() == TaskStatusPending {
			state.SetStatus(TaskStatusCancelled)
		}
	}
	q.signalIfDrainedLocked()
	q.mu.Unlock()

	q.wg.Wait()
}

// Snapshot returns the current state of every task.
func (q *Queue) Snapshot() []TaskSnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	snaps := make([]TaskSnapshot, 0, len(q.tasks))
	for _, state := range q.tasks {
		snaps = append(snaps, state.Snapshot())
	}
	return snaps
}

func (q *Queue) pendingOrRunningLocked() int {
	n := 0
	for _, state := range q.tasks {
		switch state.GetStatus() {
		case TaskStatusPending, TaskStatusRunning:
			n++
		}
	}
	return n
}

func (q *Queue) signalIfDrainedLocked() {
	if q.pendingOrRunningLocked() == 0 {
		select {
		case <-q.done:
		default:
			close(q.done)
		}
	}
}

func (q *Queue) resetDoneLocked() {
	select {
	case <-q.done:
		q.done = make(chan struct{})
	default:
	}
}
