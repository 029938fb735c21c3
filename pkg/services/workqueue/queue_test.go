package workqueue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testTask is a configurable task for exercising the queue.
type testTask struct {
	id      string
	key     string
	execute func(ctx context.Context) error
}

func (t *testTask) ID() string   { return t.id }
func (t *testTask) Name() string { return "test " + t.id }
func (t *testTask) Key() string  { return t.key }

func (t *testTask) Execute(ctx context.Context) error {
	if t.execute != nil {
		return t.execute(ctx)
	}
	return nil
}

func TestQueue_RunsTasks(t *testing.T) {
	q := New(zap.NewNop())

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		q.Enqueue(&testTask{
			id:  string(rune('a' + i)),
			key: string(rune('a' + i)),
			execute: func(ctx context.Context) error {
				ran.Add(1)
				return nil
			},
		})
	}

	q.Wait()
	assert.Equal(t, int32(5), ran.Load())

	for _, snap := range q.Snapshot() {
		assert.Equal(t, TaskStatusCompleted, snap.Status)
	}
}

func TestQueue_SerializesPerKey(t *testing.T) {
	q := New(zap.NewNop(), WithMaxWorkers(4))

	var mu sync.Mutex
	running := make(map[string]int)
	maxPerKey := 0

	task := func(id, key string) *testTask {
		return &testTask{
			id:  id,
			key: key,
			execute: func(ctx context.Context) error {
				mu.Lock()
				running[key]++
				if running[key] > maxPerKey {
					maxPerKey = running[key]
				}
				mu.Unlock()

				time.Sleep(10 * time.Millisecond)

				mu.Lock()
				running[key]--
				mu.Unlock()
				return nil
			},
		}
	}

	for i := 0; i < 4; i++ {
		q.Enqueue(task(string(rune('0'+i)), "project-a"))
	}
	q.Enqueue(task("x", "project-b"))

	q.Wait()

	assert.Equal(t, 1, maxPerKey, "tasks sharing a key must not overlap")
}

func TestQueue_RetriesTransientFailure(t *testing.T) {
	q := New(zap.NewNop(), WithRetryConfig(RetryConfig{
		MaxRetries:     2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		BackoffFactor:  1.0,
	}))

	var attempts atomic.Int32
	q.Enqueue(&testTask{
		id:  "flaky",
		key: "k",
		execute: func(ctx context.Context) error {
			if attempts.Add(1) < 3 {
				return errors.New("transient")
			}
			return nil
		},
	})

	q.Wait()
	assert.Equal(t, int32(3), attempts.Load())

	snaps := q.Snapshot()
	require.Len(t, snaps, 1)
	assert.Equal(t, TaskStatusCompleted, snaps[0].Status)
}

func TestQueue_FailureAfterRetriesExhausted(t *testing.T) {
	q := New(zap.NewNop(), WithRetryConfig(RetryConfig{
		MaxRetries:     1,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		BackoffFactor:  1.0,
	}))

	q.Enqueue(&testTask{
		id:  "broken",
		key: "k",
		execute: func(ctx context.Context) error {
			return errors.New("persistent")
		},
	})

	q.Wait()

	snaps := q.Snapshot()
	require.Len(t, snaps, 1)
	assert.Equal(t, TaskStatusFailed, snaps[0].Status)
	assert.Equal(t, "persistent", snaps[0].Error)
}

func TestQueue_CancelStopsPendingTasks(t *testing.T) {
	q := New(zap.NewNop(), WithMaxWorkers(1))

	started := make(chan struct{})
	release := make(chan struct{})

	q.Enqueue(&testTask{
		id:  "running",
		key: "a",
		execute: func(ctx context.Context) error {
			close(started)
			<-release
			return nil
		},
	})
	q.Enqueue(&testTask{id: "pending", key: "a"})

	<-started
	go func() {
		time.Sleep(5 * time.Millisecond)
		close(release)
	}()
	q.Cancel()

	var pendingStatus TaskStatus
	for _, snap := range q.Snapshot() {
		if snap.ID == "pending" {
			pendingStatus = snap.Status
		}
	}
	assert.Equal(t, TaskStatusCancelled, pendingStatus)
}

func TestQueue_PrunesFinishedTasks(t *testing.T) {
	q := New(zap.NewNop(), WithMaxWorkers(4))

	total := finishedTaskRetention + 50
	for i := 0; i < total; i++ {
		q.Enqueue(&testTask{
			id:  "t-" + string(rune('0'+i%10)) + "-" + string(rune('a'+i%26)),
			key: string(rune('a' + i%8)),
		})
	}

	q.Wait()

	snaps := q.Snapshot()
	assert.LessOrEqual(t, len(snaps), finishedTaskRetention)
	for _, snap := range snaps {
		assert.Equal(t, TaskStatusCompleted, snap.Status)
	}
}

func TestQueue_EnqueueAfterCancelIgnored(t *testing.T) {
	q := New(zap.NewNop())
	q.Cancel()

	q.Enqueue(&testTask{id: "late", key: "k"})
	assert.Empty(t, q.Snapshot())
}
