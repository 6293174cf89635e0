package jobs

import (
	"context"
	"fmt"
	"sync"

	"github.com/ledgerhound/ledgerhound/internal/model"
)

// submission is one unit of queued work: a job handle plus the batch it
// runs.
type submission struct {
	ctx   context.Context
	job   *Job
	batch model.Batch
}

// queue is a bounded in-memory work queue feeding the orchestrator's
// executors. Single process only; batches owned by other processes are
// visible through their persisted records, not through this queue.
type queue struct {
	ch     chan submission
	closed chan struct{}
	once   sync.Once
}

func newQueue(capacity int) *queue {
	if capacity <= 0 {
		capacity = 64
	}
	return &queue{
		ch:     make(chan submission, capacity),
		closed: make(chan struct{}),
	}
}

// enqueue hands the submission to an executor, blocking when all executors
// are busy and the buffer is full.
func (q *queue) enqueue(ctx context.Context, s submission) error {
	select {
	case <-q.closed:
		return fmt.Errorf("orchestrator is shut down")
	default:
	}

	select {
	case q.ch <- s:
		return nil
	case <-q.closed:
		return fmt.Errorf("orchestrator is shut down")
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close stops intake and releases the executors. Submissions still queued
// are dropped; their batch records stay SUBMITTED and re-run on
// resubmission.
func (q *queue) close() {
	q.once.Do(func() { close(q.closed) })
}
