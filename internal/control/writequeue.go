package control

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// writeJob is one background side effect, such as a store upsert or a publish.
type writeJob struct {
	desc string
	fn   func(ctx context.Context) error
}

// writeQueue runs background jobs with one FIFO lane per key.
//
// Jobs on the same lane run one at a time in submission order, so upserts to
// one key can never overtake each other. Different lanes run concurrently.
// submit never blocks on job execution, and wait may be called while jobs are
// still being submitted.
type writeQueue struct {
	base    context.Context
	timeout time.Duration
	logger  Logger

	mu      sync.Mutex
	lanes   map[string][]writeJob
	running map[string]bool
	active  int           // lanes with a drain goroutine
	idle    chan struct{} // closed when active drops to zero

	failures atomic.Uint64
	pending  atomic.Int64
}

func newWriteQueue(timeout time.Duration, logger Logger) *writeQueue {
	return &writeQueue{
		// Writes outlive the loop's context so shutdown can drain them.
		base:    context.Background(),
		timeout: timeout,
		logger:  logger,
		lanes:   make(map[string][]writeJob),
		running: make(map[string]bool),
	}
}

func (q *writeQueue) submit(lane, desc string, fn func(ctx context.Context) error) {
	q.pending.Add(1)

	q.mu.Lock()
	q.lanes[lane] = append(q.lanes[lane], writeJob{desc: desc, fn: fn})
	if q.running[lane] {
		q.mu.Unlock()
		return
	}
	q.running[lane] = true
	if q.active == 0 {
		q.idle = make(chan struct{})
	}
	q.active++
	q.mu.Unlock()

	go q.drain(lane)
}

func (q *writeQueue) drain(lane string) {
	for {
		q.mu.Lock()
		jobs := q.lanes[lane]
		if len(jobs) == 0 {
			delete(q.lanes, lane)
			delete(q.running, lane)
			q.active--
			if q.active == 0 {
				close(q.idle)
			}
			q.mu.Unlock()
			return
		}
		job := jobs[0]
		q.lanes[lane] = jobs[1:]
		q.mu.Unlock()

		q.run(lane, job)
		q.pending.Add(-1)
	}
}

func (q *writeQueue) run(lane string, job writeJob) {
	ctx, cancel := context.WithTimeout(q.base, q.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			q.failures.Add(1)
			q.logger.Error("background write panicked", "lane", lane, "job", job.desc, "panic", r)
		}
	}()

	if err := job.fn(ctx); err != nil {
		q.failures.Add(1)
		q.logger.Error("background write failed", "lane", lane, "job", job.desc, "error", err)
	}
}

// wait blocks until every submitted job has finished or ctx is done. Jobs
// submitted while waiting are waited for too.
func (q *writeQueue) wait(ctx context.Context) error {
	q.mu.Lock()
	if q.active == 0 {
		q.mu.Unlock()
		return nil
	}
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
