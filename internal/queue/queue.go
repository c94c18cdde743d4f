// Package queue implements the Job Queue (C9): an in-process FIFO that
// decouples job submission from processing, with a single background
// consumer draining it independently per job.
package queue

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultCapacity bounds how many submitted jobs can sit in the FIFO
// before Submit blocks.
const DefaultCapacity = 256

// inflightTTL bounds how long a Redis in-flight marker survives a
// consumer crash that never clears it.
const inflightTTL = 6 * time.Hour

// Processor runs one job to completion. Implemented by
// *orchestrator.Orchestrator in production.
type Processor interface {
	Process(ctx context.Context, jobID, connectionString string) error
}

// submission is one queued unit of work.
type submission struct {
	jobID            string
	connectionString string
}

// Queue is an in-process FIFO of job submissions, drained by a single
// background consumer goroutine. An optional Redis in-flight marker
// prevents the same job id from being dispatched twice concurrently
// (e.g. a duplicate submitJob call arriving while the first is still
// queued); without Redis, dedup falls back to the in-process map alone.
type Queue struct {
	proc        Processor
	redisClient *redis.Client

	ch chan submission

	mu       sync.Mutex
	inflight map[string]bool

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// New creates a Queue. redisClient may be nil, in which case dedup is
// single-process only. capacity <= 0 defaults to DefaultCapacity.
func New(proc Processor, redisClient *redis.Client, capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{
		proc:        proc,
		redisClient: redisClient,
		ch:          make(chan submission, capacity),
		inflight:    make(map[string]bool),
	}
}

// Start launches the background consumer. Calling Start twice without an
// intervening Stop is an error.
func (q *Queue) Start() error {
	q.mu.Lock()
	if q.running {
		q.mu.Unlock()
		return fmt.Errorf("queue already running")
	}
	q.running = true
	q.ctx, q.cancel = context.WithCancel(context.Background())
	q.mu.Unlock()

	q.wg.Add(1)
	go q.consumeLoop()
	return nil
}

// Stop signals the consumer to drain no further submissions and waits
// for every in-flight job, if any, to finish.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.running {
		q.mu.Unlock()
		return
	}
	q.running = false
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}

// Submit enqueues a job for processing. It is non-blocking unless the
// queue is at capacity. A duplicate submission of a job id already
// queued or in flight is a no-op that returns (false, nil).
func (q *Queue) Submit(ctx context.Context, jobID, connectionString string) (bool, error) {
	q.mu.Lock()
	if q.inflight[jobID] {
		q.mu.Unlock()
		return false, nil
	}
	q.inflight[jobID] = true
	q.mu.Unlock()

	if q.redisClient != nil {
		key := inflightKey(jobID)
		ok, err := q.redisClient.SetNX(ctx, key, "1", inflightTTL).Result()
		if err != nil {
			q.clearInflight(ctx, jobID)
			return false, fmt.Errorf("register in-flight marker: %w", err)
		}
		if !ok {
			q.mu.Lock()
			delete(q.inflight, jobID)
			q.mu.Unlock()
			return false, nil
		}
	}

	select {
	case q.ch <- submission{jobID: jobID, connectionString: connectionString}:
		return true, nil
	case <-ctx.Done():
		q.clearInflight(ctx, jobID)
		return false, ctx.Err()
	}
}

func (q *Queue) clearInflight(ctx context.Context, jobID string) {
	q.mu.Lock()
	delete(q.inflight, jobID)
	q.mu.Unlock()
	if q.redisClient != nil {
		q.redisClient.Del(ctx, inflightKey(jobID))
	}
}

// consumeLoop pulls submissions off the FIFO and hands each to its own
// goroutine so jobs run concurrently; the queue itself imposes no
// cross-job serialization or limit (each Processor, e.g. the
// Orchestrator, enforces its own per-job bound).
func (q *Queue) consumeLoop() {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			return
		case sub := <-q.ch:
			q.wg.Add(1)
			go q.dispatch(sub)
		}
	}
}

func (q *Queue) dispatch(sub submission) {
	defer q.wg.Done()
	defer q.clearInflight(context.Background(), sub.jobID)
	if err := q.proc.Process(q.ctx, sub.jobID, sub.connectionString); err != nil {
		log.Printf("[queue] job %s failed: %v", sub.jobID, err)
	}
}

func inflightKey(jobID string) string {
	return "job:inflight:" + jobID
}
