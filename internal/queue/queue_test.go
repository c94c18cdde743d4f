package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcessor struct {
	mu        sync.Mutex
	started   chan string
	release   chan struct{}
	errFor    map[string]error
	processed []string
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		started: make(chan string, 16),
		release: make(chan struct{}),
		errFor:  make(map[string]error),
	}
}

func (f *fakeProcessor) Process(ctx context.Context, jobID, connectionString string) error {
	f.started <- jobID
	<-f.release
	f.mu.Lock()
	f.processed = append(f.processed, jobID)
	err := f.errFor[jobID]
	f.mu.Unlock()
	return err
}

func setupQueueTest(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestSubmit_DuplicateJobIDWhileQueuedIsNoOp(t *testing.T) {
	proc := newFakeProcessor()
	q := New(proc, nil, 8)
	require.NoError(t, q.Start())
	t.Cleanup(q.Stop)

	ok1, err := q.Submit(context.Background(), "job-1", "cs")
	require.NoError(t, err)
	assert.True(t, ok1)

	<-proc.started // consumer has picked it up and is blocked on release

	ok2, err := q.Submit(context.Background(), "job-1", "cs")
	require.NoError(t, err)
	assert.False(t, ok2, "second submission of the same in-flight job id must be a no-op")

	close(proc.release)
}

func TestSubmit_SameJobIDCanBeResubmittedAfterCompletion(t *testing.T) {
	proc := newFakeProcessor()
	q := New(proc, nil, 8)
	require.NoError(t, q.Start())
	t.Cleanup(q.Stop)

	ok1, err := q.Submit(context.Background(), "job-1", "cs")
	require.NoError(t, err)
	assert.True(t, ok1)

	<-proc.started
	close(proc.release)

	require.Eventually(t, func() bool {
		proc.mu.Lock()
		defer proc.mu.Unlock()
		return len(proc.processed) == 1
	}, time.Second, 10*time.Millisecond)

	proc.release = make(chan struct{})
	ok2, err := q.Submit(context.Background(), "job-1", "cs")
	require.NoError(t, err)
	assert.True(t, ok2, "a completed job id must be resubmittable")
	<-proc.started
	close(proc.release)
}

func TestSubmit_RedisInFlightMarkerRejectsDuplicateAcrossQueues(t *testing.T) {
	client, _ := setupQueueTest(t)

	proc1 := newFakeProcessor()
	q1 := New(proc1, client, 8)
	require.NoError(t, q1.Start())
	t.Cleanup(q1.Stop)

	proc2 := newFakeProcessor()
	q2 := New(proc2, client, 8)
	require.NoError(t, q2.Start())
	t.Cleanup(q2.Stop)

	ok1, err := q1.Submit(context.Background(), "job-shared", "cs")
	require.NoError(t, err)
	assert.True(t, ok1)
	<-proc1.started

	ok2, err := q2.Submit(context.Background(), "job-shared", "cs")
	require.NoError(t, err)
	assert.False(t, ok2, "a second queue instance must see the Redis in-flight marker")

	close(proc1.release)
}

func TestSubmit_ProcessesDistinctJobsConcurrently(t *testing.T) {
	proc := newFakeProcessor()
	q := New(proc, nil, 8)
	require.NoError(t, q.Start())
	t.Cleanup(q.Stop)

	_, err := q.Submit(context.Background(), "job-1", "cs")
	require.NoError(t, err)
	_, err = q.Submit(context.Background(), "job-2", "cs")
	require.NoError(t, err)

	// Both jobs must reach Process before either is released; if the
	// consumer serialized dispatch, job-2 could never start until
	// job-1's call to Process returned.
	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-proc.started:
			seen[id] = true
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for both jobs to start concurrently; got %v", seen)
		}
	}
	assert.True(t, seen["job-1"])
	assert.True(t, seen["job-2"])

	close(proc.release)
}

func TestStop_WaitsForInFlightJobBeforeReturning(t *testing.T) {
	proc := newFakeProcessor()
	q := New(proc, nil, 8)
	require.NoError(t, q.Start())

	_, err := q.Submit(context.Background(), "job-1", "cs")
	require.NoError(t, err)
	<-proc.started
	close(proc.release)

	q.Stop()

	proc.mu.Lock()
	defer proc.mu.Unlock()
	assert.Len(t, proc.processed, 1)
}
