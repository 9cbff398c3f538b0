package worker

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"interview-stt-go/internal/pipeline"
	"interview-stt-go/internal/process"
	"interview-stt-go/internal/queue"
)

type fakeRunner struct {
	mu      sync.Mutex
	panics  bool
	calls   int
	failed  []error
	results []error
	block   chan struct{}
	started chan struct{}
}

func (f *fakeRunner) Run(ctx context.Context, task queue.Task) error {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	if f.panics {
		panic("nil transcript")
	}
	if n <= len(f.results) {
		return f.results[n-1]
	}
	return nil
}

func (f *fakeRunner) MarkFailed(ctx context.Context, task queue.Task, cause error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failed = append(f.failed, cause)
	return nil
}

func (f *fakeRunner) snapshot() (int, []error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, append([]error(nil), f.failed...)
}

func quietLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newPool(r Runner, retries int) *Pool {
	return NewPool(queue.NewMemory(8), r, Config{Concurrency: 2, MaxRetries: retries, RetryDelay: time.Millisecond, Engine: "whisper"}, quietLog())
}

func task() queue.Task { return queue.NewTask(uuid.New(), uuid.New(), "") }

func TestHandleRetriesThenSucceeds(t *testing.T) {
	fail := &pipeline.TranscriptionError{Engine: "whisper", Reason: "exit 1"}
	r := &fakeRunner{results: []error{fail, fail, nil}}

	newPool(r, 5).Handle(context.Background(), task())

	calls, failed := r.snapshot()
	assert.Equal(t, 3, calls)
	assert.Empty(t, failed)
}

func TestHandleMarksFailedAfterBudget(t *testing.T) {
	fail := &pipeline.TranscriptionError{Engine: "whisper", Reason: "exit 1"}
	r := &fakeRunner{results: []error{fail, fail, fail, fail}}

	newPool(r, 2).Handle(context.Background(), task())

	calls, failed := r.snapshot()
	assert.Equal(t, 3, calls)
	require.Len(t, failed, 1)
	assert.ErrorAs(t, failed[0], &fail)
}

func TestHandleMarksFailedOnAnyExhaustedError(t *testing.T) {
	locked := errors.New("persist transcript: database is locked")
	r := &fakeRunner{results: []error{locked, locked, locked}}

	newPool(r, 2).Handle(context.Background(), task())

	calls, failed := r.snapshot()
	assert.Equal(t, 3, calls)
	require.Len(t, failed, 1)
	assert.ErrorIs(t, failed[0], locked)
}

func TestHandleRetriesPanics(t *testing.T) {
	r := &fakeRunner{panics: true}

	newPool(r, 1).Handle(context.Background(), task())

	calls, failed := r.snapshot()
	assert.Equal(t, 2, calls)
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Error(), "job panic")
}

func TestHandleDoesNotRetryFatal(t *testing.T) {
	for name, err := range map[string]error{
		"missing backend": &process.MissingBackendError{Backend: "whisper"},
		"consistency":     &pipeline.ConsistencyError{},
		"stale":           pipeline.ErrStaleRun,
	} {
		t.Run(name, func(t *testing.T) {
			r := &fakeRunner{results: []error{err}}

			newPool(r, 5).Handle(context.Background(), task())

			calls, failed := r.snapshot()
			assert.Equal(t, 1, calls)
			assert.Empty(t, failed)
		})
	}
}

func TestHandleCoalescesDuplicates(t *testing.T) {
	r := &fakeRunner{block: make(chan struct{}), started: make(chan struct{}, 2)}
	p := newPool(r, 0)
	tk := task()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Handle(context.Background(), tk)
	}()
	<-r.started

	dup := tk
	dup.ID = "redelivered"
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Handle(context.Background(), dup)
	}()

	// give the duplicate time to join the in-flight call
	time.Sleep(50 * time.Millisecond)
	close(r.block)
	wg.Wait()

	calls, _ := r.snapshot()
	assert.Equal(t, 1, calls)
}

func TestRunConsumesQueue(t *testing.T) {
	q := queue.NewMemory(8)
	var done atomic.Int32
	r := &countingRunner{done: &done}
	p := NewPool(q, r, Config{Concurrency: 3, RetryDelay: time.Millisecond}, quietLog())

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Enqueue(context.Background(), task()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return done.Load() == 5 }, 5*time.Second, 10*time.Millisecond)
	cancel()
	assert.NoError(t, <-errCh)
	assert.Zero(t, q.Len())
}

type countingRunner struct{ done *atomic.Int32 }

func (c *countingRunner) Run(context.Context, queue.Task) error {
	c.done.Add(1)
	return nil
}

func (c *countingRunner) MarkFailed(context.Context, queue.Task, error) error { return nil }
