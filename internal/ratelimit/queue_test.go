package ratelimit_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"connecta/ingest-service/internal/ratelimit"
)

// span records when a task started and finished.
type span struct {
	id         int
	start, end time.Time
}

type recorder struct {
	mu    sync.Mutex
	spans []span
}

func (r *recorder) task(id int, d time.Duration) ratelimit.Task {
	return func(ctx context.Context) error {
		s := span{id: id, start: time.Now()}
		time.Sleep(d)
		s.end = time.Now()
		r.mu.Lock()
		r.spans = append(r.spans, s)
		r.mu.Unlock()
		return nil
	}
}

func submitAll(t *testing.T, q *ratelimit.Queue, tasks ...ratelimit.Task) []error {
	t.Helper()
	errs := make([]error, len(tasks))
	var wg sync.WaitGroup
	for i, task := range tasks {
		wg.Add(1)
		go func(i int, task ratelimit.Task) {
			defer wg.Done()
			errs[i] = q.Submit(context.Background(), task)
		}(i, task)
	}
	wg.Wait()
	return errs
}

func TestQueue_ConcurrencyBound(t *testing.T) {
	const k = 2
	q := ratelimit.New(k, 0)

	var current, peak atomic.Int32
	task := func(ctx context.Context) error {
		n := current.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(15 * time.Millisecond)
		current.Add(-1)
		return nil
	}

	tasks := make([]ratelimit.Task, 10)
	for i := range tasks {
		tasks[i] = task
	}
	for _, err := range submitAll(t, q, tasks...) {
		require.NoError(t, err)
	}

	assert.LessOrEqual(t, peak.Load(), int32(k), "more than maxConcurrent tasks ran at once")
	assert.Equal(t, int32(k), peak.Load(), "queue never used all of its slots")
	assert.Equal(t, ratelimit.Stats{}, q.Stats())
}

// Every dispatch happens at least minDelay after every completion that
// preceded it, whichever slot the completion freed.
func TestQueue_SpacingBound(t *testing.T) {
	const minDelay = 60 * time.Millisecond
	q := ratelimit.New(2, minDelay)
	rec := &recorder{}

	tasks := make([]ratelimit.Task, 5)
	for i := range tasks {
		tasks[i] = rec.task(i, 10*time.Millisecond)
	}
	submitAll(t, q, tasks...)

	require.Len(t, rec.spans, 5)
	for _, started := range rec.spans {
		for _, finished := range rec.spans {
			if finished.end.Before(started.start) {
				assert.GreaterOrEqual(t, started.start.Sub(finished.end), minDelay,
					"task %d started %v after task %d completed", started.id, started.start.Sub(finished.end), finished.id)
			}
		}
	}
}

// maxConcurrent=2, three short tasks submitted together: two start
// immediately, the third waits for a completion plus minDelay.
func TestQueue_ThreeTaskScenario(t *testing.T) {
	const minDelay = 200 * time.Millisecond
	q := ratelimit.New(2, minDelay)
	rec := &recorder{}

	begin := time.Now()
	errs := submitAll(t, q,
		rec.task(1, 10*time.Millisecond),
		rec.task(2, 10*time.Millisecond),
		rec.task(3, 10*time.Millisecond),
	)
	for _, err := range errs {
		require.NoError(t, err)
	}

	require.Len(t, rec.spans, 3)
	spans := append([]span(nil), rec.spans...)
	sort.Slice(spans, func(i, j int) bool { return spans[i].start.Before(spans[j].start) })

	assert.Less(t, spans[0].start.Sub(begin), 100*time.Millisecond)
	assert.Less(t, spans[1].start.Sub(begin), 100*time.Millisecond)

	firstDone := spans[0].end
	if spans[1].end.Before(firstDone) {
		firstDone = spans[1].end
	}
	assert.GreaterOrEqual(t, spans[2].start.Sub(firstDone), minDelay)
	assert.GreaterOrEqual(t, spans[2].start.Sub(begin), minDelay)
}

func TestQueue_FailureDoesNotBlockQueue(t *testing.T) {
	q := ratelimit.New(1, 5*time.Millisecond)
	boom := errors.New("scrape failed")

	err := q.Submit(context.Background(), func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	ran := false
	err = q.Submit(context.Background(), func(context.Context) error { ran = true; return nil })
	assert.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 0, q.Stats().Running)
}

func TestQueue_PanicBecomesError(t *testing.T) {
	q := ratelimit.New(1, 0)

	err := q.Submit(context.Background(), func(context.Context) error { panic("selector missing") })
	assert.ErrorIs(t, err, ratelimit.ErrTaskPanicked)

	assert.NoError(t, q.Submit(context.Background(), func(context.Context) error { return nil }))
}

func TestQueue_CancelWhilePending(t *testing.T) {
	q := ratelimit.New(1, 0)

	release := make(chan struct{})
	blockerDone := make(chan error, 1)
	go func() {
		blockerDone <- q.Submit(context.Background(), func(context.Context) error {
			<-release
			return nil
		})
	}()
	require.Eventually(t, func() bool { return q.Stats().Running == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	var ran atomic.Bool
	err := q.Submit(ctx, func(context.Context) error { ran.Store(true); return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, q.Stats().Pending)

	close(release)
	require.NoError(t, <-blockerDone)

	require.NoError(t, q.Submit(context.Background(), func(context.Context) error { return nil }))
	assert.False(t, ran.Load(), "cancelled task must never run")
}

func TestQueue_SubmitWithDoneContext(t *testing.T) {
	q := ratelimit.New(1, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := q.Submit(ctx, func(context.Context) error {
		t.Error("task must not run")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQueue_FIFOOrder(t *testing.T) {
	q := ratelimit.New(1, 0)

	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = q.Submit(context.Background(), func(context.Context) error { <-release; return nil })
	}()
	require.Eventually(t, func() bool { return q.Stats().Running == 1 }, time.Second, time.Millisecond)

	var mu sync.Mutex
	var order []int
	for i := 1; i <= 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = q.Submit(context.Background(), func(context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}(i)
		require.Eventually(t, func() bool { return q.Stats().Pending == i }, time.Second, time.Millisecond)
	}

	close(release)
	wg.Wait()
	assert.Equal(t, []int{1, 2, 3, 4}, order)
}

func TestNew_ClampsInvalidArguments(t *testing.T) {
	q := ratelimit.New(0, -time.Second)
	assert.NoError(t, q.Submit(context.Background(), func(context.Context) error { return nil }))
}

func TestQueue_EnqueueKeepsCallOrder(t *testing.T) {
	q := ratelimit.New(1, 0)

	var mu sync.Mutex
	var order []int
	results := make([]<-chan error, 5)
	for i := range results {
		results[i] = q.Enqueue(context.Background(), func(context.Context) error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
	}
	for _, ch := range results {
		require.NoError(t, <-ch)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}
