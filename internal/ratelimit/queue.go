// Package ratelimit implements the admission queue that runs scrape tasks
// under a concurrency bound and spaces their dispatch.
//
// Dispatch rule:
//
//	running < maxConcurrent  AND  now >= lastCompletion + minDelay
//
// The delay gate is global to the queue: any completion, successful or not,
// pushes it forward, whichever slot it freed. Pending tasks leave the queue
// in FIFO order.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/antigloss/go/concurrent/container/queue"
)

// ErrTaskPanicked wraps a panic recovered from a task.
var ErrTaskPanicked = errors.New("task panicked")

// Task is a deferred unit of work. It receives the submitter's context.
type Task func(ctx context.Context) error

const (
	statePending int32 = iota
	stateRunning
	stateCancelled
)

type job struct {
	ctx   context.Context
	task  Task
	state atomic.Int32
	done  chan error
	stop  func() bool
}

// Stats is a point-in-time view of the queue.
type Stats struct {
	Pending int
	Running int
}

// Queue is the admission queue. The zero value is not usable; call New.
type Queue struct {
	maxConcurrent int
	minDelay      time.Duration

	pending *queue.LockfreeQueue
	queued  atomic.Int64

	mu         sync.Mutex
	running    int
	notBefore  time.Time
	timerArmed bool
}

// New returns a Queue allowing maxConcurrent simultaneous tasks and at least
// minDelay between a completion and the next dispatch.
func New(maxConcurrent int, minDelay time.Duration) *Queue {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	if minDelay < 0 {
		minDelay = 0
	}
	return &Queue{
		maxConcurrent: maxConcurrent,
		minDelay:      minDelay,
		pending:       queue.NewLockfreeQueue(),
	}
}

// Submit enqueues task and blocks until it settles, returning its error.
//
// If ctx ends while the task is still pending, the task is dropped and
// ctx.Err() is returned. Once dispatched, the task owns ctx and Submit waits
// for it to return.
func (q *Queue) Submit(ctx context.Context, task Task) error {
	return <-q.Enqueue(ctx, task)
}

// Enqueue adds task to the pending queue without waiting. The returned
// channel receives exactly one value: the task's error, or ctx.Err() if ctx
// ended before the task was dispatched. Tasks enqueued by one goroutine are
// dispatched in call order.
func (q *Queue) Enqueue(ctx context.Context, task Task) <-chan error {
	j := &job{ctx: ctx, task: task, done: make(chan error, 1)}
	if err := ctx.Err(); err != nil {
		j.done <- err
		return j.done
	}

	q.queued.Add(1)
	j.stop = context.AfterFunc(ctx, func() {
		if j.state.CompareAndSwap(statePending, stateCancelled) {
			q.queued.Add(-1)
			j.done <- ctx.Err()
		}
	})
	q.pending.Push(j)
	q.dispatch()

	return j.done
}

// Stats reports pending and running task counts.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	running := q.running
	q.mu.Unlock()
	return Stats{Pending: int(q.queued.Load()), Running: running}
}

// dispatch starts as many pending tasks as the slot count and delay gate
// allow. When only the gate blocks, it arms a timer to retry.
func (q *Queue) dispatch() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for q.running < q.maxConcurrent {
		if q.queued.Load() == 0 {
			return
		}
		if wait := time.Until(q.notBefore); wait > 0 {
			q.armLocked(wait)
			return
		}

		v := q.pending.Pop()
		if v == nil {
			return
		}
		j := v.(*job)
		if !j.state.CompareAndSwap(statePending, stateRunning) {
			continue // submitter gave up while queued
		}
		q.queued.Add(-1)
		q.running++
		go q.run(j)
	}
}

func (q *Queue) armLocked(wait time.Duration) {
	if q.timerArmed {
		return
	}
	q.timerArmed = true
	time.AfterFunc(wait, func() {
		q.mu.Lock()
		q.timerArmed = false
		q.mu.Unlock()
		q.dispatch()
	})
}

func (q *Queue) run(j *job) {
	j.stop()
	err := call(j)

	q.mu.Lock()
	q.running--
	q.notBefore = time.Now().Add(q.minDelay)
	q.mu.Unlock()

	j.done <- err
	q.dispatch()
}

func call(j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, r)
		}
	}()
	return j.task(j.ctx)
}
