// File: fiber/execq.go
// Serialized execution queue consumed by a dedicated fiber.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Producers push values from any goroutine; one consumer fiber applies the
// callback to them in batches. Per-producer order is preserved because each
// producer appends under the queue lock and the single consumer drains in
// append order. Urgent values overtake pending normal ones but never a
// batch the consumer has already taken.

package fiber

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"

	"github.com/momentics/hioload-fiber/api"
)

const execBatch = 64

// ExecQueue is a multi-producer, single-consumer executor. Create one with
// NewExecQueue; the zero value is not usable.
type ExecQueue struct {
	name string
	fn   func(v int64)
	log  api.Logger

	mu      sync.Mutex
	normal  *queue.Queue
	urgent  *queue.Queue
	stopped bool

	// epoch counts submissions; the consumer waits on it when idle.
	epoch WaitEvent[uint32]

	consumer *Fiber
	executed atomic.Uint64
}

var _ api.SerialExecutor = (*ExecQueue)(nil)

// NewExecQueue starts a consumer fiber on s that applies fn to every
// submitted value. fn runs on the consumer fiber only.
func NewExecQueue(s *Scheduler, name string, fn func(v int64)) (*ExecQueue, error) {
	if fn == nil {
		return nil, api.NewError(api.ErrCodeInvalidArgument, "exec queue callback must not be nil")
	}
	q := &ExecQueue{
		name:   name,
		fn:     fn,
		log:    s.log,
		normal: queue.New(),
		urgent: queue.New(),
	}
	f, err := s.Start(Attr{Name: "execq/" + name}, q.consume, nil)
	if err != nil {
		return nil, err
	}
	q.consumer = f
	return q, nil
}

// Execute submits a value for ordered consumption.
func (q *ExecQueue) Execute(v int64) error {
	return q.push(q.normal, v)
}

// ExecuteUrgent submits a value ahead of all pending normal values.
func (q *ExecQueue) ExecuteUrgent(v int64) error {
	return q.push(q.urgent, v)
}

func (q *ExecQueue) push(dst *queue.Queue, v int64) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return api.ErrStopped
	}
	dst.Add(v)
	q.mu.Unlock()

	q.epoch.Add(1)
	q.epoch.NotifyOne()
	return nil
}

// Stop closes the queue for new submissions. Values already queued are
// still consumed; Join observes the drain completing. Idempotent.
func (q *ExecQueue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	q.mu.Unlock()

	q.epoch.Add(1)
	q.epoch.NotifyAll()
}

// Join blocks the calling goroutine until the consumer fiber has drained
// the queue and exited. Fiber callers should prefer JoinFrom.
func (q *ExecQueue) Join() {
	_ = q.consumer.Join(nil)
}

// JoinFrom is Join for fiber callers: the calling fiber suspends instead of
// blocking its worker thread.
func (q *ExecQueue) JoinFrom(self *Fiber) error {
	return q.consumer.Join(self)
}

// Len reports queued values, urgent included.
func (q *ExecQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.urgent.Length() + q.normal.Length()
}

// Executed reports values consumed so far.
func (q *ExecQueue) Executed() uint64 { return q.executed.Load() }

// consume is the consumer fiber body. The deferred markStopped covers the
// cancel path, so submissions after the consumer died fail fast instead of
// queueing forever.
func (q *ExecQueue) consume(self *Fiber, _ any) {
	defer q.markStopped()
	var batch [execBatch]int64
	for {
		epoch := q.epoch.Load()

		n, done := q.take(batch[:])
		for _, v := range batch[:n] {
			q.runOne(v)
		}
		if n > 0 {
			continue
		}
		if done {
			return
		}

		err := q.epoch.Wait(self, epoch)
		if err == nil || errors.Is(err, api.ErrUnavailable) {
			continue
		}
		// Cancelled with the scheduler draining: consume what is left,
		// then exit.
		q.drainAll()
		return
	}
}

// take dequeues one batch, urgent before normal. done reports that the
// queue is stopped and empty.
func (q *ExecQueue) take(dst []int64) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for n < len(dst) && q.urgent.Length() > 0 {
		dst[n] = q.urgent.Remove().(int64)
		n++
	}
	for n < len(dst) && q.normal.Length() > 0 {
		dst[n] = q.normal.Remove().(int64)
		n++
	}
	return n, q.stopped && q.urgent.Length() == 0 && q.normal.Length() == 0
}

func (q *ExecQueue) markStopped() {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()
}

func (q *ExecQueue) drainAll() {
	for {
		var batch [execBatch]int64
		n, _ := q.take(batch[:])
		if n == 0 {
			return
		}
		for _, v := range batch[:n] {
			q.runOne(v)
		}
	}
}

// runOne isolates callback panics so one bad value cannot kill the
// consumer fiber.
func (q *ExecQueue) runOne(v int64) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Err().Str("queue", q.name).Int64("value", v).
				Field("panic", r).Log("exec queue callback panicked")
		}
	}()
	q.fn(v)
	q.executed.Add(1)
}
