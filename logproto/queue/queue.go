/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package queue implements the bounded, single-producer/multi-consumer
// log frame queue used between log API callers and the async sender:
// a circular buffer with a non-blocking Enqueue and a blocking Dequeue,
// built on sync.Mutex/sync.Cond. A plain channel cannot express the
// full contract here: Enqueue must fail fast with ErrQueueFull while
// Dequeue keeps delivering already-buffered frames after shutdown.
package queue

import (
	"errors"
	"sync"

	"github.com/facebookincubator/lucp/internal/metrics"
	"github.com/facebookincubator/lucp/logproto/frame"
)

// DefaultCapacity is the queue's default slot count.
const DefaultCapacity = 1024

// ErrQueueFull is returned by a non-blocking Enqueue against a
// saturated queue.
var ErrQueueFull = errors.New("logqueue: queue full")

// Queue is a circular buffer of frame references guarded by a mutex
// and signaled via a condition variable.
type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	buf      []*frame.Frame
	head     int
	tail     int
	size     int
	shutdown bool
}

// New builds a queue with the given capacity. capacity<=0 uses
// DefaultCapacity.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	q := &Queue{buf: make([]*frame.Frame, capacity)}
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends f without blocking. It returns ErrQueueFull if the
// queue is at capacity.
func (q *Queue) Enqueue(f *frame.Frame) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.shutdown {
		return ErrQueueFull
	}
	if q.size == len(q.buf) {
		metrics.LogQueueFullTotal.Inc()
		return ErrQueueFull
	}
	q.buf[q.tail] = f
	q.tail = (q.tail + 1) % len(q.buf)
	q.size++
	metrics.LogQueueDepth.Set(float64(q.size))
	q.notEmpty.Signal()
	return nil
}

// Dequeue blocks until a frame is available or the queue has been
// shut down and drained, in which case it returns (nil, false).
func (q *Queue) Dequeue() (*frame.Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.size == 0 {
		if q.shutdown {
			return nil, false
		}
		q.notEmpty.Wait()
	}
	f := q.buf[q.head]
	q.buf[q.head] = nil
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	metrics.LogQueueDepth.Set(float64(q.size))
	return f, true
}

// TryDequeue removes and returns the head frame without blocking. It
// returns ok=false if the queue is empty.
func (q *Queue) TryDequeue() (*frame.Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		return nil, false
	}
	f := q.buf[q.head]
	q.buf[q.head] = nil
	q.head = (q.head + 1) % len(q.buf)
	q.size--
	metrics.LogQueueDepth.Set(float64(q.size))
	return f, true
}

// Shutdown marks the queue closed and wakes every blocked consumer.
// Frames already enqueued are still delivered by Dequeue until the
// queue drains; only then does Dequeue start returning false.
func (q *Queue) Shutdown() {
	q.mu.Lock()
	q.shutdown = true
	q.mu.Unlock()
	q.notEmpty.Broadcast()
}

// Drain removes and returns every frame still queued, without
// blocking. Used during shutdown to free frames that were never sent.
func (q *Queue) Drain() []*frame.Frame {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*frame.Frame, 0, q.size)
	for q.size > 0 {
		out = append(out, q.buf[q.head])
		q.buf[q.head] = nil
		q.head = (q.head + 1) % len(q.buf)
		q.size--
	}
	return out
}

// Len reports the number of frames currently queued.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}
