// Copyright 2018 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package waiter provides the implementation of a wait queue, where execution
// contexts (goroutines) park until another context wakes them.
//
// A waiter moves through Running -> Parked -> Runnable -> Running. The
// Parked -> Runnable edge is taken either by WakeOne/WakeAll (Woken) or by
// Cancel (Cancelled). Blocking primitives are expected to use a pattern
// similar to this one:
//
//	func (o *object) blockingOp() error {
//		o.mu.Lock()
//		if o.ready() {
//			o.consume()
//			o.mu.Unlock()
//			return nil
//		}
//		e := waiter.NewEntry()
//		if err := o.queue.Enqueue(e); err != nil {
//			o.mu.Unlock()
//			return err
//		}
//		o.mu.Unlock()
//
//		// Waking side holds o.mu while calling WakeOne, so the wake
//		// cannot be missed between the check and Enqueue.
//		e.Wait()
//		return nil
//	}
package waiter

import (
	"fmt"

	"gvisor.dev/posixcore/pkg/errors/linuxerr"
	"gvisor.dev/posixcore/pkg/sync"
)

// Result is the reason a parked entry was resumed.
type Result int

const (
	// Woken indicates the entry was released by WakeOne or WakeAll.
	Woken Result = iota

	// Cancelled indicates the entry was removed by Cancel before any wake
	// reached it.
	Cancelled
)

// String implements fmt.Stringer.
func (r Result) String() string {
	switch r {
	case Woken:
		return "Woken"
	case Cancelled:
		return "Cancelled"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// Entry represents a waiter that can be added to a wait queue. It can only be
// in one queue at a time, and is added "intrusively" to the queue with no
// extra memory allocations.
//
// Entries are reusable once they have been resumed and the result consumed.
type Entry struct {
	// ch carries the wake result. It has capacity 1 so that the waking side
	// never blocks.
	ch chan Result

	// The following fields are protected by the queue lock.
	queued bool
	waiterEntry
}

// NewEntry returns a new Entry that is not in any queue.
func NewEntry() *Entry {
	return &Entry{ch: make(chan Result, 1)}
}

// Wait suspends the caller until the entry is resumed.
func (e *Entry) Wait() Result {
	return <-e.ch
}

// C returns the channel on which the wake result is delivered, for callers
// that need to select on it together with other events.
func (e *Entry) C() <-chan Result {
	return e.ch
}

func (e *Entry) resume(r Result) {
	select {
	case e.ch <- r:
	default:
		panic(fmt.Sprintf("waiter entry %p resumed twice", e))
	}
}

// Queue represents the wait queue where waiters can be added and
// notifiers can wake them. Waiters are resumed in FIFO order.
//
// The zero value for waiter.Queue is an empty queue ready for use.
type Queue struct {
	mu sync.Mutex

	// The following fields are protected by mu.
	list   waiterList
	len    int
	closed bool
}

// Enqueue appends e to the tail of the queue. The caller must subsequently
// consume the result with e.Wait or e.C.
//
// Enqueue fails with EIDRM if the queue has been closed by its owner.
func (q *Queue) Enqueue(e *Entry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return linuxerr.EIDRM
	}
	if e.queued {
		panic(fmt.Sprintf("waiter entry %p is already queued", e))
	}
	e.queued = true
	q.list.PushBack(e)
	q.len++
	return nil
}

// Park enqueues e and suspends the caller until it is resumed.
func (q *Queue) Park(e *Entry) (Result, error) {
	if err := q.Enqueue(e); err != nil {
		return Woken, err
	}
	return e.Wait(), nil
}

// WakeOne resumes the waiter at the head of the queue. It returns false if the
// queue was empty.
func (q *Queue) WakeOne() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e := q.list.Front()
	if e == nil {
		return false
	}
	q.removeLocked(e)
	e.resume(Woken)
	return true
}

// WakeAll resumes every waiter in FIFO order and returns how many were woken.
func (q *Queue) WakeAll() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for e := q.list.Front(); e != nil; e = q.list.Front() {
		q.removeLocked(e)
		e.resume(Woken)
		n++
	}
	return n
}

// Cancel removes e from the queue and resumes it with Cancelled. It returns
// false if e was not queued, which means a wake already reached it and the
// caller must honor that wake.
func (q *Queue) Cancel(e *Entry) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !e.queued {
		return false
	}
	q.removeLocked(e)
	e.resume(Cancelled)
	return true
}

// +checklocks:q.mu
func (q *Queue) removeLocked(e *Entry) {
	q.list.Remove(e)
	e.queued = false
	q.len--
	if q.len < 0 {
		panic(fmt.Sprintf("waiter queue %p has negative length %d", q, q.len))
	}
}

// Len returns the number of parked waiters.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.len
}

// IsEmpty returns if the wait queue is empty or not.
func (q *Queue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.list.Empty()
}

// Close marks the queue as destroyed. It fails with EBUSY if any waiter is
// still parked. After Close, Enqueue fails with EIDRM. Closing twice is a
// no-op.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.list.Empty() {
		return linuxerr.EBUSY
	}
	q.closed = true
	return nil
}

// Closed returns whether Close has succeeded on the queue.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}
