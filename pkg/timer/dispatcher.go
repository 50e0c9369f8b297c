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

package timer

import (
	"context"

	"gvisor.dev/posixcore/pkg/log"
	"gvisor.dev/posixcore/pkg/sync"
)

// delivery is a notification queued by Tick.
type delivery struct {
	r     *Registry
	t     *timer
	gen   uint64
	count uint64
}

// Dispatcher is the designated execution context for timer notifications. It
// holds deliveries queued by one or more registries in FIFO order until they
// are flushed.
type Dispatcher struct {
	// notify is signalled when deliveries are queued.
	notify chan struct{}

	// mu protects pending.
	mu      sync.Mutex
	pending []delivery
}

// NewDispatcher returns an empty Dispatcher. capacity is an initial capacity
// hint for the pending queue.
func NewDispatcher(capacity int) *Dispatcher {
	if capacity < 0 {
		capacity = 0
	}
	return &Dispatcher{
		notify:  make(chan struct{}, 1),
		pending: make([]delivery, 0, capacity),
	}
}

func (d *Dispatcher) enqueue(ds []delivery) {
	if len(ds) == 0 {
		return
	}
	d.mu.Lock()
	d.pending = append(d.pending, ds...)
	d.mu.Unlock()
	select {
	case d.notify <- struct{}{}:
	default:
	}
}

// Pending returns the number of queued deliveries, including ones that will
// turn out to be stale.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Flush runs every queued delivery on the calling goroutine, in the order
// they were queued, and returns the number of notifications made. Deliveries
// for timers that were re-armed or deleted after being queued are discarded.
func (d *Dispatcher) Flush() int {
	d.mu.Lock()
	ds := d.pending
	d.pending = nil
	d.mu.Unlock()

	n := 0
	for _, dl := range ds {
		target, exp, ok := dl.r.claim(dl)
		if !ok {
			continue
		}
		target.deliver(exp)
		n++
	}
	return n
}

// Run flushes deliveries as they are queued until ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	log.Debugf("Timer dispatcher started")
	defer log.Debugf("Timer dispatcher stopped")
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-d.notify:
			d.Flush()
		}
	}
}
