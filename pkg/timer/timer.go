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

// Package timer implements POSIX per-process interval timers
// (timer_create(2) and friends) over abstract clocks.
//
// A Registry owns the timers and keeps, per clock, an ordered schedule of
// armed timers. Expirations are detected by Tick, which is driven either by a
// Driver (for real clocks) or directly by callers (for synthetic clocks).
// Tick never notifies anyone itself: it queues deliveries on a Dispatcher,
// and notifications run only when the Dispatcher is flushed on its own
// execution context. Every timer carries a generation number that changes on
// each timer_settime and timer_delete; queued deliveries from an older
// generation are discarded when flushed.
package timer

import (
	"gvisor.dev/posixcore/pkg/abi/linux"
	"gvisor.dev/posixcore/pkg/waiter"
)

// Expiration describes one notification delivered for a timer.
type Expiration struct {
	// ID identifies the timer.
	ID linux.TimerID

	// Value is the sigev_value given at creation.
	Value uint64

	// Count is the number of expirations represented by this notification.
	// It is at least 1.
	Count uint64

	// Overrun is Count-1, capped at the registry's delay maximum. It is
	// also what timer_getoverrun(2) reports until the next notification.
	Overrun int32
}

// Target receives the notifications of a timer. It is the notification half of
// a struct sigevent.
//
// A nil Target corresponds to SIGEV_NONE: the timer runs and can be queried,
// but nothing is notified.
type Target interface {
	// deliver is called on the dispatcher's execution context.
	deliver(exp Expiration)
}

type callbackTarget func(Expiration)

func (fn callbackTarget) deliver(exp Expiration) {
	fn(exp)
}

// CallbackTarget returns a Target that calls fn for every notification, the
// equivalent of SIGEV_THREAD. fn runs on the dispatcher's execution context,
// one notification at a time.
func CallbackTarget(fn func(Expiration)) Target {
	return callbackTarget(fn)
}

type waiterTarget struct {
	q *waiter.Queue
}

func (w waiterTarget) deliver(Expiration) {
	w.q.WakeAll()
}

// WaiterTarget returns a Target that wakes every context parked on q for each
// notification.
func WaiterTarget(q *waiter.Queue) Target {
	return waiterTarget{q: q}
}
