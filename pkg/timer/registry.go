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
	"fmt"
	"slices"
	"time"

	"github.com/google/btree"
	"gvisor.dev/posixcore/pkg/abi/linux"
	"gvisor.dev/posixcore/pkg/errors/linuxerr"
	"gvisor.dev/posixcore/pkg/ktime"
	"gvisor.dev/posixcore/pkg/log"
	"gvisor.dev/posixcore/pkg/sync"
)

const (
	// DefaultMaxTimers is the default maximum number of timers in a
	// Registry.
	DefaultMaxTimers = 1024

	// btreeDegree is the degree of each per-clock schedule.
	btreeDegree = 16
)

// schedKey orders armed timers within one clock's schedule.
type schedKey struct {
	deadline int64
	id       linux.TimerID
}

func lessSchedKey(a, b schedKey) bool {
	if a.deadline != b.deadline {
		return a.deadline < b.deadline
	}
	return a.id < b.id
}

// timer is a POSIX timer. All mutable fields are protected by Registry.mu.
type timer struct {
	// Immutable.
	id      linux.TimerID
	clockID int32
	clock   ktime.Clock
	value   uint64
	target  Target

	setting ktime.Setting

	// gen changes on every Settime and on Delete.
	gen uint64

	// key is the timer's position in its schedule when scheduled is true.
	key       schedKey
	scheduled bool

	// queued is true while a delivery of the current generation is waiting
	// in the dispatcher. Expirations detected meanwhile are accumulated in
	// pendingExp instead of being queued separately.
	queued     bool
	pendingExp uint64

	// overrun is the overrun of the last notification.
	overrun int32
}

// Registry is a table of POSIX timers.
type Registry struct {
	// Immutable.
	clocks     map[int32]ktime.Clock
	clockIDs   []int32
	dispatcher *Dispatcher
	maxTimers  int
	delayMax   int32
	rl         log.Logger

	// changed is signalled whenever a schedule changes.
	changed chan struct{}

	// mu protects the fields below and every timer's mutable fields.
	mu        sync.Mutex
	timers    map[linux.TimerID]*timer
	nextID    linux.TimerID
	schedules map[int32]*btree.BTreeG[schedKey]
}

// NewRegistry returns an empty Registry whose timers may use any clock in
// clocks and whose notifications are queued on d. maxTimers bounds the number
// of live timers (DefaultMaxTimers if zero) and delayMax caps reported
// overruns (linux.DELAYTIMER_MAX if zero).
func NewRegistry(clocks map[int32]ktime.Clock, d *Dispatcher, maxTimers int, delayMax int32) *Registry {
	if maxTimers <= 0 {
		maxTimers = DefaultMaxTimers
	}
	if delayMax <= 0 {
		delayMax = linux.DELAYTIMER_MAX
	}
	r := &Registry{
		clocks:     make(map[int32]ktime.Clock, len(clocks)),
		dispatcher: d,
		maxTimers:  maxTimers,
		delayMax:   delayMax,
		rl:         log.BasicRateLimitedLogger(time.Second),
		changed:    make(chan struct{}, 1),
		timers:     make(map[linux.TimerID]*timer),
		nextID:     1,
		schedules:  make(map[int32]*btree.BTreeG[schedKey], len(clocks)),
	}
	for id, c := range clocks {
		r.clocks[id] = c
		r.clockIDs = append(r.clockIDs, id)
		r.schedules[id] = btree.NewG[schedKey](btreeDegree, lessSchedKey)
	}
	slices.Sort(r.clockIDs)
	return r
}

// Dispatcher returns the dispatcher the registry queues deliveries on.
func (r *Registry) Dispatcher() *Dispatcher {
	return r.dispatcher
}

// Changed returns a channel that receives after any schedule change. Changes
// are coalesced.
func (r *Registry) Changed() <-chan struct{} {
	return r.changed
}

func (r *Registry) notifyChanged() {
	select {
	case r.changed <- struct{}{}:
	default:
	}
}

// Create creates a disarmed timer on clockID, as timer_create(2). value is
// reported in every Expiration; target receives notifications and may be nil
// (SIGEV_NONE).
//
// Create fails with EINVAL if the clock is unknown and with EAGAIN if the
// registry is full.
func (r *Registry) Create(clockID int32, value uint64, target Target) (linux.TimerID, error) {
	c, ok := r.clocks[clockID]
	if !ok {
		return 0, linuxerr.EINVAL
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.timers) >= r.maxTimers {
		return 0, linuxerr.EAGAIN
	}
	id := r.nextID
	for {
		if _, ok := r.timers[id]; !ok {
			break
		}
		id = nextTimerID(id)
	}
	r.nextID = nextTimerID(id)
	r.timers[id] = &timer{
		id:      id,
		clockID: clockID,
		clock:   c,
		value:   value,
		target:  target,
	}
	log.Debugf("Created timer %d on clock %d", id, clockID)
	return id, nil
}

func nextTimerID(id linux.TimerID) linux.TimerID {
	if id == linux.TimerID(1<<31-1) {
		return 1
	}
	return id + 1
}

// clockOf returns the clock of timer id, or EINVAL.
func (r *Registry) clockOf(id linux.TimerID) (ktime.Clock, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.timers[id]
	if !ok {
		return nil, linuxerr.EINVAL
	}
	return t.clock, nil
}

// Settime arms or disarms timer id, as timer_settime(2), and returns its
// previous setting. A zero newValue.Value disarms the timer. With
// TIMER_ABSTIME in flags, newValue.Value is an absolute time on the timer's
// clock; otherwise it is relative to now. A periodic timer expires at
// Value + k*Interval.
//
// Settime fails with EINVAL if id is unknown, flags contains unknown bits, or
// newValue holds an invalid timespec.
func (r *Registry) Settime(id linux.TimerID, flags int32, newValue linux.Itimerspec) (linux.Itimerspec, error) {
	if flags&^linux.TIMER_ABSTIME != 0 {
		return linux.Itimerspec{}, linuxerr.EINVAL
	}
	c, err := r.clockOf(id)
	if err != nil {
		return linux.Itimerspec{}, err
	}
	now := c.Now()
	s, err := ktime.SettingFromItimerspec(newValue, flags&linux.TIMER_ABSTIME != 0, now)
	if err != nil {
		return linux.Itimerspec{}, err
	}

	r.mu.Lock()
	t, ok := r.timers[id]
	if !ok {
		r.mu.Unlock()
		return linux.Itimerspec{}, linuxerr.EINVAL
	}
	old := ktime.ItimerspecFromSetting(now, t.setting)
	r.unscheduleLocked(t)
	t.setting = s
	t.gen++
	t.queued = false
	t.pendingExp = 0
	if s.Enabled {
		r.scheduleLocked(t)
	}
	r.mu.Unlock()

	log.Debugf("Timer %d set to %+v (flags %#x)", id, s, flags)
	r.notifyChanged()
	return old, nil
}

// Gettime returns the current setting of timer id, as timer_gettime(2).
func (r *Registry) Gettime(id linux.TimerID) (linux.Itimerspec, error) {
	c, err := r.clockOf(id)
	if err != nil {
		return linux.Itimerspec{}, err
	}
	now := c.Now()

	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.timers[id]
	if !ok {
		return linux.Itimerspec{}, linuxerr.EINVAL
	}
	return ktime.ItimerspecFromSetting(now, t.setting), nil
}

// Getoverrun returns the overrun of the last notification of timer id, as
// timer_getoverrun(2).
func (r *Registry) Getoverrun(id linux.TimerID) (int32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.timers[id]
	if !ok {
		return 0, linuxerr.EINVAL
	}
	return t.overrun, nil
}

// Delete deletes timer id, as timer_delete(2). Deliveries already queued for
// it are discarded; a notification that is already running is not affected.
func (r *Registry) Delete(id linux.TimerID) error {
	r.mu.Lock()
	t, ok := r.timers[id]
	if !ok {
		r.mu.Unlock()
		return linuxerr.EINVAL
	}
	r.deleteLocked(t)
	r.mu.Unlock()

	log.Debugf("Deleted timer %d", id)
	r.notifyChanged()
	return nil
}

// DeleteAll deletes every timer in r and returns how many there were.
// Deliveries already queued for them are discarded.
func (r *Registry) DeleteAll() int {
	r.mu.Lock()
	n := len(r.timers)
	for _, t := range r.timers {
		r.deleteLocked(t)
	}
	r.mu.Unlock()

	if n > 0 {
		log.Debugf("Deleted all %d timers", n)
		r.notifyChanged()
	}
	return n
}

// +checklocks:r.mu
func (r *Registry) deleteLocked(t *timer) {
	r.unscheduleLocked(t)
	t.gen++
	t.queued = false
	t.pendingExp = 0
	delete(r.timers, t.id)
}

// Len returns the number of live timers.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.timers)
}

// NextDeadline returns the earliest expiration scheduled on clockID, or false
// if no timer on that clock is armed.
func (r *Registry) NextDeadline(clockID int32) (ktime.Time, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sched, ok := r.schedules[clockID]
	if !ok {
		return ktime.Time{}, false
	}
	k, ok := sched.Min()
	if !ok {
		return ktime.Time{}, false
	}
	return ktime.FromNanoseconds(k.deadline), true
}

// Tick detects expirations on every clock, in increasing clock ID order, and
// queues their notifications on the dispatcher. It returns the number of
// deliveries queued.
//
// Expired periodic timers are re-armed at their next multiple of the interval
// after the current time; expirations skipped that way are folded into the
// notification's count.
func (r *Registry) Tick() int {
	nows := make(map[int32]ktime.Time, len(r.clocks))
	for id, c := range r.clocks {
		nows[id] = c.Now()
	}

	var ds []delivery
	r.mu.Lock()
	for _, clockID := range r.clockIDs {
		sched := r.schedules[clockID]
		now := nows[clockID]
		for {
			k, ok := sched.Min()
			if !ok || k.deadline > now.Nanoseconds() {
				break
			}
			sched.DeleteMin()
			t, ok := r.timers[k.id]
			if !ok || !t.scheduled || t.key != k {
				panic(fmt.Sprintf("timer schedule for clock %d holds stale entry %+v", clockID, k))
			}
			t.scheduled = false

			s, exp := t.setting.At(now)
			if exp == 0 {
				panic(fmt.Sprintf("timer %d scheduled at %d has unexpired setting %+v at %v", t.id, k.deadline, t.setting, now))
			}
			t.setting = s
			if s.Enabled {
				r.scheduleLocked(t)
			}
			if t.target == nil {
				continue
			}
			if t.queued {
				t.pendingExp += exp
				continue
			}
			t.queued = true
			ds = append(ds, delivery{r: r, t: t, gen: t.gen, count: exp})
		}
	}
	r.mu.Unlock()

	r.dispatcher.enqueue(ds)
	return len(ds)
}

// claim validates a delivery popped by the dispatcher and builds its
// Expiration. It returns false for stale deliveries.
func (r *Registry) claim(d delivery) (Target, Expiration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := d.t
	if cur, ok := r.timers[t.id]; !ok || cur != t || t.gen != d.gen {
		r.rl.Debugf("Discarding stale notification of timer %d (generation %d)", t.id, d.gen)
		return nil, Expiration{}, false
	}
	count := d.count + t.pendingExp
	t.queued = false
	t.pendingExp = 0
	overrun := count - 1
	if overrun > uint64(r.delayMax) {
		r.rl.Warningf("Timer %d overran %d times; reporting %d", t.id, overrun, r.delayMax)
		overrun = uint64(r.delayMax)
	}
	t.overrun = int32(overrun)
	return t.target, Expiration{
		ID:      t.id,
		Value:   t.value,
		Count:   count,
		Overrun: t.overrun,
	}, true
}

// +checklocks:r.mu
func (r *Registry) scheduleLocked(t *timer) {
	if t.scheduled {
		panic(fmt.Sprintf("timer %d scheduled twice", t.id))
	}
	t.key = schedKey{deadline: t.setting.Next.Nanoseconds(), id: t.id}
	r.schedules[t.clockID].ReplaceOrInsert(t.key)
	t.scheduled = true
}

// +checklocks:r.mu
func (r *Registry) unscheduleLocked(t *timer) {
	if !t.scheduled {
		return
	}
	if _, ok := r.schedules[t.clockID].Delete(t.key); !ok {
		panic(fmt.Sprintf("timer %d missing from the schedule of clock %d", t.id, t.clockID))
	}
	t.scheduled = false
}
