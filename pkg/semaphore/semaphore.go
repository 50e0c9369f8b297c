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

// Package semaphore implements POSIX counting semaphores, both unnamed
// (sem_init) and named (sem_open).
//
// A post either increments the count or, when contexts are parked, hands the
// unit directly to the longest-waiting one. The count is never incremented
// and then raced for, so a woken waiter always returns with its unit.
package semaphore

import (
	"fmt"

	"gvisor.dev/posixcore/pkg/abi/linux"
	"gvisor.dev/posixcore/pkg/errors/linuxerr"
	"gvisor.dev/posixcore/pkg/log"
	"gvisor.dev/posixcore/pkg/sync"
	"gvisor.dev/posixcore/pkg/waiter"
)

// ValueMax is the default maximum semaphore value.
const ValueMax = linux.SEM_VALUE_MAX

type state int

const (
	uninitialized state = iota
	live
	destroyed
)

// Semaphore is a POSIX counting semaphore.
//
// The zero value is uninitialized; every operation other than Init fails with
// EINVAL until Init succeeds.
//
// Lock order: Semaphore.mu -> waiter.Queue.mu.
type Semaphore struct {
	// mu protects the fields below. count and queue membership are only
	// changed together under mu.
	mu sync.Mutex

	state   state
	count   uint32
	max     uint32
	pshared bool

	// queue holds the contexts parked in Wait. It is replaced on every
	// successful Init.
	queue *waiter.Queue
}

// New returns a live, process-private semaphore with the given value and the
// default maximum.
func New(value uint32) (*Semaphore, error) {
	s := &Semaphore{}
	if err := s.Init(value, false, ValueMax); err != nil {
		return nil, err
	}
	return s, nil
}

// Init initializes s with value, as sem_init(3).
//
// pshared is accepted but advisory: all execution contexts share one address
// space, so a process-shared semaphore behaves exactly like a private one.
// valueMax bounds the value reachable through Post; zero selects ValueMax.
//
// Init fails with EINVAL if value exceeds valueMax, and with EBUSY if s is live and
// has parked waiters.
func (s *Semaphore) Init(value uint32, pshared bool, valueMax uint32) error {
	if valueMax == 0 || valueMax > ValueMax {
		valueMax = ValueMax
	}
	if value > valueMax {
		return linuxerr.EINVAL
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == live && s.queue.Len() != 0 {
		return linuxerr.EBUSY
	}
	if pshared {
		log.Debugf("semaphore %p: pshared requested; treated as process-private", s)
	}
	s.state = live
	s.count = value
	s.max = valueMax
	s.pshared = pshared
	s.queue = &waiter.Queue{}
	return nil
}

// +checklocks:s.mu
func (s *Semaphore) checkLiveLocked() error {
	if s.state != live {
		return linuxerr.EINVAL
	}
	return nil
}

// Wait decrements the semaphore, blocking indefinitely while the count is
// zero, as sem_wait(3).
func (s *Semaphore) Wait() error {
	return s.WaitCancel(nil)
}

// WaitCancel is Wait with an externally driven cancellation edge. If cancel
// is closed (or receives) before a unit is handed over, WaitCancel returns
// ErrInterrupted without consuming a unit. If a Post handed the unit over
// concurrently with cancellation, the unit is kept and WaitCancel returns nil.
//
// A nil cancel channel never fires.
func (s *Semaphore) WaitCancel(cancel <-chan struct{}) error {
	s.mu.Lock()
	if err := s.checkLiveLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.count > 0 {
		s.count--
		s.mu.Unlock()
		return nil
	}
	e := waiter.NewEntry()
	q := s.queue
	if err := q.Enqueue(e); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	select {
	case r := <-e.C():
		return s.woken(r)
	case <-cancel:
	}
	q.Cancel(e)
	return s.woken(e.Wait())
}

func (s *Semaphore) woken(r waiter.Result) error {
	switch r {
	case waiter.Woken:
		// Post transferred its unit to us.
		return nil
	case waiter.Cancelled:
		return linuxerr.ErrInterrupted
	default:
		panic(fmt.Sprintf("semaphore %p: unknown wake result %v", s, r))
	}
}

// TryWait decrements the semaphore if its count is positive, and otherwise
// fails with ErrWouldBlock, as sem_trywait(3).
func (s *Semaphore) TryWait() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLiveLocked(); err != nil {
		return err
	}
	if s.count == 0 {
		return linuxerr.ErrWouldBlock
	}
	s.count--
	return nil
}

// Post releases one unit, as sem_post(3). If any context is parked in Wait,
// the unit is handed to the one that has waited longest; otherwise the count
// is incremented. Post fails with EOVERFLOW if the count is already at its
// maximum.
func (s *Semaphore) Post() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLiveLocked(); err != nil {
		return err
	}
	if s.queue.WakeOne() {
		if s.count != 0 {
			panic(fmt.Sprintf("semaphore %p: woke a waiter while count = %d", s, s.count))
		}
		return nil
	}
	if s.count >= s.max {
		return linuxerr.EOVERFLOW
	}
	s.count++
	return nil
}

// Value returns the current count, as sem_getvalue(3). It is zero whenever
// contexts are parked.
func (s *Semaphore) Value() (int32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLiveLocked(); err != nil {
		return 0, err
	}
	return int32(s.count), nil
}

// Waiters returns the number of contexts parked in Wait.
func (s *Semaphore) Waiters() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue == nil {
		return 0
	}
	return s.queue.Len()
}

// PShared returns the pshared hint recorded by Init.
func (s *Semaphore) PShared() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pshared
}

// Destroy destroys the semaphore, as sem_destroy(3). It fails with EBUSY if
// any context is parked, leaving s untouched. After Destroy every operation
// other than Init fails with EINVAL.
func (s *Semaphore) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkLiveLocked(); err != nil {
		return err
	}
	if err := s.queue.Close(); err != nil {
		return err
	}
	s.state = destroyed
	return nil
}
