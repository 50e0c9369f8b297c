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

package semaphore

import (
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"
	"gvisor.dev/posixcore/pkg/errors/linuxerr"
)

func newSem(t *testing.T, value uint32) *Semaphore {
	t.Helper()
	s, err := New(value)
	if err != nil {
		t.Fatalf("New(%d) failed: %v", value, err)
	}
	return s
}

// waitForWaiters polls until n contexts are parked on s.
func waitForWaiters(t *testing.T, s *Semaphore, n int) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for s.Waiters() != n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d waiters, have %d", n, s.Waiters())
		}
		time.Sleep(time.Millisecond)
	}
}

func signalled(ch chan error) bool {
	select {
	case err := <-ch:
		ch <- err
		return true
	default:
		return false
	}
}

func TestBasic(t *testing.T) {
	s := newSem(t, 1)
	if err := s.Wait(); err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}
	if err := s.TryWait(); err != linuxerr.ErrWouldBlock {
		t.Fatalf("TryWait() on zero count = %v, want ErrWouldBlock", err)
	}
	if err := s.Post(); err != nil {
		t.Fatalf("Post() failed: %v", err)
	}
	if v, err := s.Value(); err != nil || v != 1 {
		t.Fatalf("Value() = %d, %v, want 1, nil", v, err)
	}
	if err := s.TryWait(); err != nil {
		t.Fatalf("TryWait() failed: %v", err)
	}
}

func TestInit(t *testing.T) {
	var s Semaphore
	if err := s.Post(); err != linuxerr.EINVAL {
		t.Errorf("Post() on uninitialized semaphore = %v, want EINVAL", err)
	}
	if err := s.Init(11, false, 10); err != linuxerr.EINVAL {
		t.Errorf("Init(11, max 10) = %v, want EINVAL", err)
	}
	if err := s.Init(ValueMax, true, 0); err != nil {
		t.Errorf("Init(ValueMax) = %v, want nil", err)
	}
	if !s.PShared() {
		t.Errorf("PShared() = false after Init(pshared=true)")
	}
	if err := s.Post(); err != linuxerr.EOVERFLOW {
		t.Errorf("Post() at ValueMax = %v, want EOVERFLOW", err)
	}
}

func TestFIFO(t *testing.T) {
	s := newSem(t, 0)
	a := make(chan error, 1)
	b := make(chan error, 1)

	go func() { a <- s.Wait() }()
	waitForWaiters(t, s, 1)
	go func() { b <- s.Wait() }()
	waitForWaiters(t, s, 2)

	if err := s.Post(); err != nil {
		t.Fatalf("Post() failed: %v", err)
	}
	if err := <-a; err != nil {
		t.Fatalf("A: Wait() failed: %v", err)
	}
	if signalled(b) {
		t.Fatalf("B completed before the second post")
	}
	if v, _ := s.Value(); v != 0 {
		t.Fatalf("Value() = %d after hand-off, want 0", v)
	}

	if err := s.Post(); err != nil {
		t.Fatalf("Post() failed: %v", err)
	}
	if err := <-b; err != nil {
		t.Fatalf("B: Wait() failed: %v", err)
	}
}

func TestDestroyBusy(t *testing.T) {
	s := newSem(t, 0)
	done := make(chan error, 1)
	go func() { done <- s.Wait() }()
	waitForWaiters(t, s, 1)

	if err := s.Destroy(); err != linuxerr.EBUSY {
		t.Fatalf("Destroy() with a parked waiter = %v, want EBUSY", err)
	}
	if err := s.Post(); err != nil {
		t.Fatalf("Post() failed: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}
	if err := s.Destroy(); err != nil {
		t.Fatalf("Destroy() = %v, want nil", err)
	}
	if err := s.Wait(); err != linuxerr.EINVAL {
		t.Errorf("Wait() after Destroy = %v, want EINVAL", err)
	}
	if err := s.Destroy(); err != linuxerr.EINVAL {
		t.Errorf("second Destroy() = %v, want EINVAL", err)
	}
	// A destroyed semaphore may be initialized again.
	if err := s.Init(2, false, 0); err != nil {
		t.Fatalf("Init() after Destroy = %v", err)
	}
	if v, _ := s.Value(); v != 2 {
		t.Errorf("Value() = %d, want 2", v)
	}
}

func TestReinitBusy(t *testing.T) {
	s := newSem(t, 0)
	done := make(chan error, 1)
	go func() { done <- s.Wait() }()
	waitForWaiters(t, s, 1)
	if err := s.Init(3, false, 0); err != linuxerr.EBUSY {
		t.Fatalf("Init() with a parked waiter = %v, want EBUSY", err)
	}
	s.Post()
	<-done
}

func TestWaitCancel(t *testing.T) {
	s := newSem(t, 0)
	cancel := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- s.WaitCancel(cancel) }()
	waitForWaiters(t, s, 1)

	close(cancel)
	if err := <-done; err != linuxerr.ErrInterrupted {
		t.Fatalf("WaitCancel() = %v, want ErrInterrupted", err)
	}
	if n := s.Waiters(); n != 0 {
		t.Fatalf("Waiters() = %d after cancellation, want 0", n)
	}

	// The cancelled waiter must not have consumed a unit.
	s.Post()
	if v, _ := s.Value(); v != 1 {
		t.Fatalf("Value() = %d, want 1", v)
	}

	// A cancel channel that already fired still takes an available unit.
	if err := s.WaitCancel(cancel); err != nil {
		t.Fatalf("WaitCancel() with available unit = %v, want nil", err)
	}
}

// Successful waits never exceed the initial value plus completed posts.
func TestConservation(t *testing.T) {
	const (
		initial   = 2
		producers = 8
		posts     = 201
		consumers = 10
	)
	s := newSem(t, initial)
	total := initial + producers*posts
	if total%consumers != 0 {
		t.Fatalf("bad test parameters")
	}

	var (
		completedPosts atomic.Int64
		waits          atomic.Int64
	)
	var g errgroup.Group
	for i := 0; i < consumers; i++ {
		g.Go(func() error {
			for j := 0; j < total/consumers; j++ {
				if err := s.Wait(); err != nil {
					return err
				}
				w := waits.Add(1)
				if limit := initial + completedPosts.Load(); w > limit {
					t.Errorf("%d successful waits with only %d units available", w, limit)
				}
			}
			return nil
		})
	}
	for i := 0; i < producers; i++ {
		g.Go(func() error {
			for j := 0; j < posts; j++ {
				// Count the post before making it visible so that the
				// bound above is never transiently violated.
				completedPosts.Add(1)
				if err := s.Post(); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("worker failed: %v", err)
	}
	if got := waits.Load(); got != int64(total) {
		t.Errorf("completed %d waits, want %d", got, total)
	}
	if v, _ := s.Value(); v != 0 {
		t.Errorf("Value() = %d at end, want 0", v)
	}
}
