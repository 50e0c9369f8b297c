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

package posix

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
	"gvisor.dev/posixcore/pkg/abi/linux"
	"gvisor.dev/posixcore/pkg/errors/linuxerr"
	"gvisor.dev/posixcore/pkg/ktime"
	"gvisor.dev/posixcore/pkg/memfile"
	"gvisor.dev/posixcore/pkg/semaphore"
	"gvisor.dev/posixcore/pkg/timer"
	"gvisor.dev/posixcore/pkg/waiter"
)

func newProcess(t *testing.T) (*Process, *ktime.SyntheticClock) {
	t.Helper()
	clock := ktime.NewSyntheticClock(ktime.FromSeconds(100))
	p := NewProcess(Limits{MaxFDs: 4, MaxNamedSemaphores: 2, MaxTimers: 2}, map[int32]ktime.Clock{
		linux.CLOCK_MONOTONIC: clock,
	})
	t.Cleanup(p.Close)
	return p, clock
}

func install(t *testing.T, p *Process, file any, flags int32) int32 {
	t.Helper()
	fd, err := p.InstallFile(file, flags)
	if err != nil {
		t.Fatalf("InstallFile() failed: %v", err)
	}
	return fd
}

func TestVectoredIO(t *testing.T) {
	p, _ := newProcess(t)
	f := &memfile.File{}
	fd := install(t, p, f, linux.O_RDWR)
	if fd != 0 {
		t.Errorf("first fd = %d, want 0", fd)
	}

	if n, err := p.Writev(fd, [][]byte{[]byte("abcd"), {}, []byte("efghij")}); err != nil || n != 10 {
		t.Fatalf("Writev() = %d, %v, want 10, nil", n, err)
	}
	dst := [][]byte{make([]byte, 5), make([]byte, 5)}
	if n, err := p.Preadv(fd, dst, 0); err != nil || n != 10 {
		t.Fatalf("Preadv() = %d, %v, want 10, nil", n, err)
	}
	if diff := cmp.Diff([][]byte{[]byte("abcde"), []byte("fghij")}, dst); diff != "" {
		t.Errorf("Preadv() buffers mismatch (-want +got):\n%s", diff)
	}
	// The cursor is still at the end of the writev.
	if n, err := p.Readv(fd, [][]byte{make([]byte, 4)}); err != nil || n != 0 {
		t.Errorf("Readv() at end = %d, %v, want 0, nil", n, err)
	}
	if _, err := p.Pwritev(fd, [][]byte{[]byte("x")}, -1); err != linuxerr.EINVAL {
		t.Errorf("Pwritev() at negative offset = %v, want EINVAL", err)
	}
}

func TestDescriptorErrors(t *testing.T) {
	p, _ := newProcess(t)
	r, w := memfile.NewPipe(0)
	rfd := install(t, p, r, linux.O_RDONLY)
	wfd := install(t, p, w, linux.O_WRONLY)
	ro := install(t, p, memfile.NewFile([]byte("data")), linux.O_RDONLY)

	for _, tc := range []struct {
		name string
		op   func() (int64, error)
		want error
	}{
		{"readv unknown fd", func() (int64, error) { return p.Readv(99, nil) }, linuxerr.EBADF},
		{"writev to read end", func() (int64, error) { return p.Writev(rfd, [][]byte{{'x'}}) }, linuxerr.EBADF},
		{"readv from write end", func() (int64, error) { return p.Readv(wfd, [][]byte{{0}}) }, linuxerr.EBADF},
		{"writev to read-only file", func() (int64, error) { return p.Writev(ro, [][]byte{{'x'}}) }, linuxerr.EBADF},
		{"preadv on pipe", func() (int64, error) { return p.Preadv(rfd, [][]byte{{0}}, 0) }, linuxerr.ESPIPE},
		{"pwritev on pipe", func() (int64, error) { return p.Pwritev(wfd, [][]byte{{0}}, 0) }, linuxerr.ESPIPE},
	} {
		if _, err := tc.op(); err != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, err, tc.want)
		}
	}

	install(t, p, memfile.NewFile(nil), linux.O_RDONLY)
	if _, err := p.InstallFile(memfile.NewFile(nil), linux.O_RDONLY); err != linuxerr.EMFILE {
		t.Errorf("InstallFile() on a full table = %v, want EMFILE", err)
	}
	if _, err := p.InstallFile(struct{}{}, linux.O_RDONLY); err != linuxerr.EINVAL {
		t.Errorf("InstallFile() of a non-file = %v, want EINVAL", err)
	}

	if err := p.CloseFD(wfd); err != nil {
		t.Fatalf("CloseFD() failed: %v", err)
	}
	if err := p.CloseFD(wfd); err != linuxerr.EBADF {
		t.Errorf("second CloseFD() = %v, want EBADF", err)
	}
	// Closing the write end through the table produces end of file.
	if n, err := p.Readv(rfd, [][]byte{make([]byte, 1)}); err != nil || n != 0 {
		t.Errorf("Readv() after writer closed = %d, %v, want 0, nil", n, err)
	}
	// The freed slot is reused.
	if fd := install(t, p, memfile.NewFile(nil), linux.O_RDONLY); fd != wfd {
		t.Errorf("InstallFile() = %d, want reused fd %d", fd, wfd)
	}
}

func TestSemaphores(t *testing.T) {
	p, _ := newProcess(t)
	var sem semaphore.Semaphore
	if err := p.SemWait(&sem); err != linuxerr.EINVAL {
		t.Errorf("SemWait() before SemInit = %v, want EINVAL", err)
	}
	if err := p.SemInit(&sem, 1, 1); err != nil {
		t.Fatalf("SemInit() failed: %v", err)
	}
	if err := p.SemWait(&sem); err != nil {
		t.Fatalf("SemWait() failed: %v", err)
	}
	if err := p.SemTrywait(&sem); err != linuxerr.ErrWouldBlock {
		t.Errorf("SemTrywait() at zero = %v, want ErrWouldBlock", err)
	}
	if err := p.SemPost(&sem); err != nil {
		t.Fatalf("SemPost() failed: %v", err)
	}
	if v, err := p.SemGetvalue(&sem); err != nil || v != 1 {
		t.Errorf("SemGetvalue() = %d, %v, want 1, nil", v, err)
	}
	if err := p.SemDestroy(&sem); err != nil {
		t.Fatalf("SemDestroy() failed: %v", err)
	}
	if err := p.SemPost(nil); err != linuxerr.EINVAL {
		t.Errorf("SemPost(nil) = %v, want EINVAL", err)
	}

	a, err := p.SemOpen("/a", linux.O_CREAT, 0600, 0)
	if err != nil {
		t.Fatalf("SemOpen() failed: %v", err)
	}
	if _, err := p.SemOpen("/b", linux.O_CREAT, 0600, 0); err != nil {
		t.Fatalf("SemOpen() failed: %v", err)
	}
	if _, err := p.SemOpen("/c", linux.O_CREAT, 0600, 0); err != linuxerr.ENOSPC {
		t.Errorf("SemOpen() on a full table = %v, want ENOSPC", err)
	}
	again, err := p.SemOpen("a", 0, 0, 0)
	if err != nil || again != a {
		t.Errorf("SemOpen(existing) = %p, %v, want %p, nil", again, err, a)
	}
	if err := p.SemUnlink("/a"); err != nil {
		t.Fatalf("SemUnlink() failed: %v", err)
	}
	if _, err := p.SemOpen("/a", 0, 0, 0); err != linuxerr.ENOENT {
		t.Errorf("SemOpen() after unlink = %v, want ENOENT", err)
	}
	for i := 0; i < 2; i++ {
		if err := p.SemClose(a); err != nil {
			t.Fatalf("SemClose() #%d failed: %v", i, err)
		}
	}
	if err := a.Post(); err != linuxerr.EINVAL {
		t.Errorf("Post() on a released named semaphore = %v, want EINVAL", err)
	}
}

func TestTimers(t *testing.T) {
	p, clock := newProcess(t)
	var got []timer.Expiration
	fn := func(exp timer.Expiration) { got = append(got, exp) }

	if _, err := p.TimerCreate(linux.CLOCK_MONOTONIC, nil, fn); err != linuxerr.ENOTSUP {
		t.Errorf("TimerCreate(nil sigevent) = %v, want ENOTSUP", err)
	}
	if _, err := p.TimerCreate(linux.CLOCK_MONOTONIC, &linux.Sigevent{Notify: linux.SIGEV_SIGNAL}, fn); err != linuxerr.ENOTSUP {
		t.Errorf("TimerCreate(SIGEV_SIGNAL) = %v, want ENOTSUP", err)
	}
	if _, err := p.TimerCreate(linux.CLOCK_MONOTONIC, &linux.Sigevent{Notify: linux.SIGEV_THREAD}, nil); err != linuxerr.EINVAL {
		t.Errorf("TimerCreate(SIGEV_THREAD without callback) = %v, want EINVAL", err)
	}

	id, err := p.TimerCreate(linux.CLOCK_MONOTONIC, &linux.Sigevent{Notify: linux.SIGEV_THREAD, Value: 7}, fn)
	if err != nil {
		t.Fatalf("TimerCreate() failed: %v", err)
	}
	if err := p.TimerSettime(id, 0, nil, nil); err != linuxerr.EINVAL {
		t.Errorf("TimerSettime(nil) = %v, want EINVAL", err)
	}
	its := linux.Itimerspec{Value: linux.Timespec{Sec: 1}, Interval: linux.Timespec{Sec: 1}}
	if err := p.TimerSettime(id, 0, &its, nil); err != nil {
		t.Fatalf("TimerSettime() failed: %v", err)
	}
	var old linux.Itimerspec
	if err := p.TimerSettime(id, 0, &its, &old); err != nil {
		t.Fatalf("TimerSettime() failed: %v", err)
	}
	if old != its {
		t.Errorf("TimerSettime() old = %+v, want %+v", old, its)
	}

	clock.Add(2500 * time.Millisecond)
	p.Timers().Tick()
	p.Dispatcher().Flush()
	want := []timer.Expiration{{ID: id, Value: 7, Count: 2, Overrun: 1}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("expirations mismatch (-want +got):\n%s", diff)
	}
	if n, err := p.TimerGetoverrun(id); err != nil || n != 1 {
		t.Errorf("TimerGetoverrun() = %d, %v, want 1, nil", n, err)
	}
	cur, err := p.TimerGettime(id)
	if err != nil {
		t.Fatalf("TimerGettime() failed: %v", err)
	}
	if want := (linux.Itimerspec{Value: linux.Timespec{Nsec: 5e8}, Interval: linux.Timespec{Sec: 1}}); cur != want {
		t.Errorf("TimerGettime() = %+v, want %+v", cur, want)
	}

	if err := p.TimerDelete(id); err != nil {
		t.Fatalf("TimerDelete() failed: %v", err)
	}
	if err := p.TimerDelete(id); err != linuxerr.EINVAL {
		t.Errorf("second TimerDelete() = %v, want EINVAL", err)
	}
	if _, err := p.TimerCreate(linux.CLOCK_MONOTONIC, &linux.Sigevent{Notify: linux.SIGEV_NONE}, nil); err != nil {
		t.Errorf("TimerCreate(SIGEV_NONE) = %v, want nil", err)
	}
}

func TestTimerCreateWaiter(t *testing.T) {
	p, clock := newProcess(t)
	if _, err := p.TimerCreateWaiter(linux.CLOCK_MONOTONIC, nil); err != linuxerr.EINVAL {
		t.Errorf("TimerCreateWaiter(nil queue) = %v, want EINVAL", err)
	}
	var q waiter.Queue
	id, err := p.TimerCreateWaiter(linux.CLOCK_MONOTONIC, &q)
	if err != nil {
		t.Fatalf("TimerCreateWaiter() failed: %v", err)
	}
	its := linux.Itimerspec{Value: linux.Timespec{Sec: 1}, Interval: linux.Timespec{Sec: 1}}
	if err := p.TimerSettime(id, 0, &its, nil); err != nil {
		t.Fatalf("TimerSettime() failed: %v", err)
	}

	e := waiter.NewEntry()
	if err := q.Enqueue(e); err != nil {
		t.Fatalf("Enqueue() failed: %v", err)
	}
	clock.Add(3 * time.Second)
	p.Timers().Tick()
	p.Dispatcher().Flush()
	select {
	case r := <-e.C():
		if r != waiter.Woken {
			t.Errorf("waiter resumed with %v, want Woken", r)
		}
	default:
		t.Fatalf("waiter not woken by expiration")
	}
	if n, err := p.TimerGetoverrun(id); err != nil || n != 2 {
		t.Errorf("TimerGetoverrun() = %d, %v, want 2, nil", n, err)
	}
}

func TestCloseTearsDown(t *testing.T) {
	p, clock := newProcess(t)
	fired := 0
	id, err := p.TimerCreate(linux.CLOCK_MONOTONIC, &linux.Sigevent{Notify: linux.SIGEV_THREAD}, func(timer.Expiration) { fired++ })
	if err != nil {
		t.Fatalf("TimerCreate() failed: %v", err)
	}
	its := linux.Itimerspec{Value: linux.Timespec{Sec: 1}, Interval: linux.Timespec{Sec: 1}}
	if err := p.TimerSettime(id, 0, &its, nil); err != nil {
		t.Fatalf("TimerSettime() failed: %v", err)
	}
	sem, err := p.SemOpen("/x", linux.O_CREAT, 0600, 0)
	if err != nil {
		t.Fatalf("SemOpen() failed: %v", err)
	}
	f := &memfile.File{}
	install(t, p, f, linux.O_RDWR)

	// A notification queued before Close must not run after it.
	clock.Add(time.Second)
	p.Timers().Tick()

	p.Close()

	clock.Add(3 * time.Second)
	p.Timers().Tick()
	p.Dispatcher().Flush()
	if fired != 0 {
		t.Errorf("timer fired %d times after Close, want 0", fired)
	}
	if got := p.Timers().Len(); got != 0 {
		t.Errorf("Timers().Len() after Close = %d, want 0", got)
	}
	if _, err := p.TimerGettime(id); err != linuxerr.EINVAL {
		t.Errorf("TimerGettime() after Close = %v, want EINVAL", err)
	}
	if _, err := p.SemOpen("/x", 0, 0, 0); err != linuxerr.ENOENT {
		t.Errorf("SemOpen(existing) after Close = %v, want ENOENT", err)
	}
	if err := p.SemPost(sem); err != linuxerr.EINVAL {
		t.Errorf("SemPost() after Close = %v, want EINVAL", err)
	}
	if got := p.FDTable().Size(); got != 0 {
		t.Errorf("FDTable().Size() after Close = %d, want 0", got)
	}
}

func TestRun(t *testing.T) {
	p := NewProcess(DefaultLimits(), ktime.HostClocks())
	fired := make(chan struct{}, 1)
	id, err := p.TimerCreate(linux.CLOCK_MONOTONIC, &linux.Sigevent{Notify: linux.SIGEV_THREAD}, func(timer.Expiration) {
		select {
		case fired <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("TimerCreate() failed: %v", err)
	}
	its := linux.Itimerspec{Value: linux.DurationToTimespec(time.Millisecond)}
	if err := p.TimerSettime(id, 0, &its, nil); err != nil {
		t.Fatalf("TimerSettime() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	var g errgroup.Group
	g.Go(func() error { return p.Run(ctx) })
	select {
	case <-fired:
	case <-time.After(10 * time.Second):
		t.Errorf("timer did not fire")
	}
	cancel()
	if err := g.Wait(); err != nil {
		t.Errorf("Run() = %v, want nil", err)
	}
}

// tunDevice records ioctl requests the way a TUN/TAP collaborator would see
// them.
type tunDevice struct {
	requests []uint32
	args     []uintptr
}

func (d *tunDevice) Ioctl(request uint32, arg uintptr) (uintptr, error) {
	d.requests = append(d.requests, request)
	d.args = append(d.args, arg)
	return 0, nil
}

func TestIoctl(t *testing.T) {
	p, _ := newProcess(t)
	dev := &tunDevice{}
	fd := install(t, p, dev, linux.O_RDWR)
	arg := uintptr(linux.IFF_TAP | linux.IFF_NO_PI)
	if _, err := p.Ioctl(fd, linux.TUNSETIFF, arg); err != nil {
		t.Fatalf("Ioctl(TUNSETIFF) failed: %v", err)
	}
	if diff := cmp.Diff([]uint32{linux.TUNSETIFF}, dev.requests); diff != "" {
		t.Errorf("forwarded requests mismatch (-want +got):\n%s", diff)
	}
	if dev.args[0] != arg {
		t.Errorf("forwarded arg = %#x, want %#x", dev.args[0], arg)
	}

	file := install(t, p, memfile.NewFile(nil), linux.O_RDONLY)
	if _, err := p.Ioctl(file, linux.TUNSETIFF, 0); err != linuxerr.ENOTTY {
		t.Errorf("Ioctl() on a regular file = %v, want ENOTTY", err)
	}
	if _, err := p.Ioctl(99, linux.TUNSETIFF, 0); err != linuxerr.EBADF {
		t.Errorf("Ioctl() on unknown fd = %v, want EBADF", err)
	}
}

func TestRet(t *testing.T) {
	for _, tc := range []struct {
		n         int64
		err       error
		wantN     int64
		wantErrno unix.Errno
	}{
		{n: 10, wantN: 10},
		{err: linuxerr.EBADF, wantN: -1, wantErrno: unix.EBADF},
		{err: linuxerr.ErrWouldBlock, wantN: -1, wantErrno: unix.EAGAIN},
		{err: linuxerr.ErrInterrupted, wantN: -1, wantErrno: unix.EINTR},
		{err: unix.ENOSPC, wantN: -1, wantErrno: unix.ENOSPC},
		{err: context.Canceled, wantN: -1, wantErrno: unix.EIO},
	} {
		n, errno := Ret(tc.n, tc.err)
		if n != tc.wantN || errno != tc.wantErrno {
			t.Errorf("Ret(%d, %v) = %d, %v, want %d, %v", tc.n, tc.err, n, errno, tc.wantN, tc.wantErrno)
		}
	}
}
