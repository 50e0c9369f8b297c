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

// Package posix provides the C-style surface of the core: semaphores,
// vectored I/O, interval timers and ioctl pass-through, all owned by an
// explicit Process value rather than hidden global state.
//
// Every operation returns a *errors.Error carrying a Linux errno on failure.
// Ret converts a result to the C convention of -1 plus errno.
package posix

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"
	"gvisor.dev/posixcore/pkg/abi/linux"
	"gvisor.dev/posixcore/pkg/errors/linuxerr"
	"gvisor.dev/posixcore/pkg/ktime"
	"gvisor.dev/posixcore/pkg/log"
	"gvisor.dev/posixcore/pkg/semaphore"
	"gvisor.dev/posixcore/pkg/timer"
)

// Limits bounds the resources of a Process.
type Limits struct {
	// SemValueMax is the largest value a semaphore can reach.
	SemValueMax uint32

	// MaxNamedSemaphores bounds the named semaphore table.
	MaxNamedSemaphores int

	// MaxTimers bounds the number of live interval timers.
	MaxTimers int

	// DelayTimerMax caps the overrun count reported for a timer.
	DelayTimerMax int32

	// MaxFDs bounds the descriptor table.
	MaxFDs int32

	// DispatchQueueLen is the initial capacity of the timer notification
	// queue.
	DispatchQueueLen int
}

// DefaultLimits returns the limits used when none are configured.
func DefaultLimits() Limits {
	return Limits{
		SemValueMax:        linux.SEM_VALUE_MAX,
		MaxNamedSemaphores: semaphore.DefaultMaxNamed,
		MaxTimers:          timer.DefaultMaxTimers,
		DelayTimerMax:      linux.DELAYTIMER_MAX,
		MaxFDs:             1024,
		DispatchQueueLen:   64,
	}
}

// Process owns the descriptor table, the named semaphore table and the
// interval timers of one process.
type Process struct {
	limits Limits

	fds    *FDTable
	sems   *semaphore.Registry
	timers *timer.Registry
	driver *timer.Driver
}

// NewProcess returns a Process with the given limits whose timers may use the
// clocks in clocks. Zero limit fields take their default. Timer
// notifications are only delivered once Run is called (or when the caller
// flushes Dispatcher itself).
func NewProcess(limits Limits, clocks map[int32]ktime.Clock) *Process {
	def := DefaultLimits()
	if limits.SemValueMax == 0 {
		limits.SemValueMax = def.SemValueMax
	}
	if limits.MaxNamedSemaphores <= 0 {
		limits.MaxNamedSemaphores = def.MaxNamedSemaphores
	}
	if limits.MaxTimers <= 0 {
		limits.MaxTimers = def.MaxTimers
	}
	if limits.DelayTimerMax <= 0 {
		limits.DelayTimerMax = def.DelayTimerMax
	}
	if limits.MaxFDs <= 0 {
		limits.MaxFDs = def.MaxFDs
	}
	if limits.DispatchQueueLen <= 0 {
		limits.DispatchQueueLen = def.DispatchQueueLen
	}

	d := timer.NewDispatcher(limits.DispatchQueueLen)
	timers := timer.NewRegistry(clocks, d, limits.MaxTimers, limits.DelayTimerMax)
	log.Debugf("New process with limits %+v", limits)
	return &Process{
		limits: limits,
		fds:    newFDTable(limits.MaxFDs),
		sems:   semaphore.NewRegistry(limits.MaxNamedSemaphores, limits.SemValueMax),
		timers: timers,
		driver: timer.NewDriver(timers),
	}
}

// Limits returns the effective limits of p.
func (p *Process) Limits() Limits {
	return p.limits
}

// FDTable returns the descriptor table of p.
func (p *Process) FDTable() *FDTable {
	return p.fds
}

// Timers returns the timer registry of p.
func (p *Process) Timers() *timer.Registry {
	return p.timers
}

// Dispatcher returns the execution context on which timer notifications run.
func (p *Process) Dispatcher() *timer.Dispatcher {
	return p.timers.Dispatcher()
}

// Run drives the timers of p and delivers their notifications until ctx is
// done.
func (p *Process) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Dispatcher().Run(ctx) })
	g.Go(func() error { return p.driver.Run(ctx) })
	return g.Wait()
}

// Close tears p down: it closes every open descriptor, deletes every timer
// (discarding queued notifications) and releases the named semaphore table.
// Run should be stopped first.
func (p *Process) Close() {
	p.fds.RemoveAll()
	p.timers.DeleteAll()
	p.sems.Release()
}

// InstallFile installs file with the access mode in flags at the lowest free
// descriptor and returns it.
func (p *Process) InstallFile(file any, flags int32) (int32, error) {
	fd, err := p.fds.Install(file, flags)
	if err != nil {
		return -1, err
	}
	log.Debugf("Installed fd %d (flags %#o)", fd, flags)
	return fd, nil
}

// CloseFD closes fd, as close(2).
func (p *Process) CloseFD(fd int32) error {
	return p.fds.Remove(fd)
}

// Ret converts the result of an operation to the C convention: n and 0 on
// success, -1 and an errno on failure. Errors without an errno map to EIO.
func Ret(n int64, err error) (int64, unix.Errno) {
	if err == nil {
		return n, 0
	}
	if e, ok := linuxerr.TranslateError(err); ok {
		return -1, linuxerr.ToUnix(e)
	}
	if errno, ok := err.(unix.Errno); ok {
		return -1, errno
	}
	log.Warningf("Error without errno returned as EIO: %v", err)
	return -1, unix.EIO
}
