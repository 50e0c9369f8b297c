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
	"gvisor.dev/posixcore/pkg/abi/linux"
	"gvisor.dev/posixcore/pkg/errors/linuxerr"
	"gvisor.dev/posixcore/pkg/timer"
	"gvisor.dev/posixcore/pkg/waiter"
)

// TimerCreate implements timer_create(2). sev selects the notification:
// SIGEV_NONE creates a timer that only runs, and SIGEV_THREAD calls fn with
// sev.Value on the process's dispatcher. Signal delivery (SIGEV_SIGNAL and
// SIGEV_THREAD_ID, which is also the default for a nil sev) is not
// supported.
func (p *Process) TimerCreate(clockID int32, sev *linux.Sigevent, fn func(timer.Expiration)) (linux.TimerID, error) {
	if sev == nil {
		return 0, linuxerr.ENOTSUP
	}
	var target timer.Target
	switch sev.Notify {
	case linux.SIGEV_NONE:
	case linux.SIGEV_THREAD:
		if fn == nil {
			return 0, linuxerr.EINVAL
		}
		target = timer.CallbackTarget(fn)
	case linux.SIGEV_SIGNAL, linux.SIGEV_THREAD_ID:
		return 0, linuxerr.ENOTSUP
	default:
		return 0, linuxerr.EINVAL
	}
	return p.timers.Create(clockID, sev.Value, target)
}

// TimerCreateWaiter creates a timer whose every notification wakes all
// contexts parked on q. Overruns are still reported by timer_getoverrun.
func (p *Process) TimerCreateWaiter(clockID int32, q *waiter.Queue) (linux.TimerID, error) {
	if q == nil {
		return 0, linuxerr.EINVAL
	}
	return p.timers.Create(clockID, 0, timer.WaiterTarget(q))
}

// TimerSettime implements timer_settime(2). If old is not nil, the previous
// setting is stored there.
func (p *Process) TimerSettime(id linux.TimerID, flags int32, newValue, old *linux.Itimerspec) error {
	if newValue == nil {
		return linuxerr.EINVAL
	}
	prev, err := p.timers.Settime(id, flags, *newValue)
	if err != nil {
		return err
	}
	if old != nil {
		*old = prev
	}
	return nil
}

// TimerGettime implements timer_gettime(2).
func (p *Process) TimerGettime(id linux.TimerID) (linux.Itimerspec, error) {
	return p.timers.Gettime(id)
}

// TimerGetoverrun implements timer_getoverrun(2).
func (p *Process) TimerGetoverrun(id linux.TimerID) (int32, error) {
	return p.timers.Getoverrun(id)
}

// TimerDelete implements timer_delete(2).
func (p *Process) TimerDelete(id linux.TimerID) error {
	return p.timers.Delete(id)
}
