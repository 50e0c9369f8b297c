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
	"gvisor.dev/posixcore/pkg/errors/linuxerr"
	"gvisor.dev/posixcore/pkg/semaphore"
)

// SemInit initializes sem, as sem_init(3). pshared is advisory.
func (p *Process) SemInit(sem *semaphore.Semaphore, pshared int32, value uint32) error {
	if sem == nil {
		return linuxerr.EINVAL
	}
	return sem.Init(value, pshared != 0, p.limits.SemValueMax)
}

// SemWait implements sem_wait(3).
func (p *Process) SemWait(sem *semaphore.Semaphore) error {
	if sem == nil {
		return linuxerr.EINVAL
	}
	return sem.Wait()
}

// SemTrywait implements sem_trywait(3).
func (p *Process) SemTrywait(sem *semaphore.Semaphore) error {
	if sem == nil {
		return linuxerr.EINVAL
	}
	return sem.TryWait()
}

// SemPost implements sem_post(3).
func (p *Process) SemPost(sem *semaphore.Semaphore) error {
	if sem == nil {
		return linuxerr.EINVAL
	}
	return sem.Post()
}

// SemGetvalue implements sem_getvalue(3).
func (p *Process) SemGetvalue(sem *semaphore.Semaphore) (int32, error) {
	if sem == nil {
		return 0, linuxerr.EINVAL
	}
	return sem.Value()
}

// SemDestroy implements sem_destroy(3).
func (p *Process) SemDestroy(sem *semaphore.Semaphore) error {
	if sem == nil {
		return linuxerr.EINVAL
	}
	return sem.Destroy()
}

// SemOpen implements sem_open(3) against the named semaphore table of p.
func (p *Process) SemOpen(name string, oflag int32, mode uint32, value uint32) (*semaphore.Semaphore, error) {
	return p.sems.Open(name, oflag, mode, value)
}

// SemClose implements sem_close(3).
func (p *Process) SemClose(sem *semaphore.Semaphore) error {
	return p.sems.Close(sem)
}

// SemUnlink implements sem_unlink(3).
func (p *Process) SemUnlink(name string) error {
	return p.sems.Unlink(name)
}
