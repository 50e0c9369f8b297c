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
	"gvisor.dev/posixcore/pkg/uio"
)

// Readv implements readv(2).
func (p *Process) Readv(fd int32, iovs [][]byte) (int64, error) {
	d, err := p.fds.get(fd)
	if err != nil {
		return 0, err
	}
	r, ok := d.file.(uio.Reader)
	if !ok || !d.readable() {
		return 0, linuxerr.EBADF
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return uio.Readv(r, iovs)
}

// Writev implements writev(2).
func (p *Process) Writev(fd int32, iovs [][]byte) (int64, error) {
	d, err := p.fds.get(fd)
	if err != nil {
		return 0, err
	}
	w, ok := d.file.(uio.Writer)
	if !ok || !d.writable() {
		return 0, linuxerr.EBADF
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return uio.Writev(w, iovs)
}

// Preadv implements preadv(2). It fails with ESPIPE if the file does not
// support positioned reads.
func (p *Process) Preadv(fd int32, iovs [][]byte, off int64) (int64, error) {
	d, err := p.fds.get(fd)
	if err != nil {
		return 0, err
	}
	if !d.readable() {
		return 0, linuxerr.EBADF
	}
	r, ok := d.file.(uio.PReader)
	if !ok {
		return 0, linuxerr.ESPIPE
	}
	if off < 0 {
		return 0, linuxerr.EINVAL
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return uio.Preadv(r, iovs, off)
}

// Pwritev implements pwritev(2). It fails with ESPIPE if the file does not
// support positioned writes.
func (p *Process) Pwritev(fd int32, iovs [][]byte, off int64) (int64, error) {
	d, err := p.fds.get(fd)
	if err != nil {
		return 0, err
	}
	if !d.writable() {
		return 0, linuxerr.EBADF
	}
	w, ok := d.file.(uio.PWriter)
	if !ok {
		return 0, linuxerr.ESPIPE
	}
	if off < 0 {
		return 0, linuxerr.EINVAL
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return uio.Pwritev(w, iovs, off)
}

// Ioctl implements ioctl(2) by forwarding request and arg verbatim to a file
// implementing Ioctler. Other files fail with ENOTTY.
func (p *Process) Ioctl(fd int32, request uint32, arg uintptr) (uintptr, error) {
	d, err := p.fds.get(fd)
	if err != nil {
		return 0, err
	}
	i, ok := d.file.(Ioctler)
	if !ok {
		return 0, linuxerr.ENOTTY
	}
	return i.Ioctl(request, arg)
}
