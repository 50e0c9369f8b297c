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
	"fmt"
	"io"
	"sort"

	"gvisor.dev/posixcore/pkg/abi/linux"
	"gvisor.dev/posixcore/pkg/errors/linuxerr"
	"gvisor.dev/posixcore/pkg/log"
	"gvisor.dev/posixcore/pkg/sync"
	"gvisor.dev/posixcore/pkg/uio"
)

// Ioctler is implemented by files that accept ioctl(2) requests, such as a
// TUN/TAP device. Requests and arguments are passed through uninterpreted.
type Ioctler interface {
	Ioctl(request uint32, arg uintptr) (uintptr, error)
}

// description is an open file description: the file and its access mode.
type description struct {
	// mu serializes vectored calls on the description, so that each one is
	// a single logical transfer.
	mu sync.Mutex

	file  any
	flags int32
}

func (d *description) readable() bool {
	mode := d.flags & linux.O_ACCMODE
	return mode == linux.O_RDONLY || mode == linux.O_RDWR
}

func (d *description) writable() bool {
	mode := d.flags & linux.O_ACCMODE
	return mode == linux.O_WRONLY || mode == linux.O_RDWR
}

// FDTable maps descriptors to open file descriptions.
type FDTable struct {
	mu    sync.RWMutex
	max   int32
	files map[int32]*description
}

func newFDTable(max int32) *FDTable {
	return &FDTable{
		max:   max,
		files: make(map[int32]*description),
	}
}

// Install allocates the lowest free descriptor for file, opened with the
// access mode in flags. file must implement at least one of uio.Reader,
// uio.Writer, uio.PReader, uio.PWriter or Ioctler; otherwise Install fails
// with EINVAL. It fails with EMFILE when the table is full.
func (f *FDTable) Install(file any, flags int32) (int32, error) {
	switch file.(type) {
	case uio.Reader, uio.Writer, uio.PReader, uio.PWriter, Ioctler:
	default:
		return -1, linuxerr.EINVAL
	}
	if mode := flags & linux.O_ACCMODE; mode != linux.O_RDONLY && mode != linux.O_WRONLY && mode != linux.O_RDWR {
		return -1, linuxerr.EINVAL
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	// Finds the lowest fd not in the handles map.
	for i := int32(0); i < f.max; i++ {
		if _, ok := f.files[i]; !ok {
			f.files[i] = &description{file: file, flags: flags}
			return i, nil
		}
	}
	return -1, linuxerr.EMFILE
}

// get returns the description of fd, or EBADF.
func (f *FDTable) get(fd int32) (*description, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	d, ok := f.files[fd]
	if !ok {
		return nil, linuxerr.EBADF
	}
	return d, nil
}

// Remove removes fd from the table and closes its file if it implements
// io.Closer. It fails with EBADF if fd is not open.
func (f *FDTable) Remove(fd int32) error {
	f.mu.Lock()
	d, ok := f.files[fd]
	if ok {
		delete(f.files, fd)
	}
	f.mu.Unlock()
	if !ok {
		return linuxerr.EBADF
	}
	if c, ok := d.file.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// Size returns the number of open descriptors.
func (f *FDTable) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.files)
}

// GetFDs returns the open descriptors in increasing order.
func (f *FDTable) GetFDs() []int32 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	fds := make([]int32, 0, len(f.files))
	for fd := range f.files {
		fds = append(fds, fd)
	}
	sort.Slice(fds, func(i, j int) bool { return fds[i] < fds[j] })
	return fds
}

// RemoveAll closes every descriptor.
func (f *FDTable) RemoveAll() {
	for _, fd := range f.GetFDs() {
		if err := f.Remove(fd); err != nil && err != linuxerr.EBADF {
			log.Warningf("Closing fd %d: %v", fd, err)
		}
	}
}

// String implements fmt.Stringer.
func (f *FDTable) String() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return fmt.Sprintf("FDTable{%d open, max %d}", len(f.files), f.max)
}
