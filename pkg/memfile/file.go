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

// Package memfile provides in-memory files implementing the scalar I/O
// primitives consumed by package uio: a seekable File and a bounded Pipe.
package memfile

import (
	"io"
	"math"

	"gvisor.dev/posixcore/pkg/errors/linuxerr"
	"gvisor.dev/posixcore/pkg/sync"
)

// File is a seekable in-memory regular file. Read and Write use and advance
// the file offset; Pread and Pwrite do not touch it.
//
// The zero value is an empty file.
type File struct {
	// MaxChunk, if positive, limits every call to at most MaxChunk bytes.
	// It must not be changed while the file is in use.
	MaxChunk int

	mu   sync.Mutex
	data []byte
	off  int64
}

// NewFile returns a File holding a copy of data, with its offset at 0.
func NewFile(data []byte) *File {
	return &File{data: append([]byte(nil), data...)}
}

func (f *File) clamp(b []byte) []byte {
	if f.MaxChunk > 0 && len(b) > f.MaxChunk {
		return b[:f.MaxChunk]
	}
	return b
}

// +checklocks:f.mu
func (f *File) readAtLocked(dst []byte, off int64) (int, error) {
	if len(dst) == 0 {
		return 0, nil
	}
	if off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	return copy(f.clamp(dst), f.data[off:]), nil
}

// +checklocks:f.mu
func (f *File) writeAtLocked(src []byte, off int64) (int, error) {
	src = f.clamp(src)
	if int64(len(src)) > math.MaxInt64-off {
		return 0, linuxerr.EFBIG
	}
	if end := off + int64(len(src)); end > int64(len(f.data)) {
		if end > int64(cap(f.data)) {
			grown := make([]byte, end, 2*end)
			copy(grown, f.data)
			f.data = grown
		} else {
			f.data = f.data[:end]
		}
	}
	return copy(f.data[off:], src), nil
}

// Read implements uio.Reader.
func (f *File) Read(dst []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.readAtLocked(dst, f.off)
	f.off += int64(n)
	return n, err
}

// Write implements uio.Writer.
func (f *File) Write(src []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, err := f.writeAtLocked(src, f.off)
	f.off += int64(n)
	return n, err
}

// Pread implements uio.PReader.
func (f *File) Pread(dst []byte, off int64) (int, error) {
	if off < 0 {
		return 0, linuxerr.EINVAL
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readAtLocked(dst, off)
}

// Pwrite implements uio.PWriter.
func (f *File) Pwrite(src []byte, off int64) (int, error) {
	if off < 0 {
		return 0, linuxerr.EINVAL
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeAtLocked(src, off)
}

// Seek implements io.Seeker. Seeking past the end is allowed; a later write
// fills the gap with zeroes.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = f.off
	case io.SeekEnd:
		base = int64(len(f.data))
	default:
		return 0, linuxerr.EINVAL
	}
	if offset > 0 && base > math.MaxInt64-offset {
		return 0, linuxerr.EOVERFLOW
	}
	if base+offset < 0 {
		return 0, linuxerr.EINVAL
	}
	f.off = base + offset
	return f.off, nil
}

// Bytes returns a copy of the file contents.
func (f *File) Bytes() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]byte(nil), f.data...)
}

// Size returns the file size.
func (f *File) Size() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.data))
}
