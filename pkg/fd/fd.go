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

// Package fd provides types for working with host file descriptors. They
// implement the scalar primitives consumed by package uio.
package fd

import (
	"fmt"
	"os"
	"runtime"
	"sync/atomic"

	"golang.org/x/sys/unix"
	"gvisor.dev/posixcore/pkg/errors/linuxerr"
)

// ReadWriter implements the uio scalar primitives for fd. Every method issues
// exactly one system call, so transfers may be short. It does not take
// ownership of fd.
type ReadWriter struct {
	// fd is accessed atomically so FD.Close/Release can swap it.
	fd atomic.Int64
}

// NewReadWriter creates a ReadWriter for fd.
func NewReadWriter(fd int) *ReadWriter {
	r := &ReadWriter{}
	r.fd.Store(int64(fd))
	return r
}

// translate converts a host errno to the error returned by the core.
func translate(n int, err error) (int, error) {
	if n < 0 {
		n = 0
	}
	if err == nil {
		return n, nil
	}
	errno, ok := err.(unix.Errno)
	if !ok {
		return n, err
	}
	switch errno {
	case unix.EAGAIN:
		return n, linuxerr.ErrWouldBlock
	case unix.EINTR:
		return n, linuxerr.ErrInterrupted
	default:
		return n, linuxerr.ErrorFromUnix(errno)
	}
}

func (r *ReadWriter) hostFD() (int, error) {
	fd := int(r.fd.Load())
	if fd < 0 {
		return -1, linuxerr.EBADF
	}
	return fd, nil
}

// Read reads into dst with read(2). It returns (0, nil) at end of file.
func (r *ReadWriter) Read(dst []byte) (int, error) {
	fd, err := r.hostFD()
	if err != nil {
		return 0, err
	}
	return translate(unix.Read(fd, dst))
}

// Write writes src with write(2).
func (r *ReadWriter) Write(src []byte) (int, error) {
	fd, err := r.hostFD()
	if err != nil {
		return 0, err
	}
	n, err := translate(unix.Write(fd, src))
	if n == 0 && err == nil && len(src) > 0 {
		panic(fmt.Sprintf("write(%d) returned 0 with no error", fd))
	}
	return n, err
}

// Pread reads into dst at off with pread(2). The file offset is unchanged.
func (r *ReadWriter) Pread(dst []byte, off int64) (int, error) {
	fd, err := r.hostFD()
	if err != nil {
		return 0, err
	}
	return translate(unix.Pread(fd, dst, off))
}

// Pwrite writes src at off with pwrite(2). The file offset is unchanged.
func (r *ReadWriter) Pwrite(src []byte, off int64) (int, error) {
	fd, err := r.hostFD()
	if err != nil {
		return 0, err
	}
	return translate(unix.Pwrite(fd, src, off))
}

// SetNonblock sets or clears O_NONBLOCK on the descriptor.
func (r *ReadWriter) SetNonblock(nonblocking bool) error {
	fd, err := r.hostFD()
	if err != nil {
		return err
	}
	_, err = translate(0, unix.SetNonblock(fd, nonblocking))
	return err
}

// FD owns a host file descriptor.
//
// It is similar to os.File, with a few important distinctions:
//
// FD provies a Release() method which relinquishes ownership. Like os.File,
// FD adds a finalizer to close the backing FD. However, the finalizer cannot
// be removed from os.File, forever pinning the lifetime of an FD to its
// os.File.
//
// FD supports both blocking and non-blocking operation. os.File only
// supports blocking operation.
type FD struct {
	ReadWriter
}

// New creates a new FD.
//
// New takes ownership of fd.
func New(fd int) *FD {
	f := &FD{}
	if fd < 0 {
		f.fd.Store(-1)
		return f
	}
	f.fd.Store(int64(fd))
	runtime.SetFinalizer(f, (*FD).Close)
	return f
}

// NewFromFile creates a new FD from an os.File.
//
// NewFromFile does not transfer ownership of the file descriptor (it will be
// duplicated, so both the os.File and FD will eventually need to be closed
// and some (but not all) changes made to the FD will be applied to the
// os.File as well).
func NewFromFile(file *os.File) (*FD, error) {
	fd, err := unix.Dup(int(file.Fd()))
	// Technically, the runtime may call the finalizer on file as soon as
	// Fd() returns.
	runtime.KeepAlive(file)
	if err != nil {
		_, err = translate(0, err)
		return New(-1), err
	}
	return New(fd), nil
}

// Open is equivallent to open(2).
func Open(path string, openmode int, perm uint32) (*FD, error) {
	f, err := unix.Open(path, openmode|unix.O_LARGEFILE|unix.O_CLOEXEC, perm)
	if err != nil {
		_, err = translate(0, err)
		return nil, err
	}
	return New(f), nil
}

// Close closes the file descriptor contained in the FD.
//
// Close is safe to call multiple times, but will return EBADF after the
// first call.
//
// Concurrently calling Close and any other method is undefined.
func (f *FD) Close() error {
	runtime.SetFinalizer(f, nil)
	fd := int(f.fd.Swap(-1))
	if fd < 0 {
		return linuxerr.EBADF
	}
	_, err := translate(0, unix.Close(fd))
	return err
}

// Release relinquishes ownership of the contained file descriptor.
//
// Concurrently calling Release and any other method is undefined.
func (f *FD) Release() int {
	runtime.SetFinalizer(f, nil)
	return int(f.fd.Swap(-1))
}

// FD returns the file descriptor owned by FD. FD retains ownership.
func (f *FD) FD() int {
	return int(f.fd.Load())
}

// File converts the FD to an os.File.
//
// FD does not transfer ownership of the file descriptor (it will be
// duplicated, so both the FD and os.File will eventually need to be closed
// and some (but not all) changes made to the os.File will be applied to the
// FD as well).
func (f *FD) File() (*os.File, error) {
	fd, err := unix.Dup(f.FD())
	if err != nil {
		_, err = translate(0, err)
		return nil, err
	}
	return os.NewFile(uintptr(fd), ""), nil
}
