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

package fd

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/sys/unix"
	"gvisor.dev/posixcore/pkg/errors/linuxerr"
	"gvisor.dev/posixcore/pkg/uio"
)

func newPipe(t *testing.T) (r, w *FD) {
	t.Helper()
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_CLOEXEC); err != nil {
		t.Fatalf("Pipe2() failed: %v", err)
	}
	r, w = New(fds[0]), New(fds[1])
	t.Cleanup(func() {
		r.Close()
		w.Close()
	})
	return r, w
}

func TestPipeVectored(t *testing.T) {
	r, w := newPipe(t)
	n, err := uio.Writev(w, [][]byte{[]byte("abcd"), {}, []byte("efghij")})
	if err != nil || n != 10 {
		t.Fatalf("Writev() = %d, %v, want 10, nil", n, err)
	}
	dst := [][]byte{make([]byte, 5), make([]byte, 5)}
	n, err = uio.Readv(r, dst)
	if err != nil || n != 10 {
		t.Fatalf("Readv() = %d, %v, want 10, nil", n, err)
	}
	if got := string(dst[0]) + string(dst[1]); got != "abcdefghij" {
		t.Errorf("Readv() data = %q, want %q", got, "abcdefghij")
	}
}

func TestWouldBlock(t *testing.T) {
	r, _ := newPipe(t)
	if err := r.SetNonblock(true); err != nil {
		t.Fatalf("SetNonblock() failed: %v", err)
	}
	if _, err := r.Read(make([]byte, 1)); err != linuxerr.ErrWouldBlock {
		t.Errorf("Read() on empty non-blocking pipe = %v, want ErrWouldBlock", err)
	}
	if _, err := r.Pread(make([]byte, 1), 0); err != linuxerr.ESPIPE {
		t.Errorf("Pread() on a pipe = %v, want ESPIPE", err)
	}
}

func TestPositionedKeepsOffset(t *testing.T) {
	f, err := Open(filepath.Join(t.TempDir(), "file"), unix.O_RDWR|unix.O_CREAT, 0600)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer f.Close()

	if n, err := uio.Writev(f, [][]byte{[]byte("0123456789")}); err != nil || n != 10 {
		t.Fatalf("Writev() = %d, %v, want 10, nil", n, err)
	}
	if n, err := uio.Pwritev(f, [][]byte{[]byte("AB"), []byte("C")}, 2); err != nil || n != 3 {
		t.Fatalf("Pwritev() = %d, %v, want 3, nil", n, err)
	}
	dst := [][]byte{make([]byte, 3), make([]byte, 4)}
	if n, err := uio.Preadv(f, dst, 1); err != nil || n != 7 {
		t.Fatalf("Preadv() = %d, %v, want 7, nil", n, err)
	}
	if got := string(dst[0]) + string(dst[1]); got != "1ABC567" {
		t.Errorf("Preadv() data = %q, want %q", got, "1ABC567")
	}
	off, err := unix.Seek(f.FD(), 0, unix.SEEK_CUR)
	if err != nil {
		t.Fatalf("Seek() failed: %v", err)
	}
	if off != 10 {
		t.Errorf("file offset = %d after positioned I/O, want 10", off)
	}
}

func TestClose(t *testing.T) {
	f, err := Open(os.DevNull, unix.O_RDONLY, 0)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := f.Close(); err != linuxerr.EBADF {
		t.Errorf("second Close() = %v, want EBADF", err)
	}
	if _, err := f.Read(make([]byte, 1)); err != linuxerr.EBADF {
		t.Errorf("Read() after Close = %v, want EBADF", err)
	}
	if _, err := Open(filepath.Join(t.TempDir(), "missing"), unix.O_RDONLY, 0); err != linuxerr.ENOENT {
		t.Errorf("Open(missing) = %v, want ENOENT", err)
	}
}

func TestRelease(t *testing.T) {
	f, err := Open(os.DevNull, unix.O_RDONLY, 0)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	fd := f.Release()
	if f.FD() != -1 {
		t.Errorf("FD() after Release = %d, want -1", f.FD())
	}
	rw := NewReadWriter(fd)
	if n, err := rw.Read(make([]byte, 1)); n != 0 || err != nil {
		t.Errorf("Read() of /dev/null = %d, %v, want 0, nil", n, err)
	}
	unix.Close(fd)
}
