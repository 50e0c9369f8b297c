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

// Package uio implements vectored (scatter/gather) I/O, as readv(2),
// writev(2), preadv(2) and pwritev(2), on top of single-buffer primitives.
//
// A vectored call is one logical transfer: buffers are filled or drained in
// order, each completely before the next, and the call stops at the first
// short transfer. The caller is responsible for atomicity with respect to
// other calls on the same file.
package uio

import (
	"fmt"
	"io"
	"math"

	"gvisor.dev/posixcore/pkg/abi/linux"
	"gvisor.dev/posixcore/pkg/errors/linuxerr"
)

// Reader is the scalar read primitive. A return of (0, nil) or io.EOF
// indicates the end of the stream. Any io.Reader is a Reader.
type Reader interface {
	Read(dst []byte) (int, error)
}

// Writer is the scalar write primitive. Any io.Writer is a Writer.
type Writer interface {
	Write(src []byte) (int, error)
}

// PReader is the positioned read primitive. It must not move the file's
// cursor.
type PReader interface {
	Pread(dst []byte, off int64) (int, error)
}

// PWriter is the positioned write primitive. It must not move the file's
// cursor.
type PWriter interface {
	Pwrite(src []byte, off int64) (int, error)
}

// TotalLen returns the total length of iovs. It fails with EINVAL if there
// are more than linux.UIO_MAXIOV buffers or the total overflows int64.
func TotalLen(iovs [][]byte) (int64, error) {
	if len(iovs) > linux.UIO_MAXIOV {
		return 0, linuxerr.EINVAL
	}
	var total int64
	for _, b := range iovs {
		if int64(len(b)) > math.MaxInt64-total {
			return 0, linuxerr.EINVAL
		}
		total += int64(len(b))
	}
	return total, nil
}

// DropFirst returns iovs with the first n bytes removed. Buffers that become
// empty are dropped; the underlying arrays are shared.
func DropFirst(iovs [][]byte, n int64) [][]byte {
	for len(iovs) > 0 && n >= int64(len(iovs[0])) {
		n -= int64(len(iovs[0]))
		iovs = iovs[1:]
	}
	if len(iovs) == 0 {
		return nil
	}
	if n > 0 {
		out := make([][]byte, len(iovs))
		copy(out, iovs)
		out[0] = out[0][n:]
		return out
	}
	return iovs
}

// transfer applies op to each non-empty buffer of iovs in order. done is the
// number of bytes transferred before the buffer.
func transfer(iovs [][]byte, op func(b []byte, done int64) (int, error)) (int64, error) {
	if _, err := TotalLen(iovs); err != nil {
		return 0, err
	}
	var done int64
	for _, b := range iovs {
		if len(b) == 0 {
			continue
		}
		n, err := op(b, done)
		if n < 0 || n > len(b) {
			panic(fmt.Sprintf("scalar I/O primitive returned %d for a %d-byte buffer", n, len(b)))
		}
		done += int64(n)
		if err != nil {
			if err == io.EOF || done > 0 {
				// A partial transfer is reported as such; a persistent error
				// will be reported by the next call.
				return done, nil
			}
			return 0, err
		}
		if n < len(b) {
			break
		}
	}
	return done, nil
}

// Readv reads from r into iovs, as readv(2).
func Readv(r Reader, iovs [][]byte) (int64, error) {
	return transfer(iovs, func(b []byte, _ int64) (int, error) {
		return r.Read(b)
	})
}

// Writev writes iovs to w, as writev(2).
func Writev(w Writer, iovs [][]byte) (int64, error) {
	return transfer(iovs, func(b []byte, _ int64) (int, error) {
		return w.Write(b)
	})
}

// Preadv reads from r at offset off into iovs, as preadv(2).
func Preadv(r PReader, iovs [][]byte, off int64) (int64, error) {
	if off < 0 {
		return 0, linuxerr.EINVAL
	}
	if total, err := TotalLen(iovs); err != nil {
		return 0, err
	} else if total > math.MaxInt64-off {
		return 0, linuxerr.EINVAL
	}
	return transfer(iovs, func(b []byte, done int64) (int, error) {
		return r.Pread(b, off+done)
	})
}

// Pwritev writes iovs to w at offset off, as pwritev(2).
func Pwritev(w PWriter, iovs [][]byte, off int64) (int64, error) {
	if off < 0 {
		return 0, linuxerr.EINVAL
	}
	if total, err := TotalLen(iovs); err != nil {
		return 0, err
	} else if total > math.MaxInt64-off {
		return 0, linuxerr.EINVAL
	}
	return transfer(iovs, func(b []byte, done int64) (int, error) {
		return w.Pwrite(b, off+done)
	})
}
