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

package memfile

import (
	"fmt"
	"sync/atomic"

	"gvisor.dev/posixcore/pkg/errors/linuxerr"
	"gvisor.dev/posixcore/pkg/sync"
	"gvisor.dev/posixcore/pkg/waiter"
)

const (
	// DefaultPipeSize is the default capacity of a pipe in bytes.
	DefaultPipeSize = 65536

	// atomicIOBytes is PIPE_BUF: writes of at most this many bytes are never
	// split.
	atomicIOBytes = 4096
)

// pipe is the buffered byte queue shared by the two ends of a Pipe.
type pipe struct {
	mu sync.Mutex

	// The following fields are protected by mu.
	data    []byte
	max     int
	readers int
	writers int

	// interrupts is incremented by Interrupt. A parked caller that observes
	// a change on wakeup returns ErrInterrupted.
	interrupts uint64

	// readQ holds contexts waiting for data; writeQ holds contexts waiting
	// for space. Both are woken with mu held.
	readQ  waiter.Queue
	writeQ waiter.Queue
}

// PipeReader is the read end of a pipe.
type PipeReader struct {
	p           *pipe
	nonblocking atomic.Bool
	closed      atomic.Bool
}

// PipeWriter is the write end of a pipe.
type PipeWriter struct {
	p           *pipe
	nonblocking atomic.Bool
	closed      atomic.Bool
}

// NewPipe returns the two ends of a new pipe holding at most size bytes
// (DefaultPipeSize if size is not positive). Both ends start in blocking
// mode.
func NewPipe(size int) (*PipeReader, *PipeWriter) {
	if size <= 0 {
		size = DefaultPipeSize
	}
	p := &pipe{max: size, readers: 1, writers: 1}
	return &PipeReader{p: p}, &PipeWriter{p: p}
}

// park waits on q after releasing p.mu, and reacquires it. It returns
// ErrInterrupted if Interrupt was called in the meantime.
//
// +checklocks:p.mu
func (p *pipe) parkLocked(q *waiter.Queue) error {
	e := waiter.NewEntry()
	if err := q.Enqueue(e); err != nil {
		return err
	}
	gen := p.interrupts
	p.mu.Unlock()
	e.Wait()
	p.mu.Lock()
	if p.interrupts != gen {
		return linuxerr.ErrInterrupted
	}
	return nil
}

func (p *pipe) interrupt() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interrupts++
	p.readQ.WakeAll()
	p.writeQ.WakeAll()
}

// Read implements uio.Reader. It returns (0, nil) once the pipe is empty and
// the write end is closed. On an empty pipe it fails with ErrWouldBlock in
// non-blocking mode and otherwise waits for data.
func (r *PipeReader) Read(dst []byte) (int, error) {
	if r.closed.Load() {
		return 0, linuxerr.EBADF
	}
	// Don't block for a zero-length read even if the pipe is empty.
	if len(dst) == 0 {
		return 0, nil
	}
	p := r.p
	p.mu.Lock()
	defer p.mu.Unlock()
	for len(p.data) == 0 {
		if p.writers == 0 {
			return 0, nil
		}
		if r.nonblocking.Load() {
			return 0, linuxerr.ErrWouldBlock
		}
		if err := p.parkLocked(&p.readQ); err != nil {
			return 0, err
		}
	}
	n := copy(dst, p.data)
	p.data = p.data[n:]
	if len(p.data) == 0 {
		p.data = nil
	}
	p.writeQ.WakeAll()
	return n, nil
}

// Write implements uio.Writer. It writes as much of src as fits, but never
// splits a write of at most PIPE_BUF bytes. It fails with EPIPE if the read
// end is closed. On a full pipe it fails with ErrWouldBlock in non-blocking
// mode and otherwise waits for space.
func (w *PipeWriter) Write(src []byte) (int, error) {
	if w.closed.Load() {
		return 0, linuxerr.EBADF
	}
	if len(src) == 0 {
		return 0, nil
	}
	p := w.p
	p.mu.Lock()
	defer p.mu.Unlock()
	for {
		if p.readers == 0 {
			return 0, linuxerr.EPIPE
		}
		free := p.max - len(p.data)
		need := 1
		if len(src) <= atomicIOBytes {
			need = min(len(src), p.max)
		}
		if free >= need {
			break
		}
		if w.nonblocking.Load() {
			return 0, linuxerr.ErrWouldBlock
		}
		if err := p.parkLocked(&p.writeQ); err != nil {
			return 0, err
		}
	}
	n := min(len(src), p.max-len(p.data))
	p.data = append(p.data, src[:n]...)
	p.readQ.WakeAll()
	return n, nil
}

// SetNonblock sets or clears non-blocking mode on the read end.
func (r *PipeReader) SetNonblock(nonblocking bool) {
	r.nonblocking.Store(nonblocking)
}

// SetNonblock sets or clears non-blocking mode on the write end.
func (w *PipeWriter) SetNonblock(nonblocking bool) {
	w.nonblocking.Store(nonblocking)
}

// Interrupt resumes every context parked in Read or Write on either end of
// the pipe with ErrInterrupted.
func (r *PipeReader) Interrupt() {
	r.p.interrupt()
}

// Interrupt resumes every context parked in Read or Write on either end of
// the pipe with ErrInterrupted.
func (w *PipeWriter) Interrupt() {
	w.p.interrupt()
}

// Close closes the read end. Parked and later writers fail with EPIPE.
func (r *PipeReader) Close() error {
	if r.closed.Swap(true) {
		return linuxerr.EBADF
	}
	p := r.p
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readers--
	if p.readers < 0 {
		panic(fmt.Sprintf("pipe %p has negative readers: %d", p, p.readers))
	}
	p.writeQ.WakeAll()
	return nil
}

// Close closes the write end. Readers see end of file once the pipe drains.
func (w *PipeWriter) Close() error {
	if w.closed.Swap(true) {
		return linuxerr.EBADF
	}
	p := w.p
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writers--
	if p.writers < 0 {
		panic(fmt.Sprintf("pipe %p has negative writers: %d", p, p.writers))
	}
	p.readQ.WakeAll()
	return nil
}

// Buffered returns the number of bytes queued in the pipe.
func (r *PipeReader) Buffered() int {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()
	return len(r.p.data)
}
