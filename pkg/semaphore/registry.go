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

package semaphore

import (
	"strings"

	"gvisor.dev/posixcore/pkg/abi/linux"
	"gvisor.dev/posixcore/pkg/errors/linuxerr"
	"gvisor.dev/posixcore/pkg/log"
	"gvisor.dev/posixcore/pkg/sync"
)

// DefaultMaxNamed is the default maximum number of named semaphores in a
// Registry.
const DefaultMaxNamed = 256

// named is a Registry entry.
type named struct {
	sem  *Semaphore
	name string
	mode uint32

	// refs is the number of Open calls not yet matched by Close.
	refs int

	// unlinked is set once the name has been removed. The semaphore is
	// destroyed when the last reference is closed.
	unlinked bool
}

// Registry is the in-memory table of named semaphores. It is owned
// explicitly by its creator and passed by reference; there is no global
// table.
type Registry struct {
	// maxNamed and valueMax are immutable.
	maxNamed int
	valueMax uint32

	// mu protects the fields below.
	mu sync.Mutex

	// byName holds linked semaphores by canonical name.
	byName map[string]*named

	// bySem holds every semaphore with outstanding references or a name.
	bySem map[*Semaphore]*named
}

// NewRegistry returns an empty Registry holding at most maxNamed semaphores
// (DefaultMaxNamed if zero) whose values are bounded by valueMax (ValueMax if
// zero).
func NewRegistry(maxNamed int, valueMax uint32) *Registry {
	if maxNamed <= 0 {
		maxNamed = DefaultMaxNamed
	}
	if valueMax == 0 || valueMax > ValueMax {
		valueMax = ValueMax
	}
	return &Registry{
		maxNamed: maxNamed,
		valueMax: valueMax,
		byName:   make(map[string]*named),
		bySem:    make(map[*Semaphore]*named),
	}
}

// canonicalName validates a sem_open(3) name and strips its leading slashes.
func canonicalName(name string) (string, error) {
	n := strings.TrimLeft(name, "/")
	if n == "" || strings.ContainsRune(n, '/') {
		return "", linuxerr.EINVAL
	}
	if len(n) > linux.SEM_NAME_MAX {
		return "", linuxerr.ENAMETOOLONG
	}
	return n, nil
}

// Open opens or creates the named semaphore name, as sem_open(3).
//
// Without O_CREAT the semaphore must exist (ENOENT otherwise). With O_CREAT it
// is created with value and mode if missing; with O_CREAT|O_EXCL an existing
// semaphore fails with EEXIST. value and mode are ignored when opening an
// existing semaphore. Creating fails with EINVAL if value exceeds the
// registry's maximum and with ENOSPC if the table is full.
//
// Every successful Open must be matched by a Close.
func (r *Registry) Open(name string, oflag int32, mode uint32, value uint32) (*Semaphore, error) {
	key, err := canonicalName(name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if n, ok := r.byName[key]; ok {
		if oflag&linux.O_CREAT != 0 && oflag&linux.O_EXCL != 0 {
			return nil, linuxerr.EEXIST
		}
		n.refs++
		return n.sem, nil
	}
	if oflag&linux.O_CREAT == 0 {
		return nil, linuxerr.ENOENT
	}
	if value > r.valueMax {
		return nil, linuxerr.EINVAL
	}
	// Unlinked semaphores that are still open count against the limit.
	if len(r.bySem) >= r.maxNamed {
		return nil, linuxerr.ENOSPC
	}

	s := &Semaphore{}
	if err := s.Init(value, true, r.valueMax); err != nil {
		return nil, err
	}
	n := &named{sem: s, name: key, mode: mode & 0777, refs: 1}
	r.byName[key] = n
	r.bySem[s] = n
	log.Debugf("Created named semaphore %q (mode %#o, value %d)", key, n.mode, value)
	return s, nil
}

// Close releases one reference obtained from Open, as sem_close(3). It fails
// with EINVAL if s was not opened from r or has no references left.
func (r *Registry) Close(s *Semaphore) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.bySem[s]
	if !ok || n.refs == 0 {
		return linuxerr.EINVAL
	}
	n.refs--
	if n.refs == 0 && n.unlinked {
		r.releaseLocked(n)
	}
	return nil
}

// Unlink removes name from the table, as sem_unlink(3). Existing references
// remain usable; the semaphore is destroyed when the last one is closed.
func (r *Registry) Unlink(name string) error {
	key, err := canonicalName(name)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	n, ok := r.byName[key]
	if !ok {
		return linuxerr.ENOENT
	}
	delete(r.byName, key)
	n.unlinked = true
	log.Debugf("Unlinked named semaphore %q (%d references)", key, n.refs)
	if n.refs == 0 {
		r.releaseLocked(n)
	}
	return nil
}

// +checklocks:r.mu
func (r *Registry) releaseLocked(n *named) {
	delete(r.bySem, n.sem)
	if err := n.sem.Destroy(); err != nil {
		// Only possible if a context is still parked on a semaphore whose
		// every handle was closed.
		log.Warningf("Destroying named semaphore %q: %v", n.name, err)
	}
}

// Release unlinks every name and destroys every semaphore in r, including
// those that still have open handles. Handles obtained before Release fail
// with EINVAL afterwards. A semaphore with parked waiters cannot be destroyed;
// it is dropped from r with a warning. r stays usable and starts out empty.
func (r *Registry) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.bySem)
	clear(r.byName)
	for _, e := range r.bySem {
		e.unlinked = true
		e.refs = 0
		r.releaseLocked(e)
	}
	if n > 0 {
		log.Debugf("Released %d named semaphores", n)
	}
}

// Mode returns the permission bits a named semaphore was created with.
func (r *Registry) Mode(s *Semaphore) (uint32, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.bySem[s]
	if !ok {
		return 0, linuxerr.EINVAL
	}
	return n.mode, nil
}

// Len returns the number of linked names in the table. Semaphores that were
// unlinked but are still open are not included.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byName)
}
