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

package timer

import (
	"context"
	"time"

	"gvisor.dev/posixcore/pkg/log"
)

// Driver ticks a Registry whose clocks advance in real time. It sleeps until
// the earliest scheduled deadline on any clock, or until the schedule
// changes, and then calls Tick.
type Driver struct {
	r *Registry
}

// NewDriver returns a Driver for r.
func NewDriver(r *Registry) *Driver {
	return &Driver{r: r}
}

// nextWait returns how long to sleep before the earliest deadline, or false
// if no timer is armed.
func (d *Driver) nextWait() (time.Duration, bool) {
	var (
		wait  time.Duration
		armed bool
	)
	for clockID, c := range d.r.clocks {
		deadline, ok := d.r.NextDeadline(clockID)
		if !ok {
			continue
		}
		w := deadline.Sub(c.Now())
		if w < 0 {
			w = 0
		}
		if !armed || w < wait {
			wait, armed = w, true
		}
	}
	return wait, armed
}

// Run ticks the registry until ctx is done.
func (d *Driver) Run(ctx context.Context) error {
	log.Debugf("Timer driver started")
	defer log.Debugf("Timer driver stopped")

	t := time.NewTimer(time.Hour)
	t.Stop()
	defer t.Stop()
	for {
		d.r.Tick()

		var fired <-chan time.Time
		if wait, ok := d.nextWait(); ok {
			t.Reset(wait)
			fired = t.C
		}
		select {
		case <-ctx.Done():
			return nil
		case <-d.r.Changed():
		case <-fired:
		}
		t.Stop()
	}
}
