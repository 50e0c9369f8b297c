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

package ktime

import (
	"golang.org/x/sys/unix"
	"gvisor.dev/posixcore/pkg/abi/linux"
	"gvisor.dev/posixcore/pkg/errors/linuxerr"
)

// HostClock is a Clock backed by clock_gettime(2) on the host.
type HostClock struct {
	// ID is the host clock ID. It is immutable.
	ID int32
}

// NewHostClock returns a HostClock for id. Only CLOCK_REALTIME and
// CLOCK_MONOTONIC are supported.
func NewHostClock(id int32) (*HostClock, error) {
	switch id {
	case linux.CLOCK_REALTIME, linux.CLOCK_MONOTONIC:
		return &HostClock{ID: id}, nil
	default:
		return nil, linuxerr.EINVAL
	}
}

// Now implements Clock.Now.
func (c *HostClock) Now() Time {
	var ts unix.Timespec
	if err := unix.ClockGettime(c.ID, &ts); err != nil {
		// clock_gettime only fails for invalid clocks and bad addresses,
		// neither of which is possible here.
		panic("clock_gettime failed: " + err.Error())
	}
	return FromNanoseconds(ts.Nano())
}

// HostClocks returns the clock table used by a process: CLOCK_REALTIME and
// CLOCK_MONOTONIC read from the host.
func HostClocks() map[int32]Clock {
	return map[int32]Clock{
		linux.CLOCK_REALTIME:  &HostClock{ID: linux.CLOCK_REALTIME},
		linux.CLOCK_MONOTONIC: &HostClock{ID: linux.CLOCK_MONOTONIC},
	}
}
