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
	"fmt"
	"sync/atomic"
	"time"
)

// SyntheticClock is a Clock whose current time is set manually by calling
// Store or Add.
//
// The zero value reads as the clock's zero time.
type SyntheticClock struct {
	// now is the Clock's current time in nanoseconds.
	now atomic.Int64
}

// NewSyntheticClock returns a SyntheticClock reading now.
func NewSyntheticClock(now Time) *SyntheticClock {
	c := &SyntheticClock{}
	c.Store(now)
	return c
}

// Now implements Clock.Now.
func (c *SyntheticClock) Now() Time {
	return FromNanoseconds(c.now.Load())
}

// Store sets c's current time to now.
//
// Precondition: now.Nanoseconds() >= 0.
func (c *SyntheticClock) Store(now Time) {
	if now.Nanoseconds() < 0 {
		panic(fmt.Sprintf("invalid time %d", now.Nanoseconds()))
	}
	c.now.Store(now.Nanoseconds())
}

// Add increases c's current time by d.
//
// Precondition: c's resulting current time >= 0.
func (c *SyntheticClock) Add(delta time.Duration) {
	if got := c.now.Add(delta.Nanoseconds()); got < 0 {
		panic(fmt.Sprintf("invalid time %d", got))
	}
}
