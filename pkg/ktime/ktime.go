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

// Package ktime provides an API for clocks and timer settings.
package ktime

import (
	"fmt"
	"math"
	"time"

	"gvisor.dev/posixcore/pkg/abi/linux"
	"gvisor.dev/posixcore/pkg/errors/linuxerr"
)

// Time is an instant on some Clock, in nanoseconds since that clock's zero.
// Times from different clocks must not be compared.
type Time struct {
	ns int64
}

// MaxTime is the latest representable Time. Arithmetic on Time saturates at
// MaxTime instead of wrapping.
var MaxTime = Time{ns: math.MaxInt64}

// FromNanoseconds returns the Time ns nanoseconds after the clock's zero.
func FromNanoseconds(ns int64) Time {
	return Time{ns}
}

// FromSeconds returns the Time s seconds after the clock's zero.
func FromSeconds(s int64) Time {
	if s > math.MaxInt64/int64(time.Second) {
		return MaxTime
	}
	return Time{s * int64(time.Second)}
}

// FromTimespec converts ts, taken as an absolute time, to a Time.
func FromTimespec(ts linux.Timespec) Time {
	return Time{ts.ToNsecCapped()}
}

// Nanoseconds returns t as nanoseconds since the clock's zero.
func (t Time) Nanoseconds() int64 {
	return t.ns
}

// Timespec returns t as an absolute struct timespec.
func (t Time) Timespec() linux.Timespec {
	return linux.NsecToTimespec(t.ns)
}

// Add returns t+d, saturating on overflow.
func (t Time) Add(d time.Duration) Time {
	ns := t.ns + int64(d)
	switch {
	case d > 0 && ns < t.ns:
		return MaxTime
	case d < 0 && ns > t.ns:
		return Time{math.MinInt64}
	}
	return Time{ns}
}

// Before reports whether t is earlier than u.
func (t Time) Before(u Time) bool {
	return t.ns < u.ns
}

// After reports whether t is later than u.
func (t Time) After(u Time) bool {
	return t.ns > u.ns
}

// Sub returns t-u, saturating at the limits of time.Duration.
func (t Time) Sub(u Time) time.Duration {
	d := t.ns - u.ns
	switch {
	case u.ns < 0 && d < t.ns:
		return time.Duration(math.MaxInt64)
	case u.ns > 0 && d > t.ns:
		return time.Duration(math.MinInt64)
	}
	return time.Duration(d)
}

// String implements fmt.Stringer.
func (t Time) String() string {
	return fmt.Sprintf("%dns", t.ns)
}

// A Clock is an abstract time source.
type Clock interface {
	// Now returns the current time in nanoseconds according to the Clock.
	Now() Time
}

// Setting contains user-controlled mutable timer properties.
type Setting struct {
	// Enabled is true if the timer is running.
	Enabled bool

	// Next is the time in nanoseconds of the next expiration.
	Next Time

	// Period is the time in nanoseconds between expirations. If Period is
	// zero, the timer will not automatically restart after expiring.
	//
	// Invariant: Period >= 0.
	Period time.Duration
}

// relativeSetting arms a Setting value after now. A zero value disarms it.
func relativeSetting(value time.Duration, interval time.Duration, now Time) (Setting, error) {
	if value < 0 || interval < 0 {
		return Setting{}, linuxerr.EINVAL
	}
	if value == 0 {
		return Setting{Period: interval}, nil
	}
	return Setting{
		Enabled: true,
		Next:    now.Add(value),
		Period:  interval,
	}, nil
}

// absoluteSetting arms a Setting at value. A zero value disarms it.
func absoluteSetting(value Time, interval time.Duration) (Setting, error) {
	if value.ns < 0 || interval < 0 {
		return Setting{}, linuxerr.EINVAL
	}
	if value.ns == 0 {
		return Setting{Period: interval}, nil
	}
	return Setting{
		Enabled: true,
		Next:    value,
		Period:  interval,
	}, nil
}

// SettingFromItimerspec converts a linux.Itimerspec to a Setting. If abs is
// true, its.Value is interpreted as an absolute time. Otherwise, it is
// interpreted as a time relative to now.
func SettingFromItimerspec(its linux.Itimerspec, abs bool, now Time) (Setting, error) {
	if !its.Value.Valid() || !its.Interval.Valid() {
		return Setting{}, linuxerr.EINVAL
	}
	if abs {
		return absoluteSetting(FromTimespec(its.Value), its.Interval.ToDuration())
	}
	return relativeSetting(its.Value.ToDuration(), its.Interval.ToDuration(), now)
}

// remaining returns the time left until s next expires and its period.
func remaining(now Time, s Setting) (value, period time.Duration) {
	if !s.Enabled {
		return 0, s.Period
	}
	value = s.Next.Sub(now)
	if value <= 0 {
		// An expiration that is due but not yet processed still reads
		// as armed.
		value = time.Nanosecond
	}
	return value, s.Period
}

// ItimerspecFromSetting converts a Setting to a linux.Itimerspec.
func ItimerspecFromSetting(now Time, s Setting) linux.Itimerspec {
	val, iv := remaining(now, s)
	return linux.Itimerspec{
		Interval: linux.DurationToTimespec(iv),
		Value:    linux.DurationToTimespec(val),
	}
}

// At returns an updated Setting and a number of expirations after the
// associated Clock indicates a time of now.
//
// Periodic settings advance by whole periods from their previous Next, so
// the k-th expiration of a timer armed at T0 is always T0 + k*Period no
// matter how late At is called.
//
// Settings may be created by successive calls to At with decreasing
// values of now (i.e. time may appear to go backward). Supporting this is
// required to support non-monotonic clocks, as well as allowing the clock to
// be read without holding the schedule lock.
func (s Setting) At(now Time) (Setting, uint64) {
	if !s.Enabled {
		return s, 0
	}
	if s.Next.After(now) {
		return s, 0
	}
	if s.Period == 0 {
		s.Enabled = false
		return s, 1
	}
	exp := 1 + uint64(now.Sub(s.Next).Nanoseconds())/uint64(s.Period)
	s.Next = s.Next.Add(time.Duration(uint64(s.Period) * exp))
	return s, exp
}
