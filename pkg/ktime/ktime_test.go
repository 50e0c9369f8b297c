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
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"gvisor.dev/posixcore/pkg/abi/linux"
	"gvisor.dev/posixcore/pkg/errors/linuxerr"
)

func TestSyntheticClockNow(t *testing.T) {
	var c SyntheticClock
	if got := c.Now(); got.Nanoseconds() != 0 {
		t.Errorf("zero-value SyntheticClock: Now() = %v, want 0", got)
	}
	want := FromSeconds(1)
	c.Store(want)
	if got := c.Now(); got != want {
		t.Errorf("after Store: Now() = %v, want %v", got, want)
	}
	c.Add(10 * time.Second)
	if got, want := c.Now(), FromSeconds(11); got != want {
		t.Errorf("after positive Add: Now() = %v, want %v", got, want)
	}
	c.Add(-5 * time.Second)
	if got, want := c.Now(), FromSeconds(6); got != want {
		t.Errorf("after negative Add: Now() = %v, want %v", got, want)
	}
}

func TestSettingAt(t *testing.T) {
	start := FromSeconds(10)
	for _, tc := range []struct {
		name     string
		setting  Setting
		now      Time
		want     Setting
		wantExps uint64
	}{
		{
			name:    "disabled",
			setting: Setting{Next: start, Period: time.Second},
			now:     FromSeconds(100),
			want:    Setting{Next: start, Period: time.Second},
		},
		{
			name:    "not yet due",
			setting: Setting{Enabled: true, Next: start},
			now:     start.Add(-time.Nanosecond),
			want:    Setting{Enabled: true, Next: start},
		},
		{
			name:     "one-shot",
			setting:  Setting{Enabled: true, Next: start},
			now:      start,
			want:     Setting{Next: start},
			wantExps: 1,
		},
		{
			name:     "periodic on time",
			setting:  Setting{Enabled: true, Next: start, Period: time.Second},
			now:      start,
			want:     Setting{Enabled: true, Next: FromSeconds(11), Period: time.Second},
			wantExps: 1,
		},
		{
			// A late reading collapses missed periods into one call but
			// keeps the anchor: next is start + 4s, not now + 1s.
			name:     "periodic late",
			setting:  Setting{Enabled: true, Next: start, Period: time.Second},
			now:      FromSeconds(13).Add(500 * time.Millisecond),
			want:     Setting{Enabled: true, Next: FromSeconds(14), Period: time.Second},
			wantExps: 4,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, exps := tc.setting.At(tc.now)
			if got != tc.want || exps != tc.wantExps {
				t.Errorf("At(%v) = %+v, %d, want %+v, %d", tc.now, got, exps, tc.want, tc.wantExps)
			}
		})
	}
}

func TestSettingAtNoDrift(t *testing.T) {
	const period = 3 * time.Millisecond
	t0 := FromSeconds(1)
	s := Setting{Enabled: true, Next: t0, Period: period}
	var total uint64
	// Read the clock with jitter that never reaches a full period.
	now := t0
	for i := 0; i < 1000; i++ {
		now = now.Add(period + time.Duration(i%5)*100*time.Microsecond)
		var exp uint64
		s, exp = s.At(now)
		total += exp
		if want := t0.Add(time.Duration(total) * period); s.Next != want {
			t.Fatalf("iteration %d: Next = %v, want %v (%d expirations)", i, s.Next, want, total)
		}
	}
}

func TestSettingFromItimerspec(t *testing.T) {
	now := FromSeconds(100)
	for _, tc := range []struct {
		name    string
		its     linux.Itimerspec
		abs     bool
		want    Setting
		wantErr error
	}{
		{
			name: "relative",
			its:  linux.Itimerspec{Value: linux.Timespec{Sec: 2}, Interval: linux.Timespec{Nsec: 5}},
			want: Setting{Enabled: true, Next: FromSeconds(102), Period: 5},
		},
		{
			name: "absolute",
			its:  linux.Itimerspec{Value: linux.Timespec{Sec: 2}},
			abs:  true,
			want: Setting{Enabled: true, Next: FromSeconds(2)},
		},
		{
			name: "zero disarms",
			its:  linux.Itimerspec{Interval: linux.Timespec{Sec: 1}},
			want: Setting{Period: time.Second},
		},
		{
			name:    "invalid nsec",
			its:     linux.Itimerspec{Value: linux.Timespec{Nsec: 1e9}},
			wantErr: linuxerr.EINVAL,
		},
		{
			name:    "negative interval",
			its:     linux.Itimerspec{Value: linux.Timespec{Sec: 1}, Interval: linux.Timespec{Sec: -1}},
			wantErr: linuxerr.EINVAL,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SettingFromItimerspec(tc.its, tc.abs, now)
			if err != tc.wantErr {
				t.Fatalf("SettingFromItimerspec() error = %v, want %v", err, tc.wantErr)
			}
			if err == nil && got != tc.want {
				t.Errorf("SettingFromItimerspec() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

func TestItimerspecRoundTrip(t *testing.T) {
	now := FromSeconds(50)
	its := linux.Itimerspec{Value: linux.Timespec{Sec: 3, Nsec: 7}, Interval: linux.Timespec{Sec: 1}}
	s, err := SettingFromItimerspec(its, false, now)
	if err != nil {
		t.Fatalf("SettingFromItimerspec() failed: %v", err)
	}
	if diff := cmp.Diff(its, ItimerspecFromSetting(now, s)); diff != "" {
		t.Errorf("ItimerspecFromSetting() mismatch (-want +got):\n%s", diff)
	}
}

func TestHostClock(t *testing.T) {
	if _, err := NewHostClock(linux.CLOCK_BOOTTIME_ALARM); err != linuxerr.EINVAL {
		t.Errorf("NewHostClock(CLOCK_BOOTTIME_ALARM) error = %v, want EINVAL", err)
	}
	c, err := NewHostClock(linux.CLOCK_MONOTONIC)
	if err != nil {
		t.Fatalf("NewHostClock(CLOCK_MONOTONIC) failed: %v", err)
	}
	a := c.Now()
	b := c.Now()
	if b.Before(a) {
		t.Errorf("monotonic clock went backwards: %v then %v", a, b)
	}
}

func TestTimeSaturates(t *testing.T) {
	for _, tc := range []struct {
		name string
		got  Time
		want Time
	}{
		{name: "add past max", got: MaxTime.Add(time.Nanosecond), want: MaxTime},
		{name: "add below min", got: FromNanoseconds(math.MinInt64).Add(-time.Second), want: FromNanoseconds(math.MinInt64)},
		{name: "plain add", got: FromSeconds(1).Add(-time.Second), want: FromNanoseconds(0)},
		{name: "huge seconds", got: FromSeconds(math.MaxInt64), want: MaxTime},
	} {
		if tc.got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, tc.got, tc.want)
		}
	}

	for _, tc := range []struct {
		t, u Time
		want time.Duration
	}{
		{t: FromSeconds(3), u: FromSeconds(1), want: 2 * time.Second},
		{t: FromSeconds(1), u: FromSeconds(3), want: -2 * time.Second},
		{t: MaxTime, u: FromNanoseconds(-1), want: time.Duration(math.MaxInt64)},
		{t: FromNanoseconds(math.MinInt64), u: FromNanoseconds(1), want: time.Duration(math.MinInt64)},
	} {
		if got := tc.t.Sub(tc.u); got != tc.want {
			t.Errorf("%v.Sub(%v) = %v, want %v", tc.t, tc.u, got, tc.want)
		}
	}
}
