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

package linux

import "testing"

// The values below are the ones in linux/if_tun.h.
func TestTunRequests(t *testing.T) {
	for _, tc := range []struct {
		name string
		got  uint32
		want uint32
	}{
		{name: "TUNSETIFF", got: TUNSETIFF, want: 0x400454ca},
		{name: "TUNSETOFFLOAD", got: TUNSETOFFLOAD, want: 0x400454d0},
		{name: "TUNGETIFF", got: TUNGETIFF, want: 0x800454d2},
		{name: "TUNSETVNETHDRSZ", got: TUNSETVNETHDRSZ, want: 0x400454d8},
	} {
		if tc.got != tc.want {
			t.Errorf("%s = %#x, want %#x", tc.name, tc.got, tc.want)
		}
	}
	if got := IOC_NR(TUNSETIFF); got != 202 {
		t.Errorf("IOC_NR(TUNSETIFF) = %d, want 202", got)
	}
	if got := IOC_SIZE(TUNGETIFF); got != 4 {
		t.Errorf("IOC_SIZE(TUNGETIFF) = %d, want 4", got)
	}
}

func TestTimespec(t *testing.T) {
	for _, tc := range []struct {
		ts    Timespec
		valid bool
	}{
		{ts: Timespec{}, valid: true},
		{ts: Timespec{Sec: 1, Nsec: 999999999}, valid: true},
		{ts: Timespec{Sec: -1}, valid: false},
		{ts: Timespec{Nsec: -1}, valid: false},
		{ts: Timespec{Nsec: 1e9}, valid: false},
	} {
		if got := tc.ts.Valid(); got != tc.valid {
			t.Errorf("%+v.Valid() = %t, want %t", tc.ts, got, tc.valid)
		}
	}
	if got, want := NsecToTimespec(1500000000), (Timespec{Sec: 1, Nsec: 5e8}); got != want {
		t.Errorf("NsecToTimespec(1.5s) = %+v, want %+v", got, want)
	}
}
