// Copyright 2021 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License"),;
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

package linuxerr_test

import (
	"fmt"
	"testing"

	"golang.org/x/sys/unix"
	"gvisor.dev/posixcore/pkg/errors"
	"gvisor.dev/posixcore/pkg/errors/linuxerr"
)

func TestErrorFromUnix(t *testing.T) {
	for _, tc := range []struct {
		errno unix.Errno
		want  error
	}{
		{errno: 0, want: nil},
		{errno: unix.EINVAL, want: linuxerr.EINVAL},
		{errno: unix.EAGAIN, want: linuxerr.EAGAIN},
		{errno: unix.EIDRM, want: linuxerr.EIDRM},
		{errno: unix.EOVERFLOW, want: linuxerr.EOVERFLOW},
		// Not part of the table; passed through unchanged.
		{errno: unix.ENOTCONN, want: unix.ENOTCONN},
	} {
		t.Run(fmt.Sprintf("%d", tc.errno), func(t *testing.T) {
			if got := linuxerr.ErrorFromUnix(tc.errno); got != tc.want {
				t.Fatalf("ErrorFromUnix(%v) = %v, want %v", tc.errno, got, tc.want)
			}
		})
	}
}

func TestEquals(t *testing.T) {
	for _, tc := range []struct {
		name string
		e    *errors.Error
		err  error
		want bool
	}{
		{name: "same", e: linuxerr.EBUSY, err: linuxerr.EBUSY, want: true},
		{name: "unix", e: linuxerr.EBUSY, err: unix.EBUSY, want: true},
		{name: "alias", e: linuxerr.ENOTSUP, err: linuxerr.EOPNOTSUPP, want: true},
		{name: "different", e: linuxerr.EBUSY, err: linuxerr.EINVAL, want: false},
		{name: "nil", e: nil, err: nil, want: true},
		{name: "nil vs error", e: nil, err: linuxerr.EINVAL, want: false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := linuxerr.Equals(tc.e, tc.err); got != tc.want {
				t.Fatalf("Equals(%v, %v) = %v, want %v", tc.e, tc.err, got, tc.want)
			}
		})
	}
}

func TestToUnix(t *testing.T) {
	if got := linuxerr.ToUnix(linuxerr.ESPIPE); got != unix.ESPIPE {
		t.Errorf("ToUnix(ESPIPE) = %v, want %v", got, unix.ESPIPE)
	}
	if got := linuxerr.ToUnix(nil); got != 0 {
		t.Errorf("ToUnix(nil) = %v, want 0", got)
	}
	if got := linuxerr.ToError(nil); got != nil {
		t.Errorf("ToError(nil) = %v, want nil", got)
	}
}

func TestTranslateError(t *testing.T) {
	for _, tc := range []struct {
		err  error
		want *errors.Error
	}{
		{err: linuxerr.ErrWouldBlock, want: linuxerr.EAGAIN},
		{err: linuxerr.ErrInterrupted, want: linuxerr.EINTR},
		{err: linuxerr.EIDRM, want: linuxerr.EIDRM},
	} {
		got, ok := linuxerr.TranslateError(tc.err)
		if !ok || got != tc.want {
			t.Errorf("TranslateError(%v) = %v, %t, want %v, true", tc.err, got, ok, tc.want)
		}
	}
	if _, ok := linuxerr.TranslateError(fmt.Errorf("plain")); ok {
		t.Errorf("TranslateError(plain error) succeeded, want failure")
	}
}
