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

// Package cmd holds implementations of the posixcore commands.
package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gvisor.dev/posixcore/pkg/ktime"
	"gvisor.dev/posixcore/pkg/log"
	"gvisor.dev/posixcore/pkg/posix"
	"gvisor.dev/posixcore/posixcore/config"
)

// ErrorLogger is where error messages should be written to. These messages are
// consumed by the caller and are expected to be short.
var ErrorLogger io.Writer = os.Stderr

// Fatalf logs to stderr and exits with a failure status code.
func Fatalf(format string, args ...any) {
	log.WarningfAtDepth(1, format, args...)
	fmt.Fprintf(ErrorLogger, "posixcore: "+format+"\n", args...)
	os.Exit(128)
}

// intFlags can be used with a comma-separated list of non-negative integers.
type intFlags []int

// String implements flag.Value.
func (i *intFlags) String() string {
	parts := make([]string, 0, len(*i))
	for _, v := range *i {
		parts = append(parts, strconv.Itoa(v))
	}
	return strings.Join(parts, ",")
}

// Get implements flag.Getter.
func (i *intFlags) Get() any {
	return []int(*i)
}

// Set implements flag.Value.
func (i *intFlags) Set(s string) error {
	var vals []int
	for _, part := range strings.Split(s, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return fmt.Errorf("invalid flag value: %v", err)
		}
		if v < 0 {
			return fmt.Errorf("flag value must not be negative: %d", v)
		}
		vals = append(vals, v)
	}
	*i = vals
	return nil
}

// newProcess returns a Process configured by conf that uses the host clocks.
func newProcess(conf *config.Config) *posix.Process {
	return posix.NewProcess(conf.Limits(), ktime.HostClocks())
}
