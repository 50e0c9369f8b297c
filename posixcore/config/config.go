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

// Package config provides basic infrastructure to set configuration settings
// for posixcore. Settings come from command line flags and, optionally, from
// a TOML or YAML file named by --config. Flags set explicitly on the command line take
// precedence over the file.
package config

import (
	"fmt"
	"math"
	"reflect"

	"gvisor.dev/posixcore/pkg/abi/linux"
	"gvisor.dev/posixcore/pkg/log"
	"gvisor.dev/posixcore/pkg/posix"
)

// Config holds configuration that is not part of the command arguments of a
// single subcommand.
//
// Follow these steps to add a new flag:
//  1. Create a new field in Config.
//  2. Add a field tag with the flag name and, if it may appear in the
//     configuration file, toml and yaml tags.
//  3. Register a new flag in flags.go, with name and description.
type Config struct {
	// ConfigFile is the path of a TOML or YAML file holding default settings.
	ConfigFile string `flag:"config" toml:"-" yaml:"-"`

	// LogFilename is the filename to log to, if not empty.
	LogFilename string `flag:"log" toml:"log" yaml:"log"`

	// LogFormat is the log format: text, json or json-k8s.
	LogFormat string `flag:"log-format" toml:"log_format" yaml:"log_format"`

	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug" toml:"debug" yaml:"debug"`

	// SemValueMax is the largest value a semaphore can reach.
	SemValueMax int `flag:"sem-value-max" toml:"sem_value_max" yaml:"sem_value_max"`

	// MaxNamedSemaphores bounds the named semaphore table.
	MaxNamedSemaphores int `flag:"max-named-semaphores" toml:"max_named_semaphores" yaml:"max_named_semaphores"`

	// MaxTimers bounds the number of live interval timers.
	MaxTimers int `flag:"max-timers" toml:"max_timers" yaml:"max_timers"`

	// DelayTimerMax caps the reported timer overrun.
	DelayTimerMax int `flag:"delaytimer-max" toml:"delaytimer_max" yaml:"delaytimer_max"`

	// MaxFDs bounds the descriptor table.
	MaxFDs int `flag:"max-fds" toml:"max_fds" yaml:"max_fds"`

	// DispatchQueueLen is the initial capacity of the timer notification
	// queue.
	DispatchQueueLen int `flag:"dispatch-queue-len" toml:"dispatch_queue_len" yaml:"dispatch_queue_len"`
}

func (c *Config) validate() error {
	switch c.LogFormat {
	case "text", "json", "json-k8s":
	default:
		return fmt.Errorf("invalid log format %q, must be 'text', 'json', or 'json-k8s'", c.LogFormat)
	}
	if c.SemValueMax <= 0 || c.SemValueMax > linux.SEM_VALUE_MAX {
		return fmt.Errorf("sem-value-max must be in [1, %d], got %d", linux.SEM_VALUE_MAX, c.SemValueMax)
	}
	for _, lim := range []struct {
		name string
		val  int
		max  int
	}{
		{"max-named-semaphores", c.MaxNamedSemaphores, math.MaxInt32},
		{"max-timers", c.MaxTimers, math.MaxInt32},
		{"delaytimer-max", c.DelayTimerMax, linux.DELAYTIMER_MAX},
		{"max-fds", c.MaxFDs, math.MaxInt32},
		{"dispatch-queue-len", c.DispatchQueueLen, math.MaxInt32},
	} {
		if lim.val <= 0 || lim.val > lim.max {
			return fmt.Errorf("%s must be in [1, %d], got %d", lim.name, lim.max, lim.val)
		}
	}
	return nil
}

// Limits returns the process limits configured by c.
func (c *Config) Limits() posix.Limits {
	return posix.Limits{
		SemValueMax:        uint32(c.SemValueMax),
		MaxNamedSemaphores: c.MaxNamedSemaphores,
		MaxTimers:          c.MaxTimers,
		DelayTimerMax:      int32(c.DelayTimerMax),
		MaxFDs:             int32(c.MaxFDs),
		DispatchQueueLen:   c.DispatchQueueLen,
	}
}

// Log logs important aspects of the configuration to the given log function.
func (c *Config) Log() {
	log.Infof("Config:")
	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := f.Tag.Lookup("flag")
		if !ok {
			continue
		}
		log.Infof("\t%s: %v", name, obj.Field(i).Interface())
	}
}
