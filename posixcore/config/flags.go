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

package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
	"gvisor.dev/posixcore/pkg/abi/linux"
	"gvisor.dev/posixcore/pkg/semaphore"
	"gvisor.dev/posixcore/pkg/timer"
)

// RegisterFlags registers flags used to populate Config.
func RegisterFlags(flagSet *flag.FlagSet) {
	flagSet.String("config", "", "path to a TOML (or .yaml) file with default settings. Flags given on the command line override it.")

	// Debugging flags.
	flagSet.String("log", "", "file path where internal debug information is written, default is stderr.")
	flagSet.String("log-format", "text", "log format: text (default), json, or json-k8s.")
	flagSet.Bool("debug", false, "enable debug logging.")

	// Resource limits.
	flagSet.Int("sem-value-max", linux.SEM_VALUE_MAX, "largest value a semaphore can reach.")
	flagSet.Int("max-named-semaphores", semaphore.DefaultMaxNamed, "maximum number of named semaphores.")
	flagSet.Int("max-timers", timer.DefaultMaxTimers, "maximum number of interval timers.")
	flagSet.Int("delaytimer-max", linux.DELAYTIMER_MAX, "cap on the overrun count reported for a timer.")
	flagSet.Int("max-fds", 1024, "maximum number of open file descriptors.")
	flagSet.Int("dispatch-queue-len", 64, "initial capacity of the timer notification queue.")
}

// fieldsByFlag returns the Config fields with a flag tag, by flag name.
func fieldsByFlag(conf *Config) map[string]reflect.Value {
	fields := make(map[string]reflect.Value)
	obj := reflect.ValueOf(conf).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		if name, ok := st.Field(i).Tag.Lookup("flag"); ok {
			fields[name] = obj.Field(i)
		}
	}
	return fields
}

func setFromFlag(field reflect.Value, fl *flag.Flag) {
	getter, ok := fl.Value.(flag.Getter)
	if !ok {
		panic(fmt.Sprintf("Flag %q does not implement flag.Getter", fl.Name))
	}
	field.Set(reflect.ValueOf(getter.Get()))
}

// NewFromFlags creates a new Config with values coming from command line
// flags and, if --config is set, from the TOML file it names.
func NewFromFlags(flagSet *flag.FlagSet) (*Config, error) {
	conf := &Config{}
	fields := fieldsByFlag(conf)
	for name, field := range fields {
		fl := flagSet.Lookup(name)
		if fl == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		setFromFlag(field, fl)
	}

	if conf.ConfigFile != "" {
		if err := loadFile(conf.ConfigFile, conf); err != nil {
			return nil, fmt.Errorf("loading config file %q: %w", conf.ConfigFile, err)
		}
		// Flags given explicitly win over the file.
		flagSet.Visit(func(fl *flag.Flag) {
			if field, ok := fields[fl.Name]; ok {
				setFromFlag(field, fl)
			}
		})
	}

	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// loadFile decodes the configuration file at path into conf. Files ending in
// .yaml or .yml are YAML, anything else is TOML. Unknown keys are an error in
// both formats.
func loadFile(path string, conf *Config) error {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(conf); err != nil && err != io.EOF {
			return err
		}
		return nil
	default:
		md, err := toml.DecodeFile(path, conf)
		if err != nil {
			return err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("unknown keys %v", undecoded)
		}
		return nil
	}
}
