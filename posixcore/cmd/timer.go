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

package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"gvisor.dev/posixcore/pkg/abi/linux"
	"gvisor.dev/posixcore/pkg/log"
	"gvisor.dev/posixcore/pkg/timer"
	"gvisor.dev/posixcore/posixcore/config"
)

// Timer implements subcommands.Command for the "timer" command.
type Timer struct {
	value    time.Duration
	interval time.Duration
	count    int
	clock    string
}

// Name implements subcommands.Command.Name.
func (*Timer) Name() string {
	return "timer"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Timer) Synopsis() string {
	return "Arm an interval timer and print its expirations."
}

// Usage implements subcommands.Command.Usage.
func (*Timer) Usage() string {
	return `timer [options] - Arm an interval timer with a callback notification and
print each expiration with its overrun count.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (t *Timer) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&t.value, "value", 100*time.Millisecond, "time until the first expiration.")
	f.DurationVar(&t.interval, "interval", 100*time.Millisecond, "period of the timer; 0 makes it one-shot.")
	f.IntVar(&t.count, "count", 5, "number of notifications to wait for.")
	f.StringVar(&t.clock, "clock", "monotonic", "clock to use: monotonic or realtime.")
}

// Execute implements subcommands.Command.Execute.
func (t *Timer) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 || t.value <= 0 || t.interval < 0 || t.count <= 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	if t.interval == 0 && t.count > 1 {
		Fatalf("a one-shot timer produces a single notification; use --count=1")
	}
	var clockID int32
	switch t.clock {
	case "monotonic":
		clockID = linux.CLOCK_MONOTONIC
	case "realtime":
		clockID = linux.CLOCK_REALTIME
	default:
		Fatalf("unknown clock %q", t.clock)
	}

	conf := args[0].(*config.Config)
	p := newProcess(conf)
	defer p.Close()

	exps := make(chan timer.Expiration, t.count)
	id, err := p.TimerCreate(clockID, &linux.Sigevent{Notify: linux.SIGEV_THREAD}, func(exp timer.Expiration) {
		select {
		case exps <- exp:
		default:
			log.Debugf("Dropping expiration %+v after --count was reached", exp)
		}
	})
	if err != nil {
		Fatalf("timer_create: %v", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.Run(gctx) })

	its := linux.Itimerspec{
		Value:    linux.DurationToTimespec(t.value),
		Interval: linux.DurationToTimespec(t.interval),
	}
	if err := p.TimerSettime(id, 0, &its, nil); err != nil {
		Fatalf("timer_settime: %v", err)
	}
	start := time.Now()
	for i := 0; i < t.count; i++ {
		exp := <-exps
		fmt.Fprintf(os.Stdout, "expiration %d: +%v count=%d overrun=%d\n", i+1, time.Since(start).Round(time.Millisecond), exp.Count, exp.Overrun)
	}

	if err := p.TimerDelete(id); err != nil {
		Fatalf("timer_delete: %v", err)
	}
	cancel()
	if err := g.Wait(); err != nil {
		Fatalf("%v", err)
	}
	return subcommands.ExitSuccess
}
