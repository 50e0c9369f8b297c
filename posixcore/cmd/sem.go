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
	"sync/atomic"

	"github.com/google/subcommands"
	"golang.org/x/sync/errgroup"
	"gvisor.dev/posixcore/pkg/abi/linux"
	"gvisor.dev/posixcore/pkg/log"
	"gvisor.dev/posixcore/pkg/semaphore"
	"gvisor.dev/posixcore/posixcore/config"
)

// Sem implements subcommands.Command for the "sem" command.
type Sem struct {
	initial   int
	producers int
	consumers int
	posts     int
	name      string
}

// Name implements subcommands.Command.Name.
func (*Sem) Name() string {
	return "sem"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Sem) Synopsis() string {
	return "Run producers and consumers over a semaphore and check conservation."
}

// Usage implements subcommands.Command.Usage.
func (*Sem) Usage() string {
	return `sem [options] - Run producers posting to and consumers waiting on a
semaphore, then verify that no unit was lost or created.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (s *Sem) SetFlags(f *flag.FlagSet) {
	f.IntVar(&s.initial, "initial", 0, "initial semaphore value.")
	f.IntVar(&s.producers, "producers", 4, "number of posting goroutines.")
	f.IntVar(&s.consumers, "consumers", 4, "number of waiting goroutines.")
	f.IntVar(&s.posts, "posts", 1000, "posts per producer.")
	f.StringVar(&s.name, "name", "", "if set, use the named semaphore opened with this name instead of an unnamed one.")
}

// Execute implements subcommands.Command.Execute.
func (s *Sem) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	if s.initial < 0 || s.producers < 0 || s.consumers <= 0 || s.posts < 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	p := newProcess(conf)
	defer p.Close()

	var sem *semaphore.Semaphore
	if s.name != "" {
		var err error
		sem, err = p.SemOpen(s.name, linux.O_CREAT, 0600, uint32(s.initial))
		if err != nil {
			Fatalf("sem_open(%q): %v", s.name, err)
		}
		defer func() {
			if err := p.SemClose(sem); err != nil {
				log.Warningf("sem_close(%q): %v", s.name, err)
			}
			if err := p.SemUnlink(s.name); err != nil {
				log.Warningf("sem_unlink(%q): %v", s.name, err)
			}
		}()
	} else {
		sem = &semaphore.Semaphore{}
		if err := p.SemInit(sem, 0, uint32(s.initial)); err != nil {
			Fatalf("sem_init(%d): %v", s.initial, err)
		}
		defer func() {
			if err := p.SemDestroy(sem); err != nil {
				log.Warningf("sem_destroy: %v", err)
			}
		}()
	}

	total := s.initial + s.producers*s.posts
	var waits, posts atomic.Int64
	g, _ := errgroup.WithContext(ctx)
	for i := 0; i < s.producers; i++ {
		g.Go(func() error {
			for j := 0; j < s.posts; j++ {
				if err := p.SemPost(sem); err != nil {
					return fmt.Errorf("sem_post: %w", err)
				}
				posts.Add(1)
			}
			return nil
		})
	}
	for i := 0; i < s.consumers; i++ {
		n := total / s.consumers
		if i == 0 {
			n += total % s.consumers
		}
		g.Go(func() error {
			for j := 0; j < n; j++ {
				if err := p.SemWait(sem); err != nil {
					return fmt.Errorf("sem_wait: %w", err)
				}
				waits.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		Fatalf("%v", err)
	}

	value, err := p.SemGetvalue(sem)
	if err != nil {
		Fatalf("sem_getvalue: %v", err)
	}
	fmt.Fprintf(os.Stdout, "initial=%d posts=%d waits=%d final=%d\n", s.initial, posts.Load(), waits.Load(), value)
	if waits.Load() > int64(s.initial)+posts.Load() || value != 0 {
		fmt.Fprintf(os.Stdout, "conservation violated\n")
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
