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
	"os"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/subcommands"
	"golang.org/x/sys/unix"
	"gvisor.dev/posixcore/pkg/abi/linux"
	"gvisor.dev/posixcore/pkg/errors/linuxerr"
	"gvisor.dev/posixcore/pkg/fd"
	"gvisor.dev/posixcore/pkg/log"
	"gvisor.dev/posixcore/pkg/posix"
	"gvisor.dev/posixcore/pkg/uio"
	"gvisor.dev/posixcore/posixcore/config"
)

// Cat implements subcommands.Command for the "cat" command.
type Cat struct {
	iov        intFlags
	maxRetries uint64
}

// Name implements subcommands.Command.Name.
func (*Cat) Name() string {
	return "cat"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Cat) Synopsis() string {
	return "Copy files to stdout with readv and writev."
}

// Usage implements subcommands.Command.Usage.
func (*Cat) Usage() string {
	return `cat [options] <file>... - Copy files to stdout, reading each chunk with
readv into buffers of the sizes given by --iov and writing it with writev.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (c *Cat) SetFlags(f *flag.FlagSet) {
	c.iov = intFlags{4096}
	f.Var(&c.iov, "iov", "comma-separated buffer sizes of each vectored call, e.g. 4,0,6.")
	f.Uint64Var(&c.maxRetries, "max-retries", 10, "retries of a call that would block or was interrupted.")
}

// Execute implements subcommands.Command.Execute.
func (c *Cat) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)
	p := newProcess(conf)
	defer p.Close()

	stdout, err := fd.NewFromFile(os.Stdout)
	if err != nil {
		Fatalf("dup stdout: %v", err)
	}
	out, err := p.InstallFile(stdout, linux.O_WRONLY)
	if err != nil {
		Fatalf("installing stdout: %v", err)
	}

	for _, name := range f.Args() {
		file, err := fd.Open(name, unix.O_RDONLY, 0)
		if err != nil {
			Fatalf("open %q: %v", name, err)
		}
		in, err := p.InstallFile(file, linux.O_RDONLY)
		if err != nil {
			file.Close()
			Fatalf("installing %q: %v", name, err)
		}
		if err := c.copy(ctx, p, in, out); err != nil {
			Fatalf("cat %q: %v", name, err)
		}
		if err := p.CloseFD(in); err != nil {
			log.Warningf("close %q: %v", name, err)
		}
	}
	return subcommands.ExitSuccess
}

// copy copies in to out until end of file.
func (c *Cat) copy(ctx context.Context, p *posix.Process, in, out int32) error {
	bufs := make([][]byte, len(c.iov))
	for i, size := range c.iov {
		bufs[i] = make([]byte, size)
	}
	if total, err := uio.TotalLen(bufs); err != nil {
		return err
	} else if total == 0 {
		return linuxerr.EINVAL
	}

	for {
		var n int64
		if err := c.retry(ctx, func() (err error) {
			n, err = p.Readv(in, bufs)
			return err
		}); err != nil {
			return err
		}
		if n == 0 {
			return nil
		}

		pending := truncate(bufs, n)
		for len(pending) > 0 {
			var w int64
			if err := c.retry(ctx, func() (err error) {
				w, err = p.Writev(out, pending)
				return err
			}); err != nil {
				return err
			}
			pending = uio.DropFirst(pending, w)
		}
	}
}

// retry calls op until it succeeds, fails with an error other than
// ErrWouldBlock or ErrInterrupted, or runs out of retries. The core never
// retries on its own.
func (c *Cat) retry(ctx context.Context, op func() error) error {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = time.Millisecond
	eb.MaxInterval = 100 * time.Millisecond
	b := backoff.WithContext(backoff.WithMaxRetries(eb, c.maxRetries), ctx)
	return backoff.RetryNotify(func() error {
		err := op()
		if err == nil || err == linuxerr.ErrWouldBlock || err == linuxerr.ErrInterrupted {
			return err
		}
		return backoff.Permanent(err)
	}, b, func(err error, d time.Duration) {
		log.Debugf("Retrying in %v after %v", d, err)
	})
}

// truncate returns the prefix of bufs holding the first n bytes.
func truncate(bufs [][]byte, n int64) [][]byte {
	var out [][]byte
	for _, b := range bufs {
		if n == 0 {
			break
		}
		if int64(len(b)) > n {
			b = b[:n]
		}
		out = append(out, b)
		n -= int64(len(b))
	}
	return out
}
