// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package cluster

import (
	"flag"
	"os"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/bigslice/sliceflags"
	"github.com/grailbio/testutil/expect"
)

func TestPBS(t *testing.T) {
	old, ok := os.LookupEnv(NCPUsEnv)
	defer func() {
		if ok {
			os.Setenv(NCPUsEnv, old)
		} else {
			os.Unsetenv(NCPUsEnv)
		}
	}()
	os.Setenv(NCPUsEnv, "48")

	p := new(PBS)
	expect.EQ(t, p.DefaultParallelism(), 48)
	expect.EQ(t, p.Topology(48), Info{Workers: 48, Threads: 1})

	expect.NoError(t, p.Set("threads=12"))
	expect.EQ(t, p.Topology(48), Info{Workers: 4, Threads: 12})
	expect.EQ(t, p.Topology(50), Info{Workers: 5, Threads: 12})
	expect.EQ(t, p.Topology(6), Info{Workers: 1, Threads: 6})

	expect.NoError(t, p.Set("ncpus=8"))
	expect.EQ(t, p.NCPUs(), 8)

	os.Setenv(NCPUsEnv, "lots")
	expect.EQ(t, new(PBS).NCPUs() > 0, true)
}

func TestPBSOptions(t *testing.T) {
	p := new(PBS)
	for _, c := range []struct {
		opt  string
		kind errors.Kind
	}{
		{"threads", errors.Invalid},
		{"threads=0", errors.Invalid},
		{"threads=x", errors.Invalid},
		{"memory=4", errors.NotSupported},
	} {
		err := p.Set(c.opt)
		if !errors.Is(c.kind, err) {
			t.Errorf("%s: got %v, want kind %v", c.opt, err, c.kind)
		}
	}
}

func TestDescribe(t *testing.T) {
	var bf sliceflags.Flags
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	sliceflags.RegisterFlags(fs, &bf, "")
	expect.EQ(t, Describe(bf.System.Provider, 8), Info{Workers: 1, Threads: 8})

	expect.NoError(t, fs.Parse([]string{"-system=gadi:ncpus=4"}))
	expect.EQ(t, bf.System.Provider.Name(), "pbs")
	expect.EQ(t, bf.System.Provider.DefaultParallelism(), 4)
	expect.EQ(t, Describe(bf.System.Provider, 4), Info{Workers: 4, Threads: 1})

	expect.NoError(t, fs.Parse([]string{"-system=local"}))
	expect.EQ(t, Describe(bf.System.Provider, 3), Info{Workers: 3, Threads: 1})
	expect.EQ(t, Describe(nil, 0), Info{Workers: 1, Threads: 1})
	expect.EQ(t, Info{Workers: 2, Threads: 3}.String(), "2 workers x 3 threads")
}
