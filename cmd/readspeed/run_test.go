// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/grailbio/bigslice/exec"
	"github.com/grailbio/readspeed/bench"
	"github.com/grailbio/readspeed/benchlog"
	"github.com/grailbio/readspeed/chunk"
	"github.com/grailbio/readspeed/cluster"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func parse(t *testing.T, name string, args ...string) *runFlags {
	t.Helper()
	flags := flag.NewFlagSet(name, flag.ContinueOnError)
	f := &runFlags{name: name}
	f.register(flags, "synthetic:files=2,time=48", name+".csv")
	assert.NoError(t, flags.Parse(args))
	return f
}

func TestOptions(t *testing.T) {
	ctx := context.Background()
	opts, configs, err := parse(t, "load").options(ctx)
	assert.NoError(t, err)
	expect.EQ(t, configs, bench.Plans["load"].Chunks)
	expect.EQ(t, opts.Var, "t2m")
	expect.EQ(t, opts.Iterations, 0)

	opts, configs, err = parse(t, "climatology", "-chunks", "latitude=2", "-chunks", "longitude=4", "-iterations", "3", "-isel", "time=0:24").options(ctx)
	assert.NoError(t, err)
	expect.EQ(t, configs, []chunk.Config{{{Name: "latitude", Extent: 2}}, {{Name: "longitude", Extent: 4}}})
	expect.EQ(t, opts.Iterations, 3)
	expect.EQ(t, opts.Selection, chunk.Selection{"time": {Start: 0, Stop: 24}})

	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	plan := filepath.Join(dir, "plan.yaml")
	assert.NoError(t, ioutil.WriteFile(plan, []byte("iterations: 2\nchunks: []\n"), 0644))
	_, _, err = parse(t, "load", "-plan", plan).options(ctx)
	if err == nil {
		t.Error("expected error for empty plan")
	}
	_, _, err = parse(t, "load", "-isel", "time").options(ctx)
	if err == nil {
		t.Error("expected error for bad selection")
	}
}

func TestRun(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	sess := exec.Start(exec.Local, exec.Parallelism(2))
	defer sess.Shutdown()
	logfile := filepath.Join(dir, "era5_t2_load.csv")
	info := cluster.Info{Workers: 1, Threads: 2}
	for i := 0; i < 2; i++ {
		f := parse(t, "load", "-chunks", "latitude=1", "-chunks", "longitude=2", "-log", logfile, "-nowarm")
		assert.NoError(t, f.run(sess, info, bench.Mean{}))
	}
	tab, err := benchlog.Load(context.Background(), logfile)
	assert.NoError(t, err)
	expect.EQ(t, tab.Len(), 4)
	expect.EQ(t, tab.Row(0)["threads"], "2")
}
