// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/bigslice/exec"
	"github.com/grailbio/readspeed/bench"
	"github.com/grailbio/readspeed/benchlog"
	"github.com/grailbio/readspeed/chunk"
	"github.com/grailbio/readspeed/cluster"
)

// runFlags are the flags shared by the benchmark commands.
type runFlags struct {
	name       string
	pattern    string
	variable   string
	chunks     chunk.List
	plan       string
	iterations int
	isel       string
	log        string
	nowarm     bool
}

func (f *runFlags) register(flags *flag.FlagSet, pattern, logfile string) {
	flags.StringVar(&f.pattern, "pattern", pattern, "glob of the input files, or a synthetic: dataset")
	flags.StringVar(&f.variable, "var", "t2m", "variable to read")
	flags.Var(&f.chunks, "chunks", "chunk configuration dim=extent,...; may be repeated; overrides the plan")
	flags.StringVar(&f.plan, "plan", "", "YAML plan of chunk configurations; defaults to the built-in "+f.name+" plan")
	flags.IntVar(&f.iterations, "iterations", 0, "number of times to test each configuration; overrides the plan (default 1)")
	flags.StringVar(&f.isel, "isel", "", "index range to select, as dim=start:stop,...")
	flags.StringVar(&f.log, "log", logfile, "CSV log to append timings to")
	flags.BoolVar(&f.nowarm, "nowarm", false, "do not warm caches before testing")
}

// options resolves the flags and the plan into test options and the
// list of chunk configurations to test.
func (f *runFlags) options(ctx context.Context) (bench.Options, []chunk.Config, error) {
	plan := bench.Plans[f.name]
	if f.plan != "" {
		var err error
		if plan, err = bench.ReadPlan(ctx, f.plan); err != nil {
			return bench.Options{}, nil, err
		}
	}
	opts := bench.Options{
		Pattern:    f.pattern,
		Var:        f.variable,
		Selection:  plan.Selection,
		Iterations: plan.Iterations,
		Out:        os.Stdout,
	}
	if f.iterations > 0 {
		opts.Iterations = f.iterations
	}
	if f.isel != "" {
		var err error
		if opts.Selection, err = chunk.ParseSelection(f.isel); err != nil {
			return bench.Options{}, nil, err
		}
	}
	configs := plan.Chunks
	if len(f.chunks) > 0 {
		configs = f.chunks
	}
	if len(configs) == 0 {
		return bench.Options{}, nil, errors.E(errors.Invalid, fmt.Sprintf("%s: no chunk configurations to test", f.name))
	}
	return opts, configs, nil
}

// run warms the cache, runs the tests with reduction r, and appends
// the results to the log.
func (f *runFlags) run(sess *exec.Session, info cluster.Info, r bench.Reduction) error {
	ctx := context.Background()
	opts, configs, err := f.options(ctx)
	if err != nil {
		return err
	}
	opts.Reduction = r
	opts.Cluster = info
	if !f.nowarm {
		if err := bench.Warm(ctx, sess, opts.Pattern, opts.Var, opts.Out); err != nil {
			return err
		}
	}
	records, err := bench.LoadChunks(ctx, sess, opts, configs)
	if err != nil {
		return err
	}
	tab, err := benchlog.Load(ctx, f.log)
	if err != nil {
		return err
	}
	prev := tab.Len()
	tab.Append(records)
	if err := tab.Save(ctx, f.log); err != nil {
		return err
	}
	log.Printf("%s: appended %d rows to %s (%d rows)", f.name, tab.Len()-prev, f.log, tab.Len())
	return nil
}
