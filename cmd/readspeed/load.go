// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/grailbio/base/log"
	"github.com/grailbio/bigslice/exec"
	"github.com/grailbio/readspeed/bench"
	"github.com/grailbio/readspeed/cluster"
)

const loadPattern = "/g/data/rt52/era5/single-levels/reanalysis/2t/2001/2t_era5_oper_sfc_*.nc"

func load(sess *exec.Session, info cluster.Info, args []string) error {
	var (
		flags = flag.NewFlagSet("load", flag.ExitOnError)
		f     = runFlags{name: "load"}
	)
	f.register(flags, loadPattern, "era5_t2_load.csv")
	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, `usage: readspeed load [-pattern glob] [-var name] [-chunks dim=n,...]... [-plan file] [-iterations n] [-isel dim=a:b,...] [-log file] [-nowarm]`)
		flags.PrintDefaults()
		os.Exit(2)
	}
	if err := flags.Parse(args); err != nil {
		log.Fatal(err)
	}
	return f.run(sess, info, bench.Mean{})
}
