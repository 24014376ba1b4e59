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
	"github.com/grailbio/readspeed/climtas"
	"github.com/grailbio/readspeed/cluster"
)

const climatologyPattern = "/g/data/rt52/era5/single-levels/reanalysis/2t/200*/2t_era5_oper_sfc_*.nc"

func climatology(sess *exec.Session, info cluster.Info, args []string) error {
	var (
		flags    = flag.NewFlagSet("climatology", flag.ExitOnError)
		f        = runFlags{name: "climatology"}
		scratch  = flags.String("scratch", os.TempDir(), "directory to write sample.nc to (default $TMPDIR)")
		resample = flags.Int("resample", 24, "number of time steps averaged before grouping by day of year")
		depth    = flags.Int("depth", climtas.DefaultDepth, "number of blocks buffered by the output writer")
	)
	f.register(flags, climatologyPattern, "era5_t2_climatology.csv")
	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, `usage: readspeed climatology [-pattern glob] [-var name] [-chunks dim=n,...]... [-plan file] [-iterations n] [-isel dim=a:b,...] [-log file] [-nowarm] [-scratch dir] [-resample n] [-depth n]`)
		flags.PrintDefaults()
		os.Exit(2)
	}
	if err := flags.Parse(args); err != nil {
		log.Fatal(err)
	}
	return f.run(sess, info, bench.Climatology{
		Resample: *resample,
		Path:     bench.ScratchPath(*scratch),
		Depth:    *depth,
	})
}
