// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Readspeed measures how fast a multi-file reanalysis variable can be
// read and reduced under different chunk layouts.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
	"github.com/grailbio/bigslice/sliceflags"
	"github.com/grailbio/readspeed/cluster"
)

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `usage: readspeed [system flags] command args...

Command readspeed times reductions of ERA5 2 m temperature (or any
variable in a set of NetCDF files concatenated along time) under a
range of chunk layouts, and appends the timings to a CSV log.

Available commands are:

	load
		Compute the mean of the variable; log to era5_t2_load.csv.
	climatology
		Compute a daily resample and a day-of-year climatology, and
		write it to $TMPDIR/sample.nc; log to era5_t2_climatology.csv.
	summary log.csv...
		Print throughput quartiles per chunk configuration.

System flags:
`)
		flag.PrintDefaults()
		os.Exit(2)
	}
	var bf sliceflags.Flags
	sliceflags.RegisterFlags(flag.CommandLine, &bf, "")
	log.AddFlags()
	flag.Parse()

	if flag.NArg() == 0 && !bf.SystemHelp {
		flag.Usage()
	}

	cmd, args := flag.Arg(0), flag.Args()
	if len(args) > 0 {
		args = args[1:]
	}
	var err error
	switch cmd {
	default:
		fmt.Fprintf(os.Stderr, "unknown command %s\n", cmd)
		flag.Usage()
	case "summary":
		err = summary(args)
	case "", "load", "climatology":
		sess, info, serr := cluster.Start(bf)
		must.Nil(serr, "starting bigslice session")
		if cmd == "climatology" {
			err = climatology(sess, info, args)
		} else {
			err = load(sess, info, args)
		}
		sess.Shutdown()
	}
	must.Nil(err, cmd)
}
