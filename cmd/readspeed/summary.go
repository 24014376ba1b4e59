// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/grailbio/base/log"
	"github.com/grailbio/readspeed/benchlog"
)

func summary(args []string) error {
	flags := flag.NewFlagSet("summary", flag.ExitOnError)
	flags.Usage = func() {
		fmt.Fprintln(os.Stderr, `usage: readspeed summary log.csv...`)
		flags.PrintDefaults()
		os.Exit(2)
	}
	if err := flags.Parse(args); err != nil {
		log.Fatal(err)
	}
	if flags.NArg() == 0 {
		flags.Usage()
	}
	ctx := context.Background()
	for _, path := range flags.Args() {
		tab, err := benchlog.Load(ctx, path)
		if err != nil {
			return err
		}
		records, err := tab.Records()
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d tests\n", path, len(records))
		benchlog.Print(os.Stdout, benchlog.Summarize(records))
		fmt.Println()
	}
	return nil
}
