// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package bench times reductions of multi-file variables under
// different chunk layouts. A test opens the variable with one chunk
// configuration, optionally selects an index range, and times a
// Reduction over it. Each test prints a throughput line:
//
//	1.2 GiB/s - 24 GiB loaded in 960 chunks (~ 64 KiB)
package bench

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/bigslice/exec"
	"github.com/grailbio/readspeed/benchlog"
	"github.com/grailbio/readspeed/chunk"
	"github.com/grailbio/readspeed/climtas"
	"github.com/grailbio/readspeed/cluster"
	"github.com/grailbio/readspeed/dataset"
)

// Reduction is a computation timed by a test.
type Reduction interface {
	// Name names the reduction in logs.
	Name() string
	// Run reduces variable v, read with layout l, to completion.
	Run(ctx context.Context, sess *exec.Session, v *dataset.Variable, l chunk.Layout) error
}

// Mean is the Reduction that computes a variable's mean.
type Mean struct{}

// Name implements Reduction.
func (Mean) Name() string { return "mean" }

// Run implements Reduction.
func (Mean) Run(ctx context.Context, sess *exec.Session, v *dataset.Variable, l chunk.Layout) error {
	res, err := sess.Run(ctx, climtas.Mean, *v, l)
	if err != nil {
		return err
	}
	scan := res.Scanner()
	defer scan.Close()
	var (
		key int
		m   climtas.Moments
	)
	for scan.Scan(ctx, &key, &m) {
		log.Debug.Printf("bench: mean of %s is %g over %d values", v.Name, m.Mean(), m.Count)
	}
	return scan.Err()
}

// Climatology is the Reduction that computes a day-of-year
// climatology and writes it to a NetCDF file with a throttled writer.
type Climatology struct {
	// Resample is the number of time steps averaged before grouping
	// by day of year.
	Resample int
	// Path is the output file.
	Path string
	// Depth bounds the number of blocks buffered by the writer.
	Depth int
}

// Name implements Reduction.
func (c Climatology) Name() string { return "climatology" }

// Run implements Reduction.
func (c Climatology) Run(ctx context.Context, sess *exec.Session, v *dataset.Variable, l chunk.Layout) error {
	g, err := climtas.NewGeometry(v, l, c.Resample)
	if err != nil {
		return err
	}
	res, err := sess.Run(ctx, climtas.Climatology, *v, l, c.Resample)
	if err != nil {
		return err
	}
	scan := res.Scanner()
	defer scan.Close()
	n, err := climtas.WriteThrottled(ctx, scan, c.Path, v.Name, l, g, c.Depth)
	if err != nil {
		return err
	}
	log.Debug.Printf("bench: wrote %d climatology blocks of %s to %s", n, v.Name, c.Path)
	return nil
}

// Test is a single benchmark test.
type Test struct {
	Pattern, Var string
	Chunks       chunk.Config
	// Selection, if non-empty, restricts the test to a region of the
	// variable.
	Selection chunk.Selection
	Reduction Reduction
	// Out receives the test's throughput line. Defaults to
	// ioutil.Discard.
	Out io.Writer
}

// Load runs test t. The variable is opened before timing starts; the
// returned record's duration covers only the reduction. The record's
// cluster fields are left empty.
func Load(ctx context.Context, sess *exec.Session, t Test) (benchlog.Record, error) {
	v, err := dataset.Open(ctx, t.Pattern, t.Var)
	if err != nil {
		return benchlog.Record{}, err
	}
	l, err := v.Layout(t.Chunks)
	if err != nil {
		return benchlog.Record{}, err
	}
	if len(t.Selection) > 0 {
		if l, err = l.Select(t.Selection); err != nil {
			return benchlog.Record{}, err
		}
	}
	start := time.Now()
	if err := t.Reduction.Run(ctx, sess, v, l); err != nil {
		return benchlog.Record{}, errors.E(fmt.Sprintf("bench: %s with chunks %s", t.Reduction.Name(), t.Chunks), err)
	}
	duration := time.Since(start)

	itemSize := v.ItemSize()
	r := benchlog.Record{
		Duration:  duration.Seconds(),
		DataSize:  l.Size() * int64(itemSize),
		ChunkSize: l.ChunkBytes(itemSize),
		Chunks:    t.Chunks,
	}
	out := t.Out
	if out == nil {
		out = ioutil.Discard
	}
	fmt.Fprintln(out, Throughput(r, l.NumPartitions()))
	return r, nil
}

// Throughput formats the throughput line of a test that read r's data
// in nchunks chunks.
func Throughput(r benchlog.Record, nchunks int) string {
	return fmt.Sprintf("%s/s - %s loaded in %d chunks (~ %s)",
		humanize.IBytes(uint64(r.Throughput())),
		humanize.IBytes(uint64(r.DataSize)),
		nchunks,
		humanize.IBytes(uint64(r.ChunkSize)))
}

// Options configures a sequence of tests.
type Options struct {
	Pattern, Var string
	Selection    chunk.Selection
	Reduction    Reduction
	// Iterations is the number of times each chunk configuration is
	// tested.
	Iterations int
	// Cluster is stamped on every record.
	Cluster cluster.Info
	Out     io.Writer
}

func (o Options) test(cfg chunk.Config) Test {
	return Test{
		Pattern:   o.Pattern,
		Var:       o.Var,
		Chunks:    cfg,
		Selection: o.Selection,
		Reduction: o.Reduction,
		Out:       o.Out,
	}
}

// LoadChunks prints the variable's native chunks, then tests every
// configuration in configs, opts.Iterations times. It returns the
// records sorted by duration.
func LoadChunks(ctx context.Context, sess *exec.Session, opts Options, configs []chunk.Config) ([]benchlog.Record, error) {
	v, err := dataset.Open(ctx, opts.Pattern, opts.Var)
	if err != nil {
		return nil, err
	}
	out := opts.Out
	if out == nil {
		out = ioutil.Discard
	}
	fmt.Fprintf(out, "Native chunks - %s\n", v.NativeChunks())

	iterations := opts.Iterations
	if iterations < 1 {
		iterations = 1
	}
	var records []benchlog.Record
	for n := 0; n < iterations; n++ {
		for _, cfg := range configs {
			r, err := Load(ctx, sess, opts.test(cfg))
			if err != nil {
				return records, err
			}
			r.Workers, r.Threads = opts.Cluster.Workers, opts.Cluster.Threads
			records = append(records, r)
		}
	}
	benchlog.Sort(records)
	return records, nil
}

// WarmChunks is the chunk configuration used to warm caches.
var WarmChunks = chunk.Config{{Name: "latitude", Extent: 91}, {Name: "longitude", Extent: 180}}

// Warm reads the whole variable once by computing its mean, so that
// timed tests see warm filesystem caches. The read is not recorded.
func Warm(ctx context.Context, sess *exec.Session, pattern, name string, out io.Writer) error {
	v, err := dataset.Open(ctx, pattern, name)
	if err != nil {
		return err
	}
	cfg := WarmChunks
	if _, err := v.Layout(cfg); err != nil {
		// Variables without latitude and longitude warm with their
		// native chunks.
		cfg = nil
	}
	log.Printf("bench: warming %s with chunks %s", pattern, cfg)
	_, err = Load(ctx, sess, Test{Pattern: pattern, Var: name, Chunks: cfg, Reduction: Mean{}, Out: out})
	return err
}

// ScratchPath returns the path of the climatology output in
// directory dir.
func ScratchPath(dir string) string {
	return filepath.Join(dir, "sample.nc")
}
