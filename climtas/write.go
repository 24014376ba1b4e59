// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package climtas

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/ctessum/cdf"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/bigslice/sliceio"
	"github.com/grailbio/readspeed/chunk"
	"github.com/grailbio/readspeed/dataset"
	"golang.org/x/sync/errgroup"
)

// GroupDim is the name of the leading dimension of a climatology.
const GroupDim = "dayofyear"

// DefaultDepth is the default number of blocks buffered between the
// result scanner and the file writer.
const DefaultDepth = 4

type block struct {
	group, sb int
	means     []float32
}

// WriteThrottled streams the output of Climatology, scanned from
// scan, into a NetCDF classic file at path. Variable name is written
// with dimensions (dayofyear, spatial dims of l...). At most depth
// blocks are held in memory between scanning and writing; the scanner
// stalls while the writer catches up. WriteThrottled returns the
// number of blocks written.
func WriteThrottled(ctx context.Context, scan *sliceio.Scanner, path, name string, l chunk.Layout, g Geometry, depth int) (int, error) {
	if depth <= 0 {
		depth = DefaultDepth
	}
	shape := l.Shape()
	dims := append([]string{GroupDim}, l.Dims[1:]...)
	lengths := append([]int{len(g.Groups)}, shape[1:]...)
	h := cdf.NewHeader(dims, lengths)
	h.AddVariable(GroupDim, []string{GroupDim}, []int32{0})
	h.AddAttribute(GroupDim, "long_name", "day of year")
	h.AddVariable(name, dims, []float32{0})
	h.AddAttribute(name, "_FillValue", []float32{float32(math.NaN())})
	h.AddAttribute(name, "cell_methods", fmt.Sprintf("time: mean (interval: %d steps) %s: mean", g.Count, GroupDim))
	h.Define()

	f, err := os.Create(path)
	if err != nil {
		return 0, errors.E(fmt.Sprintf("climtas: create %s", path), err)
	}
	nc, err := cdf.Create(f, h)
	if err != nil {
		f.Close()
		return 0, errors.E(fmt.Sprintf("climtas: write header of %s", path), err)
	}
	groups := make([]int32, len(g.Groups))
	for i, doy := range g.Groups {
		groups[i] = int32(doy)
	}
	if err := writeRun(nc, GroupDim, nil, nil, groups, len(groups)); err != nil {
		f.Close()
		return 0, errors.E(fmt.Sprintf("climtas: write %s to %s", GroupDim, path), err)
	}

	var (
		blocks   = make(chan block, depth)
		nwritten int
	)
	grp, ctx := errgroup.WithContext(ctx)
	grp.Go(func() error {
		defer close(blocks)
		var b block
		for scan.Scan(ctx, &b.group, &b.sb, &b.means) {
			select {
			case blocks <- b:
			case <-ctx.Done():
				return ctx.Err()
			}
			b = block{}
		}
		return scan.Err()
	})
	grp.Go(func() error {
		for b := range blocks {
			start, count := SpatialBox(l, b.sb)
			// Layout coordinates are absolute; the file holds only the
			// selected region.
			begin := append([]int{b.group}, start...)
			for i := range start {
				begin[i+1] -= l.Origin[i+1]
			}
			count = append([]int{1}, count...)
			err := dataset.Runs(lengths, begin, count, func(first, last []int, off, n int) error {
				return writeRun(nc, name, first, last, b.means[off:off+n], n)
			})
			if err != nil {
				return errors.E(fmt.Sprintf("climtas: write block %v of %s", begin, path), err)
			}
			nwritten++
		}
		return nil
	})
	err = grp.Wait()
	if cerr := f.Close(); err == nil && cerr != nil {
		err = errors.E(fmt.Sprintf("climtas: close %s", path), cerr)
	}
	if err != nil {
		return nwritten, err
	}
	log.Debug.Printf("climtas: wrote %d blocks to %s", nwritten, path)
	return nwritten, nil
}

// writeRun writes the n values vals to the contiguous run of variable
// name between begin and the inclusive corner end. Writers report
// io.EOF once they reach end.
func writeRun(nc *cdf.File, name string, begin, end []int, vals interface{}, n int) error {
	m, err := nc.Writer(name, begin, end).Write(vals)
	if err == io.EOF && m == n {
		return nil
	}
	if err != nil {
		return err
	}
	if m != n {
		return errors.E(errors.Invalid, fmt.Sprintf("short write of %s at %v: %d of %d values", name, begin, m, n))
	}
	return nil
}
