// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package climtas implements blocked reductions of multi-file
// variables as bigslice computations. Each block of a chunk layout is
// read by exactly one shard, which reduces it locally; partial
// results are then merged by key. No raw data is shuffled.
//
// Mean reduces a whole variable to its mean. Climatology computes a
// blocked resample (the mean over every count consecutive time
// steps) followed by a blocked groupby on day of year (the mean of
// the resampled values sharing a day of year).
package climtas

import (
	"context"
	"fmt"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/bigslice"
	"github.com/grailbio/bigslice/sliceio"
	"github.com/grailbio/readspeed/chunk"
	"github.com/grailbio/readspeed/dataset"
)

// blockState is the per-shard state of a block reader.
type blockState struct {
	reader *dataset.Reader
	done   bool
}

func (s *blockState) read(ctx context.Context, v *dataset.Variable, box chunk.Box) ([]float64, error) {
	if s.reader == nil {
		s.reader = v.NewReader()
	}
	vals := make([]float64, box.Len())
	err := s.reader.Read(ctx, box, vals)
	if cerr := s.reader.Close(); err == nil {
		err = cerr
	}
	return vals, err
}

// Mean computes the mean of variable v, read with layout l. It
// returns a slice of a single row: Slice<int, Moments>, keyed by 0.
// Missing values are skipped.
var Mean = bigslice.Func(func(v dataset.Variable, l chunk.Layout) bigslice.Slice {
	ctx := context.Background()
	slice := bigslice.ReaderFunc(l.NumPartitions(), func(shard int, state *blockState, keys []int, moments []Moments) (int, error) {
		if state.done {
			return 0, sliceio.EOF
		}
		if len(keys) == 0 {
			return 0, nil
		}
		vals, err := state.read(ctx, &v, l.Block(shard))
		if err != nil {
			return 0, err
		}
		state.done = true
		keys[0], moments[0] = 0, Of(vals)
		return 1, sliceio.EOF
	})
	return bigslice.Reduce(slice, func(a, b Moments) Moments { return a.Add(b) })
})

// Geometry describes how a layout's blocks map onto the keys of a
// blocked reduction along the leading (time) dimension.
type Geometry struct {
	// Count is the number of consecutive time steps reduced together.
	Count int
	// Groups is the sorted list of distinct day-of-year values of the
	// resampled steps.
	Groups []int
	// Day holds the day of year of every resampled step.
	Day []int
	// NumSpatial is the number of blocks in the layout's spatial
	// (non-time) grid.
	NumSpatial int
}

// NewGeometry computes the geometry of resampling variable v, read
// with layout l, in steps of count. The layout's leading dimension
// must be time, and its extent must be a multiple of count.
func NewGeometry(v *dataset.Variable, l chunk.Layout, count int) (Geometry, error) {
	if count <= 0 {
		return Geometry{}, errors.E(errors.Invalid, fmt.Sprintf("climtas: resample count %d", count))
	}
	if len(l.Dims) == 0 || l.Dims[0] != dataset.ConcatDim {
		return Geometry{}, errors.E(errors.Invalid, fmt.Sprintf("climtas: leading dimension of %v is not %s", l.Dims, dataset.ConcatDim))
	}
	ntime := l.Shape()[0]
	if ntime%count != 0 {
		return Geometry{}, errors.E(errors.Invalid, fmt.Sprintf("climtas: %s length %d is not a multiple of %d", dataset.ConcatDim, ntime, count))
	}
	times, err := v.Times()
	if err != nil {
		return Geometry{}, err
	}
	g := Geometry{Count: count, Day: make([]int, ntime/count), NumSpatial: 1}
	seen := make(map[int]bool)
	for i := range g.Day {
		doy := times[l.Origin[0]+i*count].YearDay()
		g.Day[i] = doy
		if !seen[doy] {
			seen[doy] = true
			g.Groups = append(g.Groups, doy)
		}
	}
	sort.Ints(g.Groups)
	for _, chunks := range l.Chunks[1:] {
		g.NumSpatial *= len(chunks)
	}
	return g, nil
}

// Group returns the index in Groups of day of year doy, or -1.
func (g Geometry) Group(doy int) int {
	i := sort.SearchInts(g.Groups, doy)
	if i < len(g.Groups) && g.Groups[i] == doy {
		return i
	}
	return -1
}

// SpatialBox returns the spatial (non-time) part of the box of
// spatial block sb.
func SpatialBox(l chunk.Layout, sb int) (start, count []int) {
	// The block with time coordinate 0 and spatial coordinates sb
	// has index sb.
	box := l.Block(sb)
	return box.Start[1:], box.Count[1:]
}

// spatialIndex returns the spatial block index of block coordinates.
func spatialIndex(l chunk.Layout, coords []int) int {
	var sb int
	for d := 1; d < len(coords); d++ {
		sb = sb*len(l.Chunks[d]) + coords[d]
	}
	return sb
}

// resampled is the state of a resampling shard: rows computed from
// the shard's block and not yet returned.
type resampled struct {
	blockState
	keys   []int
	fields []Field
}

// resample returns Slice<int, Field>: per-cell moments of every
// resampled step, keyed by step*NumSpatial + spatial block.
func resample(v dataset.Variable, l chunk.Layout, g Geometry) bigslice.Slice {
	ctx := context.Background()
	return bigslice.ReaderFunc(l.NumPartitions(), func(shard int, state *resampled, keys []int, fields []Field) (int, error) {
		if !state.done {
			box := l.Block(shard)
			vals, err := state.read(ctx, &v, box)
			if err != nil {
				return 0, err
			}
			state.done = true
			ncell := len(vals) / box.Count[0]
			sb := spatialIndex(l, l.Coords(shard))
			// Time index of the block relative to the layout.
			t0 := box.Start[0] - l.Origin[0]
			step := -1
			for t := 0; t < box.Count[0]; t++ {
				if s := (t0 + t) / g.Count; s != step {
					step = s
					state.keys = append(state.keys, step*g.NumSpatial+sb)
					state.fields = append(state.fields, NewField(ncell))
				}
				state.fields[len(state.fields)-1].Observe(vals[t*ncell : (t+1)*ncell])
			}
		}
		n := copy(keys, state.keys)
		copy(fields, state.fields[:n])
		state.keys, state.fields = state.keys[n:], state.fields[n:]
		if len(state.keys) == 0 {
			return n, sliceio.EOF
		}
		return n, nil
	})
}

// Climatology computes the day-of-year climatology of variable v,
// read with layout l: the mean over every count consecutive time
// steps, then the mean of those means by day of year. It returns
// Slice<int, int, []float32> of (group index, spatial block, cell
// means), where the group index is into the Groups of the layout's
// Geometry.
var Climatology = bigslice.Func(func(v dataset.Variable, l chunk.Layout, count int) bigslice.Slice {
	g, err := NewGeometry(&v, l, count)
	if err != nil {
		log.Panicf("climtas.Climatology: %v", err)
	}
	slice := resample(v, l, g)
	slice = bigslice.Reduce(slice, func(a, b Field) Field { return a.Merge(b) })
	slice = bigslice.Map(slice, func(key int, f Field) (int, Field) {
		step, sb := key/g.NumSpatial, key%g.NumSpatial
		return g.Group(g.Day[step])*g.NumSpatial + sb, f.Means()
	})
	slice = bigslice.Reduce(slice, func(a, b Field) Field { return a.Merge(b) })
	return bigslice.Map(slice, func(key int, f Field) (int, int, []float32) {
		return key / g.NumSpatial, key % g.NumSpatial, f.Float32()
	})
})
