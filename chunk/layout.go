// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package chunk

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
)

// A Layout is a grid of blocks covering an array (or a rectangular
// selection of it). Chunks[d] lists the extents of the blocks along
// dimension d, in order; Origin[d] is the index, in the underlying
// array, of the layout's first element along d.
type Layout struct {
	Dims   []string
	Origin []int
	Chunks [][]int
}

// NewLayout computes the layout of an array with the provided
// dimensions and shape under configuration cfg. The array is the
// concatenation of a number of files along dimension concat; files
// gives the extent of each file along that dimension, and blocks
// never straddle two files. If concat is empty or not among dims,
// files is ignored.
//
// Dimensions not mentioned in cfg are not split, except at file
// boundaries.
func NewLayout(dims []string, shape []int, concat string, files []int, cfg Config) (Layout, error) {
	if len(dims) != len(shape) {
		return Layout{}, errors.E(errors.Invalid, fmt.Sprintf("chunk: %d dimensions but shape has rank %d", len(dims), len(shape)))
	}
	if err := cfg.Validate(); err != nil {
		return Layout{}, err
	}
	for _, d := range cfg {
		if index(dims, d.Name) < 0 {
			return Layout{}, errors.E(errors.Invalid, fmt.Sprintf("chunk: dimension %s not in %v", d.Name, dims))
		}
	}
	l := Layout{
		Dims:   append([]string(nil), dims...),
		Origin: make([]int, len(dims)),
		Chunks: make([][]int, len(dims)),
	}
	for i, name := range dims {
		extent, ok := cfg.Get(name)
		if name != concat || len(files) == 0 {
			if !ok {
				extent = shape[i]
			}
			l.Chunks[i] = split(shape[i], extent)
			continue
		}
		var total int
		for _, n := range files {
			e := extent
			if !ok {
				e = n
			}
			l.Chunks[i] = append(l.Chunks[i], split(n, e)...)
			total += n
		}
		if total != shape[i] {
			return Layout{}, errors.E(errors.Invalid, fmt.Sprintf("chunk: files span %d along %s, shape is %d", total, name, shape[i]))
		}
	}
	return l, nil
}

func split(n, extent int) []int {
	if n == 0 {
		return nil
	}
	if extent <= 0 || extent > n {
		extent = n
	}
	chunks := make([]int, 0, (n+extent-1)/extent)
	for ; n > extent; n -= extent {
		chunks = append(chunks, extent)
	}
	return append(chunks, n)
}

func index(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

// Shape returns the extent of the layout along each dimension.
func (l Layout) Shape() []int {
	shape := make([]int, len(l.Chunks))
	for i, chunks := range l.Chunks {
		for _, n := range chunks {
			shape[i] += n
		}
	}
	return shape
}

// Size returns the number of elements covered by the layout.
func (l Layout) Size() int64 {
	size := int64(1)
	for _, n := range l.Shape() {
		size *= int64(n)
	}
	return size
}

// NumPartitions returns the number of blocks in the layout.
func (l Layout) NumPartitions() int {
	n := 1
	for _, chunks := range l.Chunks {
		n *= len(chunks)
	}
	return n
}

// Extents returns the extent of the first block along every
// dimension.
func (l Layout) Extents() Config {
	c := make(Config, len(l.Dims))
	for i, name := range l.Dims {
		c[i] = Dim{Name: name}
		if len(l.Chunks[i]) > 0 {
			c[i].Extent = l.Chunks[i][0]
		}
	}
	return c
}

// ChunkBytes returns the size, in bytes, of the layout's first block
// when each element occupies itemSize bytes.
func (l Layout) ChunkBytes(itemSize int) int64 {
	size := int64(itemSize)
	for _, d := range l.Extents() {
		size *= int64(d.Extent)
	}
	return size
}

// Dim returns the index of the named dimension, or -1.
func (l Layout) Dim(name string) int {
	return index(l.Dims, name)
}

// A Box is a rectangular region of an array: Count[d] elements
// starting at Start[d] along each dimension d.
type Box struct {
	Start []int
	Count []int
}

// Len returns the number of elements in the box.
func (b Box) Len() int {
	n := 1
	for _, c := range b.Count {
		n *= c
	}
	return n
}

// String returns a compact representation of b, e.g. "[0:24,0:91,0:180]".
func (b Box) String() string {
	parts := make([]string, len(b.Start))
	for i := range b.Start {
		parts[i] = strconv.Itoa(b.Start[i]) + ":" + strconv.Itoa(b.Start[i]+b.Count[i])
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Block returns the i'th block of the layout, numbered in row-major
// order over the block grid. Box coordinates are absolute: they
// include the layout's origin.
func (l Layout) Block(i int) Box {
	coords := l.Coords(i)
	box := Box{Start: make([]int, len(l.Dims)), Count: make([]int, len(l.Dims))}
	for d, c := range coords {
		box.Start[d] = l.Origin[d]
		for _, n := range l.Chunks[d][:c] {
			box.Start[d] += n
		}
		box.Count[d] = l.Chunks[d][c]
	}
	return box
}

// Coords returns the grid coordinates of block i.
func (l Layout) Coords(i int) []int {
	coords := make([]int, len(l.Dims))
	for d := len(l.Dims) - 1; d >= 0; d-- {
		n := len(l.Chunks[d])
		coords[d] = i % n
		i /= n
	}
	return coords
}

// A Range is a half-open interval of indices [Start, Stop).
type Range struct {
	Start, Stop int
}

// Selection maps dimension names to index ranges. It is the
// equivalent of an integer-position selection ("isel").
type Selection map[string]Range

// ParseSelection parses selections of the form
//
//	time=0:744,latitude=0:360
func ParseSelection(s string) (Selection, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	sel := make(Selection)
	for _, part := range strings.Split(s, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("chunk: %q is not in dim=start:stop format", part))
		}
		bounds := strings.SplitN(kv[1], ":", 2)
		if len(bounds) != 2 {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("chunk: %q is not in dim=start:stop format", part))
		}
		var (
			r   Range
			err error
		)
		if r.Start, err = strconv.Atoi(bounds[0]); err != nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("chunk: start of %s", kv[0]), err)
		}
		if r.Stop, err = strconv.Atoi(bounds[1]); err != nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("chunk: stop of %s", kv[0]), err)
		}
		sel[kv[0]] = r
	}
	return sel, nil
}

// String returns the selection in the format accepted by
// ParseSelection, with dimensions sorted by name.
func (s Selection) String() string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	for i, name := range names {
		names[i] = fmt.Sprintf("%s=%d:%d", name, s[name].Start, s[name].Stop)
	}
	return strings.Join(names, ",")
}

// Select returns the layout restricted to sel. Ranges are relative to
// the layout (not the underlying array). Blocks are clipped to the
// selection; blocks falling entirely outside of it are dropped.
func (l Layout) Select(sel Selection) (Layout, error) {
	out := Layout{
		Dims:   l.Dims,
		Origin: append([]int(nil), l.Origin...),
		Chunks: append([][]int(nil), l.Chunks...),
	}
	shape := l.Shape()
	for name, r := range sel {
		d := l.Dim(name)
		if d < 0 {
			return Layout{}, errors.E(errors.Invalid, fmt.Sprintf("chunk: selected dimension %s not in %v", name, l.Dims))
		}
		if r.Start < 0 || r.Stop > shape[d] || r.Start >= r.Stop {
			return Layout{}, errors.E(errors.Invalid, fmt.Sprintf("chunk: selection %d:%d out of range for %s of length %d", r.Start, r.Stop, name, shape[d]))
		}
		var (
			chunks []int
			beg    int
		)
		for _, n := range l.Chunks[d] {
			end := beg + n
			lo, hi := max(beg, r.Start), min(end, r.Stop)
			if hi > lo {
				chunks = append(chunks, hi-lo)
			}
			beg = end
		}
		out.Chunks[d] = chunks
		out.Origin[d] += r.Start
	}
	return out, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
