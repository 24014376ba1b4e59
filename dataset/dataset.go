// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package dataset implements multi-file gridded variables. A
// Variable is the concatenation, along the time dimension, of the
// same variable stored in a sorted list of files matched by a glob
// pattern. Variables are plain values: they can be shipped to
// bigslice workers, which then open only the files their blocks
// need.
package dataset

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/readspeed/chunk"
)

// ConcatDim is the dimension along which files are concatenated.
const ConcatDim = "time"

// File is a single member file of a Variable.
type File struct {
	Path string
	// Start is the index, along the concatenation dimension, of the
	// file's first element.
	Start int
	// Len is the file's extent along the concatenation dimension.
	Len int
}

// Packing describes how stored values are decoded: a stored value x
// decodes to x*Scale + Offset, unless it equals one of Fill, in
// which case it decodes to NaN.
type Packing struct {
	Scale, Offset float64
	HasScale      bool
	HasOffset     bool
	Fill          []float64
}

func (p Packing) decode(x float64) float64 {
	for _, f := range p.Fill {
		if x == f {
			return math.NaN()
		}
	}
	if p.HasScale {
		x *= p.Scale
	}
	if p.HasOffset {
		x += p.Offset
	}
	return x
}

// Variable is a multi-file variable.
type Variable struct {
	// Name is the variable's name in each file.
	Name string
	// Backend names the backend used to read the files.
	Backend string
	Dims    []string
	Shape   []int
	Type    Type
	Packing Packing
	Files   []File

	// Time holds the raw values of the time coordinate, concatenated
	// across files, and TimeUnits and Calendar their CF encoding.
	Time      []float64
	TimeUnits string
	Calendar  string
}

// Open globs pattern and opens the variable named name in every
// matched file, concatenating them along ConcatDim in lexical path
// order. Files must agree on every other dimension.
func Open(ctx context.Context, pattern, name string) (*Variable, error) {
	backendName, backend := lookup(pattern)
	paths, err := backend.Glob(ctx, pattern)
	if err != nil {
		return nil, errors.E(fmt.Sprintf("dataset: glob %s", pattern), err)
	}
	if len(paths) == 0 {
		return nil, errors.E(errors.NotExist, fmt.Sprintf("dataset: no files match %s", pattern))
	}
	sort.Strings(paths)
	v := &Variable{Name: name, Backend: backendName}
	for i, path := range paths {
		info, err := backend.Stat(ctx, path, name)
		if err != nil {
			return nil, errors.E(fmt.Sprintf("dataset: stat %s in %s", name, path), err)
		}
		if i == 0 {
			v.Dims = info.Dims
			v.Shape = append([]int(nil), info.Shape...)
			v.Type = info.Type
			v.Packing = info.Packing
			v.TimeUnits = info.TimeUnits
			v.Calendar = info.Calendar
			if len(v.Dims) == 0 || v.Dims[0] != ConcatDim {
				if len(paths) > 1 {
					return nil, errors.E(errors.Invalid, fmt.Sprintf("dataset: %s in %s has dimensions %v; cannot concatenate along %s", name, path, v.Dims, ConcatDim))
				}
				v.Files = []File{{Path: path}}
				return v, nil
			}
			v.Shape[0] = 0
		} else if err := v.compatible(path, info); err != nil {
			return nil, err
		}
		v.Files = append(v.Files, File{Path: path, Start: v.Shape[0], Len: info.Shape[0]})
		v.Shape[0] += info.Shape[0]
		v.Time = append(v.Time, info.Time...)
	}
	log.Debug.Printf("dataset: opened %s from %d files: dims %v shape %v", name, len(v.Files), v.Dims, v.Shape)
	return v, nil
}

func (v *Variable) compatible(path string, info Info) error {
	if len(info.Dims) != len(v.Dims) {
		return errors.E(errors.Invalid, fmt.Sprintf("dataset: %s: dimensions %v, expected %v", path, info.Dims, v.Dims))
	}
	for i := range v.Dims {
		if info.Dims[i] != v.Dims[i] {
			return errors.E(errors.Invalid, fmt.Sprintf("dataset: %s: dimensions %v, expected %v", path, info.Dims, v.Dims))
		}
		if i > 0 && info.Shape[i] != v.Shape[i] {
			return errors.E(errors.Invalid, fmt.Sprintf("dataset: %s: %s has length %d, expected %d", path, v.Dims[i], info.Shape[i], v.Shape[i]))
		}
	}
	if info.Type != v.Type {
		return errors.E(errors.Invalid, fmt.Sprintf("dataset: %s: type %s, expected %s", path, info.Type, v.Type))
	}
	if info.TimeUnits != v.TimeUnits {
		return errors.E(errors.Invalid, fmt.Sprintf("dataset: %s: time units %q, expected %q", path, info.TimeUnits, v.TimeUnits))
	}
	return nil
}

// ItemSize returns the width, in bytes, of a decoded element. Packed
// integers decode to floating point the way CF decoders do: to
// float32 when they are at most 16 bits wide and carry no offset, and
// to float64 otherwise.
func (v *Variable) ItemSize() int {
	if !v.Packing.HasScale && !v.Packing.HasOffset {
		return v.Type.Size()
	}
	if v.Type.IsFloat() {
		return v.Type.Size()
	}
	if v.Type.Size() <= 2 && !v.Packing.HasOffset {
		return 4
	}
	return 8
}

// NBytes returns the decoded size of the whole variable.
func (v *Variable) NBytes() int64 {
	n := int64(v.ItemSize())
	for _, s := range v.Shape {
		n *= int64(s)
	}
	return n
}

// Layout returns the layout of the variable under configuration cfg.
func (v *Variable) Layout(cfg chunk.Config) (chunk.Layout, error) {
	var files []int
	if len(v.Dims) > 0 && v.Dims[0] == ConcatDim {
		files = make([]int, len(v.Files))
		for i, f := range v.Files {
			files[i] = f.Len
		}
	}
	return chunk.NewLayout(v.Dims, v.Shape, ConcatDim, files, cfg)
}

// NativeChunks returns the variable's natural partitioning: one
// block per file along the concatenation dimension, unsplit
// elsewhere.
func (v *Variable) NativeChunks() chunk.Config {
	c := make(chunk.Config, len(v.Dims))
	for i, name := range v.Dims {
		c[i] = chunk.Dim{Name: name, Extent: v.Shape[i]}
	}
	if len(v.Files) > 0 && len(c) > 0 && c[0].Name == ConcatDim {
		c[0].Extent = v.Files[0].Len
	}
	return c
}

// Times decodes the variable's time coordinate.
func (v *Variable) Times() ([]time.Time, error) {
	if len(v.Time) == 0 {
		return nil, errors.E(errors.NotExist, fmt.Sprintf("dataset: %s has no time coordinate", v.Name))
	}
	return DecodeTimes(v.Time, v.TimeUnits, v.Calendar)
}

// Read reads the decoded values in box into a new slice, in
// row-major order. It is a convenience for single reads; use
// NewReader to read many blocks.
func (v *Variable) Read(ctx context.Context, box chunk.Box) ([]float64, error) {
	r := v.NewReader()
	defer r.Close()
	dst := make([]float64, box.Len())
	if err := r.Read(ctx, box, dst); err != nil {
		return nil, err
	}
	return dst, nil
}

// NewReader returns a block reader for v. Files are opened lazily and
// kept open until the reader is closed.
func (v *Variable) NewReader() *Reader {
	return &Reader{v: v, open: make(map[string]FileReader)}
}

// Reader reads blocks of a Variable.
type Reader struct {
	v    *Variable
	open map[string]FileReader
}

// Read reads the decoded values in box into dst, which must have
// length box.Len().
func (r *Reader) Read(ctx context.Context, box chunk.Box, dst []float64) error {
	if len(dst) != box.Len() {
		return errors.E(errors.Invalid, fmt.Sprintf("dataset: buffer of length %d for box %s", len(dst), box))
	}
	if len(box.Start) != len(r.v.Dims) {
		return errors.E(errors.Invalid, fmt.Sprintf("dataset: box %s has rank %d, variable has rank %d", box, len(box.Start), len(r.v.Dims)))
	}
	if len(box.Start) == 0 || r.v.Dims[0] != ConcatDim {
		fr, err := r.file(ctx, r.v.Files[0].Path)
		if err != nil {
			return err
		}
		if err := fr.Read(ctx, r.v.Name, box.Start, box.Count, dst); err != nil {
			return err
		}
		r.decode(dst)
		return nil
	}
	// Elements per step along the concatenation dimension.
	stride := 1
	for _, n := range box.Count[1:] {
		stride *= n
	}
	beg, end := box.Start[0], box.Start[0]+box.Count[0]
	for _, f := range r.v.Files {
		lo, hi := f.Start, f.Start+f.Len
		if lo < beg {
			lo = beg
		}
		if hi > end {
			hi = end
		}
		if hi <= lo {
			continue
		}
		fr, err := r.file(ctx, f.Path)
		if err != nil {
			return err
		}
		start := append([]int{lo - f.Start}, box.Start[1:]...)
		count := append([]int{hi - lo}, box.Count[1:]...)
		out := dst[(lo-beg)*stride : (hi-beg)*stride]
		if err := fr.Read(ctx, r.v.Name, start, count, out); err != nil {
			return errors.E(fmt.Sprintf("dataset: read %s%v from %s", r.v.Name, chunk.Box{Start: start, Count: count}, f.Path), err)
		}
	}
	r.decode(dst)
	return nil
}

func (r *Reader) decode(dst []float64) {
	p := r.v.Packing
	if !p.HasScale && !p.HasOffset && len(p.Fill) == 0 {
		return
	}
	for i, x := range dst {
		dst[i] = p.decode(x)
	}
}

func (r *Reader) file(ctx context.Context, path string) (FileReader, error) {
	if fr, ok := r.open[path]; ok {
		return fr, nil
	}
	b, ok := backend(r.v.Backend)
	if !ok {
		return nil, errors.E(errors.NotExist, fmt.Sprintf("dataset: unknown backend %q", r.v.Backend))
	}
	fr, err := b.Open(ctx, path)
	if err != nil {
		return nil, errors.E(fmt.Sprintf("dataset: open %s", path), err)
	}
	r.open[path] = fr
	return fr, nil
}

// Close closes all files opened by the reader.
func (r *Reader) Close() error {
	var err error
	for path, fr := range r.open {
		if e := fr.Close(); e != nil && err == nil {
			err = errors.E(fmt.Sprintf("dataset: close %s", path), e)
		}
		delete(r.open, path)
	}
	return err
}
