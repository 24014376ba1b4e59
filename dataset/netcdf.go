// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dataset

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/ctessum/cdf"
	"github.com/grailbio/base/errors"
)

func init() {
	RegisterBackend(DefaultBackend, netcdfBackend{})
}

// netcdfBackend reads NetCDF classic files from a (shared) local
// filesystem.
type netcdfBackend struct{}

func (netcdfBackend) Glob(_ context.Context, pattern string) ([]string, error) {
	return filepath.Glob(pattern)
}

func (netcdfBackend) Stat(ctx context.Context, path, name string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()
	nc, err := cdf.Open(f)
	if err != nil {
		return Info{}, err
	}
	h := nc.Header
	dims := h.Dimensions(name)
	if dims == nil {
		return Info{}, errors.E(errors.NotExist, fmt.Sprintf("variable %s", name))
	}
	info := Info{
		Dims:  dims,
		Shape: append([]int(nil), h.Lengths(name)...),
	}
	if info.Type, err = cdfType(nc.Reader(name, nil, nil).Zero(1)); err != nil {
		return Info{}, errors.E(fmt.Sprintf("variable %s", name), err)
	}
	if xs, ok := floats(h.GetAttribute(name, "scale_factor")); ok && len(xs) > 0 {
		info.Packing.Scale, info.Packing.HasScale = xs[0], true
	}
	if xs, ok := floats(h.GetAttribute(name, "add_offset")); ok && len(xs) > 0 {
		info.Packing.Offset, info.Packing.HasOffset = xs[0], true
	}
	for _, attr := range []string{"_FillValue", "missing_value"} {
		if xs, ok := floats(h.GetAttribute(name, attr)); ok {
			info.Packing.Fill = append(info.Packing.Fill, xs...)
		}
	}
	if len(dims) > 0 && dims[0] == ConcatDim {
		if info.Time, err = readAll(nc, ConcatDim); err != nil {
			return Info{}, errors.E(fmt.Sprintf("coordinate %s", ConcatDim), err)
		}
		// Record dimensions report zero length in the header.
		info.Shape[0] = len(info.Time)
		info.TimeUnits, _ = h.GetAttribute(ConcatDim, "units").(string)
		info.Calendar, _ = h.GetAttribute(ConcatDim, "calendar").(string)
	}
	return info, nil
}

func (netcdfBackend) Open(_ context.Context, path string) (FileReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	nc, err := cdf.Open(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &netcdfFile{f: f, nc: nc}, nil
}

type netcdfFile struct {
	f  *os.File
	nc *cdf.File
}

func (n *netcdfFile) Read(ctx context.Context, name string, start, count []int, dst []float64) error {
	shape := n.nc.Header.Lengths(name)
	if shape == nil {
		return errors.E(errors.NotExist, fmt.Sprintf("variable %s", name))
	}
	return Runs(shape, start, count, func(begin, end []int, off, m int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return readRun(n.nc, name, begin, end, dst[off:off+m])
	})
}

func (n *netcdfFile) Close() error {
	return n.f.Close()
}

// readRun reads the contiguous values of variable name between
// begin and the inclusive corner end into dst. Nil corners read from
// the start of the variable.
func readRun(nc *cdf.File, name string, begin, end []int, dst []float64) error {
	r := nc.Reader(name, begin, end)
	var off int
	for off < len(dst) {
		buf := r.Zero(len(dst) - off)
		m, err := r.Read(buf)
		if m > 0 {
			if _, cerr := convert(dst[off:off+m], buf); cerr != nil {
				return cerr
			}
			off += m
		}
		if off == len(dst) {
			break
		}
		if err != nil && err != io.EOF {
			return errors.E(fmt.Sprintf("read %s at %v", name, begin), err)
		}
		if err == io.EOF || m == 0 {
			return errors.E(errors.Invalid, fmt.Sprintf("short read of %s at %v: %d of %d values", name, begin, off, len(dst)))
		}
	}
	return nil
}

// readAll reads a whole (one-dimensional) variable.
func readAll(nc *cdf.File, name string) ([]float64, error) {
	lengths := nc.Header.Lengths(name)
	if lengths == nil {
		return nil, errors.E(errors.NotExist, fmt.Sprintf("variable %s", name))
	}
	n := 1
	for _, l := range lengths {
		n *= l
	}
	if n > 0 {
		out := make([]float64, n)
		if err := readRun(nc, name, nil, nil, out); err != nil {
			return nil, err
		}
		return out, nil
	}
	// Record variables report zero length in the header; read them a
	// value at a time up to the last record.
	var (
		out []float64
		r   = nc.Reader(name, nil, nil)
		val = make([]float64, 1)
	)
	for {
		buf := r.Zero(1)
		m, err := r.Read(buf)
		if m == 1 {
			if _, cerr := convert(val, buf); cerr != nil {
				return nil, cerr
			}
			out = append(out, val[0])
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF || (err == nil && m == 0) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// cdfType returns the storage type of a variable given the zero slice
// its reader allocates. NetCDF bytes are signed but decode as []uint8.
func cdfType(zero interface{}) (Type, error) {
	switch zero.(type) {
	case []int8, []uint8:
		return Int8, nil
	case []int16:
		return Int16, nil
	case []int32:
		return Int32, nil
	case []float32:
		return Float32, nil
	case []float64:
		return Float64, nil
	default:
		return Invalid, errors.E(errors.NotSupported, fmt.Sprintf("unsupported storage type %T", zero))
	}
}

// convert copies the numeric slice src into dst, returning the number
// of values copied.
func convert(dst []float64, src interface{}) (int, error) {
	var n int
	switch src := src.(type) {
	case []int8:
		for n = 0; n < len(dst) && n < len(src); n++ {
			dst[n] = float64(src[n])
		}
	case []uint8:
		for n = 0; n < len(dst) && n < len(src); n++ {
			dst[n] = float64(int8(src[n]))
		}
	case []int16:
		for n = 0; n < len(dst) && n < len(src); n++ {
			dst[n] = float64(src[n])
		}
	case []int32:
		for n = 0; n < len(dst) && n < len(src); n++ {
			dst[n] = float64(src[n])
		}
	case []float32:
		for n = 0; n < len(dst) && n < len(src); n++ {
			dst[n] = float64(src[n])
		}
	case []float64:
		n = copy(dst, src)
	default:
		return 0, errors.E(errors.NotSupported, fmt.Sprintf("unsupported storage type %T", src))
	}
	return n, nil
}

// floats returns the numeric attribute value v as a []float64.
func floats(v interface{}) ([]float64, bool) {
	switch v := v.(type) {
	case nil, string:
		return nil, false
	case int8, int16, int32, float32, float64:
		return floats(scalarSlice(v))
	}
	var n int
	switch v := v.(type) {
	case []int8:
		n = len(v)
	case []uint8:
		n = len(v)
	case []int16:
		n = len(v)
	case []int32:
		n = len(v)
	case []float32:
		n = len(v)
	case []float64:
		n = len(v)
	default:
		return nil, false
	}
	out := make([]float64, n)
	if _, err := convert(out, v); err != nil {
		return nil, false
	}
	return out, true
}

func scalarSlice(v interface{}) interface{} {
	switch v := v.(type) {
	case int8:
		return []int8{v}
	case int16:
		return []int16{v}
	case int32:
		return []int32{v}
	case float32:
		return []float32{v}
	case float64:
		return []float64{v}
	}
	return nil
}
