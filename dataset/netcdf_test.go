// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dataset

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/ctessum/cdf"
	"github.com/grailbio/readspeed/chunk"
	"github.com/grailbio/testutil"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

// writeTestFile writes a NetCDF classic file holding an int16 t2m
// variable of shape (ntime, 2, 3), packed with scale 0.5 and offset
// 200, whose stored values are 100*(first+t) + 10*y + x. The fill
// value is stored at (0, 0, 0).
func writeTestFile(t *testing.T, path string, first, ntime int) {
	t.Helper()
	h := cdf.NewHeader([]string{"time", "latitude", "longitude"}, []int{ntime, 2, 3})
	h.AddVariable("time", []string{"time"}, []float64{0})
	h.AddAttribute("time", "units", "hours since 1900-01-01 00:00:00.0")
	h.AddAttribute("time", "calendar", "gregorian")
	h.AddVariable("t2m", []string{"time", "latitude", "longitude"}, []int16{0})
	h.AddAttribute("t2m", "scale_factor", []float64{0.5})
	h.AddAttribute("t2m", "add_offset", []float64{200})
	h.AddAttribute("t2m", "_FillValue", []int16{-32767})
	h.Define()
	f, err := os.Create(path)
	assert.NoError(t, err)
	nc, err := cdf.Create(f, h)
	assert.NoError(t, err)

	times := make([]float64, ntime)
	vals := make([]int16, ntime*2*3)
	for tt := 0; tt < ntime; tt++ {
		times[tt] = 876576 + float64(first+tt)
		for y := 0; y < 2; y++ {
			for x := 0; x < 3; x++ {
				vals[(tt*2+y)*3+x] = int16(100*(first+tt) + 10*y + x)
			}
		}
	}
	vals[0] = -32767
	writeAll(t, nc, "time", times, ntime)
	writeAll(t, nc, "t2m", vals, len(vals))
	assert.NoError(t, f.Close())
}

// writeAll writes all n values of a variable. Writers report io.EOF
// once the variable is full.
func writeAll(t *testing.T, nc *cdf.File, name string, vals interface{}, n int) {
	t.Helper()
	m, err := nc.Writer(name, nil, nil).Write(vals)
	if err == io.EOF && m == n {
		err = nil
	}
	assert.NoError(t, err)
	expect.EQ(t, m, n)
}

func TestNetCDF(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	for i := 0; i < 3; i++ {
		writeTestFile(t, filepath.Join(dir, fmt.Sprintf("t2m_%d.nc", i)), 4*i, 4)
	}
	ctx := context.Background()
	v, err := Open(ctx, filepath.Join(dir, "t2m_*.nc"), "t2m")
	assert.NoError(t, err)
	expect.EQ(t, v.Backend, DefaultBackend)
	expect.EQ(t, v.Shape, []int{12, 2, 3})
	expect.EQ(t, v.Type, Int16)
	expect.EQ(t, v.ItemSize(), 8)
	expect.EQ(t, len(v.Time), 12)

	times, err := v.Times()
	assert.NoError(t, err)
	expect.EQ(t, times[11].Hour(), 11)

	vals, err := v.Read(ctx, chunk.Box{Start: []int{2, 1, 1}, Count: []int{4, 1, 2}})
	assert.NoError(t, err)
	var i int
	for tt := 2; tt < 6; tt++ {
		for x := 1; x < 3; x++ {
			want := float64(100*tt+10+x)*0.5 + 200
			if got := vals[i]; got != want {
				t.Errorf("(%d, 1, %d): got %v, want %v", tt, x, got, want)
			}
			i++
		}
	}

	vals, err = v.Read(ctx, chunk.Box{Start: []int{0, 0, 0}, Count: []int{1, 1, 1}})
	assert.NoError(t, err)
	if !math.IsNaN(vals[0]) {
		t.Errorf("got %v, want NaN", vals[0])
	}
}

func TestNetCDFBoxes(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	writeTestFile(t, filepath.Join(dir, "t2m.nc"), 0, 5)
	ctx := context.Background()
	v, err := Open(ctx, filepath.Join(dir, "t2m.nc"), "t2m")
	assert.NoError(t, err)
	for _, box := range []chunk.Box{
		{Start: []int{2, 1, 1}, Count: []int{2, 1, 2}},
		{Start: []int{1, 0, 1}, Count: []int{3, 2, 1}},
		{Start: []int{1, 0, 0}, Count: []int{2, 2, 3}},
		{Start: []int{4, 1, 0}, Count: []int{1, 1, 3}},
		{Start: []int{0, 1, 2}, Count: []int{5, 1, 1}},
	} {
		vals, err := v.Read(ctx, box)
		assert.NoError(t, err)
		expect.EQ(t, len(vals), box.Count[0]*box.Count[1]*box.Count[2])
		var i int
		for tt := box.Start[0]; tt < box.Start[0]+box.Count[0]; tt++ {
			for y := box.Start[1]; y < box.Start[1]+box.Count[1]; y++ {
				for x := box.Start[2]; x < box.Start[2]+box.Count[2]; x++ {
					want := float64(100*tt+10*y+x)*0.5 + 200
					if got := vals[i]; got != want {
						t.Errorf("%v: (%d, %d, %d): got %v, want %v", box, tt, y, x, got, want)
					}
					i++
				}
			}
		}
	}
}

func TestNetCDFMonth(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	writeTestFile(t, filepath.Join(dir, "t2m.nc"), 0, 744)
	ctx := context.Background()
	v, err := Open(ctx, filepath.Join(dir, "t2m.nc"), "t2m")
	assert.NoError(t, err)
	expect.EQ(t, v.Shape, []int{744, 2, 3})
	expect.EQ(t, len(v.Time), 744)
	expect.EQ(t, v.Time[743], float64(876576+743))
	times, err := v.Times()
	assert.NoError(t, err)
	expect.EQ(t, times[743].Day(), 31)
	expect.EQ(t, times[743].Hour(), 23)
}

func TestNetCDFBytes(t *testing.T) {
	typ, err := cdfType([]uint8{0})
	assert.NoError(t, err)
	expect.EQ(t, typ, Int8)
	typ, err = cdfType([]int8{0})
	assert.NoError(t, err)
	expect.EQ(t, typ, Int8)

	dst := make([]float64, 3)
	n, err := convert(dst, []uint8{0x7f, 0x80, 0xff})
	assert.NoError(t, err)
	expect.EQ(t, n, 3)
	expect.EQ(t, dst, []float64{127, -128, -1})

	xs, ok := floats([]uint8{0xfe})
	expect.EQ(t, ok, true)
	expect.EQ(t, xs, []float64{-2})
}

func TestNetCDFMissingVariable(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()
	writeTestFile(t, filepath.Join(dir, "t2m.nc"), 0, 2)
	if _, err := Open(context.Background(), filepath.Join(dir, "*.nc"), "u10"); err == nil {
		t.Error("expected error")
	}
}
