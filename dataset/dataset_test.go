// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dataset

import (
	"context"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/readspeed/chunk"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func TestSyntheticOpen(t *testing.T) {
	ctx := context.Background()
	v, err := Open(ctx, "synthetic:files=3,time=24,latitude=2,longitude=3", "t2m")
	assert.NoError(t, err)
	expect.EQ(t, v.Dims, []string{"time", "latitude", "longitude"})
	expect.EQ(t, v.Shape, []int{72, 2, 3})
	expect.EQ(t, len(v.Files), 3)
	expect.EQ(t, v.Files[2].Start, 48)
	expect.EQ(t, v.Files[2].Len, 24)
	expect.EQ(t, v.Type, Int16)
	// Packed with an offset: decoded as float64.
	expect.EQ(t, v.ItemSize(), 8)
	expect.EQ(t, v.NBytes(), int64(72*2*3*8))
	expect.EQ(t, v.NativeChunks(), chunk.Config{{"time", 24}, {"latitude", 2}, {"longitude", 3}})

	times, err := v.Times()
	assert.NoError(t, err)
	expect.EQ(t, len(times), 72)
	expect.EQ(t, times[0], time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC))
	expect.EQ(t, times[71], time.Date(2001, 1, 3, 23, 0, 0, 0, time.UTC))
}

func TestReadAcrossFiles(t *testing.T) {
	ctx := context.Background()
	v, err := Open(ctx, "synthetic:files=2,time=5,latitude=2,longitude=2", "t2m")
	assert.NoError(t, err)
	box := chunk.Box{Start: []int{3, 1, 0}, Count: []int{4, 1, 2}}
	vals, err := v.Read(ctx, box)
	assert.NoError(t, err)
	var want []float64
	for tt := 3; tt < 7; tt++ {
		for x := 0; x < 2; x++ {
			want = append(want, float64((tt%24)*10+1)*0.01+250)
		}
	}
	if got := vals; !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestReadFill(t *testing.T) {
	ctx := context.Background()
	v, err := Open(ctx, "synthetic:files=1,time=2,latitude=2,longitude=2,fill=1", "t2m")
	assert.NoError(t, err)
	vals, err := v.Read(ctx, chunk.Box{Start: []int{0, 0, 0}, Count: []int{2, 2, 2}})
	assert.NoError(t, err)
	for i, x := range vals {
		// Element (y=0, x=0) is the first of every time step.
		if i%4 == 0 {
			if !math.IsNaN(x) {
				t.Errorf("value %d: got %v, want NaN", i, x)
			}
		} else if math.IsNaN(x) {
			t.Errorf("value %d: unexpected NaN", i)
		}
	}
}

func TestReaderErrors(t *testing.T) {
	ctx := context.Background()
	v, err := Open(ctx, "synthetic:files=1,time=2,latitude=2,longitude=2", "t2m")
	assert.NoError(t, err)
	r := v.NewReader()
	defer r.Close()
	box := chunk.Box{Start: []int{0, 0, 0}, Count: []int{1, 1, 1}}
	if err := r.Read(ctx, box, make([]float64, 2)); !errors.Is(errors.Invalid, err) {
		t.Errorf("expected invalid error, got %v", err)
	}
	box = chunk.Box{Start: []int{0, 0}, Count: []int{1, 1}}
	if err := r.Read(ctx, box, make([]float64, 1)); !errors.Is(errors.Invalid, err) {
		t.Errorf("expected invalid error, got %v", err)
	}
}

func TestOpenNoMatch(t *testing.T) {
	_, err := Open(context.Background(), "/nonexistent/dir/*.nc", "t2m")
	if !errors.Is(errors.NotExist, err) {
		t.Errorf("expected not exist error, got %v", err)
	}
}

func TestItemSize(t *testing.T) {
	for _, c := range []struct {
		typ     Type
		packing Packing
		want    int
	}{
		{Float32, Packing{}, 4},
		{Int16, Packing{}, 2},
		{Int16, Packing{Scale: 0.1, HasScale: true}, 4},
		{Int16, Packing{Scale: 0.1, HasScale: true, Offset: 1, HasOffset: true}, 8},
		{Int32, Packing{Scale: 0.1, HasScale: true}, 8},
		{Float32, Packing{Scale: 0.1, HasScale: true}, 4},
	} {
		v := Variable{Type: c.typ, Packing: c.packing}
		if got, want := v.ItemSize(), c.want; got != want {
			t.Errorf("%s %+v: got %v, want %v", c.typ, c.packing, got, want)
		}
	}
}
