// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package climtas

import "math"

// Moments accumulates the sum and count of non-missing values.
type Moments struct {
	Sum   float64
	Count int64
}

// Add returns the moments of the union of m and n.
func (m Moments) Add(n Moments) Moments {
	return Moments{m.Sum + n.Sum, m.Count + n.Count}
}

// Mean returns the mean of the accumulated values, or NaN if there
// are none.
func (m Moments) Mean() float64 {
	if m.Count == 0 {
		return math.NaN()
	}
	return m.Sum / float64(m.Count)
}

// Of returns the moments of the non-NaN values in vals.
func Of(vals []float64) Moments {
	var m Moments
	for _, x := range vals {
		if math.IsNaN(x) {
			continue
		}
		m.Sum += x
		m.Count++
	}
	return m
}

// A Field holds per-cell moments for one spatial block.
type Field struct {
	Sum   []float64
	Count []int32
}

// NewField returns a zero field of n cells.
func NewField(n int) Field {
	return Field{Sum: make([]float64, n), Count: make([]int32, n)}
}

// Observe adds the non-NaN values of vals to the field's cells.
func (f Field) Observe(vals []float64) {
	for i, x := range vals {
		if math.IsNaN(x) {
			continue
		}
		f.Sum[i] += x
		f.Count[i]++
	}
}

// Merge returns the cell-wise union of the moments of f
// and g. Neither is modified.
func (f Field) Merge(g Field) Field {
	h := NewField(len(f.Sum))
	for i := range f.Sum {
		h.Sum[i] = f.Sum[i] + g.Sum[i]
		h.Count[i] = f.Count[i] + g.Count[i]
	}
	return h
}

// Means returns a field with one observation per cell: the cell's
// mean, or no observation when the cell has none.
func (f Field) Means() Field {
	g := NewField(len(f.Sum))
	for i := range f.Sum {
		if f.Count[i] > 0 {
			g.Sum[i] = f.Sum[i] / float64(f.Count[i])
			g.Count[i] = 1
		}
	}
	return g
}

// Float32 returns the per-cell means of f; cells without
// observations are NaN.
func (f Field) Float32() []float32 {
	out := make([]float32, len(f.Sum))
	for i := range f.Sum {
		if f.Count[i] == 0 {
			out[i] = float32(math.NaN())
		} else {
			out[i] = float32(f.Sum[i] / float64(f.Count[i]))
		}
	}
	return out
}
