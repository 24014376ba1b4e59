// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dataset

// Runs splits the box (start, count) of a row-major array of the
// given shape into runs of elements that are contiguous in storage,
// and calls fn for each in order. A run is described by its first and
// last (inclusive) element, begin and end, and by the offset off and
// length n of its values within the box, also in row-major order.
//
// Runs never span the leading dimension, whose extent may be
// unknown (shape[0] is ignored), so every run lies within a single
// record of a record variable. Trailing dimensions covered entirely
// by the box are merged into a single run.
func Runs(shape, start, count []int, fn func(begin, end []int, off, n int) error) error {
	rank := len(start)
	if rank == 0 {
		return fn(nil, nil, 0, 1)
	}
	for _, c := range count {
		if c == 0 {
			return nil
		}
	}
	// Dimensions k+1 and beyond are covered entirely, so a run spans
	// dimensions k through rank-1.
	k := rank - 1
	for k > 1 && start[k] == 0 && count[k] == shape[k] {
		k--
	}
	n := 1
	for _, c := range count[k:] {
		n *= c
	}
	idx := make([]int, k)
	for off := 0; ; off += n {
		begin := make([]int, rank)
		end := make([]int, rank)
		for d := 0; d < k; d++ {
			begin[d] = start[d] + idx[d]
			end[d] = begin[d]
		}
		for d := k; d < rank; d++ {
			begin[d] = start[d]
			end[d] = start[d] + count[d] - 1
		}
		if err := fn(begin, end, off, n); err != nil {
			return err
		}
		d := k - 1
		for ; d >= 0; d-- {
			if idx[d]++; idx[d] < count[d] {
				break
			}
			idx[d] = 0
		}
		if d < 0 {
			return nil
		}
	}
}
