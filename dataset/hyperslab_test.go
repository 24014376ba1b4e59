// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dataset

import (
	"testing"

	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

type run struct {
	begin, end []int
	off, n     int
}

func runs(t *testing.T, shape, start, count []int) []run {
	t.Helper()
	var out []run
	assert.NoError(t, Runs(shape, start, count, func(begin, end []int, off, n int) error {
		out = append(out, run{begin, end, off, n})
		return nil
	}))
	return out
}

func TestRuns(t *testing.T) {
	// A partial last dimension reads one run per row.
	expect.EQ(t, runs(t, []int{5, 2, 3}, []int{2, 1, 1}, []int{2, 1, 2}), []run{
		{[]int{2, 1, 1}, []int{2, 1, 2}, 0, 2},
		{[]int{3, 1, 1}, []int{3, 1, 2}, 2, 2},
	})
	// Full trailing dimensions merge, but runs stay within a time step.
	expect.EQ(t, runs(t, []int{0, 2, 3}, []int{1, 0, 0}, []int{2, 2, 3}), []run{
		{[]int{1, 0, 0}, []int{1, 1, 2}, 0, 6},
		{[]int{2, 0, 0}, []int{2, 1, 2}, 6, 6},
	})
	expect.EQ(t, runs(t, []int{4, 3, 4}, []int{0, 1, 0}, []int{1, 2, 4}), []run{
		{[]int{0, 1, 0}, []int{0, 2, 3}, 0, 8},
	})
	expect.EQ(t, runs(t, []int{4, 3, 4}, []int{0, 0, 1}, []int{1, 3, 2}), []run{
		{[]int{0, 0, 1}, []int{0, 0, 2}, 0, 2},
		{[]int{0, 1, 1}, []int{0, 1, 2}, 2, 2},
		{[]int{0, 2, 1}, []int{0, 2, 2}, 4, 2},
	})
	expect.EQ(t, runs(t, []int{10}, []int{3}, []int{4}), []run{
		{[]int{3}, []int{6}, 0, 4},
	})
	expect.EQ(t, len(runs(t, []int{4, 3}, []int{0, 0}, []int{0, 3})), 0)
}
