// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package benchlog

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/cheynewallace/tabby"
	"github.com/dustin/go-humanize"
)

// Summary is the throughput distribution of the tests run with one
// chunk configuration on one cluster shape.
type Summary struct {
	Chunks           string
	Workers, Threads int
	// N is the number of tests summarized.
	N int
	// Q1, Median, and Q3 are throughput quartiles, in bytes per
	// second.
	Q1, Median, Q3 float64
}

type summaryKey struct {
	chunks           string
	workers, threads int
}

// Summarize computes the throughput quartiles of records, grouped by
// chunk configuration and cluster shape. Summaries are ordered by
// descending median throughput.
func Summarize(records []Record) []Summary {
	rates := make(map[summaryKey][]float64)
	for _, r := range records {
		k := summaryKey{r.Chunks.String(), r.Workers, r.Threads}
		rates[k] = append(rates[k], r.Throughput())
	}
	summaries := make([]Summary, 0, len(rates))
	for k, rs := range rates {
		sort.Float64s(rs)
		q1, q2, q3 := quartiles(rs)
		summaries = append(summaries, Summary{
			Chunks:  k.chunks,
			Workers: k.workers,
			Threads: k.threads,
			N:       len(rs),
			Q1:      q1,
			Median:  q2,
			Q3:      q3,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		if summaries[i].Median != summaries[j].Median {
			return summaries[i].Median > summaries[j].Median
		}
		return summaries[i].Chunks < summaries[j].Chunks
	})
	return summaries
}

// Print writes summaries to w as a table.
func Print(w io.Writer, summaries []Summary) {
	t := tabby.NewCustom(tabwriter.NewWriter(w, 0, 0, 2, ' ', 0))
	t.AddHeader("CHUNKS", "WORKERS", "THREADS", "N", "Q1", "MEDIAN", "Q3")
	for _, s := range summaries {
		chunks := s.Chunks
		if chunks == "" {
			chunks = "(native)"
		}
		t.AddLine(chunks, s.Workers, s.Threads, s.N, rate(s.Q1), rate(s.Median), rate(s.Q3))
	}
	t.Print()
}

func rate(bps float64) string {
	return fmt.Sprintf("%s/s", humanize.IBytes(uint64(bps)))
}

// quartiles returns the quartiles of sorted xs using Tukey's method:
// q2 is the median; q1 and q3 are the medians of the lower and upper
// halves, which include q2 when len(xs) is odd. xs must be non-empty.
func quartiles(xs []float64) (q1, q2, q3 float64) {
	mid := len(xs) / 2
	q2 = median(xs)
	if len(xs) == 1 {
		return q2, q2, q2
	}
	lo := mid
	if len(xs)%2 == 1 {
		lo++
	}
	return median(xs[:lo]), q2, median(xs[mid:])
}

func median(xs []float64) float64 {
	mid := len(xs) / 2
	if len(xs)%2 == 0 {
		return (xs[mid-1] + xs[mid]) / 2
	}
	return xs[mid]
}
