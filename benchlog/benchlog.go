// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package benchlog maintains CSV logs of benchmark timings. A log is
// append-only: each run loads the previous log (if any), appends its
// own rows, and rewrites the file. Logs may be stored anywhere
// supported by github.com/grailbio/base/file, including S3.
package benchlog

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/file/s3file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/readspeed/chunk"
)

func init() {
	file.RegisterImplementation("s3", func() file.Implementation {
		return s3file.NewImplementation(
			s3file.NewDefaultProvider(session.Options{}), s3file.Options{})
	})
}

// Column names written for every record. Chunk dimensions are written
// between ChunkSize and Workers.
const (
	Duration  = "duration"
	DataSize  = "data_size"
	ChunkSize = "chunk_size"
	Workers   = "workers"
	Threads   = "threads"
)

// Record is the timing of a single benchmark test.
type Record struct {
	// Duration is the wall time of the test, in seconds.
	Duration float64
	// DataSize is the decoded size of the data reduced, in bytes.
	DataSize int64
	// ChunkSize is the decoded size of the first chunk, in bytes.
	ChunkSize int64
	// Chunks is the chunk configuration requested for the test.
	Chunks chunk.Config
	// Workers and Threads describe the cluster the test ran on.
	Workers, Threads int
}

// Throughput returns the data rate of the test in bytes per second.
func (r Record) Throughput() float64 {
	if r.Duration <= 0 {
		return 0
	}
	return float64(r.DataSize) / r.Duration
}

func (r Record) columns() []string {
	cols := []string{Duration, DataSize, ChunkSize}
	cols = append(cols, r.Chunks.Names()...)
	return append(cols, Workers, Threads)
}

func (r Record) cell(col string) string {
	switch col {
	case Duration:
		return strconv.FormatFloat(r.Duration, 'g', -1, 64)
	case DataSize:
		return strconv.FormatInt(r.DataSize, 10)
	case ChunkSize:
		return strconv.FormatInt(r.ChunkSize, 10)
	case Workers:
		return strconv.Itoa(r.Workers)
	case Threads:
		return strconv.Itoa(r.Threads)
	}
	if n, ok := r.Chunks.Get(col); ok {
		return strconv.Itoa(n)
	}
	return ""
}

// Sort sorts records by ascending duration. Records with equal
// durations keep their order.
func Sort(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Duration < records[j].Duration
	})
}

// Table is the contents of a log: a header and rows of cells aligned
// with it. The header is the union of the columns of every row, in
// order of first appearance; missing cells are empty.
type Table struct {
	header []string
	rows   [][]string
}

// Load reads the log at path. A missing log is not an error: Load
// returns an empty table, and the log is created by the next Save.
func Load(ctx context.Context, path string) (*Table, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		if os.IsNotExist(err) || errors.Is(errors.NotExist, err) {
			log.Printf("benchlog: %s does not exist; starting a new log", path)
			return new(Table), nil
		}
		return nil, errors.E(fmt.Sprintf("benchlog: open %s", path), err)
	}
	defer f.Close(ctx)
	t, err := Read(f.Reader(ctx))
	if err != nil {
		return nil, errors.E(fmt.Sprintf("benchlog: read %s", path), err)
	}
	return t, nil
}

// Read parses a CSV log from r.
func Read(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	t := new(Table)
	for {
		fields, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if t.header == nil {
			t.header = fields
			continue
		}
		if len(fields) > len(t.header) {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("row %d has %d fields, header has %d", len(t.rows)+1, len(fields), len(t.header)))
		}
		row := make([]string, len(t.header))
		copy(row, fields)
		t.rows = append(t.rows, row)
	}
	return t, nil
}

// Len returns the number of rows in the table.
func (t *Table) Len() int { return len(t.rows) }

// Header returns the table's column names.
func (t *Table) Header() []string { return t.header }

// Row returns the cells of row i, keyed by column name. Empty cells
// are omitted.
func (t *Table) Row(i int) map[string]string {
	m := make(map[string]string, len(t.header))
	for j, col := range t.header {
		if t.rows[i][j] != "" {
			m[col] = t.rows[i][j]
		}
	}
	return m
}

func (t *Table) column(col string) int {
	for i, c := range t.header {
		if c == col {
			return i
		}
	}
	t.header = append(t.header, col)
	for i := range t.rows {
		t.rows[i] = append(t.rows[i], "")
	}
	return len(t.header) - 1
}

// Append sorts records by duration and appends them after the
// table's existing rows.
func (t *Table) Append(records []Record) {
	if len(records) == 0 {
		return
	}
	// New columns are added in the order they first appear in
	// records, with the cluster columns last.
	for _, col := range []string{Duration, DataSize, ChunkSize} {
		t.column(col)
	}
	for _, r := range records {
		for _, col := range r.Chunks.Names() {
			t.column(col)
		}
	}
	t.column(Workers)
	t.column(Threads)

	records = append([]Record(nil), records...)
	Sort(records)
	for _, r := range records {
		row := make([]string, len(t.header))
		for _, col := range r.columns() {
			row[t.column(col)] = r.cell(col)
		}
		t.rows = append(t.rows, row)
	}
}

// Write writes the table in CSV format to w.
func (t *Table) Write(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.rows); err != nil {
		return err
	}
	return cw.Error()
}

// Save (re)writes the table to the log at path.
func (t *Table) Save(ctx context.Context, path string) (err error) {
	f, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(fmt.Sprintf("benchlog: create %s", path), err)
	}
	defer func() {
		if cerr := f.Close(ctx); err == nil && cerr != nil {
			err = errors.E(fmt.Sprintf("benchlog: close %s", path), cerr)
		}
	}()
	if err := t.Write(f.Writer(ctx)); err != nil {
		return errors.E(fmt.Sprintf("benchlog: write %s", path), err)
	}
	log.Debug.Printf("benchlog: wrote %d rows to %s", t.Len(), path)
	return nil
}

// Records parses the rows of the table. Columns other than the fixed
// ones are taken to be chunk dimensions, in header order.
func (t *Table) Records() ([]Record, error) {
	records := make([]Record, len(t.rows))
	for i, row := range t.rows {
		r := &records[i]
		for j, col := range t.header {
			cell := row[j]
			if cell == "" {
				continue
			}
			var err error
			switch col {
			case Duration:
				r.Duration, err = strconv.ParseFloat(cell, 64)
			case DataSize:
				r.DataSize, err = parseInt(cell)
			case ChunkSize:
				r.ChunkSize, err = parseInt(cell)
			case Workers:
				r.Workers, err = atoi(cell)
			case Threads:
				r.Threads, err = atoi(cell)
			default:
				var n int
				n, err = atoi(cell)
				r.Chunks = append(r.Chunks, chunk.Dim{Name: col, Extent: n})
			}
			if err != nil {
				return nil, errors.E(errors.Invalid, fmt.Sprintf("benchlog: row %d column %s", i+1, col), err)
			}
		}
	}
	return records, nil
}

// parseInt parses an integer cell. Logs written by other tools may
// hold integral values in floating point notation.
func parseInt(cell string) (int64, error) {
	if n, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

func atoi(cell string) (int, error) {
	n, err := parseInt(cell)
	return int(n), err
}
