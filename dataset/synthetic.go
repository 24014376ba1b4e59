// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dataset

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/grailbio/base/errors"
)

func init() {
	RegisterBackend("synthetic", syntheticBackend{})
}

// SyntheticFill is the stored fill value of synthetic variables.
const SyntheticFill = -32767

// Synthetic variables stand in for ERA5 2 m temperature without
// touching any storage. A pattern such as
//
//	synthetic:files=12,time=744,latitude=721,longitude=1440
//
// describes files files of an hourly int16 variable of shape
// (time, latitude, longitude), packed with scale 0.01 and offset 250,
// with time measured in hours since 1900-01-01 starting at the
// beginning of year start (default 2001). The stored value at global
// time step t and latitude index y is
//
//	(t mod 24)*10 + y
//
// and, when fill=1, the element at latitude 0 and longitude 0 is
// missing. Any variable name is accepted.
type syntheticBackend struct{}

type syntheticParams struct {
	files, time, lat, lon int
	start                 int
	fill                  bool
}

var syntheticEpoch = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

func parseSynthetic(pattern string) (syntheticParams, error) {
	p := syntheticParams{files: 1, time: 48, lat: 4, lon: 8, start: 2001}
	spec := strings.TrimPrefix(pattern, "synthetic:")
	if i := strings.Index(spec, "#"); i >= 0 {
		spec = spec[:i]
	}
	if spec == "" {
		return p, nil
	}
	for _, kv := range strings.Split(spec, ",") {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return p, errors.E(errors.Invalid, fmt.Sprintf("synthetic: bad parameter %q", kv))
		}
		n, err := strconv.Atoi(parts[1])
		if err != nil {
			return p, errors.E(errors.Invalid, fmt.Sprintf("synthetic: bad parameter %q", kv), err)
		}
		switch parts[0] {
		case "files":
			p.files = n
		case "time":
			p.time = n
		case "latitude":
			p.lat = n
		case "longitude":
			p.lon = n
		case "start":
			p.start = n
		case "fill":
			p.fill = n != 0
		default:
			return p, errors.E(errors.Invalid, fmt.Sprintf("synthetic: unknown parameter %q", parts[0]))
		}
	}
	if p.files <= 0 || p.time <= 0 || p.lat <= 0 || p.lon <= 0 {
		return p, errors.E(errors.Invalid, fmt.Sprintf("synthetic: non-positive extent in %q", pattern))
	}
	return p, nil
}

// syntheticIndex returns the index of the file named by path.
func syntheticIndex(path string) (int, error) {
	i := strings.LastIndex(path, "#")
	if i < 0 {
		return 0, errors.E(errors.Invalid, fmt.Sprintf("synthetic: %q does not name a file", path))
	}
	return strconv.Atoi(path[i+1:])
}

func (syntheticBackend) Glob(_ context.Context, pattern string) ([]string, error) {
	p, err := parseSynthetic(pattern)
	if err != nil {
		return nil, err
	}
	if i := strings.Index(pattern, "#"); i >= 0 {
		pattern = pattern[:i]
	}
	paths := make([]string, p.files)
	for i := range paths {
		// Zero-padded so that lexical order is file order.
		paths[i] = fmt.Sprintf("%s#%06d", pattern, i)
	}
	return paths, nil
}

func (syntheticBackend) Stat(_ context.Context, path, name string) (Info, error) {
	p, err := parseSynthetic(path)
	if err != nil {
		return Info{}, err
	}
	file, err := syntheticIndex(path)
	if err != nil {
		return Info{}, err
	}
	info := Info{
		Dims:      []string{ConcatDim, "latitude", "longitude"},
		Shape:     []int{p.time, p.lat, p.lon},
		Type:      Int16,
		Packing:   Packing{Scale: 0.01, HasScale: true, Offset: 250, HasOffset: true},
		TimeUnits: "hours since 1900-01-01 00:00:00.0",
		Calendar:  "gregorian",
		Time:      make([]float64, p.time),
	}
	if p.fill {
		info.Packing.Fill = []float64{SyntheticFill}
	}
	first := time.Date(p.start, 1, 1, 0, 0, 0, 0, time.UTC).Sub(syntheticEpoch).Hours()
	for i := range info.Time {
		info.Time[i] = first + float64(file*p.time+i)
	}
	return info, nil
}

func (syntheticBackend) Open(_ context.Context, path string) (FileReader, error) {
	p, err := parseSynthetic(path)
	if err != nil {
		return nil, err
	}
	file, err := syntheticIndex(path)
	if err != nil {
		return nil, err
	}
	return &syntheticFile{params: p, file: file}, nil
}

type syntheticFile struct {
	params syntheticParams
	file   int
}

func (s *syntheticFile) Read(ctx context.Context, name string, start, count []int, dst []float64) error {
	if len(start) != 3 || len(count) != 3 {
		return errors.E(errors.Invalid, "synthetic: rank 3 reads only")
	}
	shape := []int{s.params.time, s.params.lat, s.params.lon}
	for d := range shape {
		if start[d] < 0 || count[d] < 0 || start[d]+count[d] > shape[d] {
			return errors.E(errors.Invalid, fmt.Sprintf("synthetic: read %v+%v outside of shape %v", start, count, shape))
		}
	}
	var i int
	for t := start[0]; t < start[0]+count[0]; t++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		hour := (s.file*s.params.time + t) % 24
		for y := start[1]; y < start[1]+count[1]; y++ {
			for x := start[2]; x < start[2]+count[2]; x++ {
				if s.params.fill && y == 0 && x == 0 {
					dst[i] = SyntheticFill
				} else {
					dst[i] = float64(hour*10 + y)
				}
				i++
			}
		}
	}
	return nil
}

func (s *syntheticFile) Close() error { return nil }
