// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bench

import (
	"context"
	"fmt"
	"io/ioutil"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/readspeed/chunk"
	yaml "gopkg.in/yaml.v2"
)

// Plan is a list of chunk configurations to test, with optional
// overrides of the command line.
//
// Plans are written in YAML. Chunk configurations are maps, whose
// order is preserved:
//
//	iterations: 3
//	isel: time=0:744
//	chunks:
//	  - {time: 93, latitude: 91, longitude: 180}
//	  - {latitude: 91, longitude: 90}
type Plan struct {
	Iterations int
	Selection  chunk.Selection
	Chunks     []chunk.Config
}

type planFile struct {
	Iterations int             `yaml:"iterations"`
	Isel       string          `yaml:"isel"`
	Chunks     []yaml.MapSlice `yaml:"chunks"`
}

func cfg(lat, lon int) chunk.Config {
	return chunk.Config{{Name: "latitude", Extent: lat}, {Name: "longitude", Extent: lon}}
}

// Plans holds the built-in plans, by benchmark name.
var Plans = map[string]Plan{
	"load": {Chunks: []chunk.Config{
		{{Name: "time", Extent: 93}, {Name: "latitude", Extent: 91}, {Name: "longitude", Extent: 180}},
		cfg(91, 180/2),
		cfg(91, 180),
		cfg(91, 180*2),
		cfg(91*2, 180),
		cfg(91*2, 180*2),
		cfg(91*2, 180*4),
	}},
	"climatology": {Chunks: []chunk.Config{
		cfg(91, 180/2),
		cfg(91, 180),
		cfg(91, 180*2),
		cfg(91*2, 180),
		cfg(91*2, 180*2),
	}},
}

// ParsePlan parses a YAML plan.
func ParsePlan(data []byte) (Plan, error) {
	var pf planFile
	if err := yaml.UnmarshalStrict(data, &pf); err != nil {
		return Plan{}, errors.E(errors.Invalid, "bench: parse plan", err)
	}
	p := Plan{Iterations: pf.Iterations}
	if pf.Iterations < 0 {
		return Plan{}, errors.E(errors.Invalid, fmt.Sprintf("bench: negative iterations %d", pf.Iterations))
	}
	if pf.Isel != "" {
		var err error
		if p.Selection, err = chunk.ParseSelection(pf.Isel); err != nil {
			return Plan{}, err
		}
	}
	for i, m := range pf.Chunks {
		var c chunk.Config
		for _, item := range m {
			name, ok := item.Key.(string)
			if !ok {
				return Plan{}, errors.E(errors.Invalid, fmt.Sprintf("bench: chunks[%d]: dimension %v is not a string", i, item.Key))
			}
			extent, ok := item.Value.(int)
			if !ok {
				return Plan{}, errors.E(errors.Invalid, fmt.Sprintf("bench: chunks[%d]: extent %v of %s is not an integer", i, item.Value, name))
			}
			c = append(c, chunk.Dim{Name: name, Extent: extent})
		}
		if err := c.Validate(); err != nil {
			return Plan{}, errors.E(fmt.Sprintf("bench: chunks[%d]", i), err)
		}
		p.Chunks = append(p.Chunks, c)
	}
	return p, nil
}

// ReadPlan reads a YAML plan from path, which may be any path
// supported by github.com/grailbio/base/file.
func ReadPlan(ctx context.Context, path string) (Plan, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return Plan{}, errors.E(fmt.Sprintf("bench: open plan %s", path), err)
	}
	defer f.Close(ctx)
	data, err := ioutil.ReadAll(f.Reader(ctx))
	if err != nil {
		return Plan{}, errors.E(fmt.Sprintf("bench: read plan %s", path), err)
	}
	p, err := ParsePlan(data)
	if err != nil {
		return Plan{}, errors.E(fmt.Sprintf("bench: plan %s", path), err)
	}
	return p, nil
}
