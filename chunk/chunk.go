// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package chunk describes how a multi-dimensional array is split into
// rectangular blocks for parallel reading. A Config names the desired
// block extent for some dimensions; a Layout is the concrete grid of
// blocks obtained by applying a Config to an array of known shape.
package chunk

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/grailbio/base/errors"
)

// Dim is a single dimension's chunk extent.
type Dim struct {
	Name   string
	Extent int
}

// Config is an ordered chunk configuration, mapping dimension names
// to chunk extents. Dimensions absent from a Config keep their natural
// extent when a Layout is computed.
type Config []Dim

// Parse parses a configuration of the form
//
//	latitude=91,longitude=180
//
// The empty string parses to an empty configuration.
func Parse(s string) (Config, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var c Config
	for _, part := range strings.Split(s, ",") {
		kv := strings.SplitN(strings.TrimSpace(part), "=", 2)
		if len(kv) != 2 {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("chunk: %q is not in dim=extent format", part))
		}
		n, err := strconv.Atoi(strings.TrimSpace(kv[1]))
		if err != nil {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("chunk: extent of %s", kv[0]), err)
		}
		c = append(c, Dim{strings.TrimSpace(kv[0]), n})
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks that c has positive extents and no repeated
// dimensions.
func (c Config) Validate() error {
	seen := make(map[string]bool, len(c))
	for _, d := range c {
		if d.Name == "" {
			return errors.E(errors.Invalid, "chunk: empty dimension name")
		}
		if d.Extent <= 0 {
			return errors.E(errors.Invalid, fmt.Sprintf("chunk: non-positive extent %d for %s", d.Extent, d.Name))
		}
		if seen[d.Name] {
			return errors.E(errors.Invalid, fmt.Sprintf("chunk: dimension %s repeated", d.Name))
		}
		seen[d.Name] = true
	}
	return nil
}

// Get returns the extent configured for the named dimension.
func (c Config) Get(name string) (int, bool) {
	for _, d := range c {
		if d.Name == name {
			return d.Extent, true
		}
	}
	return 0, false
}

// Names returns the dimension names in c, in order.
func (c Config) Names() []string {
	names := make([]string, len(c))
	for i, d := range c {
		names[i] = d.Name
	}
	return names
}

// String returns the configuration in the format accepted by Parse.
func (c Config) String() string {
	parts := make([]string, len(c))
	for i, d := range c {
		parts[i] = fmt.Sprintf("%s=%d", d.Name, d.Extent)
	}
	return strings.Join(parts, ",")
}

// List is a flag.Value that accumulates one Config per occurrence
// of the flag.
type List []Config

// String implements flag.Value.
func (l *List) String() string {
	if l == nil {
		return ""
	}
	parts := make([]string, len(*l))
	for i, c := range *l {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}

// Set implements flag.Value.
func (l *List) Set(v string) error {
	c, err := Parse(v)
	if err != nil {
		return err
	}
	*l = append(*l, c)
	return nil
}
