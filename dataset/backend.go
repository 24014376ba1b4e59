// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dataset

import (
	"context"
	"strings"
	"sync"

	"github.com/grailbio/base/log"
)

// Type is the storage type of a variable.
type Type int

const (
	Invalid Type = iota
	Int8
	Int16
	Int32
	Float32
	Float64
)

var typeNames = [...]string{"invalid", "int8", "int16", "int32", "float32", "float64"}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return "unknown"
	}
	return typeNames[t]
}

// Size returns the width of a stored element in bytes.
func (t Type) Size() int {
	switch t {
	case Int8:
		return 1
	case Int16:
		return 2
	case Int32, Float32:
		return 4
	case Float64:
		return 8
	default:
		return 0
	}
}

// IsFloat tells whether t is a floating point type.
func (t Type) IsFloat() bool {
	return t == Float32 || t == Float64
}

// Info is the per-file metadata of a variable, as reported by a
// backend.
type Info struct {
	Dims    []string
	Shape   []int
	Type    Type
	Packing Packing

	Time      []float64
	TimeUnits string
	Calendar  string
}

// FileReader reads hyperslabs of raw (undecoded) values from a
// single file.
type FileReader interface {
	// Read reads count[d] values starting at start[d] along each
	// dimension of the named variable into dst, in row-major order.
	Read(ctx context.Context, name string, start, count []int, dst []float64) error
	Close() error
}

// Backend provides access to files of a particular format.
type Backend interface {
	// Glob returns the paths matching pattern.
	Glob(ctx context.Context, pattern string) ([]string, error)
	// Stat returns the metadata of the named variable in path.
	Stat(ctx context.Context, path, name string) (Info, error)
	// Open opens path for reading.
	Open(ctx context.Context, path string) (FileReader, error)
}

var (
	mu       sync.Mutex
	backends = map[string]Backend{}
)

// DefaultBackend is the backend used for paths without a registered
// scheme prefix.
const DefaultBackend = "netcdf"

// RegisterBackend registers a backend for paths of the form
// "name:...". Registering DefaultBackend replaces the backend used
// for plain paths.
func RegisterBackend(name string, b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if backends[name] != nil {
		log.Panicf("dataset: backend %s is already registered", name)
	}
	backends[name] = b
}

func backend(name string) (Backend, bool) {
	mu.Lock()
	defer mu.Unlock()
	b, ok := backends[name]
	return b, ok
}

func lookup(pattern string) (string, Backend) {
	if i := strings.Index(pattern, ":"); i > 0 {
		if b, ok := backend(pattern[:i]); ok {
			return pattern[:i], b
		}
	}
	b, _ := backend(DefaultBackend)
	return DefaultBackend, b
}
