// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dataset

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/grailbio/base/errors"
)

var epochLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006-1-2 15:04:05",
	"2006-1-2",
}

var unitDurations = map[string]time.Duration{
	"seconds": time.Second,
	"second":  time.Second,
	"secs":    time.Second,
	"s":       time.Second,
	"minutes": time.Minute,
	"minute":  time.Minute,
	"mins":    time.Minute,
	"hours":   time.Hour,
	"hour":    time.Hour,
	"hrs":     time.Hour,
	"h":       time.Hour,
	"days":    24 * time.Hour,
	"day":     24 * time.Hour,
	"d":       24 * time.Hour,
}

// ParseUnits parses CF time units of the form "<unit> since <epoch>",
// e.g. "hours since 1900-01-01 00:00:00.0".
func ParseUnits(units string) (time.Duration, time.Time, error) {
	parts := strings.SplitN(strings.TrimSpace(units), " since ", 2)
	if len(parts) != 2 {
		return 0, time.Time{}, errors.E(errors.Invalid, fmt.Sprintf("dataset: time units %q", units))
	}
	unit, ok := unitDurations[strings.ToLower(strings.TrimSpace(parts[0]))]
	if !ok {
		return 0, time.Time{}, errors.E(errors.NotSupported, fmt.Sprintf("dataset: time unit %q", parts[0]))
	}
	epoch := strings.TrimSpace(parts[1])
	// Fractional seconds ("00:00:00.0") and a trailing "UTC" carry no
	// information for our purposes.
	epoch = strings.TrimSuffix(epoch, " UTC")
	if i := strings.LastIndex(epoch, "."); i > strings.LastIndex(epoch, ":") && strings.Contains(epoch, ":") {
		epoch = epoch[:i]
	}
	for _, layout := range epochLayouts {
		if t, err := time.Parse(layout, epoch); err == nil {
			return unit, t.UTC(), nil
		}
	}
	return 0, time.Time{}, errors.E(errors.Invalid, fmt.Sprintf("dataset: time epoch %q", parts[1]))
}

// DecodeTimes decodes CF-encoded time values. Only the standard
// (mixed Gregorian/Julian, treated as proleptic Gregorian) calendars
// are supported.
func DecodeTimes(values []float64, units, calendar string) ([]time.Time, error) {
	switch strings.ToLower(calendar) {
	case "", "standard", "gregorian", "proleptic_gregorian":
	default:
		return nil, errors.E(errors.NotSupported, fmt.Sprintf("dataset: calendar %q", calendar))
	}
	unit, epoch, err := ParseUnits(units)
	if err != nil {
		return nil, err
	}
	times := make([]time.Time, len(values))
	for i, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.E(errors.Invalid, fmt.Sprintf("dataset: time value %v at index %d", v, i))
		}
		times[i] = epoch.Add(time.Duration(math.Round(v * float64(unit))))
	}
	return times, nil
}
