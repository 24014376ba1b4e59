// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package dataset

import (
	"testing"
	"time"
)

func TestParseUnits(t *testing.T) {
	for _, c := range []struct {
		units string
		unit  time.Duration
		epoch time.Time
	}{
		{"hours since 1900-01-01 00:00:00.0", time.Hour, time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"days since 1970-01-01", 24 * time.Hour, time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)},
		{"seconds since 2001-06-01T12:00:00Z", time.Second, time.Date(2001, 6, 1, 12, 0, 0, 0, time.UTC)},
		{"minutes since 1979-1-1", time.Minute, time.Date(1979, 1, 1, 0, 0, 0, 0, time.UTC)},
	} {
		unit, epoch, err := ParseUnits(c.units)
		if err != nil {
			t.Errorf("%s: %v", c.units, err)
			continue
		}
		if got, want := unit, c.unit; got != want {
			t.Errorf("%s: got %v, want %v", c.units, got, want)
		}
		if got, want := epoch, c.epoch; !got.Equal(want) {
			t.Errorf("%s: got %v, want %v", c.units, got, want)
		}
	}
	for _, units := range []string{"hours", "fortnights since 1900-01-01", "hours since yesterday"} {
		if _, _, err := ParseUnits(units); err == nil {
			t.Errorf("%s: expected error", units)
		}
	}
}

func TestDecodeTimes(t *testing.T) {
	times, err := DecodeTimes([]float64{876576, 876600}, "hours since 1900-01-01 00:00:00.0", "gregorian")
	if err != nil {
		t.Fatal(err)
	}
	if got, want := times[0], time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := times[1].YearDay(), 2; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if _, err := DecodeTimes([]float64{0}, "days since 2000-01-01", "noleap"); err == nil {
		t.Error("expected error for unsupported calendar")
	}
}
