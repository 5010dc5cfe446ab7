// Copyright 2017 Keydap. All rights reserved.
// Licensed under the Apache License, Version 2.0, see LICENSE.

package utils

import (
	"testing"
	"time"
)

func TestParseDateTime(t *testing.T) {
	var cases = []struct {
		val  string
		pass bool
		out  string
	}{
		{"2011-08-01T21:32:44Z", true, "2011-08-01T21:32:44Z"},
		{"2011-08-01T21:32:44.882Z", true, "2011-08-01T21:32:44.882Z"},
		{"2011-08-01T21:32:44", true, "2011-08-01T21:32:44Z"},
		{"2011-08-01T18:32:44-03:00", true, "2011-08-01T21:32:44Z"},
		{" 2011-08-01T21:32:44Z ", true, "2011-08-01T21:32:44Z"},
		{"yesterday", false, ""},
		{"2011-13-01T21:32:44Z", false, ""},
		{"", false, ""},
	}

	for _, c := range cases {
		parsed, err := ParseDateTime(c.val)
		if c.pass {
			if err != nil {
				t.Errorf("failed to parse the valid datetime %s [%v]", c.val, err)
				continue
			}

			if got := FormatDateTime(parsed); got != c.out {
				t.Errorf("wrong canonical form of %s, expected %s but found %s", c.val, c.out, got)
			}
		} else if err == nil {
			t.Errorf("expected parsing of %s to fail", c.val)
		}
	}
}

func TestFormatDateTimeIsUtc(t *testing.T) {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}

	local := time.Date(2011, 8, 1, 17, 32, 44, 0, loc)
	if got := FormatDateTime(local); got != "2011-08-01T21:32:44Z" {
		t.Errorf("formatting must normalize to UTC, found %s", got)
	}
}
