// Copyright 2017 Keydap. All rights reserved.
// Licensed under the Apache License, Version 2.0, see LICENSE.

package utils

import (
	"fmt"
	"strings"
	"time"
)

// ISO-8601 layouts accepted on the wire, tried in order.
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.999",
}

// Parses an ISO-8601 datetime with optional sub-second precision. A value
// without a zone designator is taken as UTC.
func ParseDateTime(val string) (time.Time, error) {
	val = strings.TrimSpace(val)
	for _, layout := range dateTimeLayouts {
		t, err := time.Parse(layout, val)
		if err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("Invalid datetime value %s", val)
}

// Formats the given instant as an ISO-8601 UTC string. Sub-second precision
// is emitted only when present, with millisecond granularity.
func FormatDateTime(t time.Time) string {
	t = t.UTC()
	if t.Nanosecond() == 0 {
		return t.Format("2006-01-02T15:04:05Z")
	}

	return t.Format("2006-01-02T15:04:05.000Z")
}

func DateTime() string {
	return FormatDateTime(time.Now())
}
