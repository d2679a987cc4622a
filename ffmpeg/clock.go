// Copyright 2020 Bart de Boer. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ffmpeg

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ParseClock parses "ss", "mm:ss" or "hh:mm:ss" with optional fractional seconds.
func ParseClock(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	var durationStr string

	switch len(parts) {
	case 1:
		durationStr = parts[0] + "s"
	case 2:
		durationStr = parts[0] + "m" + parts[1] + "s"
	case 3:
		durationStr = parts[0] + "h" + parts[1] + "m" + parts[2] + "s"
	default:
		return 0, fmt.Errorf("invalid time format %q", s)
	}

	d, err := time.ParseDuration(durationStr)
	if err != nil {
		return 0, fmt.Errorf("invalid time format %q", s)
	}
	return d, nil
}

// FormatClock renders d as mm:ss.xx, or hh:mm:ss.xx from one hour up.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := d.Seconds()
	h := int(sec / 3600)
	m := int(math.Mod(sec, 3600) / 60)
	s := math.Mod(sec, 60)
	if h > 0 {
		return fmt.Sprintf("%02d:%02d:%05.2f", h, m, s)
	}
	return fmt.Sprintf("%02d:%05.2f", m, s)
}

// Seconds formats d for ffmpeg's time options.
func Seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}
