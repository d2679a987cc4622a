// Copyright 2020 Bart de Boer. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ffmpeg

import (
	"strconv"
	"strings"
	"time"
)

// ParseProgress reads one line written by `-progress` and returns the output
// position it reports. Lines without a position return false.
func ParseProgress(line string) (time.Duration, bool) {
	key, value := splitKeyValue(line, "=")
	switch key {
	case "out_time_us", "out_time_ms":
		// out_time_ms is in microseconds too.
		us, err := strconv.ParseInt(value, 10, 64)
		if err != nil || us < 0 {
			return 0, false
		}
		return time.Duration(us) * time.Microsecond, true
	case "out_time":
		if strings.HasPrefix(value, "-") {
			return 0, false
		}
		d, err := ParseClock(value)
		if err != nil {
			return 0, false
		}
		return d, true
	}
	return 0, false
}

// IsProgressEnd reports whether line is the last record of a progress block
// written after the output has been finalized.
func IsProgressEnd(line string) bool {
	key, value := splitKeyValue(line, "=")
	return key == "progress" && value == "end"
}

// IsProgressLine reports whether line belongs to the `-progress` key=value stream.
func IsProgressLine(line string) bool {
	key, _ := splitKeyValue(line, "=")
	switch key {
	case "frame", "fps", "stream_0_0_q", "bitrate", "total_size", "out_time_us",
		"out_time_ms", "out_time", "dup_frames", "drop_frames", "speed", "progress":
		return true
	}
	return strings.HasPrefix(key, "stream_")
}
