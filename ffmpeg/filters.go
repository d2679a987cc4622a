// Copyright 2020 Bart de Boer. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ffmpeg

import (
	"math"
	"strconv"
	"strings"
)

// AtempoChain splits a speed factor into atempo steps, each within the 0.5 to
// 2.0 range the filter accepts. Speed 1 yields no steps.
func AtempoChain(speed float64) []float64 {
	var steps []float64
	if speed <= 0 {
		return steps
	}
	for speed < 0.5 {
		steps = append(steps, 0.5)
		speed /= 0.5
	}
	for speed > 2.0 {
		steps = append(steps, 2.0)
		speed /= 2.0
	}
	if math.Abs(speed-1.0) > 1e-6 {
		steps = append(steps, speed)
	}
	return steps
}

// SpeedFilters returns the video and audio filters that play a stream speed
// times faster. Both are empty at normal speed.
func SpeedFilters(speed float64) (video string, audio string) {
	if speed <= 0 || math.Abs(speed-1.0) <= 1e-6 {
		return "", ""
	}
	video = "setpts=PTS/" + formatFactor(speed)
	steps := AtempoChain(speed)
	parts := make([]string, len(steps))
	for i, s := range steps {
		parts[i] = "atempo=" + formatFactor(s)
	}
	return video, strings.Join(parts, ",")
}

func formatFactor(f float64) string {
	return strconv.FormatFloat(f, 'g', 6, 64)
}
