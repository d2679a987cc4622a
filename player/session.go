// Copyright 2020 Bart de Boer. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package player plays a clip sequence back to back as one continuous stream.
package player

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Session is the viewer state: the clip being played, the position inside it
// and the playback speed.
type Session struct {
	Index    int
	Position time.Duration
	Speed    float64
}

func (s Session) String() string {
	return fmt.Sprintf("clip %d at %s, %gx", s.Index+1, s.Position.Round(time.Millisecond), s.Speed)
}

// SpeedChoices are the speeds the faster and slower commands step through.
var SpeedChoices = []float64{0.25, 0.5, 0.75, 1, 1.25, 1.5, 2, 3, 4}

// NudgeSpeed moves step choices away from the choice closest to speed.
func NudgeSpeed(speed float64, step int) float64 {
	idx := 0
	for i, s := range SpeedChoices {
		if math.Abs(s-speed) < math.Abs(SpeedChoices[idx]-speed) {
			idx = i
		}
	}
	idx += step
	if idx < 0 {
		idx = 0
	}
	if idx >= len(SpeedChoices) {
		idx = len(SpeedChoices) - 1
	}
	return SpeedChoices[idx]
}

// ClampSpeed limits speed to the range of SpeedChoices. 0 means normal speed.
func ClampSpeed(speed float64) float64 {
	if speed == 0 {
		return 1
	}
	lo, hi := SpeedChoices[0], SpeedChoices[len(SpeedChoices)-1]
	return math.Max(lo, math.Min(hi, speed))
}

type Command int

const (
	Next Command = iota
	Previous
	Forward
	Backward
	Restart
	Faster
	Slower
	Quit
)

var commandNames = map[Command]string{
	Next:     "next",
	Previous: "previous",
	Forward:  "forward",
	Backward: "backward",
	Restart:  "restart",
	Faster:   "faster",
	Slower:   "slower",
	Quit:     "quit",
}

func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("Command(%d)", int(c))
}

// ParseCommand reads one line of terminal input. Both the single keys from
// Help and the command names are accepted.
func ParseCommand(s string) (Command, bool) {
	switch s = strings.ToLower(strings.TrimSpace(s)); s {
	case "n", ">", ".":
		return Next, true
	case "p", "<", ",":
		return Previous, true
	case "+", "f", "l":
		return Forward, true
	case "-", "b", "h":
		return Backward, true
	case "r", "0":
		return Restart, true
	case "]":
		return Faster, true
	case "[":
		return Slower, true
	case "q", "x", "exit":
		return Quit, true
	}
	for c, name := range commandNames {
		if s == name {
			return c, true
		}
	}
	return 0, false
}

// Help lists the terminal commands.
const Help = `n  next clip        p  previous clip
+  seek forward      -  seek backward
r  restart clip      ]  faster   [  slower
q  quit`
