// Copyright 2020 Bart de Boer. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import "fmt"

var presets = []string{"copy", "review", "timelapse", "archive"}

// SetPreset overrides initial with the settings of a named preset. Flags
// given on the command line are applied afterwards.
func SetPreset(initial *Config, preset string) error {
	switch preset {
	case "":
		break
	case "copy":
		initial.Concat.Mode = "copy"
		initial.Concat.Speed = 1
		initial.Concat.FPS = 0
	case "review":
		initial.View.Speed = 3
		initial.Concat.Mode = "reencode"
		initial.Concat.Speed = 3
		initial.Concat.FPS = 60
	case "timelapse":
		initial.View.Speed = 4
		initial.Concat.Mode = "reencode"
		initial.Concat.Speed = 10
		initial.Concat.NoAudio = true
	case "archive":
		initial.Concat.Mode = "reencode"
		initial.Concat.Codec = "libx265"
		initial.Concat.EncoderPreset = "medium"
		initial.Concat.CRF = 28
		initial.Concat.AudioBitrate = "128k"
	default:
		return fmt.Errorf("unknown preset %q (%v)", preset, presets)
	}
	initial.Preset = preset
	return nil
}
