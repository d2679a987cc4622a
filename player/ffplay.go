// Copyright 2020 Bart de Boer. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package player

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bartdeboer/dashcam/clip"
	"github.com/bartdeboer/dashcam/ffmpeg"
)

// FFplay shows clips in an ffplay window, one process per clip. The process
// exits when the clip ends or the window is closed.
type FFplay struct {
	Tools      ffmpeg.Tools
	Width      int
	Fullscreen bool
}

func (p *FFplay) args(c clip.Clip, from time.Duration, speed float64) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-autoexit",
		"-window_title", c.Name,
	}
	if from > 0 {
		args = append(args, "-ss", ffmpeg.Seconds(from))
	}
	videoFilter, audioFilter := ffmpeg.SpeedFilters(speed)
	if videoFilter != "" {
		args = append(args, "-vf", videoFilter)
	}
	if audioFilter != "" {
		args = append(args, "-af", audioFilter)
	}
	if p.Width > 0 {
		args = append(args, "-x", strconv.Itoa(p.Width))
	}
	if p.Fullscreen {
		args = append(args, "-fs")
	}
	return append(args, c.Path)
}

func (p *FFplay) Play(ctx context.Context, c clip.Clip, from time.Duration, speed float64) error {
	cmd := p.Tools.Command(ctx, ffmpeg.FFplay, p.args(c, from, speed)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return ffmpeg.StartError(ffmpeg.FFplay, err)
	}
	err := cmd.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	// ffplay exits 0 when it cannot open or decode a file. With -loglevel
	// error anything it writes to stderr is a failure.
	if err != nil || strings.TrimSpace(stderr.String()) != "" {
		return fmt.Errorf("%w: %s: %w", clip.ErrClipDecodeFailure, c.Name,
			ffmpeg.NewExitError(ffmpeg.FFplay, err, stderr.String()))
	}
	return nil
}
