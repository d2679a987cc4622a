// Copyright 2020 Bart de Boer. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bartdeboer/dashcam/clip"
)

// Info is what ffprobe reports about the first video and audio stream of a file.
type Info struct {
	Duration      time.Duration
	VideoCodec    string
	Width         int
	Height        int
	PixelFormat   string
	FrameRate     string
	HasAudio      bool
	AudioCodec    string
	AudioChannels int
	SampleRate    int
}

// Probe inspects path. A file ffprobe cannot read, or one without a video
// stream, yields an error matching clip.ErrClipDecodeFailure.
func (t Tools) Probe(ctx context.Context, path string) (Info, error) {
	var info Info

	video, err := keyValues(t.Command(ctx, FFprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_format",
		"-show_streams",
		"-of", "default=noprint_wrappers=1",
		"-i", path,
	), FFprobe, "=")
	if err != nil {
		return info, decodeError(path, err)
	}
	if video["codec_name"] == "" {
		return info, fmt.Errorf("%w: %s: no video stream", clip.ErrClipDecodeFailure, path)
	}

	width, _ := strconv.Atoi(video["width"])
	height, _ := strconv.Atoi(video["height"])
	info.Duration = parseSeconds(video["duration"])
	info.VideoCodec = video["codec_name"]
	info.Width = width
	info.Height = height
	info.PixelFormat = video["pix_fmt"]
	info.FrameRate = video["r_frame_rate"]

	audio, err := keyValues(t.Command(ctx, FFprobe,
		"-v", "error",
		"-select_streams", "a:0",
		"-show_streams",
		"-of", "default=noprint_wrappers=1",
		"-i", path,
	), FFprobe, "=")
	if err != nil {
		return info, decodeError(path, err)
	}
	if len(audio) == 0 {
		return info, nil
	}

	channels, _ := strconv.Atoi(audio["channels"])
	sampleRate, _ := strconv.Atoi(audio["sample_rate"])
	info.HasAudio = true
	info.AudioCodec = audio["codec_name"]
	info.AudioChannels = channels
	info.SampleRate = sampleRate
	return info, nil
}

func decodeError(path string, err error) error {
	var ee *ExitError
	if errors.As(err, &ee) {
		return fmt.Errorf("%w: %s: %w", clip.ErrClipDecodeFailure, path, err)
	}
	return err
}

func parseSeconds(s string) time.Duration {
	seconds, err := strconv.ParseFloat(s, 64)
	if err != nil || seconds < 0 {
		return 0
	}
	return time.Duration(seconds * float64(time.Second))
}

// Mismatch describes the first stream parameter in which o differs from i, or
// returns "" when the two can be joined without re-encoding.
func (i Info) Mismatch(o Info) string {
	switch {
	case i.VideoCodec != o.VideoCodec:
		return fmt.Sprintf("video codec %s != %s", i.VideoCodec, o.VideoCodec)
	case i.Width != o.Width || i.Height != o.Height:
		return fmt.Sprintf("resolution %dx%d != %dx%d", i.Width, i.Height, o.Width, o.Height)
	case i.PixelFormat != o.PixelFormat:
		return fmt.Sprintf("pixel format %s != %s", i.PixelFormat, o.PixelFormat)
	case i.FrameRate != o.FrameRate:
		return fmt.Sprintf("frame rate %s != %s", i.FrameRate, o.FrameRate)
	case i.HasAudio != o.HasAudio:
		return fmt.Sprintf("audio stream %s != %s", presence(i.HasAudio), presence(o.HasAudio))
	case !i.HasAudio:
		return ""
	case i.AudioCodec != o.AudioCodec:
		return fmt.Sprintf("audio codec %s != %s", i.AudioCodec, o.AudioCodec)
	case i.AudioChannels != o.AudioChannels:
		return fmt.Sprintf("audio channels %d != %d", i.AudioChannels, o.AudioChannels)
	case i.SampleRate != o.SampleRate:
		return fmt.Sprintf("sample rate %d != %d", i.SampleRate, o.SampleRate)
	}
	return ""
}

func presence(ok bool) string {
	if ok {
		return "present"
	}
	return "missing"
}
