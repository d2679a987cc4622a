// Copyright 2020 Bart de Boer. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package concat

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bartdeboer/dashcam/ffmpeg"
)

// ffmpeg -f concat -safe 0 -fflags +genpts -i filelist.txt -c copy output.mp4
func buildArgs(p Plan, opts Options, listFile, out string) []string {
	if p.Filter {
		return filterArgs(p, opts, out)
	}

	var args []string

	args = append(args,
		"-hide_banner", "-y",
		"-f", "concat",
		"-safe", "0",
	)
	if p.Mode == Copy {
		args = append(args, "-fflags", "+genpts")
	}
	args = append(args, "-i", listFile)

	args = append(args, "-map", "0:v:0")
	if p.Audio {
		args = append(args, "-map", "0:a:0?")
	}

	if p.Mode == Copy {
		args = append(args, "-c", "copy")
		if !p.Audio {
			args = append(args, "-an")
		}
	} else {
		args = append(args, encodeArgs(p, opts)...)
	}
	return append(args, outputArgs(out)...)
}

// ffmpeg -i a.mp4 -i b.mp4 -filter_complex "[0:v:0]...[v0];...;[v0][a0][v1][a1]concat=n=2:v=1:a=1[v][a]" -map [v] -map [a] output.mp4
//
// The concat demuxer reads every file with the decoders opened for the first
// one, so clips with different codecs or sizes are decoded one input each and
// joined by the concat filter.
func filterArgs(p Plan, opts Options, out string) []string {
	args := []string{"-hide_banner", "-y"}
	for _, c := range p.Clips {
		args = append(args, "-i", c.Path)
	}
	args = append(args, "-filter_complex", filterGraph(p, opts), "-map", "[v]")
	if p.Audio {
		args = append(args, "-map", "[a]")
	}
	if opts.FrameRate > 0 {
		args = append(args, "-r", formatRate(opts.FrameRate))
	}
	args = append(args, videoCodecArgs(opts)...)
	if p.Audio {
		if opts.AudioCodec == "copy" {
			opts.AudioCodec = DefaultOptions().AudioCodec
		}
		args = append(args, audioCodecArgs(opts)...)
	}
	return append(args, outputArgs(out)...)
}

// filterGraph scales every input to the first clip's size, frame rate and
// audio layout. Clips without audio contribute silence of their own length.
func filterGraph(p Plan, opts Options) string {
	first := p.Infos[0]
	sampleRate := first.SampleRate
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	layout := "stereo"
	if first.AudioChannels == 1 {
		layout = "mono"
	}

	var chains, pads []string
	for i, info := range p.Infos {
		var video []string
		if first.Width > 0 && first.Height > 0 {
			video = append(video,
				fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease", first.Width, first.Height),
				fmt.Sprintf("pad=%d:%d:-1:-1", first.Width, first.Height),
			)
		}
		video = append(video, "setsar=1")
		if validRate(first.FrameRate) {
			video = append(video, "fps="+first.FrameRate)
		}
		video = append(video, "format="+opts.PixelFormat)
		chains = append(chains, fmt.Sprintf("[%d:v:0]%s[v%d]", i, strings.Join(video, ","), i))
		pads = append(pads, fmt.Sprintf("[v%d]", i))

		if !p.Audio {
			continue
		}
		if info.HasAudio {
			chains = append(chains, fmt.Sprintf("[%d:a:0]aresample=%d,aformat=channel_layouts=%s[a%d]",
				i, sampleRate, layout, i))
		} else {
			chains = append(chains, fmt.Sprintf("anullsrc=channel_layout=%s:sample_rate=%d,atrim=duration=%s[a%d]",
				layout, sampleRate, ffmpeg.Seconds(info.Duration), i))
		}
		pads = append(pads, fmt.Sprintf("[a%d]", i))
	}

	videoFilter, audioFilter := ffmpeg.SpeedFilters(opts.Speed)
	var videoPost []string
	if videoFilter != "" {
		videoPost = append(videoPost, videoFilter)
	}
	if opts.FrameRate > 0 {
		videoPost = append(videoPost, "fps="+formatRate(opts.FrameRate))
	}

	audio := 0
	if p.Audio {
		audio = 1
	}
	join := fmt.Sprintf("%sconcat=n=%d:v=1:a=%d", strings.Join(pads, ""), len(p.Infos), audio)
	outputs := "[v]"
	if len(videoPost) > 0 {
		outputs = "[vc]"
	}
	if p.Audio {
		if audioFilter != "" {
			outputs += "[ac]"
		} else {
			outputs += "[a]"
		}
	}
	chains = append(chains, join+outputs)

	if len(videoPost) > 0 {
		chains = append(chains, "[vc]"+strings.Join(videoPost, ",")+"[v]")
	}
	if p.Audio && audioFilter != "" {
		chains = append(chains, "[ac]"+audioFilter+"[a]")
	}
	return strings.Join(chains, ";")
}

func validRate(r string) bool {
	n, d, ok := strings.Cut(r, "/")
	if !ok {
		f, err := strconv.ParseFloat(r, 64)
		return err == nil && f > 0
	}
	num, err1 := strconv.Atoi(n)
	den, err2 := strconv.Atoi(d)
	return err1 == nil && err2 == nil && num > 0 && den > 0
}

func encodeArgs(p Plan, opts Options) []string {
	var args []string
	var filters []string

	videoFilter, audioFilter := ffmpeg.SpeedFilters(opts.Speed)
	if videoFilter != "" {
		filters = append(filters, videoFilter)
	} else if opts.FrameRate > 0 {
		filters = append(filters, "fps="+formatRate(opts.FrameRate))
	}
	if len(filters) > 0 {
		args = append(args, "-vf", strings.Join(filters, ","))
	}
	if opts.FrameRate > 0 {
		args = append(args, "-r", formatRate(opts.FrameRate))
	}
	args = append(args, videoCodecArgs(opts)...)

	if !p.Audio {
		return append(args, "-an")
	}
	if audioFilter != "" {
		args = append(args, "-filter:a", audioFilter)
	}
	return append(args, audioCodecArgs(opts)...)
}

func videoCodecArgs(opts Options) []string {
	args := []string{
		"-pix_fmt", opts.PixelFormat,
		"-c:v", opts.Codec,
	}
	if opts.Preset != "" {
		args = append(args, "-preset", opts.Preset)
	}
	if opts.CRF >= 0 {
		args = append(args, "-crf", strconv.Itoa(opts.CRF))
	}
	return args
}

func audioCodecArgs(opts Options) []string {
	args := []string{"-c:a", opts.AudioCodec}
	if opts.AudioCodec != "copy" && opts.AudioBitrate != "" {
		args = append(args, "-b:a", opts.AudioBitrate)
	}
	return args
}

func outputArgs(out string) []string {
	var args []string
	switch strings.ToLower(filepath.Ext(out)) {
	case ".mp4", ".m4v", ".mov":
		args = append(args, "-movflags", "+faststart")
	}
	return append(args,
		"-progress", "pipe:1",
		"-nostats",
		out,
	)
}

func formatRate(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
