// Copyright 2020 Bart de Boer. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tm "github.com/buger/goterm"

	"github.com/bartdeboer/dashcam/clip"
	"github.com/bartdeboer/dashcam/concat"
	"github.com/bartdeboer/dashcam/ffmpeg"
	"github.com/spf13/cobra"
)

// ffmpeg -f concat -safe 0 -fflags +genpts -i "filelist.txt" -c copy "output.mp4"
func (a *app) concatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "concat [folder]",
		Args:  cobra.MaximumNArgs(1),
		Short: "Join a folder of clips into one file",
		Long:  "Join the clips of a folder into one file using ffmpeg's concat demuxer, stream-copying when the clips allow it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.concat(cmd.Context(), args)
		},
	}

	f := cmd.Flags()
	c := &a.initial.Concat
	f.StringVarP(&c.Output, "output", "o", c.Output, usage(a.initial, "Concat.Output"))
	f.BoolVar(&c.Overwrite, "overwrite", c.Overwrite, usage(a.initial, "Concat.Overwrite"))
	f.StringVar(&c.Mode, "mode", c.Mode, usage(a.initial, "Concat.Mode"))
	f.Float64Var(&c.Speed, "speed", c.Speed, usage(a.initial, "Concat.Speed"))
	f.Float64Var(&c.FPS, "fps", c.FPS, usage(a.initial, "Concat.FPS"))
	f.BoolVar(&c.NoAudio, "no-audio", c.NoAudio, usage(a.initial, "Concat.NoAudio"))
	f.StringVar(&c.Codec, "codec", c.Codec, usage(a.initial, "Concat.Codec"))
	f.StringVar(&c.EncoderPreset, "encoder-preset", c.EncoderPreset, usage(a.initial, "Concat.EncoderPreset"))
	f.IntVar(&c.CRF, "crf", c.CRF, usage(a.initial, "Concat.CRF"))
	f.StringVar(&c.PixelFormat, "pix-fmt", c.PixelFormat, usage(a.initial, "Concat.PixelFormat"))
	f.StringVar(&c.AudioCodec, "audio-codec", c.AudioCodec, usage(a.initial, "Concat.AudioCodec"))
	f.StringVar(&c.AudioBitrate, "audio-bitrate", c.AudioBitrate, usage(a.initial, "Concat.AudioBitrate"))
	return cmd
}

func (a *app) concat(ctx context.Context, args []string) error {
	opts, err := a.initial.Concat.options()
	if err != nil {
		return err
	}
	tools := a.tools()
	if err := tools.Check(ffmpeg.FFmpeg, ffmpeg.FFprobe); err != nil {
		return a.fail("Missing tools", err)
	}

	dir, _, err := a.openFolder(args, "Select folder with dashcam clips")
	if err != nil {
		return a.fail("No clips", err)
	}

	if opts.Output == "" {
		if opts.Output, err = a.picker.SaveFile("Save joined video as", concat.DefaultOutput(dir)); err != nil {
			return a.fail("No output", err)
		}
	}
	if opts.Output, err = filepath.Abs(opts.Output); err != nil {
		return a.fail("No output", err)
	}
	if fi, err := os.Stat(opts.Output); err == nil && !fi.IsDir() && !opts.Overwrite {
		if !a.picker.Confirm("Output exists", opts.Output+" already exists. Replace it?") {
			return a.fail("Output exists", fmt.Errorf("%w: %s", concat.ErrOutputExists, opts.Output))
		}
		opts.Overwrite = true
	}

	// The output and its partial file never join themselves.
	seq, err := clip.Enumerate(dir, a.initial.clipOptions(opts.Output, concat.PartialPath(opts.Output)))
	if err != nil {
		return a.fail("No clips", err)
	}

	ui := newProgressUI(a.out, a.log, len(seq))
	driver := &concat.Driver{Tools: tools, Observer: ui}
	plan, err := driver.Concat(ctx, seq, opts)
	if err != nil {
		return a.fail("Concat failed", err)
	}

	msg := fmt.Sprintf("Wrote %s (%d clips, %s)", opts.Output, len(plan.Clips), ffmpeg.FormatClock(plan.Duration))
	fmt.Fprintln(a.out, tm.Color(msg, tm.GREEN))
	if !a.initial.NoGUI {
		a.picker.Info("Done", msg)
	}
	return nil
}
