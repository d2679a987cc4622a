// Copyright 2020 Bart de Boer. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tm "github.com/buger/goterm"

	"github.com/bartdeboer/dashcam/clip"
	"github.com/bartdeboer/dashcam/concat"
	"github.com/bartdeboer/dashcam/ffmpeg"
	"github.com/spf13/cobra"
)

func (a *app) listCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [folder]",
		Args:  cobra.MaximumNArgs(1),
		Short: "List and probe the clips of a folder",
		Long:  "List the clips of a folder in playback order with their stream parameters, and report whether they can be joined without re-encoding",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.list(cmd.Context(), args)
		},
	}
}

func (a *app) list(ctx context.Context, args []string) error {
	tools := a.tools()
	if err := tools.Check(ffmpeg.FFprobe); err != nil {
		return a.fail("Missing tools", err)
	}
	dir, seq, err := a.openFolder(args, "Select folder with dashcam clips")
	if err != nil {
		return a.fail("No clips", err)
	}

	table := tm.NewTable(0, 4, 2, ' ', 0)
	fmt.Fprintln(table, "#\tNAME\tTIME\tDURATION\tVIDEO\tAUDIO")

	var (
		infos  []ffmpeg.Info
		probed clip.Sequence
		broken int
		total  time.Duration
	)
	for _, c := range seq {
		info, err := tools.Probe(ctx, c.Path)
		if err != nil {
			if !errors.Is(err, clip.ErrClipDecodeFailure) {
				fmt.Fprint(a.out, table)
				return a.fail("Probe failed", err)
			}
			broken++
			fmt.Fprintf(table, "%d\t%s\t%s\t%s\t\t\n", c.Index+1, c.Name, clipTime(c), "unreadable")
			a.log.Printf("probe %s: %v", c.Name, err)
			continue
		}
		infos = append(infos, info)
		probed = append(probed, c)
		total += info.Duration
		fmt.Fprintf(table, "%d\t%s\t%s\t%s\t%s\t%s\n",
			c.Index+1, c.Name, clipTime(c), ffmpeg.FormatClock(info.Duration), videoSummary(info), audioSummary(info))
	}
	fmt.Fprint(a.out, table)

	fmt.Fprintf(a.out, "\n%d clips in %s, %s\n", len(seq), dir, ffmpeg.FormatClock(total))
	switch {
	case broken > 0:
		fmt.Fprintln(a.out, tm.Color(fmt.Sprintf("%d clip(s) cannot be read; concat will fail until they are removed", broken), tm.RED))
	case len(infos) > 0:
		if m := concat.Mismatch(probed, infos, infos[0].HasAudio); m != "" {
			fmt.Fprintln(a.out, tm.Color("Needs re-encoding: "+m, tm.YELLOW))
		} else {
			fmt.Fprintln(a.out, tm.Color("Clips can be joined by stream copy", tm.GREEN))
		}
	}
	return nil
}

func clipTime(c clip.Clip) string {
	if c.Time.IsZero() {
		return "-"
	}
	return c.Time.Format("2006-01-02 15:04:05")
}

func videoSummary(i ffmpeg.Info) string {
	return fmt.Sprintf("%s %dx%d %s %s fps", i.VideoCodec, i.Width, i.Height, i.PixelFormat, frameRate(i.FrameRate))
}

func audioSummary(i ffmpeg.Info) string {
	if !i.HasAudio {
		return "none"
	}
	return fmt.Sprintf("%s %dch %d Hz", i.AudioCodec, i.AudioChannels, i.SampleRate)
}

// frameRate renders ffprobe's "30000/1001" as "29.97".
func frameRate(r string) string {
	n, d, ok := strings.Cut(r, "/")
	num, err1 := strconv.ParseFloat(n, 64)
	den, err2 := strconv.ParseFloat(d, 64)
	if !ok || err1 != nil || err2 != nil || den == 0 {
		return r
	}
	s := strconv.FormatFloat(num/den, 'f', 2, 64)
	return strings.TrimRight(strings.TrimRight(s, "0"), ".")
}
