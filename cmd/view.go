// Copyright 2020 Bart de Boer. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/bartdeboer/dashcam/clip"
	"github.com/bartdeboer/dashcam/ffmpeg"
	"github.com/bartdeboer/dashcam/player"
	"github.com/spf13/cobra"
)

func (a *app) viewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "view [folder]",
		Args:  cobra.MaximumNArgs(1),
		Short: "Play a folder of clips",
		Long:  "Play the clips of a folder back to back with ffplay. Commands are read from the terminal: " + strings.ReplaceAll(player.Help, "\n", ", "),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.view(cmd.Context(), args)
		},
	}

	f := cmd.Flags()
	v := &a.initial.View
	f.Float64Var(&v.Speed, "speed", v.Speed, usage(a.initial, "View.Speed"))
	f.StringVar(&v.Start, "start", v.Start, usage(a.initial, "View.Start"))
	f.DurationVar(&v.SeekStep, "seek-step", v.SeekStep, usage(a.initial, "View.SeekStep"))
	f.IntVar(&v.Width, "width", v.Width, usage(a.initial, "View.Width"))
	f.BoolVar(&v.Fullscreen, "fullscreen", v.Fullscreen, usage(a.initial, "View.Fullscreen"))
	f.BoolVar(&v.NoProbe, "no-probe", v.NoProbe, usage(a.initial, "View.NoProbe"))
	return cmd
}

func (a *app) view(ctx context.Context, args []string) error {
	v := a.initial.View
	tools := a.tools()

	needed := []ffmpeg.Tool{ffmpeg.FFplay}
	if !v.NoProbe {
		needed = append(needed, ffmpeg.FFprobe)
	}
	if err := tools.Check(needed...); err != nil {
		return a.fail("Missing tools", err)
	}

	dir, seq, err := a.openFolder(args, "Select folder with dashcam clips")
	if err != nil {
		return a.fail("No clips", err)
	}
	a.log.Printf("playing %d clips from %s", len(seq), dir)

	start, offset, err := parseStart(seq, v.Start)
	if err != nil {
		return a.fail("Invalid start", err)
	}

	var timeline *player.Timeline
	if !v.NoProbe {
		if timeline, err = player.BuildTimeline(ctx, tools, seq); err != nil {
			return a.fail("Probe failed", err)
		}
		fmt.Fprintf(a.out, "%d clips, %s\n", len(seq), ffmpeg.FormatClock(timeline.Total()))
	}

	ui := newProgressUI(a.out, a.log, len(seq))
	surface := &player.FFplay{Tools: tools, Width: v.Width, Fullscreen: v.Fullscreen}
	sequencer := player.NewSequencer(seq, surface, ui, player.Options{
		Start:    start,
		Offset:   offset,
		Speed:    v.Speed,
		SeekStep: v.SeekStep,
		Timeline: timeline,
	})

	fmt.Fprintln(a.out, player.Help)
	readCtx, stop := context.WithCancel(ctx)
	defer stop()
	go readCommands(readCtx, a.in, sequencer.Commands(), func(line string) {
		fmt.Fprintf(a.out, "unknown command %q\n", line)
	})

	session, err := sequencer.Run(ctx)
	a.log.Printf("stopped at %s", session)
	if err != nil {
		return a.fail("Playback failed", err)
	}
	if msg := ui.skipSummary(); msg != "" && !a.initial.NoGUI {
		a.picker.Info("Playback finished", msg)
	}
	return nil
}

// readCommands forwards terminal input to the sequencer until input ends,
// Quit is read or ctx is done.
func readCommands(ctx context.Context, in io.Reader, commands chan<- player.Command, unknown func(string)) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, ok := player.ParseCommand(line)
		if !ok {
			unknown(line)
			continue
		}
		select {
		case commands <- cmd:
		case <-ctx.Done():
			return
		}
		if cmd == player.Quit {
			return
		}
	}
}

// parseStart resolves "3", "clip3.mp4", "3@1:30" or "@1:30" to a clip index
// and a position inside that clip.
func parseStart(seq clip.Sequence, s string) (int, time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0, nil
	}

	var offset time.Duration
	if i := strings.LastIndex(s, "@"); i >= 0 {
		d, err := ffmpeg.ParseClock(s[i+1:])
		if err != nil {
			return 0, 0, err
		}
		offset, s = d, s[:i]
	}
	if s == "" {
		return 0, offset, nil
	}

	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 || n > len(seq) {
			return 0, 0, fmt.Errorf("clip %d out of range (1-%d)", n, len(seq))
		}
		return n - 1, offset, nil
	}
	for _, c := range seq {
		if strings.EqualFold(c.Name, s) {
			return c.Index, offset, nil
		}
	}
	return 0, 0, fmt.Errorf("no clip named %q", s)
}
