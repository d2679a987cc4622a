// Copyright 2020 Bart de Boer. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package concat joins a clip sequence into one file with ffmpeg.
package concat

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"strings"
	"time"

	"github.com/bartdeboer/dashcam/clip"
	"github.com/bartdeboer/dashcam/ffmpeg"
)

var (
	// ErrIncompatibleClips is returned in copy mode when the clips differ in
	// codec parameters.
	ErrIncompatibleClips = errors.New("incompatible clips")
	// ErrWriteFailure is returned when the output cannot be written.
	ErrWriteFailure = errors.New("write failure")
	// ErrOutputExists is returned when the output exists and overwriting was not confirmed.
	ErrOutputExists = errors.New("output already exists")
)

type Mode string

const (
	// Auto stream-copies when the clips allow it and re-encodes otherwise.
	Auto     Mode = "auto"
	Copy     Mode = "copy"
	Reencode Mode = "reencode"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return Auto, nil
	case Auto, Copy, Reencode:
		return m, nil
	}
	return "", fmt.Errorf("unknown mode %q (auto, copy, reencode)", s)
}

type Options struct {
	Output    string
	Overwrite bool
	Mode      Mode
	// Speed plays the result this many times faster. 0 and 1 keep the original speed.
	Speed float64
	// FrameRate sets the output frame rate when re-encoding. 0 keeps the source rate.
	FrameRate float64
	NoAudio   bool

	Codec        string
	Preset       string
	CRF          int
	PixelFormat  string
	AudioCodec   string
	AudioBitrate string
}

// DefaultOptions are the re-encode settings used when a field is left empty.
func DefaultOptions() Options {
	return Options{
		Mode:         Auto,
		Speed:        1,
		Codec:        "libx264",
		Preset:       "slow",
		CRF:          22,
		PixelFormat:  "yuv420p",
		AudioCodec:   "aac",
		AudioBitrate: "192k",
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Mode == "" {
		o.Mode = d.Mode
	}
	if o.Speed <= 0 {
		o.Speed = d.Speed
	}
	if o.Codec == "" {
		o.Codec = d.Codec
	}
	if o.PixelFormat == "" {
		o.PixelFormat = d.PixelFormat
	}
	if o.AudioCodec == "" {
		o.AudioCodec = d.AudioCodec
	}
	if o.AudioBitrate == "" {
		o.AudioBitrate = d.AudioBitrate
	}
	return o
}

func (o Options) changesTiming() bool {
	return math.Abs(o.Speed-1) > 1e-6 || o.FrameRate > 0
}

// Plan is a concat job whose clips have been probed.
type Plan struct {
	Clips clip.Sequence
	Infos []ffmpeg.Info
	// Mode is Copy or Reencode.
	Mode   Mode
	Reason string
	// Duration is the expected length of the output.
	Duration time.Duration
	Audio    bool
	// Filter decodes every clip as its own input and joins them with the
	// concat filter. It is set when re-encoding clips that differ.
	Filter bool
}

// Observer receives job events. Calls may come from more than one goroutine.
type Observer interface {
	OnPlan(p Plan)
	OnProgress(done, total time.Duration)
	OnLog(line string)
}

type Driver struct {
	Tools    ffmpeg.Tools
	Observer Observer
}

// Concat plans and runs a job.
func (d *Driver) Concat(ctx context.Context, seq clip.Sequence, opts Options) (Plan, error) {
	p, err := d.Plan(ctx, seq, opts)
	if err != nil {
		return p, err
	}
	return p, d.Run(ctx, p, opts)
}

// Plan probes every clip and decides between stream copy and re-encoding.
func (d *Driver) Plan(ctx context.Context, seq clip.Sequence, opts Options) (Plan, error) {
	opts = opts.withDefaults()
	p := Plan{Clips: seq, Infos: make([]ffmpeg.Info, len(seq))}
	if len(seq) == 0 {
		return p, clip.ErrNoClipsFound
	}

	for i, c := range seq {
		if err := ctx.Err(); err != nil {
			return p, err
		}
		info, err := d.Tools.Probe(ctx, c.Path)
		if err != nil {
			return p, fmt.Errorf("probe %s: %w", c.Name, err)
		}
		p.Infos[i] = info
		p.Duration += info.Duration
	}
	p.Audio = !opts.NoAudio && p.Infos[0].HasAudio

	mismatch := Mismatch(seq, p.Infos, p.Audio)

	switch opts.Mode {
	case Copy:
		if opts.changesTiming() {
			return p, errors.New("speed and frame rate changes require re-encoding")
		}
		if mismatch != "" {
			return p, fmt.Errorf("%w: %s", ErrIncompatibleClips, mismatch)
		}
		p.Mode, p.Reason = Copy, "stream copy requested"
	case Reencode:
		p.Mode, p.Reason = Reencode, "re-encode requested"
		if mismatch != "" {
			p.Reason += "; " + mismatch
		}
	default:
		switch {
		case mismatch != "":
			p.Mode, p.Reason = Reencode, mismatch
		case opts.changesTiming():
			p.Mode, p.Reason = Reencode, "speed or frame rate change"
		default:
			p.Mode, p.Reason = Copy, "all clips share codec parameters"
		}
	}

	p.Filter = p.Mode == Reencode && mismatch != ""
	p.Duration = time.Duration(float64(p.Duration) / opts.Speed)

	if d.Observer != nil {
		d.Observer.OnPlan(p)
	}
	return p, nil
}

// Mismatch names the first clip whose streams differ from the first clip, or
// returns "" when the whole sequence can be stream-copied. Audio parameters
// are only compared when audio is kept.
func Mismatch(seq clip.Sequence, infos []ffmpeg.Info, audio bool) string {
	if len(infos) == 0 {
		return ""
	}
	first := streams(infos[0], audio)
	for i := 1; i < len(infos) && i < len(seq); i++ {
		if m := first.Mismatch(streams(infos[i], audio)); m != "" {
			return fmt.Sprintf("%s differs from %s: %s", seq[i].Name, seq[0].Name, m)
		}
	}
	return ""
}

// streams drops the audio parameters when audio is not part of the output.
func streams(info ffmpeg.Info, audio bool) ffmpeg.Info {
	if !audio {
		info.HasAudio = false
		info.AudioCodec, info.AudioChannels, info.SampleRate = "", 0, 0
	}
	return info
}

// Run executes a plan. ffmpeg writes into PartialPath(opts.Output), or the next
// free name after it, which is renamed to the output on success and removed on
// failure or cancellation.
func (d *Driver) Run(ctx context.Context, p Plan, opts Options) (err error) {
	opts = opts.withDefaults()
	out := opts.Output
	if out == "" {
		return errors.New("no output path")
	}
	if len(p.Clips) == 0 {
		return clip.ErrNoClipsFound
	}

	if fi, err := os.Stat(out); err == nil {
		if fi.IsDir() {
			return fmt.Errorf("%w: %s is a directory", ErrWriteFailure, out)
		}
		if !opts.Overwrite {
			return fmt.Errorf("%w: %s", ErrOutputExists, out)
		}
	}

	partial, err := createPartial(out)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteFailure, out, err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(partial)
		}
	}()

	var list string
	if !p.Filter {
		if list, err = writeListFile(p.Clips); err != nil {
			return fmt.Errorf("write concat list: %w", err)
		}
		defer os.Remove(list)
	}

	if err := d.ffmpeg(ctx, buildArgs(p, opts, list, partial), p.Duration); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("concat canceled: %w", ctx.Err())
		}
		if isWriteError(err) {
			return fmt.Errorf("%w: %s: %w", ErrWriteFailure, out, err)
		}
		return fmt.Errorf("concat failed: %w", err)
	}

	if !opts.Overwrite {
		if _, err := os.Lstat(out); err == nil {
			return fmt.Errorf("%w: %s", ErrOutputExists, out)
		}
	}
	if err := os.Rename(partial, out); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrWriteFailure, out, err)
	}
	return nil
}

func (d *Driver) ffmpeg(ctx context.Context, args []string, total time.Duration) error {
	cmd := d.Tools.Command(ctx, ffmpeg.FFmpeg, args...)

	stderr := &lineWriter{fn: d.log, keep: 20}
	cmd.Stderr = stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("cmd.StdoutPipe() failed with %w", err)
	}
	d.log(strings.Join(cmd.Args, " "))
	if err := cmd.Start(); err != nil {
		return ffmpeg.StartError(ffmpeg.FFmpeg, err)
	}

	var last time.Duration = -1
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if ffmpeg.IsProgressEnd(line) {
			break
		}
		if pos, ok := ffmpeg.ParseProgress(line); ok {
			if pos != last {
				last = pos
				d.progress(pos, total)
			}
			continue
		}
		if line == "" || ffmpeg.IsProgressLine(line) {
			continue
		}
		d.log(line)
	}
	_, _ = io.Copy(io.Discard, stdout)

	err = cmd.Wait()
	stderr.Flush()
	if err != nil {
		return ffmpeg.NewExitError(ffmpeg.FFmpeg, err, stderr.Tail())
	}
	d.progress(total, total)
	return nil
}

// createPartial claims PartialPath(out), or the next free name after it when
// that file already exists.
func createPartial(out string) (string, error) {
	path := PartialPath(out)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		path = SafePath(path)
		f, err = os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	}
	if err != nil {
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

func (d *Driver) log(line string) {
	if d.Observer != nil {
		d.Observer.OnLog(line)
	}
}

func (d *Driver) progress(done, total time.Duration) {
	if d.Observer != nil {
		d.Observer.OnProgress(done, total)
	}
}

var writeErrors = []string{
	"no space left on device",
	"disk quota exceeded",
	"permission denied",
	"read-only file system",
	"error writing trailer",
	"error opening output",
}

func isWriteError(err error) bool {
	var ee *ffmpeg.ExitError
	if !errors.As(err, &ee) {
		return false
	}
	stderr := strings.ToLower(ee.Stderr)
	for _, s := range writeErrors {
		if strings.Contains(stderr, s) {
			return true
		}
	}
	return false
}
