// Copyright 2020 Bart de Boer. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package player

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bartdeboer/dashcam/clip"
	"github.com/bartdeboer/dashcam/ffmpeg"
)

// Prober reports media info for a file. ffmpeg.Tools implements it.
type Prober interface {
	Probe(ctx context.Context, path string) (ffmpeg.Info, error)
}

// Timeline maps positions in the whole sequence to positions inside clips.
type Timeline struct {
	durations []time.Duration
	starts    []time.Duration
	total     time.Duration
	// Failed holds the clips that could not be probed, by index.
	Failed map[int]error
}

// NewTimeline builds a timeline from per-clip durations. A zero duration
// marks a clip whose length is unknown.
func NewTimeline(durations []time.Duration) *Timeline {
	t := &Timeline{
		durations: durations,
		starts:    make([]time.Duration, len(durations)),
		Failed:    map[int]error{},
	}
	for i, d := range durations {
		t.starts[i] = t.total
		t.total += d
	}
	return t
}

// BuildTimeline probes every clip in seq. Clips that fail to probe get a zero
// duration and are recorded in Failed with an error matching
// clip.ErrClipDecodeFailure. Only cancellation and a missing ffprobe abort.
func BuildTimeline(ctx context.Context, p Prober, seq clip.Sequence) (*Timeline, error) {
	durations := make([]time.Duration, len(seq))
	failed := map[int]error{}
	for i, c := range seq {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		info, err := p.Probe(ctx, c.Path)
		switch {
		case err == nil:
			durations[i] = info.Duration
		case errors.Is(err, ffmpeg.ErrToolNotFound):
			return nil, err
		case ctx.Err() != nil:
			return nil, ctx.Err()
		case errors.Is(err, clip.ErrClipDecodeFailure):
			failed[i] = err
		default:
			failed[i] = fmt.Errorf("%w: %s: %w", clip.ErrClipDecodeFailure, c.Name, err)
		}
	}
	t := NewTimeline(durations)
	t.Failed = failed
	return t, nil
}

func (t *Timeline) Len() int { return len(t.durations) }

// Total is the length of the whole sequence.
func (t *Timeline) Total() time.Duration { return t.total }

// Duration of clip i, or 0 when unknown.
func (t *Timeline) Duration(i int) time.Duration {
	if i < 0 || i >= len(t.durations) {
		return 0
	}
	return t.durations[i]
}

// Start is the offset of clip i in the whole sequence.
func (t *Timeline) Start(i int) time.Duration {
	if i < 0 || i >= len(t.starts) {
		return t.total
	}
	return t.starts[i]
}

// Known reports whether clip i has a duration.
func (t *Timeline) Known(i int) bool {
	return t.Duration(i) > 0
}

// Global converts a position inside clip i to a position in the sequence.
func (t *Timeline) Global(i int, pos time.Duration) time.Duration {
	if pos < 0 {
		pos = 0
	}
	if d := t.Duration(i); d > 0 && pos > d {
		pos = d
	}
	return t.Start(i) + pos
}

// Locate finds the clip playing at global position pos and the position
// inside it. Clips of unknown length are never returned. ok is false when pos
// is at or past the end.
func (t *Timeline) Locate(pos time.Duration) (index int, local time.Duration, ok bool) {
	if pos < 0 {
		pos = 0
	}
	if pos >= t.total {
		return len(t.durations), 0, false
	}
	// First clip that ends after pos.
	i := sort.Search(len(t.durations), func(i int) bool {
		return t.starts[i]+t.durations[i] > pos
	})
	return i, pos - t.starts[i], true
}
