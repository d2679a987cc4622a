// Copyright 2020 Bart de Boer. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package player

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bartdeboer/dashcam/clip"
	"github.com/bartdeboer/dashcam/ffmpeg"
)

// DefaultSeekStep is how far the forward and backward commands move.
const DefaultSeekStep = 10 * time.Second

// Surface shows one clip. Play returns nil when the clip played to its end or
// the user closed it, and returns early when ctx is cancelled.
type Surface interface {
	Play(ctx context.Context, c clip.Clip, from time.Duration, speed float64) error
}

// Observer receives playback events from the sequencer goroutine.
type Observer interface {
	OnClipStart(s Session, c clip.Clip)
	OnClipError(c clip.Clip, err error)
	OnFinished(s Session)
}

type Options struct {
	// Start is the index of the first clip to play.
	Start int
	// Offset is the position inside the first clip.
	Offset   time.Duration
	Speed    float64
	SeekStep time.Duration
	// Timeline enables seeking across clip boundaries. Clips it lists as
	// failed are skipped.
	Timeline *Timeline
	// Now replaces time.Now.
	Now func() time.Time
}

// Sequencer advances through a clip sequence. Its Session is only touched by
// the goroutine calling Run.
type Sequencer struct {
	seq      clip.Sequence
	surface  Surface
	observer Observer
	opts     Options
	commands chan Command
	session  Session
}

func NewSequencer(seq clip.Sequence, surface Surface, observer Observer, opts Options) *Sequencer {
	if opts.SeekStep <= 0 {
		opts.SeekStep = DefaultSeekStep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Start < 0 {
		opts.Start = 0
	}
	if opts.Offset < 0 {
		opts.Offset = 0
	}
	return &Sequencer{
		seq:      seq,
		surface:  surface,
		observer: observer,
		opts:     opts,
		commands: make(chan Command, 8),
		session: Session{
			Index:    opts.Start,
			Position: opts.Offset,
			Speed:    ClampSpeed(opts.Speed),
		},
	}
}

// Commands is where user commands are sent while Run is active.
func (s *Sequencer) Commands() chan<- Command {
	return s.commands
}

// Run plays from the start clip to the end of the sequence, or until Quit or
// ctx is done. It returns the final session. The sequence is played once.
func (s *Sequencer) Run(ctx context.Context) (Session, error) {
	if len(s.seq) == 0 {
		return s.session, clip.ErrNoClipsFound
	}
	if s.session.Index >= len(s.seq) {
		return s.session, fmt.Errorf("start clip %d out of range (1-%d)", s.session.Index+1, len(s.seq))
	}

	for s.session.Index < len(s.seq) {
		c := s.seq[s.session.Index]
		if err := s.failed(s.session.Index); err != nil {
			s.clipError(c, err)
			s.advance()
			continue
		}

		quit, err := s.play(ctx, c)
		if err != nil {
			return s.session, err
		}
		if quit {
			return s.session, nil
		}
	}

	if s.observer != nil {
		s.observer.OnFinished(s.session)
	}
	return s.session, nil
}

func (s *Sequencer) failed(i int) error {
	if s.opts.Timeline == nil {
		return nil
	}
	return s.opts.Timeline.Failed[i]
}

// play runs the surface for clip c until it ends or a command changes what
// should be playing.
func (s *Sequencer) play(ctx context.Context, c clip.Clip) (quit bool, err error) {
	playCtx, stop := context.WithCancel(ctx)
	defer stop()

	from, speed := s.session.Position, s.session.Speed
	started := s.opts.Now()
	done := make(chan error, 1)
	go func() {
		done <- s.surface.Play(playCtx, c, from, speed)
	}()
	if s.observer != nil {
		s.observer.OnClipStart(s.session, c)
	}

	for {
		select {
		case err := <-done:
			if ctx.Err() != nil {
				return false, ctx.Err()
			}
			if err != nil {
				if errors.Is(err, ffmpeg.ErrToolNotFound) {
					return false, err
				}
				s.clipError(c, err)
			}
			s.advance()
			return false, nil

		case cmd := <-s.commands:
			s.session.Position = from + time.Duration(float64(s.opts.Now().Sub(started))*speed)
			if d := s.duration(s.session.Index); d > 0 && s.session.Position > d {
				s.session.Position = d
			}
			changed := s.apply(cmd)
			if !changed && cmd != Quit {
				continue
			}
			stop()
			<-done
			return cmd == Quit, nil

		case <-ctx.Done():
			stop()
			<-done
			return false, ctx.Err()
		}
	}
}

// apply changes the session for cmd and reports whether the surface has to
// be restarted.
func (s *Sequencer) apply(cmd Command) bool {
	switch cmd {
	case Next:
		s.advance()
	case Previous:
		if s.session.Index > 0 {
			s.session.Index--
		}
		s.session.Position = 0
	case Forward:
		s.seek(s.opts.SeekStep)
	case Backward:
		s.seek(-s.opts.SeekStep)
	case Restart:
		s.session.Position = 0
	case Faster, Slower:
		step := 1
		if cmd == Slower {
			step = -1
		}
		speed := NudgeSpeed(s.session.Speed, step)
		if speed == s.session.Speed {
			return false
		}
		s.session.Speed = speed
	default:
		return false
	}
	return true
}

// seek moves by delta, crossing into neighbouring clips when their lengths
// are known. Seeking past the last clip ends playback.
func (s *Sequencer) seek(delta time.Duration) {
	tl := s.opts.Timeline
	if tl != nil && tl.Len() == len(s.seq) && tl.Known(s.session.Index) {
		index, local, ok := tl.Locate(tl.Global(s.session.Index, s.session.Position) + delta)
		if !ok {
			s.session.Index, s.session.Position = len(s.seq), 0
			return
		}
		s.session.Index, s.session.Position = index, local
		return
	}

	pos := s.session.Position + delta
	if pos < 0 {
		pos = 0
	}
	if d := s.duration(s.session.Index); d > 0 && pos >= d {
		s.advance()
		return
	}
	s.session.Position = pos
}

func (s *Sequencer) advance() {
	s.session.Index++
	s.session.Position = 0
}

func (s *Sequencer) duration(i int) time.Duration {
	if s.opts.Timeline == nil {
		return 0
	}
	return s.opts.Timeline.Duration(i)
}

// clipError reports a clip that could not be played. The sequencer moves on.
func (s *Sequencer) clipError(c clip.Clip, err error) {
	if !errors.Is(err, clip.ErrClipDecodeFailure) {
		err = fmt.Errorf("%w: %s: %w", clip.ErrClipDecodeFailure, c.Name, err)
	}
	if s.observer != nil {
		s.observer.OnClipError(c, err)
	}
}
