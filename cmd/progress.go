// Copyright 2020 Bart de Boer. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	tm "github.com/buger/goterm"

	"github.com/bartdeboer/dashcam/clip"
	"github.com/bartdeboer/dashcam/concat"
	"github.com/bartdeboer/dashcam/ffmpeg"
	"github.com/bartdeboer/dashcam/player"
)

var (
	_ concat.Observer = (*progressUI)(nil)
	_ player.Observer = (*progressUI)(nil)
)

// progressUI prints job and playback events as terminal lines.
type progressUI struct {
	w   io.Writer
	log *log.Logger
	now func() time.Time

	mu        sync.Mutex
	clips     int
	startedAt time.Time
	lastPct   int
	skipped   []string
	finished  bool
}

func newProgressUI(w io.Writer, logger *log.Logger, clips int) *progressUI {
	return &progressUI{w: w, log: logger, now: time.Now, clips: clips, lastPct: -1}
}

func (p *progressUI) OnPlan(plan concat.Plan) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.startedAt = p.now()
	how := tm.Color("stream copy", tm.GREEN)
	if plan.Mode == concat.Reencode {
		how = tm.Color("re-encoding", tm.YELLOW)
	}
	fmt.Fprintf(p.w, "Joining %d clips (%s) by %s: %s\n",
		len(plan.Clips), ffmpeg.FormatClock(plan.Duration), how, plan.Reason)
}

// OnProgress prints a line for every whole percent.
func (p *progressUI) OnProgress(done, total time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pct := 0
	if total > 0 {
		pct = int(done * 100 / total)
	}
	if pct > 100 {
		pct = 100
	}
	if pct <= p.lastPct {
		return
	}
	p.lastPct = pct

	eta := ""
	if elapsed := p.now().Sub(p.startedAt); pct > 0 && pct < 100 && !p.startedAt.IsZero() {
		remaining := time.Duration(float64(elapsed) * float64(100-pct) / float64(pct))
		eta = " eta " + ffmpeg.FormatClock(remaining)
	}
	fmt.Fprintf(p.w, "[%3d%%] %s / %s%s\n", pct, ffmpeg.FormatClock(done), ffmpeg.FormatClock(total), eta)
}

func (p *progressUI) OnLog(line string) {
	p.log.Println(line)
}

func (p *progressUI) OnClipStart(s player.Session, c clip.Clip) {
	p.mu.Lock()
	defer p.mu.Unlock()

	from := ""
	if s.Position > 0 {
		from = " from " + ffmpeg.FormatClock(s.Position)
	}
	stamp := ""
	if !c.Time.IsZero() {
		stamp = " " + c.Time.Format("2006-01-02 15:04:05")
	}
	fmt.Fprintf(p.w, "%s %s%s%s (%gx)\n",
		tm.Color(fmt.Sprintf("[%d/%d]", s.Index+1, p.clips), tm.CYAN), c.Name, stamp, from, s.Speed)
}

func (p *progressUI) OnClipError(c clip.Clip, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.skipped = append(p.skipped, c.Name)
	fmt.Fprintf(p.w, "%s %s: %v\n", tm.Color("Skipping", tm.YELLOW), c.Name, err)
}

func (p *progressUI) OnFinished(s player.Session) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.finished = true
	msg := "Finished"
	if len(p.skipped) > 0 {
		msg = fmt.Sprintf("Finished, %d clip(s) skipped", len(p.skipped))
	}
	fmt.Fprintln(p.w, tm.Color(msg, tm.GREEN))
}

// skipSummary names the clips skipped during a playback that ran to the end,
// or returns "" when none were.
func (p *progressUI) skipSummary() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.finished || len(p.skipped) == 0 {
		return ""
	}
	return fmt.Sprintf("%d clip(s) could not be played and were skipped:\n%s",
		len(p.skipped), strings.Join(p.skipped, "\n"))
}
