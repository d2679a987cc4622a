// Copyright 2020 Bart de Boer. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package clip finds dashcam clips in a folder and puts them in capture order.
package clip

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrDirectoryUnreadable is returned when the folder does not exist, is not a
	// folder, or cannot be listed.
	ErrDirectoryUnreadable = errors.New("directory unreadable")
	// ErrNoClipsFound is returned when the folder holds no file with a recognized extension.
	ErrNoClipsFound = errors.New("no clips found")
	// ErrClipDecodeFailure marks a clip that could not be opened or decoded.
	ErrClipDecodeFailure = errors.New("clip decode failure")
)

// DefaultExtensions is the recording format written by most dashcams.
var DefaultExtensions = []string{".mp4"}

// Clip is one recorded segment.
type Clip struct {
	Path  string
	Name  string
	Index int
	// Time is the capture time embedded in the filename, zero when there is none.
	Time time.Time
}

func (c Clip) String() string {
	return c.Name
}

// Sequence is a folder's clips in playback order.
type Sequence []Clip

type Options struct {
	// Extensions to accept, with or without the leading dot. Empty means DefaultExtensions.
	Extensions []string
	// Natural compares digit runs by value (clip2 before clip10) instead of byte by byte.
	Natural bool
	// Exclude lists paths that are never returned.
	Exclude []string
}

// Enumerate lists the clips directly inside dir, sorted by filename.
func Enumerate(dir string, opts Options) (Sequence, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDirectoryUnreadable, err)
	}

	exts := normalizeExtensions(opts.Extensions)
	excluded := make(map[string]bool, len(opts.Exclude))
	for _, x := range opts.Exclude {
		excluded[cleanAbs(x)] = true
	}

	seq := make(Sequence, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if !exts[strings.ToLower(filepath.Ext(name))] {
			continue
		}
		path := filepath.Join(dir, name)
		// Stat follows symlinks so a linked clip counts as a file.
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		if excluded[cleanAbs(path)] {
			continue
		}
		ts, _ := ParseTime(name)
		seq = append(seq, Clip{Path: path, Name: name, Time: ts})
	}

	if len(seq) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoClipsFound, dir)
	}

	less := func(i, j int) bool { return seq[i].Name < seq[j].Name }
	if opts.Natural {
		less = func(i, j int) bool { return naturalLess(seq[i].Name, seq[j].Name) }
	}
	sort.SliceStable(seq, less)

	for i := range seq {
		seq[i].Index = i
	}
	return seq, nil
}

func normalizeExtensions(exts []string) map[string]bool {
	if len(exts) == 0 {
		exts = DefaultExtensions
	}
	set := make(map[string]bool, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		set[ext] = true
	}
	return set
}

func cleanAbs(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

var timestampRE = regexp.MustCompile(`(\d{4})(\d{2})(\d{2})[_-]?(\d{2})(\d{2})(\d{2})`)

// ParseTime extracts a YYYYMMDD_HHMMSS style timestamp from a clip name. The
// separator between date and time may be '_', '-' or absent.
func ParseTime(name string) (time.Time, bool) {
	m := timestampRE.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, false
	}
	ts, err := time.ParseInLocation("20060102150405", strings.Join(m[1:], ""), time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

var chunkRE = regexp.MustCompile(`\d+|\D+`)

func naturalLess(a, b string) bool {
	ca := chunkRE.FindAllString(a, -1)
	cb := chunkRE.FindAllString(b, -1)
	for i := 0; i < len(ca) && i < len(cb); i++ {
		x, y := ca[i], cb[i]
		if x == y {
			continue
		}
		nx, errX := strconv.ParseUint(x, 10, 64)
		ny, errY := strconv.ParseUint(y, 10, 64)
		switch {
		case errX == nil && errY == nil:
			if nx != ny {
				return nx < ny
			}
			// 007 and 7: shorter first so the order stays total.
			if len(x) != len(y) {
				return len(x) < len(y)
			}
		case errX == nil:
			return true
		case errY == nil:
			return false
		default:
			lx, ly := strings.ToLower(x), strings.ToLower(y)
			if lx != ly {
				return lx < ly
			}
		}
	}
	if len(ca) != len(cb) {
		return len(ca) < len(cb)
	}
	return a < b
}
