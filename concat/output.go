// Copyright 2020 Bart de Boer. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package concat

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bartdeboer/dashcam/clip"
)

// DefaultName is the output file name suggested inside the clip folder.
const DefaultName = "concatenated_output.mp4"

// DefaultOutput suggests an output path in dir that does not exist yet.
func DefaultOutput(dir string) string {
	return SafePath(filepath.Join(dir, DefaultName))
}

// PartialPath is where the output is written until ffmpeg finishes:
// trip.mp4 becomes trip.incomplete.mp4.
func PartialPath(out string) string {
	ext := filepath.Ext(out)
	return strings.TrimSuffix(out, ext) + ".incomplete" + ext
}

// SafePath returns path, or the first of path.1.ext, path.2.ext, ... that does not exist.
func SafePath(path string) string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	safePath := base + ext
	_, err := os.Stat(safePath)
	for i := 1; err == nil; i++ {
		safePath = base + "." + strconv.FormatInt(int64(i), 10) + ext
		_, err = os.Stat(safePath)
	}
	return safePath
}

// listFile renders the concat demuxer script for seq.
func listFile(seq clip.Sequence) (string, error) {
	var buf bytes.Buffer
	for _, c := range seq {
		p, err := filepath.Abs(c.Path)
		if err != nil {
			return "", err
		}
		p = strings.ReplaceAll(filepath.ToSlash(p), "'", `'\''`)
		fmt.Fprintf(&buf, "file '%s'\n", p)
	}
	return buf.String(), nil
}

func writeListFile(seq clip.Sequence) (string, error) {
	data, err := listFile(seq)
	if err != nil {
		return "", err
	}
	f, err := os.CreateTemp("", "dashcam-concat-*.txt")
	if err != nil {
		return "", err
	}
	if _, err := f.WriteString(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

// lineWriter hands every complete line written to it to fn and remembers the
// last keep lines.
type lineWriter struct {
	fn   func(string)
	keep int
	buf  []byte
	tail []string
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexAny(w.buf, "\r\n")
		if i < 0 {
			break
		}
		w.line(string(w.buf[:i]))
		w.buf = w.buf[i+1:]
	}
	return len(p), nil
}

// Flush emits a trailing line without newline.
func (w *lineWriter) Flush() {
	if len(w.buf) > 0 {
		w.line(string(w.buf))
		w.buf = nil
	}
}

func (w *lineWriter) line(s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}
	if w.fn != nil {
		w.fn(s)
	}
	w.tail = append(w.tail, s)
	if w.keep > 0 && len(w.tail) > w.keep {
		w.tail = w.tail[len(w.tail)-w.keep:]
	}
}

func (w *lineWriter) Tail() string {
	return strings.Join(w.tail, "\n")
}
