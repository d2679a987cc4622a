// Copyright 2020 Bart de Boer. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ffmpeg runs the ffmpeg, ffprobe and ffplay binaries.
package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

type Tool string

const (
	FFmpeg  Tool = "ffmpeg"
	FFprobe Tool = "ffprobe"
	FFplay  Tool = "ffplay"
)

// ErrToolNotFound is returned when a binary cannot be located or started.
var ErrToolNotFound = errors.New("tool not found")

// Tools locates and starts the media binaries.
type Tools struct {
	// Path is the folder containing the binaries. Empty means a PATH lookup.
	Path string
	// Exec replaces exec.CommandContext when set.
	Exec func(ctx context.Context, name string, args ...string) *exec.Cmd
}

// Bin returns the name or path used to start tool.
func (t Tools) Bin(tool Tool) string {
	name := string(tool)
	if t.Path == "" {
		return name
	}
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(t.Path, name)
}

// Command builds the command for tool. The process is killed when ctx is done.
func (t Tools) Command(ctx context.Context, tool Tool, args ...string) *exec.Cmd {
	if t.Exec != nil {
		return t.Exec(ctx, t.Bin(tool), args...)
	}
	return exec.CommandContext(ctx, t.Bin(tool), args...)
}

// Check reports the first of tools that cannot be found.
func (t Tools) Check(tools ...Tool) error {
	for _, tool := range tools {
		if _, err := exec.LookPath(t.Bin(tool)); err != nil {
			return fmt.Errorf("%w: %s (install ffmpeg or set --ffmpeg-path): %w", ErrToolNotFound, tool, err)
		}
	}
	return nil
}

// ExitError is a tool that ran but exited unsuccessfully.
type ExitError struct {
	Tool   Tool
	Code   int
	Stderr string
	Err    error
}

func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with code %d", e.Tool, e.Code)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ExitError) Unwrap() error { return e.Err }

// NewExitError wraps the error returned by Wait or Run. A nil err is a tool
// that exited 0 but reported errors. stderr is trimmed to its last few lines.
func NewExitError(tool Tool, err error, stderr string) error {
	code := -1
	var ee *exec.ExitError
	if err == nil {
		code = 0
	} else if errors.As(err, &ee) {
		code = ee.ExitCode()
	}
	return &ExitError{Tool: tool, Code: code, Stderr: Tail(stderr, 5), Err: err}
}

// StartError wraps a failure to start the binary.
func StartError(tool Tool, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrToolNotFound, tool, err)
}

// Tail returns the last n non-empty lines of s.
func Tail(s string, n int) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	if len(kept) > n {
		kept = kept[len(kept)-n:]
	}
	return strings.Join(kept, "\n")
}

func splitKeyValue(input string, sep string) (string, string) {
	arr := strings.SplitN(input, sep, 2)
	if len(arr) == 2 {
		return strings.TrimSpace(arr[0]), strings.TrimSpace(arr[1])
	}
	return strings.TrimSpace(arr[0]), ""
}

// keyValues runs cmd and collects its "key<sep>value" output lines. Later keys win.
func keyValues(cmd *exec.Cmd, tool Tool, sep string) (map[string]string, error) {
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("cmd.StdoutPipe() failed with %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, StartError(tool, err)
	}

	scanner := bufio.NewScanner(stdout)
	values := make(map[string]string)

	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		key, value := splitKeyValue(text, sep)
		values[key] = value
	}

	scanErr := scanner.Err()
	if scanErr != nil {
		// Drain so the process is not blocked on a full pipe.
		_, _ = io.Copy(io.Discard, stdout)
	}

	if err := cmd.Wait(); err != nil {
		return nil, NewExitError(tool, err, stderr.String())
	}
	if scanErr != nil {
		return nil, fmt.Errorf("scanner error: %w", scanErr)
	}

	return values, nil
}
