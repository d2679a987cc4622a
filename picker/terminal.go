// Copyright 2020 Bart de Boer. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package picker

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	tm "github.com/buger/goterm"
)

// Terminal prompts on a reader and writer pair. An empty answer or end of
// input cancels a prompt.
type Terminal struct {
	in  *bufio.Reader
	out io.Writer
}

func NewTerminal(in io.Reader, out io.Writer) *Terminal {
	return &Terminal{in: bufio.NewReader(in), out: out}
}

func (t *Terminal) readLine() (string, error) {
	line, err := t.in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", ErrCancelled
	}
	return strings.TrimSpace(line), nil
}

func (t *Terminal) Folder(title string) (string, error) {
	fmt.Fprintf(t.out, "%s: ", tm.Bold(title))
	dir, err := t.readLine()
	if err != nil {
		return "", err
	}
	if dir == "" {
		return "", ErrCancelled
	}
	return dir, nil
}

func (t *Terminal) SaveFile(title, suggested string) (string, error) {
	if suggested != "" {
		fmt.Fprintf(t.out, "%s [%s]: ", tm.Bold(title), suggested)
	} else {
		fmt.Fprintf(t.out, "%s: ", tm.Bold(title))
	}
	path, err := t.readLine()
	if err != nil {
		return "", err
	}
	if path == "" {
		path = suggested
	}
	if path == "" {
		return "", ErrCancelled
	}
	return withExt(path, suggested), nil
}

func (t *Terminal) Confirm(title, message string) bool {
	fmt.Fprintf(t.out, "%s: %s [y/N]: ", tm.Bold(title), message)
	answer, err := t.readLine()
	if err != nil {
		return false
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true
	}
	return false
}

func (t *Terminal) Error(title string, err error) {
	fmt.Fprintf(t.out, "%s: %v\n", tm.Color(tm.Bold(title), tm.RED), err)
}

func (t *Terminal) Info(title, message string) {
	fmt.Fprintf(t.out, "%s: %s\n", tm.Color(tm.Bold(title), tm.GREEN), message)
}
