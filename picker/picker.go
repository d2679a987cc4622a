// Copyright 2020 Bart de Boer. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package picker asks the user for a clip folder and an output file, and
// shows errors and notices.
package picker

import (
	"errors"
	"path/filepath"
)

// ErrCancelled is returned when the user dismisses a prompt.
var ErrCancelled = errors.New("cancelled")

type Picker interface {
	// Folder asks for a directory.
	Folder(title string) (string, error)
	// SaveFile asks for an output path, proposing suggested.
	SaveFile(title, suggested string) (string, error)
	// Confirm asks a yes/no question.
	Confirm(title, message string) bool
	Error(title string, err error)
	Info(title, message string)
}

// withExt adds the extension of suggested when path has none.
func withExt(path, suggested string) string {
	if path == "" || filepath.Ext(path) != "" {
		return path
	}
	return path + filepath.Ext(suggested)
}
