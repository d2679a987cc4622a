// Copyright 2020 Bart de Boer. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package picker

import (
	"errors"
	"path/filepath"
	"strings"

	"github.com/sqweek/dialog"
)

// Dialog uses the native file and message dialogs.
type Dialog struct {
	// StartDir is where the folder dialog opens.
	StartDir string
}

func (d *Dialog) Folder(title string) (string, error) {
	b := dialog.Directory().Title(title)
	if d.StartDir != "" {
		b = b.SetStartDir(d.StartDir)
	}
	dir, err := b.Browse()
	if err != nil {
		return "", cancelled(err)
	}
	d.StartDir = dir
	return dir, nil
}

func (d *Dialog) SaveFile(title, suggested string) (string, error) {
	b := dialog.File().Title(title)
	if ext := strings.TrimPrefix(filepath.Ext(suggested), "."); ext != "" {
		b = b.Filter(strings.ToUpper(ext)+" video", ext)
	}
	if suggested != "" {
		b = b.SetStartDir(filepath.Dir(suggested)).SetStartFile(filepath.Base(suggested))
	}
	path, err := b.Save()
	if err != nil {
		return "", cancelled(err)
	}
	return withExt(path, suggested), nil
}

func (d *Dialog) Confirm(title, message string) bool {
	return dialog.Message("%s", message).Title(title).YesNo()
}

func (d *Dialog) Error(title string, err error) {
	dialog.Message("%s", err).Title(title).Error()
}

func (d *Dialog) Info(title, message string) {
	dialog.Message("%s", message).Title(title).Info()
}

func cancelled(err error) error {
	if errors.Is(err, dialog.ErrCancelled) {
		return ErrCancelled
	}
	return err
}
