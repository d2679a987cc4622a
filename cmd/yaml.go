// Copyright 2020 Bart de Boer. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configName = ".dashcam.yaml"

// LoadYaml reads the config file into initial. An explicit path must exist;
// otherwise ./.dashcam.yaml and then ~/.dashcam.yaml are tried and a missing
// file is not an error. It returns the file that was loaded.
func LoadYaml(initial interface{}, explicit string) (string, error) {
	if explicit != "" {
		if err := parseYAMLFile(explicit, initial); err != nil {
			return "", fmt.Errorf("error parsing YAML file (%s): %w", explicit, err)
		}
		return explicit, nil
	}

	// File paths to check
	paths := []string{filepath.Join(".", configName)}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, configName))
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil { // File exists
			if err := parseYAMLFile(path, initial); err != nil {
				return "", fmt.Errorf("error parsing YAML file (%s): %w", path, err)
			}
			return path, nil
		}
	}

	return "", nil
}

func parseYAMLFile(path string, initial interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(initial); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("error unmarshalling YAML: %w", err)
	}

	return nil
}
