// Copyright 2020 Bart de Boer. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bartdeboer/dashcam/clip"
	"github.com/bartdeboer/dashcam/ffmpeg"
	"github.com/bartdeboer/dashcam/picker"
	"github.com/spf13/cobra"
)

// app is the state shared by the commands of one invocation.
type app struct {
	initial Config
	in      io.Reader
	out     io.Writer

	// exec replaces exec.CommandContext when set.
	exec   func(ctx context.Context, name string, args ...string) *exec.Cmd
	picker picker.Picker
	log    *log.Logger
}

func newApp(in io.Reader, out io.Writer) *app {
	return &app{
		initial: defaultConfig(),
		in:      in,
		out:     out,
		log:     log.New(io.Discard, "", 0),
	}
}

// Execute runs the command line. It is called by main.main().
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdin, os.Stdout).run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func indexOfArgs(args []string, search string) int {
	for i, value := range args {
		if value == search || strings.HasPrefix(value, search+"=") {
			return i
		}
	}
	return -1
}

// valueOfArgs returns the value of a flag before cobra parses the command
// line, so the config file and preset can supply the flag defaults.
func valueOfArgs(args []string, search string) string {
	argIndex := indexOfArgs(args, search)
	if argIndex == -1 {
		return ""
	}
	if v, ok := strings.CutPrefix(args[argIndex], search+"="); ok {
		return v
	}
	if valueIndex := argIndex + 1; valueIndex < len(args) {
		return args[valueIndex]
	}
	return ""
}

func (a *app) run(ctx context.Context, args []string) error {
	configFile := valueOfArgs(args, "--config")
	if _, err := LoadYaml(&a.initial, configFile); err != nil {
		return err
	}
	if preset := valueOfArgs(args, "--preset"); preset != "" {
		a.initial.Preset = preset
	}
	if err := SetPreset(&a.initial, a.initial.Preset); err != nil {
		return err
	}

	rootCmd := a.rootCmd(configFile)
	rootCmd.SetArgs(args)
	rootCmd.SetIn(a.in)
	rootCmd.SetOut(a.out)
	rootCmd.SetErr(a.out)
	return rootCmd.ExecuteContext(ctx)
}

func (a *app) rootCmd(configFile string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "dashcam",
		Short:         "View and join dashcam clips",
		Long:          "Play a folder of dashcam clips as one stream, or join them into a single file using ffmpeg",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			a.setup()
		},
	}

	f := rootCmd.PersistentFlags()
	f.String("config", configFile, "Config file (default ./"+configName+" or ~/"+configName+")")
	f.StringVar(&a.initial.Preset, "preset", a.initial.Preset, usage(a.initial, "Preset"))
	f.StringVar(&a.initial.FfmpegPath, "ffmpeg-path", a.initial.FfmpegPath, usage(a.initial, "FfmpegPath"))
	f.StringSliceVar(&a.initial.Extensions, "ext", a.initial.Extensions, usage(a.initial, "Extensions"))
	f.BoolVar(&a.initial.NaturalSort, "natural-sort", a.initial.NaturalSort, usage(a.initial, "NaturalSort"))
	f.BoolVar(&a.initial.NoGUI, "no-gui", a.initial.NoGUI, usage(a.initial, "NoGUI"))
	f.BoolVarP(&a.initial.Verbose, "verbose", "v", a.initial.Verbose, usage(a.initial, "Verbose"))

	rootCmd.AddCommand(a.viewCmd())
	rootCmd.AddCommand(a.concatCmd())
	rootCmd.AddCommand(a.listCmd())
	return rootCmd
}

func (a *app) setup() {
	if a.initial.Verbose {
		a.log = log.New(a.out, "dashcam: ", log.LstdFlags)
	}
	if a.picker == nil {
		if a.initial.NoGUI {
			a.picker = picker.NewTerminal(a.in, a.out)
		} else {
			a.picker = &picker.Dialog{}
		}
	}
}

func (a *app) tools() ffmpeg.Tools {
	return ffmpeg.Tools{Path: a.initial.FfmpegPath, Exec: a.exec}
}

// openFolder enumerates the folder given on the command line, or asks for one.
// A folder chosen in the picker is asked for again when it holds no clips.
func (a *app) openFolder(args []string, title string) (string, clip.Sequence, error) {
	opts := a.initial.clipOptions()
	if len(args) > 0 {
		dir := args[0]
		seq, err := clip.Enumerate(dir, opts)
		return dir, seq, err
	}

	for {
		dir, err := a.picker.Folder(title)
		if err != nil {
			return "", nil, err
		}
		seq, err := clip.Enumerate(dir, opts)
		if err == nil {
			return dir, seq, nil
		}
		if !errors.Is(err, clip.ErrDirectoryUnreadable) && !errors.Is(err, clip.ErrNoClipsFound) {
			return dir, nil, err
		}
		a.log.Printf("folder %s: %v", dir, err)
		a.picker.Error("No clips", err)
	}
}

// fail shows err in the picker and returns it. Cancelling a prompt is not an
// error.
func (a *app) fail(title string, err error) error {
	if errors.Is(err, picker.ErrCancelled) {
		fmt.Fprintln(a.out, "Cancelled")
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if !a.initial.NoGUI {
		a.picker.Error(title, err)
	}
	return err
}
