// Copyright 2020 Bart de Boer. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package ffmpegtest fakes ffmpeg, ffprobe and ffplay by re-running the test
// binary. A package using it declares
//
//	func TestHelperProcess(t *testing.T) { ffmpegtest.HelperProcess() }
//
// and sets ffmpeg.Tools.Exec to Exec(...).
//
// The fakes key their behavior on the input file name: "broken" fails to
// decode, "hevc" reports an hevc stream, "720" reports 1280x720, "noaudio" has
// no audio stream and "novideo" has no video stream.
//
// Like the real tools, the fake ffmpeg fails when the concat demuxer is fed
// clips with different codecs or sizes, and the fake ffplay exits 0 after
// reporting a file it cannot decode.
package ffmpegtest

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

const (
	envHelper = "DASHCAM_HELPER_PROCESS"

	// EnvFFmpeg selects the fake ffmpeg behavior: ok (default), fail, nospace or hang.
	EnvFFmpeg = "DASHCAM_FAKE_FFMPEG"
	// EnvFFplay selects the fake ffplay behavior: ok (default), crash or hang.
	EnvFFplay = "DASHCAM_FAKE_FFPLAY"
	// EnvCalls names a file every fake invocation is appended to.
	EnvCalls = "DASHCAM_FAKE_CALLS"
)

// Exec returns a replacement for exec.CommandContext that starts the fakes
// with env added to their environment.
func Exec(env ...string) func(ctx context.Context, name string, args ...string) *exec.Cmd {
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cs := append([]string{"-test.run=TestHelperProcess", "--", name}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = append(append(os.Environ(), envHelper+"=1"), env...)
		return cmd
	}
}

// Calls reads the invocations recorded in path, one slice per call with the
// tool name first.
func Calls(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var calls [][]string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			calls = append(calls, strings.Split(line, "\t"))
		}
	}
	return calls, scanner.Err()
}

// HelperProcess runs the fake named by the command line and exits. It returns
// immediately when the binary was not started through Exec.
func HelperProcess() {
	if os.Getenv(envHelper) != "1" {
		return
	}

	args := os.Args
	for len(args) > 0 {
		if args[0] == "--" {
			args = args[1:]
			break
		}
		args = args[1:]
	}
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "no command")
		os.Exit(2)
	}

	name := strings.TrimSuffix(filepath.Base(args[0]), ".exe")
	args = args[1:]
	record(name, args)

	switch name {
	case "ffprobe":
		os.Exit(ffprobe(args))
	case "ffmpeg":
		os.Exit(ffmpeg(args))
	case "ffplay":
		os.Exit(ffplay(args))
	}
	fmt.Fprintf(os.Stderr, "unknown command %q\n", name)
	os.Exit(2)
}

func record(name string, args []string) {
	path := os.Getenv(EnvCalls)
	if path == "" {
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	fmt.Fprintln(f, strings.Join(append([]string{name}, args...), "\t"))
}

func valueOf(args []string, flag string) string {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func valuesOf(args []string, flag string) []string {
	var values []string
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag {
			values = append(values, args[i+1])
			i++
		}
	}
	return values
}

func last(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[len(args)-1]
}

func ffprobe(args []string) int {
	path := filepath.Base(last(args))
	if strings.Contains(path, "broken") {
		fmt.Fprintf(os.Stderr, "%s: Invalid data found when processing input\n", last(args))
		return 1
	}

	switch valueOf(args, "-select_streams") {
	case "v:0":
		if !strings.Contains(path, "novideo") {
			codec, width, height := "h264", 1920, 1080
			if strings.Contains(path, "hevc") {
				codec = "hevc"
			}
			if strings.Contains(path, "720") {
				width, height = 1280, 720
			}
			fmt.Printf("index=0\ncodec_name=%s\nwidth=%d\nheight=%d\npix_fmt=yuv420p\nr_frame_rate=30/1\nduration=59.966667\n",
				codec, width, height)
		}
		fmt.Printf("filename=%s\nformat_name=mov,mp4,m4a,3gp,3g2,mj2\nduration=60.000000\n", last(args))
	case "a:0":
		if !strings.Contains(path, "noaudio") {
			fmt.Print("index=1\ncodec_name=aac\nchannels=2\nsample_rate=48000\nduration=60.000000\n")
		}
	}
	return 0
}

func ffmpeg(args []string) int {
	out := last(args)
	list := valueOf(args, "-i")

	switch os.Getenv(EnvFFmpeg) {
	case "fail":
		_ = os.WriteFile(out, []byte("partial"), 0o644)
		fmt.Fprintln(os.Stderr, "Error while decoding stream #0:0\nConversion failed!")
		return 1
	case "nospace":
		_ = os.WriteFile(out, []byte("partial"), 0o644)
		fmt.Fprintf(os.Stderr, "av_interleaved_write_frame(): No space left on device\nError writing trailer of %s\n", out)
		return 1
	case "hang":
		_ = os.WriteFile(out, []byte("partial"), 0o644)
		fmt.Println("out_time_us=1000000")
		fmt.Println("progress=continue")
		time.Sleep(time.Minute)
		return 0
	}

	var data []byte
	if graph := valueOf(args, "-filter_complex"); graph != "" {
		inputs := valuesOf(args, "-i")
		if !strings.Contains(graph, fmt.Sprintf("concat=n=%d:", len(inputs))) {
			fmt.Fprintf(os.Stderr, "filter graph does not join %d inputs: %s\n", len(inputs), graph)
			return 1
		}
		var buf strings.Builder
		for _, in := range inputs {
			fmt.Fprintf(&buf, "file '%s'\n", filepath.ToSlash(in))
		}
		data = []byte(buf.String())
	} else {
		var err error
		if data, err = os.ReadFile(list); err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		if mixed(string(data)) {
			fmt.Fprintln(os.Stderr, "[h264 @ 0x0] Invalid NAL unit size\nError while decoding stream #0:0: Invalid data found when processing input")
			return 1
		}
	}
	for i := 1; i <= 3; i++ {
		fmt.Printf("frame=%d\nout_time_us=%d\nout_time=00:00:%02d.000000\nprogress=continue\n", i*30, i*1000000, i)
	}
	fmt.Fprintln(os.Stderr, "[concat @ 0x0] fake muxing")
	// The output reproduces the list file so tests can check clip order.
	if err := os.WriteFile(out, data, 0o644); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Println("progress=end")
	return 0
}

// mixed reports whether a concat list holds clips the fake ffprobe describes
// with different codecs or sizes.
func mixed(list string) bool {
	lines := strings.Split(strings.TrimSpace(list), "\n")
	for _, marker := range []string{"hevc", "720"} {
		n := 0
		for _, line := range lines {
			if strings.Contains(filepath.Base(line), marker) {
				n++
			}
		}
		if n > 0 && n < len(lines) {
			return true
		}
	}
	return false
}

func ffplay(args []string) int {
	// ffplay exits 0 after failing to open a file.
	if strings.Contains(filepath.Base(last(args)), "broken") {
		fmt.Fprintf(os.Stderr, "%s: Invalid data found when processing input\n", last(args))
		return 0
	}
	switch os.Getenv(EnvFFplay) {
	case "crash":
		return 1
	case "hang":
		time.Sleep(time.Minute)
	}
	return 0
}
