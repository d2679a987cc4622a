package concat

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bartdeboer/dashcam/clip"
	"github.com/bartdeboer/dashcam/ffmpeg"
	"github.com/bartdeboer/dashcam/ffmpeg/ffmpegtest"
)

func TestHelperProcess(t *testing.T) { ffmpegtest.HelperProcess() }

type recorder struct {
	mu       sync.Mutex
	plans    []Plan
	progress []time.Duration
	logs     []string
}

func (r *recorder) OnPlan(p Plan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans = append(r.plans, p)
}

func (r *recorder) OnProgress(done, total time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, done)
}

func (r *recorder) OnLog(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, line)
}

type fixture struct {
	dir   string
	calls string
	seq   clip.Sequence
	rec   *recorder
}

func newFixture(t *testing.T, names ...string) *fixture {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	seq, err := clip.Enumerate(dir, clip.Options{})
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{
		dir:   dir,
		calls: filepath.Join(t.TempDir(), "calls.txt"),
		seq:   seq,
		rec:   &recorder{},
	}
}

func (f *fixture) driver(env ...string) *Driver {
	env = append(env, ffmpegtest.EnvCalls+"="+f.calls)
	return &Driver{
		Tools:    ffmpeg.Tools{Exec: ffmpegtest.Exec(env...)},
		Observer: f.rec,
	}
}

func (f *fixture) ffmpegCalls(t *testing.T) [][]string {
	t.Helper()
	calls, err := ffmpegtest.Calls(f.calls)
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	var out [][]string
	for _, c := range calls {
		if c[0] == "ffmpeg" {
			out = append(out, c[1:])
		}
	}
	return out
}

func opts(out string) Options {
	o := DefaultOptions()
	o.Output = out
	return o
}

func TestConcat_StreamCopyInOrder(t *testing.T) {
	f := newFixture(t, "20240101_120200.mp4", "20240101_120000.mp4", "20240101_120100.mp4")
	out := filepath.Join(t.TempDir(), "trip.mp4")

	p, err := f.driver().Concat(context.Background(), f.seq, opts(out))
	if err != nil {
		t.Fatalf("Concat: %v", err)
	}
	if p.Mode != Copy {
		t.Fatalf("mode = %s (%s), want copy", p.Mode, p.Reason)
	}
	if p.Duration != 3*time.Minute {
		t.Fatalf("duration = %v, want 3m", p.Duration)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("output: %v", err)
	}
	want, _ := listFile(f.seq)
	if string(data) != want {
		t.Fatalf("output order:\n%s\nwant:\n%s", data, want)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	for i, name := range []string{"20240101_120000.mp4", "20240101_120100.mp4", "20240101_120200.mp4"} {
		if !strings.HasSuffix(lines[i], "/"+name+"'") {
			t.Fatalf("line %d = %q, want clip %s", i, lines[i], name)
		}
	}

	if _, err := os.Stat(PartialPath(out)); !os.IsNotExist(err) {
		t.Fatalf("partial file left behind: %v", err)
	}

	calls := f.ffmpegCalls(t)
	if len(calls) != 1 {
		t.Fatalf("ffmpeg ran %d times", len(calls))
	}
	args := strings.Join(calls[0], " ")
	if !strings.Contains(args, "-c copy") || strings.Contains(args, "libx264") {
		t.Fatalf("expected stream copy args, got %s", args)
	}
	if got := calls[0][len(calls[0])-1]; got != PartialPath(out) {
		t.Fatalf("ffmpeg output = %s, want the partial path", got)
	}

	if len(f.rec.plans) != 1 {
		t.Fatalf("OnPlan called %d times", len(f.rec.plans))
	}
	if len(f.rec.progress) == 0 || f.rec.progress[len(f.rec.progress)-1] != p.Duration {
		t.Fatalf("progress = %v, want to end at %v", f.rec.progress, p.Duration)
	}
	for i := 1; i < len(f.rec.progress); i++ {
		if f.rec.progress[i] == f.rec.progress[i-1] {
			t.Fatalf("duplicate progress report %v", f.rec.progress)
		}
	}
}

func TestPlan_AutoReencodesMismatch(t *testing.T) {
	f := newFixture(t, "a.mp4", "b_hevc.mp4")

	p, err := f.driver().Plan(context.Background(), f.seq, DefaultOptions())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if p.Mode != Reencode {
		t.Fatalf("mode = %s, want reencode", p.Mode)
	}
	if !strings.Contains(p.Reason, "b_hevc.mp4") || !strings.Contains(p.Reason, "video codec") {
		t.Fatalf("reason = %q", p.Reason)
	}
	if !p.Filter {
		t.Fatal("clips that differ must be joined with the concat filter")
	}

	o := DefaultOptions()
	o.Mode = Reencode
	if p, err = f.driver().Plan(context.Background(), f.seq, o); err != nil || !p.Filter {
		t.Fatalf("reencode mode: filter = %v, err = %v", p.Filter, err)
	}
}

func TestConcat_ReencodesMixedClips(t *testing.T) {
	f := newFixture(t, "a.mp4", "b_hevc.mp4", "c_720.mp4", "d_noaudio.mp4")
	out := filepath.Join(t.TempDir(), "trip.mp4")

	p, err := f.driver().Concat(context.Background(), f.seq, opts(out))
	if err != nil {
		t.Fatalf("Concat: %v", err)
	}
	if p.Mode != Reencode || !p.Filter {
		t.Fatalf("mode = %s filter = %v", p.Mode, p.Filter)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	for i, name := range []string{"a.mp4", "b_hevc.mp4", "c_720.mp4", "d_noaudio.mp4"} {
		if i >= len(lines) || !strings.HasSuffix(lines[i], "/"+name+"'") {
			t.Fatalf("joined inputs = %q", data)
		}
	}

	args := f.ffmpegCalls(t)[0]
	joined := strings.Join(args, " ")
	if strings.Contains(joined, "-f concat") {
		t.Fatalf("mixed clips fed to the concat demuxer: %s", joined)
	}
	for _, want := range []string{
		"concat=n=4:v=1:a=1[v][a]",
		"[2:v:0]scale=1920:1080:force_original_aspect_ratio=decrease,pad=1920:1080:-1:-1",
		"anullsrc=channel_layout=stereo:sample_rate=48000,atrim=duration=60[a3]",
		"-map [v] -map [a]",
		"-c:v libx264",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %s", want, joined)
		}
	}
	if n := strings.Count(joined, "-i "); n != 4 {
		t.Errorf("%d inputs, want 4: %s", n, joined)
	}
}

func TestRun_DemuxerFailsOnMixedClips(t *testing.T) {
	f := newFixture(t, "a.mp4", "b_hevc.mp4")
	p, err := f.driver().Plan(context.Background(), f.seq, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	p.Filter = false
	out := filepath.Join(t.TempDir(), "trip.mp4")
	if err := f.driver().Run(context.Background(), p, opts(out)); err == nil {
		t.Fatal("the concat demuxer cannot decode clips that differ")
	}
	assertNoOutput(t, out)
}

func TestPlan_CopyIncompatible(t *testing.T) {
	f := newFixture(t, "a.mp4", "b_720.mp4")
	o := opts(filepath.Join(t.TempDir(), "out.mp4"))
	o.Mode = Copy

	_, err := f.driver().Concat(context.Background(), f.seq, o)
	if !errors.Is(err, ErrIncompatibleClips) {
		t.Fatalf("err = %v, want ErrIncompatibleClips", err)
	}
	if !strings.Contains(err.Error(), "resolution") {
		t.Fatalf("err = %v, want the mismatch named", err)
	}
	if calls := f.ffmpegCalls(t); len(calls) != 0 {
		t.Fatalf("ffmpeg should not run: %v", calls)
	}
	if _, err := os.Stat(o.Output); !os.IsNotExist(err) {
		t.Fatalf("output should not exist: %v", err)
	}
}

func TestPlan_CopyRejectsSpeed(t *testing.T) {
	f := newFixture(t, "a.mp4", "b.mp4")
	o := DefaultOptions()
	o.Mode = Copy
	o.Speed = 2
	if _, err := f.driver().Plan(context.Background(), f.seq, o); err == nil {
		t.Fatal("expected an error for copy mode with speed change")
	}
}

func TestPlan_NoAudioIgnoresAudioMismatch(t *testing.T) {
	f := newFixture(t, "a.mp4", "b_noaudio.mp4")

	p, err := f.driver().Plan(context.Background(), f.seq, DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if p.Mode != Reencode || !strings.Contains(p.Reason, "audio stream") {
		t.Fatalf("with audio: mode = %s reason = %q", p.Mode, p.Reason)
	}

	o := DefaultOptions()
	o.NoAudio = true
	p, err = f.driver().Plan(context.Background(), f.seq, o)
	if err != nil {
		t.Fatal(err)
	}
	if p.Mode != Copy || p.Audio {
		t.Fatalf("without audio: mode = %s audio = %v", p.Mode, p.Audio)
	}
}

func TestPlan_SpeedReencodes(t *testing.T) {
	f := newFixture(t, "a.mp4", "b.mp4")
	o := opts(filepath.Join(t.TempDir(), "fast.mp4"))
	o.Speed = 3
	o.FrameRate = 60

	p, err := f.driver().Concat(context.Background(), f.seq, o)
	if err != nil {
		t.Fatal(err)
	}
	if p.Mode != Reencode {
		t.Fatalf("mode = %s", p.Mode)
	}
	if p.Duration != 40*time.Second {
		t.Fatalf("duration = %v, want 2m/3", p.Duration)
	}
	args := strings.Join(f.ffmpegCalls(t)[0], " ")
	for _, want := range []string{"-vf setpts=PTS/3", "-r 60", "-c:v libx264", "-crf 22", "-filter:a atempo=2,atempo=1.5", "-c:a aac"} {
		if !strings.Contains(args, want) {
			t.Errorf("args missing %q: %s", want, args)
		}
	}
}

func TestPlan_DecodeFailure(t *testing.T) {
	f := newFixture(t, "a.mp4", "b_broken.mp4")
	_, err := f.driver().Plan(context.Background(), f.seq, DefaultOptions())
	if !errors.Is(err, clip.ErrClipDecodeFailure) {
		t.Fatalf("err = %v, want ErrClipDecodeFailure", err)
	}
}

func TestRun_RefusesOverwrite(t *testing.T) {
	f := newFixture(t, "a.mp4", "b.mp4")
	out := filepath.Join(t.TempDir(), "trip.mp4")
	if err := os.WriteFile(out, []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := f.driver().Concat(context.Background(), f.seq, opts(out))
	if !errors.Is(err, ErrOutputExists) {
		t.Fatalf("err = %v, want ErrOutputExists", err)
	}
	if data, _ := os.ReadFile(out); string(data) != "old" {
		t.Fatalf("existing output changed: %q", data)
	}
	if calls := f.ffmpegCalls(t); len(calls) != 0 {
		t.Fatalf("ffmpeg should not run")
	}

	o := opts(out)
	o.Overwrite = true
	if _, err := f.driver().Concat(context.Background(), f.seq, o); err != nil {
		t.Fatalf("Concat with overwrite: %v", err)
	}
	if data, _ := os.ReadFile(out); string(data) == "old" {
		t.Fatal("output not replaced")
	}
}

func TestRun_WriteFailure(t *testing.T) {
	f := newFixture(t, "a.mp4", "b.mp4")
	out := filepath.Join(t.TempDir(), "missing", "trip.mp4")

	_, err := f.driver().Concat(context.Background(), f.seq, opts(out))
	if !errors.Is(err, ErrWriteFailure) {
		t.Fatalf("err = %v, want ErrWriteFailure", err)
	}

	dirOut := t.TempDir()
	_, err = f.driver().Concat(context.Background(), f.seq, opts(dirOut))
	if !errors.Is(err, ErrWriteFailure) {
		t.Fatalf("directory output: err = %v, want ErrWriteFailure", err)
	}
}

func TestRun_DiskFullRemovesPartial(t *testing.T) {
	f := newFixture(t, "a.mp4", "b.mp4")
	out := filepath.Join(t.TempDir(), "trip.mp4")

	_, err := f.driver(ffmpegtest.EnvFFmpeg+"=nospace").Concat(context.Background(), f.seq, opts(out))
	if !errors.Is(err, ErrWriteFailure) {
		t.Fatalf("err = %v, want ErrWriteFailure", err)
	}
	assertNoOutput(t, out)
}

func TestRun_FailureRemovesPartial(t *testing.T) {
	f := newFixture(t, "a.mp4", "b.mp4")
	out := filepath.Join(t.TempDir(), "trip.mp4")

	_, err := f.driver(ffmpegtest.EnvFFmpeg+"=fail").Concat(context.Background(), f.seq, opts(out))
	var ee *ffmpeg.ExitError
	if !errors.As(err, &ee) || ee.Code != 1 {
		t.Fatalf("err = %v, want ffmpeg exit error", err)
	}
	if errors.Is(err, ErrWriteFailure) {
		t.Fatalf("decode error reported as write failure: %v", err)
	}
	if !strings.Contains(err.Error(), "Conversion failed!") {
		t.Fatalf("err = %v, want stderr tail", err)
	}
	assertNoOutput(t, out)
}

func TestRun_CancelRemovesPartial(t *testing.T) {
	f := newFixture(t, "a.mp4", "b.mp4")
	out := filepath.Join(t.TempDir(), "trip.mp4")
	partial := PartialPath(out)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		deadline := time.Now().Add(30 * time.Second)
		for time.Now().Before(deadline) {
			if fi, err := os.Stat(partial); err == nil && fi.Size() > 0 {
				break
			}
			time.Sleep(10 * time.Millisecond)
		}
		cancel()
	}()

	start := time.Now()
	_, err := f.driver(ffmpegtest.EnvFFmpeg+"=hang").Concat(ctx, f.seq, opts(out))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if time.Since(start) > 45*time.Second {
		t.Fatal("cancel did not stop ffmpeg")
	}
	assertNoOutput(t, out)
}

func TestBuildArgs_Copy(t *testing.T) {
	p := Plan{Mode: Copy, Audio: true}
	got := buildArgs(p, DefaultOptions(), "list.txt", "out.incomplete.mp4")
	want := []string{
		"-hide_banner", "-y", "-f", "concat", "-safe", "0", "-fflags", "+genpts", "-i", "list.txt",
		"-map", "0:v:0", "-map", "0:a:0?", "-c", "copy",
		"-movflags", "+faststart", "-progress", "pipe:1", "-nostats", "out.incomplete.mp4",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("args =\n%v\nwant\n%v", got, want)
	}
}

func TestBuildArgs_ReencodeWithoutAudio(t *testing.T) {
	p := Plan{Mode: Reencode}
	o := DefaultOptions()
	o.FrameRate = 30
	got := buildArgs(p, o, "list.txt", "out.incomplete.mkv")
	want := []string{
		"-hide_banner", "-y", "-f", "concat", "-safe", "0", "-i", "list.txt",
		"-map", "0:v:0",
		"-vf", "fps=30", "-r", "30", "-pix_fmt", "yuv420p", "-c:v", "libx264", "-preset", "slow", "-crf", "22", "-an",
		"-progress", "pipe:1", "-nostats", "out.incomplete.mkv",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("args =\n%v\nwant\n%v", got, want)
	}
}

func TestBuildArgs_Filter(t *testing.T) {
	p := Plan{
		Mode:   Reencode,
		Filter: true,
		Audio:  true,
		Clips:  clip.Sequence{{Path: "a.mp4"}, {Path: "b_720.mp4"}},
		Infos: []ffmpeg.Info{
			{Width: 1920, Height: 1080, FrameRate: "30/1", HasAudio: true, AudioChannels: 2, SampleRate: 48000, Duration: time.Minute},
			{Width: 1280, Height: 720, FrameRate: "25/1", Duration: 45 * time.Second},
		},
	}
	o := DefaultOptions()
	o.Speed = 2
	graph := "[0:v:0]scale=1920:1080:force_original_aspect_ratio=decrease,pad=1920:1080:-1:-1,setsar=1,fps=30/1,format=yuv420p[v0];" +
		"[0:a:0]aresample=48000,aformat=channel_layouts=stereo[a0];" +
		"[1:v:0]scale=1920:1080:force_original_aspect_ratio=decrease,pad=1920:1080:-1:-1,setsar=1,fps=30/1,format=yuv420p[v1];" +
		"anullsrc=channel_layout=stereo:sample_rate=48000,atrim=duration=45[a1];" +
		"[v0][a0][v1][a1]concat=n=2:v=1:a=1[vc][ac];" +
		"[vc]setpts=PTS/2[v];" +
		"[ac]atempo=2[a]"
	got := buildArgs(p, o, "unused.txt", "out.incomplete.mp4")
	want := []string{
		"-hide_banner", "-y", "-i", "a.mp4", "-i", "b_720.mp4",
		"-filter_complex", graph, "-map", "[v]", "-map", "[a]",
		"-pix_fmt", "yuv420p", "-c:v", "libx264", "-preset", "slow", "-crf", "22",
		"-c:a", "aac", "-b:a", "192k",
		"-movflags", "+faststart", "-progress", "pipe:1", "-nostats", "out.incomplete.mp4",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("args =\n%v\nwant\n%v", got, want)
	}

	p.Audio = false
	o.Speed = 1
	got = buildArgs(p, o, "unused.txt", "out.incomplete.mkv")
	joined := strings.Join(got, " ")
	if !strings.Contains(joined, "[v0][v1]concat=n=2:v=1:a=0[v]") || strings.Contains(joined, "[a]") || strings.Contains(joined, "-c:a") {
		t.Fatalf("video only args = %s", joined)
	}
}

func TestRun_KeepsExistingPartial(t *testing.T) {
	f := newFixture(t, "a.mp4", "b.mp4")
	out := filepath.Join(t.TempDir(), "trip.mp4")
	mine := PartialPath(out)
	if err := os.WriteFile(mine, []byte("mine"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := f.driver().Concat(context.Background(), f.seq, opts(out)); err != nil {
		t.Fatalf("Concat: %v", err)
	}
	if data, _ := os.ReadFile(mine); string(data) != "mine" {
		t.Fatalf("existing partial file changed: %q", data)
	}
	if got := last(f.ffmpegCalls(t)[0]); got == mine {
		t.Fatalf("ffmpeg wrote into %s", got)
	}
	if _, err := os.Stat(out); err != nil {
		t.Fatalf("output: %v", err)
	}
	entries, _ := os.ReadDir(filepath.Dir(out))
	if len(entries) != 2 {
		t.Fatalf("files left next to the output: %v", entries)
	}
}

func last(args []string) string {
	return args[len(args)-1]
}

func TestListFile_Escapes(t *testing.T) {
	dir := t.TempDir()
	seq := clip.Sequence{{Path: filepath.Join(dir, "it's.mp4"), Name: "it's.mp4"}}
	got, err := listFile(seq)
	if err != nil {
		t.Fatal(err)
	}
	want := "file '" + filepath.ToSlash(dir) + `/it'\''s.mp4'` + "\n"
	if got != want {
		t.Fatalf("listFile = %q, want %q", got, want)
	}
}

func TestPartialAndSafePath(t *testing.T) {
	if got := PartialPath(filepath.Join("x", "trip.mp4")); got != filepath.Join("x", "trip.incomplete.mp4") {
		t.Fatalf("PartialPath = %s", got)
	}

	dir := t.TempDir()
	if got := DefaultOutput(dir); got != filepath.Join(dir, DefaultName) {
		t.Fatalf("DefaultOutput = %s", got)
	}
	for _, name := range []string{DefaultName, "concatenated_output.1.mp4"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if got := DefaultOutput(dir); got != filepath.Join(dir, "concatenated_output.2.mp4") {
		t.Fatalf("DefaultOutput = %s", got)
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": Auto, "auto": Auto, "COPY": Copy, " reencode ": Reencode} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseMode("fast"); err == nil {
		t.Error("ParseMode(fast) should fail")
	}
}

func TestLineWriter(t *testing.T) {
	var lines []string
	w := &lineWriter{fn: func(s string) { lines = append(lines, s) }, keep: 2}
	w.Write([]byte("one\ntw"))
	w.Write([]byte("o\r\n\nthree"))
	w.Flush()
	if want := []string{"one", "two", "three"}; !reflect.DeepEqual(lines, want) {
		t.Fatalf("lines = %v, want %v", lines, want)
	}
	if got := w.Tail(); got != "two\nthree" {
		t.Fatalf("Tail = %q", got)
	}
}

func assertNoOutput(t *testing.T, out string) {
	t.Helper()
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Fatalf("output %s exists: %v", out, err)
	}
	if _, err := os.Stat(PartialPath(out)); !os.IsNotExist(err) {
		t.Fatalf("partial output left behind: %v", err)
	}
}
