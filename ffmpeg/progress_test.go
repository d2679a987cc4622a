package ffmpeg

import (
	"math"
	"testing"
	"time"
)

func TestParseProgress(t *testing.T) {
	tests := []struct {
		line string
		want time.Duration
		ok   bool
	}{
		{"out_time_us=1500000", 1500 * time.Millisecond, true},
		{"out_time_ms=2000000", 2 * time.Second, true},
		{"out_time=00:01:05.250000", time.Minute + 5250*time.Millisecond, true},
		{"out_time=-577014:32:22.775808", 0, false},
		{"out_time_us=N/A", 0, false},
		{"frame=120", 0, false},
		{"progress=continue", 0, false},
		{"garbage", 0, false},
	}
	for _, tc := range tests {
		got, ok := ParseProgress(tc.line)
		if got != tc.want || ok != tc.ok {
			t.Errorf("ParseProgress(%q) = %v, %v; want %v, %v", tc.line, got, ok, tc.want, tc.ok)
		}
	}
}

func TestProgressLines(t *testing.T) {
	if !IsProgressEnd("progress=end") || IsProgressEnd("progress=continue") {
		t.Fatal("IsProgressEnd")
	}
	for _, line := range []string{"frame=1", "bitrate=N/A", "stream_1_0_q=-1.0", "speed=3.1x"} {
		if !IsProgressLine(line) {
			t.Errorf("IsProgressLine(%q) = false", line)
		}
	}
	if IsProgressLine("[mp4 @ 0x1] Non-monotonous DTS") {
		t.Error("log line reported as progress")
	}
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"90", 90 * time.Second},
		{"1:30", 90 * time.Second},
		{"01:02:03.5", time.Hour + 2*time.Minute + 3500*time.Millisecond},
		{" 00:00:10 ", 10 * time.Second},
	}
	for _, tc := range tests {
		got, err := ParseClock(tc.in)
		if err != nil || got != tc.want {
			t.Errorf("ParseClock(%q) = %v, %v; want %v", tc.in, got, err, tc.want)
		}
	}
	for _, bad := range []string{"", "a:b", "1:2:3:4"} {
		if _, err := ParseClock(bad); err == nil {
			t.Errorf("ParseClock(%q) should fail", bad)
		}
	}
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00.00"},
		{-time.Second, "00:00.00"},
		{65*time.Second + 500*time.Millisecond, "01:05.50"},
		{time.Hour + 2*time.Minute + 3*time.Second, "01:02:03.00"},
	}
	for _, tc := range tests {
		if got := FormatClock(tc.in); got != tc.want {
			t.Errorf("FormatClock(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
	if got := Seconds(2500 * time.Millisecond); got != "2.5" {
		t.Errorf("Seconds = %q", got)
	}
}

func TestAtempoChain(t *testing.T) {
	for _, speed := range []float64{0.1, 0.25, 0.5, 0.75, 1, 1.5, 2, 3, 4, 10, 33} {
		steps := AtempoChain(speed)
		product := 1.0
		for _, s := range steps {
			if s < 0.5 || s > 2.0 {
				t.Errorf("speed %v: step %v outside [0.5, 2]", speed, s)
			}
			product *= s
		}
		if math.Abs(product-speed) > 1e-9 {
			t.Errorf("speed %v: steps %v multiply to %v", speed, steps, product)
		}
	}
	if steps := AtempoChain(1); len(steps) != 0 {
		t.Errorf("speed 1: steps = %v", steps)
	}
	if steps := AtempoChain(0); len(steps) != 0 {
		t.Errorf("speed 0: steps = %v", steps)
	}
}

func TestSpeedFilters(t *testing.T) {
	tests := []struct {
		speed        float64
		video, audio string
	}{
		{1, "", ""},
		{0, "", ""},
		{3, "setpts=PTS/3", "atempo=2,atempo=1.5"},
		{0.25, "setpts=PTS/0.25", "atempo=0.5,atempo=0.5"},
		{1.5, "setpts=PTS/1.5", "atempo=1.5"},
	}
	for _, tc := range tests {
		video, audio := SpeedFilters(tc.speed)
		if video != tc.video || audio != tc.audio {
			t.Errorf("SpeedFilters(%v) = %q, %q; want %q, %q", tc.speed, video, audio, tc.video, tc.audio)
		}
	}
}
