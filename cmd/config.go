package cmd

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/bartdeboer/dashcam/clip"
	"github.com/bartdeboer/dashcam/concat"
	"github.com/bartdeboer/dashcam/player"
)

type Config struct {
	Preset      string   `yaml:"preset" usage:"Preset (copy, review, timelapse, archive)"`
	FfmpegPath  string   `yaml:"ffmpeg_path" usage:"Path containing the ffmpeg, ffprobe and ffplay binaries"`
	Extensions  []string `yaml:"extensions" usage:"Clip file extensions"`
	NaturalSort bool     `yaml:"natural_sort" usage:"Sort clip names numerically (clip2 before clip10)"`
	NoGUI       bool     `yaml:"no_gui" usage:"Prompt in the terminal instead of opening dialogs"`
	Verbose     bool     `yaml:"verbose" usage:"Log ffmpeg commands and output"`

	View   ViewConfig   `yaml:"view"`
	Concat ConcatConfig `yaml:"concat"`
}

type ViewConfig struct {
	Speed      float64       `yaml:"speed" usage:"Playback speed (0.25 to 4)"`
	Start      string        `yaml:"start" usage:"First clip by number or name, optionally with @position (3@1:30)"`
	SeekStep   time.Duration `yaml:"seek_step" usage:"Seek step for + and -"`
	Width      int           `yaml:"width" usage:"Window width in pixels"`
	Fullscreen bool          `yaml:"fullscreen" usage:"Start in fullscreen"`
	NoProbe    bool          `yaml:"no_probe" usage:"Do not probe clip lengths (seeking stays inside a clip)"`
}

type ConcatConfig struct {
	Output        string  `yaml:"output" usage:"Output file"`
	Overwrite     bool    `yaml:"overwrite" usage:"Replace an existing output file"`
	Mode          string  `yaml:"mode" usage:"auto, copy or reencode"`
	Speed         float64 `yaml:"speed" usage:"Speed-up factor (requires reencode)"`
	FPS           float64 `yaml:"fps" usage:"Output frame rate (requires reencode)"`
	NoAudio       bool    `yaml:"no_audio" usage:"Drop the audio stream"`
	Codec         string  `yaml:"codec" usage:"(ffmpeg c:v) Video codec"`
	EncoderPreset string  `yaml:"encoder_preset" usage:"(ffmpeg preset) Encoder preset"`
	CRF           int     `yaml:"crf" usage:"Constant Rate Factor (0-51)"`
	PixelFormat   string  `yaml:"pixel_format" usage:"Pixel format (yuv420p, ...)"`
	AudioCodec    string  `yaml:"audio_codec" usage:"(ffmpeg c:a) Audio codec"`
	AudioBitrate  string  `yaml:"audio_bitrate" usage:"(ffmpeg b:a) Audio bitrate"`
}

func defaultConfig() Config {
	d := concat.DefaultOptions()
	return Config{
		Extensions: clip.DefaultExtensions,
		View: ViewConfig{
			Speed:    1,
			SeekStep: player.DefaultSeekStep,
		},
		Concat: ConcatConfig{
			Mode:          string(d.Mode),
			Speed:         d.Speed,
			Codec:         d.Codec,
			EncoderPreset: d.Preset,
			CRF:           d.CRF,
			PixelFormat:   d.PixelFormat,
			AudioCodec:    d.AudioCodec,
			AudioBitrate:  d.AudioBitrate,
		},
	}
}

func (c Config) clipOptions(exclude ...string) clip.Options {
	exts := make([]string, 0, len(c.Extensions))
	for _, e := range c.Extensions {
		e = strings.ToLower(strings.TrimSpace(e))
		if e == "" {
			continue
		}
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts = append(exts, e)
	}
	return clip.Options{Extensions: exts, Natural: c.NaturalSort, Exclude: exclude}
}

func (c ConcatConfig) options() (concat.Options, error) {
	mode, err := concat.ParseMode(c.Mode)
	if err != nil {
		return concat.Options{}, err
	}
	if c.Speed <= 0 {
		return concat.Options{}, fmt.Errorf("invalid speed %g", c.Speed)
	}
	if c.FPS < 0 {
		return concat.Options{}, fmt.Errorf("invalid frame rate %g", c.FPS)
	}
	return concat.Options{
		Output:       c.Output,
		Overwrite:    c.Overwrite,
		Mode:         mode,
		Speed:        c.Speed,
		FrameRate:    c.FPS,
		NoAudio:      c.NoAudio,
		Codec:        c.Codec,
		Preset:       c.EncoderPreset,
		CRF:          c.CRF,
		PixelFormat:  c.PixelFormat,
		AudioCodec:   c.AudioCodec,
		AudioBitrate: c.AudioBitrate,
	}, nil
}

// usage returns the usage tag of a Config field, given as "Field" or "View.Field".
func usage(c Config, field string) string {
	t := reflect.TypeOf(c)
	var f reflect.StructField
	for _, name := range strings.Split(field, ".") {
		var ok bool
		if f, ok = t.FieldByName(name); !ok {
			return ""
		}
		t = f.Type
	}
	return f.Tag.Get("usage")
}
