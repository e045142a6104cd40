package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// VideoConfig is the output video surface.
type VideoConfig struct {
	Width        int    `yaml:"width" json:"width" validate:"required,gt=0,max=7680"`
	Height       int    `yaml:"height" json:"height" validate:"required,gt=0,max=7680"`
	FPS          int    `yaml:"fps" json:"fps" validate:"required,gt=0,lte=120"`
	Codec        string `yaml:"codec" json:"codec" validate:"required"`
	Preset       string `yaml:"preset" json:"preset" validate:"required,oneof=ultrafast superfast veryfast faster fast medium slow slower veryslow placebo"`
	CRF          int    `yaml:"crf" json:"crf" validate:"gte=0,lte=51"`
	Bitrate      string `yaml:"bitrate,omitempty" json:"bitrate,omitempty"` // overrides CRF when set, e.g. "6M"
	PixelFormat  string `yaml:"pixel_format" json:"pixel_format" validate:"required"`
	MinOutputKiB int    `yaml:"min_output_kib" json:"min_output_kib" validate:"gte=1"`
}

// AudioConfig covers the master clock adjustments and the muxed audio encoding.
type AudioConfig struct {
	Codec       string  `yaml:"codec" json:"codec" validate:"required"`
	Bitrate     string  `yaml:"bitrate" json:"bitrate" validate:"required"`
	SampleRate  int     `yaml:"sample_rate" json:"sample_rate" validate:"required,gt=0"`
	Tempo       float64 `yaml:"tempo" json:"tempo" validate:"gte=0.5,lte=2"`
	LoudnessDB  float64 `yaml:"loudness_db" json:"loudness_db" validate:"gte=-70,lte=-5"`
	Normalize   bool    `yaml:"normalize" json:"normalize"`
	CrossfadeMS int     `yaml:"crossfade_ms" json:"crossfade_ms" validate:"gte=0,lte=1000"`
	ClipFormat  string  `yaml:"clip_format" json:"clip_format" validate:"required,oneof=mp3 wav"`
}

// CaptionConfig controls line grouping and the ASS style.
type CaptionConfig struct {
	Enabled         bool    `yaml:"enabled" json:"enabled"`
	MaxWordsPerLine int     `yaml:"max_words_per_line" json:"max_words_per_line" validate:"required,gt=0"`
	MaxLineDuration float64 `yaml:"max_line_duration" json:"max_line_duration" validate:"required,gt=0"`
	Highlight       bool    `yaml:"highlight" json:"highlight"`
	HighlightColor  string  `yaml:"highlight_color" json:"highlight_color" validate:"required"`
	FontName        string  `yaml:"font_name" json:"font_name" validate:"required"`
	FontSize        int     `yaml:"font_size" json:"font_size" validate:"gte=20,lte=200"`
	MarginV         int     `yaml:"margin_v" json:"margin_v" validate:"gte=0"`
	StyleWords      bool    `yaml:"style_words" json:"style_words"`
}

// EffectsConfig toggles camera motion.
type EffectsConfig struct {
	Enabled          bool    `yaml:"enabled" json:"enabled"`
	DefaultIntensity float64 `yaml:"default_intensity" json:"default_intensity" validate:"gte=0,lte=1"`
	DefaultTag       string  `yaml:"default_tag" json:"default_tag"`
}

// AssetConfig controls what happens when a scene image cannot be fetched.
type AssetConfig struct {
	AllowPlaceholder bool   `yaml:"allow_placeholder" json:"allow_placeholder"`
	PlaceholderColor string `yaml:"placeholder_color" json:"placeholder_color" validate:"required"`
}

// SynthesisConfig bounds the external speech calls.
type SynthesisConfig struct {
	Concurrency  int           `yaml:"concurrency" json:"concurrency" validate:"required,gt=0,lte=32"`
	MaxRetries   int           `yaml:"max_retries" json:"max_retries" validate:"gte=0,lte=10"`
	Timeout      time.Duration `yaml:"timeout" json:"timeout" validate:"gt=0"`
	DefaultVoice string        `yaml:"default_voice" json:"default_voice" validate:"required"`
	Voices       []string      `yaml:"voices" json:"voices"`
}

// RenderSettings bounds the external renderer.
type RenderSettings struct {
	MaxRetries     int           `yaml:"max_retries" json:"max_retries" validate:"gte=0,lte=10"`
	Timeout        time.Duration `yaml:"timeout" json:"timeout" validate:"gt=0"`
	PreviewSeconds float64       `yaml:"preview_seconds" json:"preview_seconds" validate:"gte=0"`
}

// RenderConfig is the configuration value object for one render.
type RenderConfig struct {
	Video     VideoConfig     `yaml:"video" json:"video"`
	Audio     AudioConfig     `yaml:"audio" json:"audio"`
	Captions  CaptionConfig   `yaml:"captions" json:"captions"`
	Effects   EffectsConfig   `yaml:"effects" json:"effects"`
	Assets    AssetConfig     `yaml:"assets" json:"assets"`
	Synthesis SynthesisConfig `yaml:"synthesis" json:"synthesis"`
	Render    RenderSettings  `yaml:"render" json:"render"`
	WorkDir   string          `yaml:"work_dir" json:"work_dir"`
}

// Default returns a vertical 1080x1920@30 profile.
func Default() RenderConfig {
	return RenderConfig{
		Video: VideoConfig{
			Width:        1080,
			Height:       1920,
			FPS:          30,
			Codec:        "libx264",
			Preset:       "medium",
			CRF:          23,
			PixelFormat:  "yuv420p",
			MinOutputKiB: 1,
		},
		Audio: AudioConfig{
			Codec:       "aac",
			Bitrate:     "192k",
			SampleRate:  44100,
			Tempo:       1.1,
			LoudnessDB:  -20,
			Normalize:   true,
			CrossfadeMS: 100,
			ClipFormat:  "mp3",
		},
		Captions: CaptionConfig{
			Enabled:         true,
			MaxWordsPerLine: 6,
			MaxLineDuration: 3.0,
			Highlight:       true,
			HighlightColor:  "yellow",
			FontName:        "Arial",
			FontSize:        48,
			MarginV:         100,
			StyleWords:      true,
		},
		Effects: EffectsConfig{
			Enabled:          true,
			DefaultIntensity: 0.3,
			DefaultTag:       "zoom_in",
		},
		Assets: AssetConfig{
			AllowPlaceholder: true,
			PlaceholderColor: "black",
		},
		Synthesis: SynthesisConfig{
			Concurrency:  4,
			MaxRetries:   2,
			Timeout:      2 * time.Minute,
			DefaultVoice: "alloy",
			Voices:       []string{"alloy", "echo", "fable", "onyx", "nova", "shimmer"},
		},
		Render: RenderSettings{
			MaxRetries:     2,
			Timeout:        30 * time.Minute,
			PreviewSeconds: 10,
		},
		WorkDir: os.TempDir(),
	}
}

// CrossfadeSeconds returns the clip crossfade in seconds.
func (c RenderConfig) CrossfadeSeconds() float64 {
	return float64(c.Audio.CrossfadeMS) / 1000
}

var validate = validator.New()

// Validate checks the value object and joins every failing field into one error.
func (c RenderConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("invalid render config: %s", strings.Join(FormatValidationErrors(verrs), ", "))
		}
		return fmt.Errorf("invalid render config: %w", err)
	}
	if c.Video.Width%2 != 0 || c.Video.Height%2 != 0 {
		return fmt.Errorf("invalid render config: resolution %dx%d must be even for yuv420p", c.Video.Width, c.Video.Height)
	}
	return nil
}

// Load reads a YAML file over the defaults and validates the result. An empty
// path returns the defaults.
func Load(path string) (RenderConfig, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, cfg.Validate()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// FormatValidationErrors formats validation errors from validator/v10.
func FormatValidationErrors(err error) []string {
	var out []string
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		if err != nil {
			out = append(out, err.Error())
		}
		return out
	}
	for _, fe := range verrs {
		element := fmt.Sprintf("Field '%s' failed on the '%s' tag", fe.Namespace(), fe.Tag())
		if fe.Param() != "" {
			element = fmt.Sprintf("%s (value: %s)", element, fe.Param())
		}
		out = append(out, element)
	}
	return out
}

// Struct validates any tagged struct with the shared validator.
func Struct(v interface{}) error {
	return validate.Struct(v)
}
