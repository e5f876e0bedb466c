// Package config holds dubstudio settings. Values are layered: built-in
// defaults, then an optional YAML file, then environment variables, then
// command-line flags. [Config.Validate] runs once all layers are applied.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/forPelevin/dubstudio/internal/observe"
	"github.com/forPelevin/dubstudio/internal/types"
)

const (
	TranscriberGemini = "gemini"
	TranscriberLocal  = "local"
)

// DefaultMaxDuration is the longest source accepted unless overridden.
const DefaultMaxDuration = 30 * time.Second

type Config struct {
	Language     string        `yaml:"language"`
	Voice        string        `yaml:"voice"`
	Dub          bool          `yaml:"dub"`
	SimulateSync bool          `yaml:"simulate_sync"`
	Format       string        `yaml:"format"`
	MaxDuration  time.Duration `yaml:"max_duration"`

	OutDir   string `yaml:"out_dir"`
	CacheDir string `yaml:"cache_dir"`

	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`

	// Transcriber selects "gemini" (one multimodal call) or "local"
	// (ffmpeg + whisper.cpp + OpenRouter).
	Transcriber string `yaml:"transcriber"`

	Mux        MuxConfig        `yaml:"mux"`
	Gemini     GeminiConfig     `yaml:"gemini"`
	OpenRouter OpenRouterConfig `yaml:"openrouter"`
	Tools      ToolsConfig      `yaml:"tools"`
}

type MuxConfig struct {
	SetupTimeout     time.Duration `yaml:"setup_timeout"`
	ProgressInterval time.Duration `yaml:"progress_interval"`
}

type GeminiConfig struct {
	APIKey       string   `yaml:"api_key"`
	Model        string   `yaml:"model"`
	TTSModel     string   `yaml:"tts_model"`
	BaseURL      string   `yaml:"base_url"`
	AllowedHosts []string `yaml:"allowed_hosts"`
}

type OpenRouterConfig struct {
	APIKey       string   `yaml:"api_key"`
	Model        string   `yaml:"model"`
	BaseURL      string   `yaml:"base_url"`
	AllowedHosts []string `yaml:"allowed_hosts"`
}

type ToolsConfig struct {
	FFmpeg       string `yaml:"ffmpeg"`
	FFprobe      string `yaml:"ffprobe"`
	WhisperBin   string `yaml:"whisper_bin"`
	WhisperModel string `yaml:"whisper_model"`
}

func Default() Config {
	return Config{
		Language:    types.DefaultLanguage,
		Voice:       types.DefaultVoice,
		Dub:         true,
		Format:      string(types.FormatMP4),
		MaxDuration: DefaultMaxDuration,
		OutDir:      "out",
		CacheDir:    ".cache",
		LogLevel:    "info",
		Transcriber: TranscriberGemini,
		Mux: MuxConfig{
			SetupTimeout:     10 * time.Second,
			ProgressInterval: 100 * time.Millisecond,
		},
		Tools: ToolsConfig{
			FFmpeg:       "ffmpeg",
			FFprobe:      "ffprobe",
			WhisperBin:   ".cache/bin/whisper.cpp",
			WhisperModel: ".cache/models/ggml-base.bin",
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path. An empty
// path returns the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return Config{}, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over the defaults. Unknown keys are
// rejected.
func LoadFromReader(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: decode yaml: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables that are set and
// non-empty.
func (c *Config) ApplyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Gemini.APIKey, "GEMINI_API_KEY")
	set(&c.Gemini.Model, "GEMINI_MODEL")
	set(&c.Gemini.TTSModel, "GEMINI_TTS_MODEL")
	set(&c.Gemini.BaseURL, "GEMINI_BASE_URL")
	set(&c.OpenRouter.APIKey, "OPENROUTER_API_KEY")
	set(&c.OpenRouter.Model, "OPENROUTER_MODEL")
	set(&c.OpenRouter.BaseURL, "OPENROUTER_BASE_URL")
	set(&c.Transcriber, "DUBSTUDIO_TRANSCRIBER")
	set(&c.LogLevel, "DUBSTUDIO_LOG_LEVEL")
	if v := strings.TrimSpace(getenv("OPENROUTER_ALLOWED_HOSTS")); v != "" {
		c.OpenRouter.AllowedHosts = strings.Split(v, ",")
	}
	if v := strings.TrimSpace(getenv("GEMINI_ALLOWED_HOSTS")); v != "" {
		c.Gemini.AllowedHosts = strings.Split(v, ",")
	}
}

// Validate checks that c is coherent. It returns a joined error listing
// every problem found.
func (c Config) Validate() error {
	var errs []error

	if _, ok := types.LookupLanguage(c.Language); !ok {
		errs = append(errs, fmt.Errorf("language %q is not supported; valid values: %s", c.Language, languageCodes()))
	}
	if c.Dub {
		if _, ok := types.LookupVoice(c.Voice); !ok {
			errs = append(errs, fmt.Errorf("voice %q is not supported; valid values: %s", c.Voice, voiceIDs()))
		}
	}
	if _, err := types.ParseOutputFormat(c.Format); err != nil {
		errs = append(errs, err)
	}
	if c.MaxDuration < 0 {
		errs = append(errs, fmt.Errorf("max_duration must be >= 0, got %s", c.MaxDuration))
	}
	if c.Mux.SetupTimeout < 0 || c.Mux.ProgressInterval < 0 {
		errs = append(errs, errors.New("mux timeouts must be >= 0"))
	}
	if _, err := observe.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}

	needGemini := c.Dub
	switch c.Transcriber {
	case TranscriberGemini:
		needGemini = true
	case TranscriberLocal:
		if c.Tools.WhisperModel == "" {
			errs = append(errs, errors.New("whisper model path is required for the local transcriber"))
		}
		if c.OpenRouter.APIKey == "" {
			errs = append(errs, errors.New("OPENROUTER_API_KEY is required for the local transcriber"))
		}
		if err := OpenRouterEndpoint.Validate(c.OpenRouter.BaseURL, c.OpenRouter.AllowedHosts); err != nil {
			errs = append(errs, err)
		}
	default:
		errs = append(errs, fmt.Errorf("transcriber %q is invalid; valid values: gemini, local", c.Transcriber))
	}
	if needGemini {
		if c.Gemini.APIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required (set it in .env)"))
		}
		if c.Gemini.BaseURL != "" {
			if err := GeminiEndpoint.Validate(c.Gemini.BaseURL, c.Gemini.AllowedHosts); err != nil {
				errs = append(errs, err)
			}
		}
	}

	return errors.Join(errs...)
}

// OutputFormat returns the parsed container format. Call after Validate.
func (c Config) OutputFormat() types.OutputFormat {
	f, _ := types.ParseOutputFormat(c.Format)
	return f
}

func languageCodes() string {
	codes := make([]string, 0, len(types.Languages))
	for _, l := range types.Languages {
		codes = append(codes, l.Code)
	}
	return strings.Join(codes, ", ")
}

func voiceIDs() string {
	ids := make([]string, 0, len(types.Voices))
	for _, v := range types.Voices {
		ids = append(ids, v.ID)
	}
	return strings.Join(ids, ", ")
}
