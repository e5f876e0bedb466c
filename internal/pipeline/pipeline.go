package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/forPelevin/dubstudio/internal/config"
	"github.com/forPelevin/dubstudio/internal/domain/subtitles"
	"github.com/forPelevin/dubstudio/internal/mux"
	"github.com/forPelevin/dubstudio/internal/observe"
	"github.com/forPelevin/dubstudio/internal/ports"
	"github.com/forPelevin/dubstudio/internal/ports/adapters/cascade"
	"github.com/forPelevin/dubstudio/internal/ports/adapters/effects"
	"github.com/forPelevin/dubstudio/internal/ports/adapters/ffmpeg"
	"github.com/forPelevin/dubstudio/internal/ports/adapters/gemini"
	"github.com/forPelevin/dubstudio/internal/ports/adapters/openrouter"
	"github.com/forPelevin/dubstudio/internal/ports/adapters/whispercpp"
	"github.com/forPelevin/dubstudio/internal/types"
	"github.com/forPelevin/dubstudio/internal/usecase"
)

type Config struct {
	Input    string
	Settings config.Config

	Logger  *slog.Logger
	Metrics *observe.Metrics

	OnState    func(usecase.State)
	OnProgress func(percent float64)
}

func (c Config) Validate() error {
	if c.Input == "" {
		return errors.New("input is empty")
	}
	st, err := os.Stat(c.Input)
	if err != nil {
		return fmt.Errorf("stat input: %w", err)
	}
	if st.IsDir() {
		return fmt.Errorf("input %s is a directory", c.Input)
	}
	return c.Settings.Validate()
}

// Collaborators are the adapters a run talks to. Tests substitute fakes;
// the CLI builds them from configuration with NewCollaborators.
type Collaborators struct {
	Prober      ports.Prober
	Transcriber ports.Transcriber
	Synthesizer ports.Synthesizer
	Effects     ports.ExternalInference
	Capture     ports.MediaCaptureService
}

func NewCollaborators(ctx context.Context, s config.Config, logger *slog.Logger) (Collaborators, error) {
	ff := ffmpeg.New(s.Tools.FFmpeg, s.Tools.FFprobe)
	c := Collaborators{
		Prober:  ff,
		Capture: ff,
		Effects: effects.Passthrough{Logger: logger},
	}

	var gc *gemini.Client
	if s.Dub || s.Transcriber == config.TranscriberGemini {
		var err error
		gc, err = gemini.New(ctx, gemini.Config{
			APIKey:   s.Gemini.APIKey,
			Model:    s.Gemini.Model,
			TTSModel: s.Gemini.TTSModel,
			BaseURL:  s.Gemini.BaseURL,
		})
		if err != nil {
			return Collaborators{}, err
		}
		c.Synthesizer = gc
	}

	switch s.Transcriber {
	case config.TranscriberLocal:
		c.Transcriber = cascade.New(
			ff,
			whispercpp.New(s.Tools.WhisperBin, s.Tools.WhisperModel),
			openrouter.New(s.OpenRouter.APIKey, s.OpenRouter.Model, s.OpenRouter.BaseURL),
			filepath.Join(s.CacheDir, "asr"),
		)
	default:
		c.Transcriber = gc
	}
	return c, nil
}

// Report describes an exported run.
type Report struct {
	OutDir   string
	Manifest types.Manifest
}

func Run(ctx context.Context, cfg Config) (Report, error) {
	c, err := NewCollaborators(ctx, cfg.Settings, cfg.Logger)
	if err != nil {
		return Report{}, err
	}
	return RunWith(ctx, cfg, c)
}

// RunWith executes one dubbing run with the given collaborators and exports
// its artifacts into a fresh directory under Settings.OutDir.
func RunWith(ctx context.Context, cfg Config, c Collaborators) (Report, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	s := cfg.Settings

	dur, err := c.Prober.ProbeDuration(ctx, cfg.Input)
	if err != nil {
		return Report{}, err
	}
	log.Info("source probed", "input", cfg.Input, "duration", dur.Round(time.Millisecond))

	outDir := s.OutDir
	if outDir == "" {
		outDir = "out"
	}
	runOutDir := buildRunOutDir(outDir, cfg.Input, time.Now().UTC())

	baseCache := s.CacheDir
	if baseCache == "" {
		baseCache = ".cache"
	}
	// One scratch dir per run; a reset only ever deletes its own files.
	workDir := filepath.Join(baseCache, "runs", filepath.Base(runOutDir))
	log.Debug("preparing workspace", "cache", workDir)

	orch := usecase.New(usecase.Deps{
		Transcriber: c.Transcriber,
		Synthesizer: c.Synthesizer,
		Effects:     c.Effects,
		Muxer: mux.New(c.Capture, mux.Options{
			SetupTimeout:     s.Mux.SetupTimeout,
			ProgressInterval: s.Mux.ProgressInterval,
			Logger:           log,
			Metrics:          cfg.Metrics,
		}),
		Logger:     log,
		Metrics:    cfg.Metrics,
		OnState:    cfg.OnState,
		OnProgress: cfg.OnProgress,
	})
	// Exports are copies; the run's own files go away with the reset.
	defer func() {
		orch.Reset()
		_ = os.Remove(workDir)
	}()

	format := s.OutputFormat()
	res, err := orch.Run(ctx, usecase.Input{
		Video:        cfg.Input,
		MIMEType:     mime.TypeByExtension(strings.ToLower(filepath.Ext(cfg.Input))),
		Duration:     dur,
		MaxDuration:  s.MaxDuration,
		Language:     s.Language,
		Voice:        s.Voice,
		Dub:          s.Dub,
		SimulateSync: s.SimulateSync,
		Format:       format,
		WorkDir:      workDir,
	})
	if err != nil {
		return Report{}, err
	}

	m, err := export(runOutDir, cfg.Input, s, res)
	if err != nil {
		return Report{}, err
	}
	log.Info("run exported", "dir", runOutDir, "video", m.Video, "dubbed", m.Dubbed)
	return Report{OutDir: runOutDir, Manifest: m}, nil
}

func export(dir, input string, s config.Config, res usecase.Result) (types.Manifest, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return types.Manifest{}, err
	}

	base := "dubbed_" + s.Language
	m := types.Manifest{
		Input:        input,
		Language:     s.Language,
		Dubbed:       res.Dubbed(),
		DurationSec:  res.Duration.Seconds(),
		Video:        base + s.OutputFormat().Ext(),
		VideoMIME:    res.Artifact.MIMEType,
		Transcript:   "transcript.txt",
		OriginalText: res.Transcript.OriginalText,
		Translated:   res.Transcript.TranslatedText,
	}
	if res.Dubbed() {
		m.Voice = s.Voice
		m.Audio = base + ".wav"
		m.AudioSec = res.Samples.Duration().Seconds()
		if err := os.WriteFile(filepath.Join(dir, m.Audio), res.WAV, 0o644); err != nil {
			return types.Manifest{}, fmt.Errorf("export audio: %w", err)
		}
	}
	if err := copyFile(res.Artifact.Path, filepath.Join(dir, m.Video)); err != nil {
		return types.Manifest{}, fmt.Errorf("export video: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, m.Transcript), []byte(TranscriptText(res.Transcript)), 0o644); err != nil {
		return types.Manifest{}, fmt.Errorf("export transcript: %w", err)
	}
	if ass, ok := subtitles.RenderASS(res.Transcript.Segments); ok {
		m.Subtitles = "subtitles.ass"
		if err := os.WriteFile(filepath.Join(dir, m.Subtitles), []byte(ass), 0o644); err != nil {
			return types.Manifest{}, fmt.Errorf("export subtitles: %w", err)
		}
	}

	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return types.Manifest{}, fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), b, 0o644); err != nil {
		return types.Manifest{}, err
	}
	return m, nil
}

// TranscriptText renders the downloadable transcript.
func TranscriptText(tr types.Transcript) string {
	return "--- ORIGINAL TRANSCRIPT ---\n" + tr.OriginalText + "\n\n--- TRANSLATION ---\n" + tr.TranslatedText
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func buildRunOutDir(outRoot, input string, now time.Time) string {
	name := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	name = normalizePathSegment(name)
	if name == "" {
		name = "input"
	}
	ts := now.UTC().Format("20060102-150405Z")
	runSeed := fmt.Sprintf("%s|%d", input, now.UTC().UnixNano())
	suffix := hash(runSeed)[:6]
	return filepath.Join(outRoot, fmt.Sprintf("%s-%s-%s", name, ts, suffix))
}

func normalizePathSegment(s string) string {
	var b strings.Builder
	prevDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

func hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

// ensure adapters implement ports
var _ ports.Prober = (*ffmpeg.Adapter)(nil)
var _ ports.AudioExtractor = (*ffmpeg.Adapter)(nil)
var _ ports.MediaCaptureService = (*ffmpeg.Adapter)(nil)
var _ ports.ASR = (*whispercpp.Adapter)(nil)
var _ ports.Translator = (*openrouter.Adapter)(nil)
var _ ports.Transcriber = (*gemini.Client)(nil)
var _ ports.Synthesizer = (*gemini.Client)(nil)
var _ ports.Transcriber = (*cascade.Transcriber)(nil)
var _ ports.ExternalInference = effects.Passthrough{}
