package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/forPelevin/dubstudio/internal/config"
	"github.com/forPelevin/dubstudio/internal/observe"
	"github.com/forPelevin/dubstudio/internal/pipeline"
	"github.com/forPelevin/dubstudio/internal/ports/adapters/gemini"
	"github.com/forPelevin/dubstudio/internal/types"
	"github.com/forPelevin/dubstudio/internal/usecase"
)

const runTimeout = 30 * time.Minute

func run(cmd *cobra.Command, input string) error {
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}

	absIn, err := filepath.Abs(input)
	if err != nil {
		return err
	}

	logger, err := observe.NewLogger(cmd.ErrOrStderr(), s.LogLevel)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	slog.SetDefault(logger)

	cfg := pipeline.Config{
		Input:      absIn,
		Settings:   s,
		Logger:     logger,
		OnState:    func(st usecase.State) { logger.Info("stage", "state", st) },
		OnProgress: progressPrinter(cmd.ErrOrStderr()),
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	shutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{MetricsAddr: s.MetricsAddr})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		_ = shutdown(sctx)
	}()

	cfg.Metrics, err = observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	rep, err := pipeline.Run(ctx, cfg)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Output: %s\n", rep.OutDir)
	fmt.Fprintf(w, "  video:      %s\n", rep.Manifest.Video)
	if rep.Manifest.Audio != "" {
		fmt.Fprintf(w, "  audio:      %s (%.1fs)\n", rep.Manifest.Audio, rep.Manifest.AudioSec)
	}
	fmt.Fprintf(w, "  transcript: %s\n", rep.Manifest.Transcript)
	return nil
}

// preview never fails the command once the voice is valid; synthesis errors
// are logged.
func preview(cmd *cobra.Command, voice string) error {
	if _, ok := types.LookupVoice(voice); !ok {
		return fmt.Errorf("unknown voice %q; run \"dubstudio voices\" to list them", voice)
	}
	s, err := loadSettings(cmd)
	if err != nil {
		return err
	}
	logger, err := observe.NewLogger(cmd.ErrOrStderr(), s.LogLevel)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := gemini.New(ctx, gemini.Config{
		APIKey:   s.Gemini.APIKey,
		TTSModel: s.Gemini.TTSModel,
		BaseURL:  s.Gemini.BaseURL,
	})
	if err != nil {
		logger.Warn("voice preview unavailable", "voice", voice, "err", err)
		return nil
	}

	out := filepath.Join(s.OutDir, "previews", voice+".wav")
	d, err := pipeline.Preview(ctx, client, voice, out)
	if err != nil {
		logger.Warn("voice preview failed", "voice", voice, "err", err)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Preview: %s (%.1fs)\n", out, d.Seconds())
	return nil
}

// loadSettings layers the config file, the environment and any flags the
// user set explicitly.
func loadSettings(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	s, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	s.ApplyEnv(os.Getenv)

	fs := cmd.Flags()
	str := func(name string, dst *string) {
		if fs.Lookup(name) != nil && fs.Changed(name) {
			*dst, _ = fs.GetString(name)
		}
	}
	str("lang", &s.Language)
	str("voice", &s.Voice)
	str("format", &s.Format)
	str("out", &s.OutDir)
	str("log-level", &s.LogLevel)
	str("metrics-addr", &s.MetricsAddr)
	str("transcriber", &s.Transcriber)
	if fs.Lookup("no-dub") != nil && fs.Changed("no-dub") {
		noDub, _ := fs.GetBool("no-dub")
		s.Dub = !noDub
	}
	if fs.Lookup("simulate-sync") != nil && fs.Changed("simulate-sync") {
		s.SimulateSync, _ = fs.GetBool("simulate-sync")
	}
	if fs.Lookup("max-duration") != nil && fs.Changed("max-duration") {
		s.MaxDuration, _ = fs.GetDuration("max-duration")
	}
	return s, nil
}

func progressPrinter(w io.Writer) func(float64) {
	last := -1
	return func(p float64) {
		pct := int(p)
		if pct == last {
			return
		}
		last = pct
		fmt.Fprintf(w, "\rmuxing %3d%%", pct)
		if pct >= 100 {
			fmt.Fprintln(w)
		}
	}
}
