package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/forPelevin/dubstudio/internal/domain/audio"
	"github.com/forPelevin/dubstudio/internal/mux"
	"github.com/forPelevin/dubstudio/internal/observe"
	"github.com/forPelevin/dubstudio/internal/ports"
	"github.com/forPelevin/dubstudio/internal/types"
)

type State int

const (
	Idle State = iota
	Transcribing
	Synthesizing
	SimulatingSync
	Muxing
	Done
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Transcribing:
		return "transcribing"
	case Synthesizing:
		return "synthesizing"
	case SimulatingSync:
		return "simulating_sync"
	case Muxing:
		return "muxing"
	case Done:
		return "done"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Deps struct {
	Transcriber ports.Transcriber
	Synthesizer ports.Synthesizer
	// Effects is optional; SimulatingSync is skipped without it.
	Effects ports.ExternalInference
	Muxer   *mux.Muxer

	Logger  *slog.Logger
	Metrics *observe.Metrics

	// OnState is called after every state change, outside the lock.
	OnState func(State)
	// OnProgress receives mux progress in percent.
	OnProgress func(percent float64)
}

type Input struct {
	Video    string
	MIMEType string
	// Duration of the source; the mux target.
	Duration time.Duration
	// MaxDuration rejects longer sources when > 0.
	MaxDuration time.Duration

	Language     string
	Voice        string
	Dub          bool
	SimulateSync bool
	Format       types.OutputFormat

	// WorkDir receives the synthesized WAV and the muxed artifact.
	WorkDir string
}

// Result is everything a run produced. The orchestrator owns the files it
// references until the next Run or Reset.
type Result struct {
	Transcript types.Transcript
	Samples    *audio.SampleBuffer
	WAV        []byte
	AudioPath  string
	Artifact   types.Artifact
	Duration   time.Duration
}

// Dubbed reports whether the artifact carries a synthesized track.
func (r Result) Dubbed() bool { return r.AudioPath != "" }

// Orchestrator sequences one dubbing run at a time:
// Idle → Transcribing → Synthesizing → SimulatingSync → Muxing → Done, with
// any stage failing into Error.
type Orchestrator struct {
	d Deps

	mu     sync.Mutex
	state  State
	err    error
	active bool
	gen    uint64
	job    *mux.Job
	res    Result
}

func New(d Deps) *Orchestrator {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Orchestrator{d: d}
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Err is the failure that moved the orchestrator into Error.
func (o *Orchestrator) Err() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.err
}

// Result returns what the last run produced so far.
func (o *Orchestrator) Result() Result {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.res
}

// Run executes a full pipeline. It returns ErrBusy if a run is active and
// ErrReset if Reset interrupted it.
func (o *Orchestrator) Run(ctx context.Context, in Input) (res Result, err error) {
	gen, err := o.begin()
	if err != nil {
		return Result{}, err
	}

	ctx, span := observe.StartSpan(ctx, "dubstudio.run", trace.WithAttributes(
		attribute.String("language", in.Language),
		attribute.Bool("dub", in.Dub),
	))
	log := observe.Logger(ctx, o.d.Logger).With("input", in.Video)
	start := time.Now()
	defer func() {
		o.end(gen, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			log.Debug("run finished", "err", err)
		} else {
			log.Info("run finished", "elapsed", time.Since(start).Round(time.Millisecond))
		}
		if o.d.Metrics != nil {
			o.d.Metrics.RecordRun(context.WithoutCancel(ctx), err)
		}
		span.End()
	}()

	if err := in.validate(); err != nil {
		return Result{}, err
	}
	if err := os.MkdirAll(in.WorkDir, 0o755); err != nil {
		return Result{}, fmt.Errorf("create work dir: %w", err)
	}

	var tr types.Transcript
	err = o.stage(ctx, gen, Transcribing, func(ctx context.Context) error {
		var err error
		tr, err = o.d.Transcriber.Transcribe(ctx, types.Media{Path: in.Video, MIMEType: in.MIMEType, Duration: in.Duration}, in.Language)
		o.remote(ctx, "transcriber", err)
		return err
	})
	if err != nil {
		return Result{}, err
	}
	if err := o.update(gen, func(r *Result) {
		r.Transcript = tr
		r.Duration = in.Duration
	}); err != nil {
		return Result{}, err
	}
	log.Info("transcribed", "original_chars", len(tr.OriginalText), "translated_chars", len(tr.TranslatedText))

	if in.Dub && strings.TrimSpace(tr.TranslatedText) != "" {
		var (
			samples *audio.SampleBuffer
			wav     []byte
			path    = filepath.Join(in.WorkDir, "dub.wav")
		)
		err = o.stage(ctx, gen, Synthesizing, func(ctx context.Context) error {
			var err error
			samples, wav, err = o.synthesize(ctx, tr.TranslatedText, in.Voice)
			if err != nil {
				return err
			}
			return os.WriteFile(path, wav, 0o644)
		})
		if err != nil {
			// Covers a partial write and a file written after Reset.
			_ = os.Remove(path)
			return Result{}, err
		}
		if err := o.update(gen, func(r *Result) {
			r.Samples = samples
			r.WAV = wav
			r.AudioPath = path
		}); err != nil {
			_ = os.Remove(path)
			return Result{}, err
		}
		log.Info("synthesized", "voice", in.Voice, "seconds", samples.Duration().Seconds())
	} else if in.Dub {
		log.Warn("empty translation; exporting video without a dub")
	}

	audioPath := o.Result().AudioPath
	if in.SimulateSync && o.d.Effects != nil {
		err = o.stage(ctx, gen, SimulatingSync, func(ctx context.Context) error {
			return o.d.Effects.Apply(ctx, in.Video, audioPath)
		})
		if err != nil {
			return Result{}, err
		}
	}

	var art types.Artifact
	err = o.stage(ctx, gen, Muxing, func(ctx context.Context) error {
		var err error
		art, err = o.mux(ctx, gen, mux.Request{
			Video:      in.Video,
			Audio:      audioPath,
			Duration:   in.Duration,
			Format:     in.Format,
			Out:        filepath.Join(in.WorkDir, "muxed"+in.Format.Ext()),
			OnProgress: o.d.OnProgress,
		})
		return err
	})
	if err != nil {
		_ = art.Release()
		return Result{}, err
	}
	if err := o.update(gen, func(r *Result) { r.Artifact = art }); err != nil {
		_ = art.Release()
		return Result{}, err
	}

	if err := o.enter(gen, Done); err != nil {
		return Result{}, err
	}
	return o.Result(), nil
}

// Reset returns to Idle from any state and releases everything the last run
// produced. An active run is interrupted at its next stage boundary; muxing
// is cancelled immediately while a remote call in flight is left to finish.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	o.gen++
	if o.job != nil {
		o.job.Cancel()
		o.job = nil
	}
	o.releaseLocked()
	o.state = Idle
	o.err = nil
	o.mu.Unlock()
	o.notify(Idle)
}

func (o *Orchestrator) begin() (uint64, error) {
	o.mu.Lock()
	if o.active {
		o.mu.Unlock()
		return 0, types.ErrBusy
	}
	o.releaseLocked()
	o.active = true
	o.gen++
	gen := o.gen
	o.state = Idle
	o.err = nil
	o.mu.Unlock()
	return gen, nil
}

func (o *Orchestrator) end(gen uint64, err error) {
	o.mu.Lock()
	o.active = false
	o.job = nil
	if err == nil || gen != o.gen {
		o.mu.Unlock()
		return
	}
	o.state = Error
	o.err = err
	o.releaseLocked()
	o.mu.Unlock()
	o.d.Logger.Error("run failed", "err", err)
	o.notify(Error)
}

func (o *Orchestrator) enter(gen uint64, s State) error {
	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return types.ErrReset
	}
	o.state = s
	o.mu.Unlock()
	o.notify(s)
	return nil
}

func (o *Orchestrator) update(gen uint64, fn func(*Result)) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.gen {
		return types.ErrReset
	}
	fn(&o.res)
	return nil
}

func (o *Orchestrator) stage(ctx context.Context, gen uint64, s State, fn func(context.Context) error) error {
	if err := o.enter(gen, s); err != nil {
		return err
	}
	ctx, span := observe.StartSpan(ctx, "stage."+s.String())
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	if o.d.Metrics != nil {
		o.d.Metrics.RecordStage(ctx, s.String(), time.Since(start), err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if o.stale(gen) {
			return types.ErrReset
		}
		return fmt.Errorf("%s: %w", s, err)
	}
	if o.stale(gen) {
		return types.ErrReset
	}
	return nil
}

func (o *Orchestrator) stale(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return gen != o.gen
}

func (o *Orchestrator) synthesize(ctx context.Context, text, voice string) (*audio.SampleBuffer, []byte, error) {
	sp, err := o.d.Synthesizer.Synthesize(ctx, text, voice)
	o.remote(ctx, "synthesizer", err)
	if err != nil {
		return nil, nil, err
	}
	samples, err := audio.DecodePCM(sp.PCM, sp.SampleRate, sp.Channels)
	if err != nil {
		return nil, nil, err
	}
	if samples.Frames() == 0 {
		return nil, nil, &types.DecodeError{Reason: "synthesized audio is empty"}
	}
	if o.d.Metrics != nil {
		o.d.Metrics.RecordSynthesized(ctx, samples.Duration())
	}
	return samples, audio.EncodeWAV(samples), nil
}

func (o *Orchestrator) mux(ctx context.Context, gen uint64, req mux.Request) (types.Artifact, error) {
	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return types.Artifact{}, types.ErrReset
	}
	job := o.d.Muxer.Start(ctx, req)
	o.job = job
	o.mu.Unlock()

	art, err := job.Wait()

	o.mu.Lock()
	if o.job == job {
		o.job = nil
	}
	o.mu.Unlock()
	return art, err
}

func (o *Orchestrator) remote(ctx context.Context, service string, err error) {
	if o.d.Metrics != nil {
		o.d.Metrics.RecordRemoteCall(ctx, service, err)
	}
}

func (o *Orchestrator) releaseLocked() {
	if o.res.AudioPath != "" {
		if err := os.Remove(o.res.AudioPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			o.d.Logger.Warn("release audio", "path", o.res.AudioPath, "err", err)
		}
	}
	if err := o.res.Artifact.Release(); err != nil {
		o.d.Logger.Warn("release artifact", "path", o.res.Artifact.Path, "err", err)
	}
	o.res = Result{}
}

func (o *Orchestrator) notify(s State) {
	if o.d.OnState != nil {
		o.d.OnState(s)
	}
}

func (in Input) validate() error {
	if in.Video == "" {
		return errors.New("no source video")
	}
	if in.Duration <= 0 {
		return fmt.Errorf("source duration must be > 0, got %s", in.Duration)
	}
	if in.MaxDuration > 0 && in.Duration > in.MaxDuration {
		return fmt.Errorf("source is %s long; the limit is %s", in.Duration.Round(time.Millisecond), in.MaxDuration)
	}
	if in.WorkDir == "" {
		return errors.New("no work dir")
	}
	return nil
}
