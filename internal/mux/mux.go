// Package mux records a muted video source and a synthesized audio source
// into one time-aligned artifact.
package mux

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/forPelevin/dubstudio/internal/observe"
	"github.com/forPelevin/dubstudio/internal/ports"
	"github.com/forPelevin/dubstudio/internal/types"
)

const (
	DefaultSetupTimeout     = 10 * time.Second
	DefaultProgressInterval = 100 * time.Millisecond
	DefaultStopTimeout      = 15 * time.Second
)

type State int

const (
	Idle State = iota
	Running
	Completed
	Cancelled
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

func (s State) Terminal() bool { return s == Completed || s == Cancelled || s == Failed }

type Request struct {
	Video    string
	Audio    string // empty when the video is exported without a dub
	Duration time.Duration
	Format   types.OutputFormat
	Out      string

	// OnProgress receives the playback position as a percentage of Duration
	// on every progress tick. Values never decrease.
	OnProgress func(percent float64)
}

type Options struct {
	SetupTimeout     time.Duration
	ProgressInterval time.Duration
	StopTimeout      time.Duration
	Logger           *slog.Logger
	Metrics          *observe.Metrics
}

type Muxer struct {
	svc  ports.MediaCaptureService
	opts Options
}

func New(svc ports.MediaCaptureService, opts Options) *Muxer {
	if opts.SetupTimeout <= 0 {
		opts.SetupTimeout = DefaultSetupTimeout
	}
	if opts.ProgressInterval <= 0 {
		opts.ProgressInterval = DefaultProgressInterval
	}
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = DefaultStopTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Muxer{svc: svc, opts: opts}
}

// Job is one mux run. It reaches exactly one terminal state.
type Job struct {
	ID string

	req    Request
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	state    State
	progress float64
	artifact types.Artifact
	err      error
}

// Start launches a mux job. Cancelling ctx cancels the job.
func (m *Muxer) Start(ctx context.Context, req Request) *Job {
	jctx, cancel := context.WithCancel(ctx)
	j := &Job{
		ID:     uuid.NewString(),
		req:    req,
		cancel: cancel,
		done:   make(chan struct{}),
		state:  Running,
	}
	go m.run(jctx, j)
	return j
}

// Mux runs a job to completion.
func (m *Muxer) Mux(ctx context.Context, req Request) (types.Artifact, error) {
	return m.Start(ctx, req).Wait()
}

func (j *Job) Wait() (types.Artifact, error) {
	<-j.done
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.artifact, j.err
}

func (j *Job) Done() <-chan struct{} { return j.done }

// Cancel stops playback and discards the partial capture. It has no effect
// once the job has finished.
func (j *Job) Cancel() { j.cancel() }

func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Progress returns the completed fraction in [0, 1].
func (j *Job) Progress() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.progress
}

func (j *Job) report(pos time.Duration) {
	frac := float64(pos) / float64(j.req.Duration)
	frac = max(0, min(1, frac))

	j.mu.Lock()
	if frac < j.progress {
		frac = j.progress
	}
	j.progress = frac
	j.mu.Unlock()

	if j.req.OnProgress != nil {
		j.req.OnProgress(frac * 100)
	}
}

func (j *Job) finish(art types.Artifact, err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	switch {
	case err == nil:
		j.state = Completed
		j.artifact = art
	case errors.Is(err, types.ErrCancelled):
		j.state = Cancelled
	default:
		j.state = Failed
	}
	j.err = err
}

func (m *Muxer) run(ctx context.Context, j *Job) {
	defer close(j.done)
	defer j.cancel()

	start := time.Now()
	log := m.opts.Logger.With("job", j.ID)
	log.Debug("mux started", "video", j.req.Video, "audio", j.req.Audio, "duration", j.req.Duration)

	art, err := m.capture(ctx, j, log)
	j.finish(art, err)

	state := j.State()
	if m.opts.Metrics != nil {
		m.opts.Metrics.RecordMux(context.WithoutCancel(ctx), state.String(), time.Since(start))
	}
	if err != nil {
		log.Debug("mux finished", "state", state, "err", err)
		return
	}
	log.Debug("mux finished", "state", state, "out", art.Path, "elapsed", time.Since(start))
}

func (m *Muxer) capture(ctx context.Context, j *Job, log *slog.Logger) (types.Artifact, error) {
	if j.req.Video == "" {
		return types.Artifact{}, &types.CaptureSetupError{Source: "video", Err: errors.New("no video source")}
	}
	if j.req.Duration <= 0 {
		return types.Artifact{}, &types.CaptureSetupError{Err: fmt.Errorf("target duration must be > 0, got %s", j.req.Duration)}
	}

	c, err := m.svc.Open(ctx, ports.CaptureRequest{
		Video:    j.req.Video,
		Audio:    j.req.Audio,
		Duration: j.req.Duration,
		Format:   j.req.Format,
		Out:      j.req.Out,
	})
	if err != nil {
		if ctx.Err() != nil {
			return types.Artifact{}, types.ErrCancelled
		}
		return types.Artifact{}, asSetupError(err)
	}
	defer func() {
		if err := c.Close(); err != nil {
			log.Warn("close capture", "err", err)
		}
	}()

	setupCtx, cancelSetup := context.WithTimeout(ctx, m.opts.SetupTimeout)
	err = c.WaitReady(setupCtx)
	cancelSetup()
	if err != nil {
		if ctx.Err() != nil {
			return types.Artifact{}, types.ErrCancelled
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return types.Artifact{}, &types.CaptureSetupError{Err: fmt.Errorf("sources not ready after %s", m.opts.SetupTimeout)}
		}
		return types.Artifact{}, asSetupError(err)
	}

	if err := c.Start(ctx); err != nil {
		if ctx.Err() != nil {
			return types.Artifact{}, types.ErrCancelled
		}
		return types.Artifact{}, &types.CaptureRuntimeError{Err: err}
	}
	j.report(0)

	ticker := time.NewTicker(m.opts.ProgressInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return types.Artifact{}, types.ErrCancelled
		case <-c.Ended():
			if err := c.Err(); err != nil {
				return types.Artifact{}, &types.CaptureRuntimeError{Err: err}
			}
			return m.finalize(ctx, j, c)
		case <-ticker.C:
			pos := c.Position()
			j.report(pos)
			if pos >= j.req.Duration {
				return m.finalize(ctx, j, c)
			}
		}
	}
}

func (m *Muxer) finalize(ctx context.Context, j *Job, c ports.Capture) (types.Artifact, error) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.opts.StopTimeout)
	defer cancel()

	art, err := c.Stop(stopCtx)
	if ctx.Err() != nil {
		_ = art.Release()
		return types.Artifact{}, types.ErrCancelled
	}
	if err != nil {
		_ = art.Release()
		return types.Artifact{}, &types.CaptureRuntimeError{Err: err}
	}
	j.report(j.req.Duration)
	return art, nil
}

func asSetupError(err error) error {
	var se *types.CaptureSetupError
	if errors.As(err, &se) {
		return err
	}
	return &types.CaptureSetupError{Err: err}
}
