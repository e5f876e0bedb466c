package ports

import (
	"context"
	"time"

	"github.com/forPelevin/dubstudio/internal/types"
)

// Transcriber transcribes the source media and translates it into lang.
type Transcriber interface {
	Transcribe(ctx context.Context, media types.Media, lang string) (types.Transcript, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) (types.Speech, error)
}

// ExternalInference is the seam for post-synthesis visual processing such
// as lip-sync. Implementations must not modify the inputs.
type ExternalInference interface {
	Apply(ctx context.Context, videoPath, audioPath string) error
}

// AudioExtractor pulls a mono 16 kHz WAV track out of a video.
type AudioExtractor interface {
	ExtractAudioMono16k(ctx context.Context, inVideo, outWav string) error
}

type ASR interface {
	Transcribe(ctx context.Context, wavPath, cacheDir string) (types.Transcript, error)
}

type Translator interface {
	Translate(ctx context.Context, text, lang string) (string, error)
}

type Prober interface {
	ProbeDuration(ctx context.Context, path string) (time.Duration, error)
}

// CaptureRequest describes one capture: the video is played muted, the
// audio (optional) is played alongside it, and both are recorded into Out.
type CaptureRequest struct {
	Video    string
	Audio    string
	Duration time.Duration
	Format   types.OutputFormat
	Out      string
}

// MediaCaptureService plays sources together and records the combined
// output.
type MediaCaptureService interface {
	Open(ctx context.Context, req CaptureRequest) (Capture, error)
}

// Capture is a single capture session. Close must be safe to call on every
// exit path and more than once; it discards any output that was not
// returned by Stop.
type Capture interface {
	// WaitReady blocks until both sources can be played.
	WaitReady(ctx context.Context) error
	// Start begins playback of both sources and recording.
	Start(ctx context.Context) error
	// Position is the current playback time of the video source.
	Position() time.Duration
	// Ended is closed when the sources reach their natural end or the
	// recorder stops on its own.
	Ended() <-chan struct{}
	// Err reports why the recorder stopped on its own, if it failed.
	Err() error
	// Stop ends playback and finalizes the recording.
	Stop(ctx context.Context) (types.Artifact, error)
	Close() error
}
