package audio

import (
	"fmt"
	"time"

	"github.com/forPelevin/dubstudio/internal/types"
)

// SampleBuffer holds planar float samples in [-1, 1] at a fixed sample rate.
// It is not modified after construction.
type SampleBuffer struct {
	sampleRate int
	channels   [][]float32
}

// NewSampleBuffer copies the given planar channel data into a new buffer.
// Every channel must have the same number of frames; anything else could not
// be encoded and is reported as an EncodeError.
func NewSampleBuffer(sampleRate int, channels [][]float32) (*SampleBuffer, error) {
	if sampleRate <= 0 {
		return nil, &types.EncodeError{Reason: fmt.Sprintf("sample rate must be > 0, got %d", sampleRate)}
	}
	if len(channels) == 0 {
		return nil, &types.EncodeError{Reason: "at least one channel is required"}
	}
	frames := len(channels[0])
	cp := make([][]float32, len(channels))
	for c, ch := range channels {
		if len(ch) != frames {
			return nil, &types.EncodeError{Reason: fmt.Sprintf("channel %d has %d frames, want %d", c, len(ch), frames)}
		}
		cp[c] = append([]float32(nil), ch...)
	}
	return &SampleBuffer{sampleRate: sampleRate, channels: cp}, nil
}

func (b *SampleBuffer) SampleRate() int { return b.sampleRate }

func (b *SampleBuffer) Channels() int { return len(b.channels) }

func (b *SampleBuffer) Frames() int {
	if len(b.channels) == 0 {
		return 0
	}
	return len(b.channels[0])
}

// Channel returns a copy of the samples of channel c.
func (b *SampleBuffer) Channel(c int) []float32 {
	return append([]float32(nil), b.channels[c]...)
}

// At returns the sample of channel c at frame i.
func (b *SampleBuffer) At(i, c int) float32 { return b.channels[c][i] }

func (b *SampleBuffer) Duration() time.Duration {
	return time.Duration(float64(b.Frames()) / float64(b.sampleRate) * float64(time.Second))
}
