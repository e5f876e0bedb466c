package audio

import (
	"encoding/binary"
	"fmt"

	"github.com/forPelevin/dubstudio/internal/types"
)

// DecodePCM interprets raw as little-endian signed 16-bit interleaved PCM.
// A trailing partial frame is dropped, so decoding never fails on length.
func DecodePCM(raw []byte, sampleRate, channels int) (*SampleBuffer, error) {
	if sampleRate <= 0 {
		return nil, &types.DecodeError{Reason: fmt.Sprintf("sample rate must be > 0, got %d", sampleRate)}
	}
	if channels <= 0 {
		return nil, &types.DecodeError{Reason: fmt.Sprintf("channel count must be > 0, got %d", channels)}
	}

	frameSize := 2 * channels
	frames := len(raw) / frameSize

	planar := make([][]float32, channels)
	for c := range planar {
		planar[c] = make([]float32, frames)
	}
	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * 2
			v := int16(binary.LittleEndian.Uint16(raw[off:]))
			planar[c][i] = float32(v) / 32768.0
		}
	}
	return &SampleBuffer{sampleRate: sampleRate, channels: planar}, nil
}
