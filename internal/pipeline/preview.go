package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/forPelevin/dubstudio/internal/domain/audio"
	"github.com/forPelevin/dubstudio/internal/ports"
	"github.com/forPelevin/dubstudio/internal/types"
)

const PreviewSentence = "This is a preview of the voice selected for your dub."

// Preview synthesizes PreviewSentence with voice and writes it as a WAV
// file to outPath.
func Preview(ctx context.Context, synth ports.Synthesizer, voice, outPath string) (time.Duration, error) {
	if _, ok := types.LookupVoice(voice); !ok {
		return 0, fmt.Errorf("unknown voice %q", voice)
	}
	sp, err := synth.Synthesize(ctx, PreviewSentence, voice)
	if err != nil {
		return 0, err
	}
	samples, err := audio.DecodePCM(sp.PCM, sp.SampleRate, sp.Channels)
	if err != nil {
		return 0, err
	}
	if samples.Frames() == 0 {
		return 0, &types.DecodeError{Reason: "synthesized audio is empty"}
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return 0, err
	}
	if err := os.WriteFile(outPath, audio.EncodeWAV(samples), 0o644); err != nil {
		return 0, fmt.Errorf("write preview: %w", err)
	}
	return samples.Duration(), nil
}
