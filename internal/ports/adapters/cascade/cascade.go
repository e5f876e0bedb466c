// Package cascade transcribes locally and translates remotely: ffmpeg pulls
// the speech track, whisper.cpp transcribes it, and a chat model
// translates the text.
package cascade

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/forPelevin/dubstudio/internal/ports"
	"github.com/forPelevin/dubstudio/internal/types"
)

type Transcriber struct {
	extractor  ports.AudioExtractor
	asr        ports.ASR
	translator ports.Translator
	workDir    string
}

// New returns a Transcriber that keeps its intermediate files under
// workDir. An empty workDir uses the system temp dir.
func New(extractor ports.AudioExtractor, asr ports.ASR, translator ports.Translator, workDir string) *Transcriber {
	return &Transcriber{extractor: extractor, asr: asr, translator: translator, workDir: workDir}
}

func (t *Transcriber) Transcribe(ctx context.Context, media types.Media, lang string) (types.Transcript, error) {
	if t.workDir != "" {
		if err := os.MkdirAll(t.workDir, 0o755); err != nil {
			return types.Transcript{}, fmt.Errorf("create work dir: %w", err)
		}
	}
	dir, err := os.MkdirTemp(t.workDir, "asr-")
	if err != nil {
		return types.Transcript{}, fmt.Errorf("create asr dir: %w", err)
	}
	defer os.RemoveAll(dir)

	wav := filepath.Join(dir, "audio16k.wav")
	if err := t.extractor.ExtractAudioMono16k(ctx, media.Path, wav); err != nil {
		return types.Transcript{}, err
	}
	tr, err := t.asr.Transcribe(ctx, wav, dir)
	if err != nil {
		return types.Transcript{}, err
	}
	if strings.TrimSpace(tr.OriginalText) == "" {
		return tr, nil
	}

	translated, err := t.translator.Translate(ctx, tr.OriginalText, lang)
	if err != nil {
		return types.Transcript{}, fmt.Errorf("translate: %w", err)
	}
	tr.TranslatedText = translated
	return tr, nil
}
