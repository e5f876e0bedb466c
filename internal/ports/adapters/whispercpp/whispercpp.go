package whispercpp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/forPelevin/dubstudio/internal/types"
)

type Adapter struct {
	bin   string
	model string
}

func New(binPath, modelPath string) *Adapter {
	return &Adapter{bin: binPath, model: modelPath}
}

// Transcribe runs whisper.cpp on a 16 kHz mono WAV and returns the source
// language transcript. TranslatedText is left empty.
func (a *Adapter) Transcribe(ctx context.Context, wavPath, cacheDir string) (types.Transcript, error) {
	outPrefix := filepath.Join(cacheDir, "whisper")
	args := []string{
		"-m", a.model,
		"-f", wavPath,
		"-l", "auto",
		"-oj",
		"-of", outPrefix,
	}
	cmd := exec.CommandContext(ctx, a.bin, args...)
	b, err := cmd.CombinedOutput()
	if err != nil {
		return types.Transcript{}, fmt.Errorf("whisper.cpp failed: %w\n%s", err, string(b))
	}

	jb, err := os.ReadFile(outPrefix + ".json")
	if err != nil {
		return types.Transcript{}, err
	}
	return parseOutput(jb)
}

type whisperOutput struct {
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func parseOutput(jb []byte) (types.Transcript, error) {
	var out whisperOutput
	if err := json.Unmarshal(jb, &out); err != nil {
		return types.Transcript{}, fmt.Errorf("parse whisper.cpp json: %w", err)
	}

	var tr types.Transcript
	texts := make([]string, 0, len(out.Transcription))
	for _, s := range out.Transcription {
		txt := strings.TrimSpace(s.Text)
		if txt == "" {
			continue
		}
		tr.Segments = append(tr.Segments, types.Segment{
			Start: float64(s.Offsets.From) / 1000,
			End:   float64(s.Offsets.To) / 1000,
			Text:  txt,
		})
		texts = append(texts, txt)
	}
	tr.OriginalText = strings.Join(texts, " ")
	return tr, nil
}
