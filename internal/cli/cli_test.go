package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadSettings_FlagsOverrideFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dubstudio.yaml")
	if err := os.WriteFile(path, []byte("language: de\nvoice: Kore\nformat: mkv\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GEMINI_API_KEY", "env-key")

	root := newRootCmd()
	if err := root.ParseFlags([]string{"--config", path, "--lang", "ja", "--no-dub", "--max-duration", "10s"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	s, err := loadSettings(root)
	if err != nil {
		t.Fatalf("load settings: %v", err)
	}
	if s.Language != "ja" || s.Voice != "Kore" || s.Format != "mkv" {
		t.Fatalf("unexpected layering: %+v", s)
	}
	if s.Dub || s.MaxDuration != 10*time.Second || s.Gemini.APIKey != "env-key" {
		t.Fatalf("unexpected settings: %+v", s)
	}
}

func TestVoicesCommand(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"voices"})
	if err := root.Execute(); err != nil {
		t.Fatalf("voices: %v", err)
	}
	for _, want := range []string{"Zephyr", "Fenrir", "ja", "Japanese"} {
		if !strings.Contains(out.String(), want) {
			t.Fatalf("output missing %q:\n%s", want, out.String())
		}
	}
}

func TestPreviewCommand_UnknownVoice(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"preview", "Nobody"})
	err := root.Execute()
	if err == nil || !strings.Contains(err.Error(), "unknown voice") {
		t.Fatalf("err = %v, want unknown voice", err)
	}
}

func TestPreviewCommand_MissingKeyIsNotFatal(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Chdir(t.TempDir())

	root := newRootCmd()
	var stderr bytes.Buffer
	root.SetErr(&stderr)
	root.SetArgs([]string{"preview", "Puck"})
	if err := root.Execute(); err != nil {
		t.Fatalf("preview: %v", err)
	}
	if !strings.Contains(stderr.String(), "voice preview unavailable") {
		t.Fatalf("expected warning, got %q", stderr.String())
	}
}

func TestProgressPrinter_DedupesPercent(t *testing.T) {
	var buf bytes.Buffer
	p := progressPrinter(&buf)
	for _, v := range []float64{0, 0.4, 1, 1.9, 100} {
		p(v)
	}
	if got := strings.Count(buf.String(), "muxing"); got != 3 {
		t.Fatalf("printed %d updates, want 3: %q", got, buf.String())
	}
}
