package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/forPelevin/dubstudio/internal/config"
	"github.com/forPelevin/dubstudio/internal/domain/audio"
	"github.com/forPelevin/dubstudio/internal/ports"
	"github.com/forPelevin/dubstudio/internal/types"
)

func TestBuildRunOutDir(t *testing.T) {
	now := time.Date(2026, 2, 12, 10, 30, 45, 1234, time.UTC)
	got := buildRunOutDir("out", "/tmp/My Cool.Video.mp4", now)
	base := filepath.Base(got)
	if filepath.Dir(got) != "out" {
		t.Fatalf("unexpected parent dir: %s", got)
	}
	if !strings.HasPrefix(base, "my-cool-video-20260212-103045Z-") {
		t.Fatalf("unexpected run dir format: %s", base)
	}
	if len(base) != len("my-cool-video-20260212-103045Z-")+6 {
		t.Fatalf("unexpected run dir suffix length: %s", base)
	}
}

func TestNormalizePathSegment(t *testing.T) {
	tests := map[string]string{
		"  My Cool.Video  ": "my-cool-video",
		"___":               "",
		"abc123":            "abc123",
		"Name (v2)!":        "name-v2",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			if got := normalizePathSegment(in); got != want {
				t.Fatalf("normalizePathSegment(%q) = %q, want %q", in, got, want)
			}
		})
	}
}

func TestTranscriptText(t *testing.T) {
	got := TranscriptText(types.Transcript{OriginalText: "Hello", TranslatedText: "Bonjour"})
	want := "--- ORIGINAL TRANSCRIPT ---\nHello\n\n--- TRANSLATION ---\nBonjour"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

type fakeProber struct{ d time.Duration }

func (f fakeProber) ProbeDuration(context.Context, string) (time.Duration, error) { return f.d, nil }

type fakeTranscriber struct {
	segments []types.Segment
}

func (f fakeTranscriber) Transcribe(context.Context, types.Media, string) (types.Transcript, error) {
	return types.Transcript{OriginalText: "Hello", TranslatedText: "Bonjour", Segments: f.segments}, nil
}

type fakeSynth struct {
	err error
}

func (f fakeSynth) Synthesize(context.Context, string, string) (types.Speech, error) {
	if f.err != nil {
		return types.Speech{}, f.err
	}
	return types.Speech{PCM: make([]byte, 2*24000), SampleRate: 24000, Channels: 1}, nil
}

// instantCapture finishes as soon as it is polled.
type instantCapture struct {
	req   ports.CaptureRequest
	ended chan struct{}
	done  bool
}

func (c *instantCapture) WaitReady(context.Context) error { return nil }
func (c *instantCapture) Start(context.Context) error     { return nil }
func (c *instantCapture) Position() time.Duration         { return c.req.Duration }
func (c *instantCapture) Ended() <-chan struct{}          { return c.ended }
func (c *instantCapture) Err() error                      { return nil }
func (c *instantCapture) Stop(context.Context) (types.Artifact, error) {
	if err := os.WriteFile(c.req.Out, []byte("muxed:"+c.req.Audio), 0o644); err != nil {
		return types.Artifact{}, err
	}
	c.done = true
	return types.Artifact{Path: c.req.Out, MIMEType: c.req.Format.MIMEType(), Size: 1}, nil
}
func (c *instantCapture) Close() error {
	if !c.done {
		_ = os.Remove(c.req.Out)
	}
	return nil
}

type instantCaptureService struct{}

func (instantCaptureService) Open(_ context.Context, req ports.CaptureRequest) (ports.Capture, error) {
	return &instantCapture{req: req, ended: make(chan struct{})}, nil
}

func testConfig(t *testing.T) Config {
	t.Helper()
	dir := t.TempDir()
	input := filepath.Join(dir, "My Clip.mp4")
	if err := os.WriteFile(input, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := config.Default()
	s.Gemini.APIKey = "k"
	s.Language = "fr"
	s.Voice = "Puck"
	s.OutDir = filepath.Join(dir, "out")
	s.CacheDir = filepath.Join(dir, "cache")
	s.Mux.ProgressInterval = time.Millisecond
	return Config{Input: input, Settings: s}
}

func testCollaborators() Collaborators {
	return Collaborators{
		Prober:      fakeProber{d: 3 * time.Second},
		Transcriber: fakeTranscriber{},
		Synthesizer: fakeSynth{},
		Capture:     instantCaptureService{},
	}
}

func TestRunWith_ExportsArtifacts(t *testing.T) {
	cfg := testConfig(t)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	rep, err := RunWith(context.Background(), cfg, testCollaborators())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.HasPrefix(filepath.Base(rep.OutDir), "my-clip-") {
		t.Fatalf("unexpected out dir %s", rep.OutDir)
	}

	m := rep.Manifest
	if m.Video != "dubbed_fr.mp4" || m.Audio != "dubbed_fr.wav" || !m.Dubbed || m.Voice != "Puck" {
		t.Fatalf("unexpected manifest %+v", m)
	}
	if m.DurationSec != 3 || m.AudioSec != 1 {
		t.Fatalf("unexpected durations %+v", m)
	}

	wav, err := os.ReadFile(filepath.Join(rep.OutDir, m.Audio))
	if err != nil {
		t.Fatalf("read wav: %v", err)
	}
	h, err := audio.ParseWAVHeader(wav)
	if err != nil || h.SampleRate != 24000 || h.DataSize != 48000 {
		t.Fatalf("unexpected wav header %+v, %v", h, err)
	}
	if _, err := os.Stat(filepath.Join(rep.OutDir, m.Video)); err != nil {
		t.Fatalf("video not exported: %v", err)
	}
	txt, err := os.ReadFile(filepath.Join(rep.OutDir, "transcript.txt"))
	if err != nil || !strings.Contains(string(txt), "Bonjour") {
		t.Fatalf("transcript not exported: %q, %v", txt, err)
	}

	var onDisk types.Manifest
	b, err := os.ReadFile(filepath.Join(rep.OutDir, "manifest.json"))
	if err != nil {
		t.Fatalf("read manifest: %v", err)
	}
	if err := json.Unmarshal(b, &onDisk); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if m.Subtitles != "" {
		t.Fatalf("subtitles exported for untimed transcript: %q", m.Subtitles)
	}
	if onDisk.Video != m.Video || onDisk.Translated != "Bonjour" {
		t.Fatalf("manifest on disk differs: %+v", onDisk)
	}

	runs := filepath.Join(cfg.Settings.CacheDir, "runs")
	err = filepath.WalkDir(runs, func(path string, d os.DirEntry, err error) error {
		if err == nil && !d.IsDir() {
			t.Errorf("run file left behind: %s", path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("walk: %v", err)
	}
}

func TestRunWith_NoDub(t *testing.T) {
	cfg := testConfig(t)
	cfg.Settings.Dub = false
	cfg.Settings.Format = "mkv"

	rep, err := RunWith(context.Background(), cfg, testCollaborators())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Manifest.Dubbed || rep.Manifest.Audio != "" || rep.Manifest.Video != "dubbed_fr.mkv" {
		t.Fatalf("unexpected manifest %+v", rep.Manifest)
	}
	if _, err := os.Stat(filepath.Join(rep.OutDir, "dubbed_fr.wav")); !os.IsNotExist(err) {
		t.Fatalf("audio exported without dub: %v", err)
	}
}

func TestRunWith_ExportsSubtitlesForTimedTranscript(t *testing.T) {
	cfg := testConfig(t)
	c := testCollaborators()
	c.Transcriber = fakeTranscriber{segments: []types.Segment{{Start: 0, End: 1.2, Text: "Hello"}}}

	rep, err := RunWith(context.Background(), cfg, c)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if rep.Manifest.Subtitles != "subtitles.ass" {
		t.Fatalf("subtitles not in manifest: %+v", rep.Manifest)
	}
	b, err := os.ReadFile(filepath.Join(rep.OutDir, rep.Manifest.Subtitles))
	if err != nil || !strings.Contains(string(b), ",Hello\n") {
		t.Fatalf("unexpected subtitles %q, %v", b, err)
	}
}

func TestRunWith_TooLong(t *testing.T) {
	cfg := testConfig(t)
	c := testCollaborators()
	c.Prober = fakeProber{d: 31 * time.Second}

	_, err := RunWith(context.Background(), cfg, c)
	if err == nil || !strings.Contains(err.Error(), "limit") {
		t.Fatalf("err = %v, want duration limit error", err)
	}
	if _, err := os.Stat(cfg.Settings.OutDir); !os.IsNotExist(err) {
		t.Fatalf("out dir created for a rejected run: %v", err)
	}
}

func TestRunWith_SynthesisFailure(t *testing.T) {
	cfg := testConfig(t)
	c := testCollaborators()
	c.Synthesizer = fakeSynth{err: &types.RemoteCallError{Service: "gemini", Message: "status 500"}}

	_, err := RunWith(context.Background(), cfg, c)
	var rce *types.RemoteCallError
	if !errors.As(err, &rce) {
		t.Fatalf("err = %v, want RemoteCallError", err)
	}
}

func TestRunWith_ConcurrentRunsOnSameInput(t *testing.T) {
	cfg := testConfig(t)

	type outcome struct {
		rep Report
		err error
	}
	results := make(chan outcome, 2)
	for range 2 {
		go func() {
			rep, err := RunWith(context.Background(), cfg, testCollaborators())
			results <- outcome{rep, err}
		}()
	}

	var sources []string
	for range 2 {
		r := <-results
		if r.err != nil {
			t.Fatalf("run: %v", r.err)
		}
		b, err := os.ReadFile(filepath.Join(r.rep.OutDir, r.rep.Manifest.Video))
		if err != nil {
			t.Fatalf("read exported video: %v", err)
		}
		sources = append(sources, strings.TrimPrefix(string(b), "muxed:"))
	}
	if filepath.Dir(sources[0]) == filepath.Dir(sources[1]) {
		t.Fatalf("runs shared a work dir: %s", filepath.Dir(sources[0]))
	}

	entries, err := os.ReadDir(filepath.Join(cfg.Settings.CacheDir, "runs"))
	if err != nil {
		t.Fatalf("read runs dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("work dirs left behind: %v", entries)
	}
}

func TestConfigValidate_Input(t *testing.T) {
	cfg := testConfig(t)
	cfg.Input = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty input")
	}
	cfg.Input = t.TempDir()
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for directory input")
	}
}

func TestPreview(t *testing.T) {
	out := filepath.Join(t.TempDir(), "previews", "Kore.wav")
	d, err := Preview(context.Background(), fakeSynth{}, "Kore", out)
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if d != time.Second {
		t.Fatalf("duration = %s", d)
	}
	b, err := os.ReadFile(out)
	if err != nil || len(b) != audio.WAVHeaderSize+48000 {
		t.Fatalf("unexpected preview file: %d bytes, %v", len(b), err)
	}

	if _, err := Preview(context.Background(), fakeSynth{}, "Nobody", out); err == nil {
		t.Fatal("expected error for unknown voice")
	}
}
