package gemini

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/forPelevin/dubstudio/internal/types"
)

type recorded struct {
	path string
	body map[string]any
}

func newServer(t *testing.T, status int, response string, got *recorded) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		if got != nil {
			got.path = r.URL.Path
			_ = json.Unmarshal(b, &got.body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(response))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := New(context.Background(), Config{APIKey: "test-key", Model: "scribe", TTSModel: "voice", BaseURL: baseURL})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestNew_RequiresKey(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestTranscribe(t *testing.T) {
	video := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(video, []byte("fake video"), 0o644); err != nil {
		t.Fatal(err)
	}
	var got recorded
	srv := newServer(t, http.StatusOK, `{
		"candidates": [{"content": {"role": "model", "parts": [
			{"text": "{\"originalText\": \" Hello \", \"translatedText\": \"Bonjour\"}"}
		]}}]
	}`, &got)

	tr, err := newTestClient(t, srv.URL).Transcribe(context.Background(), types.Media{Path: video}, "fr")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.OriginalText != "Hello" || tr.TranslatedText != "Bonjour" {
		t.Fatalf("unexpected transcript %+v", tr)
	}
	if !strings.Contains(got.path, "scribe") || !strings.HasSuffix(got.path, ":generateContent") {
		t.Fatalf("unexpected path %q", got.path)
	}
	raw, _ := json.Marshal(got.body)
	body := string(raw)
	for _, want := range []string{"French", "application/json", "originalText", base64.StdEncoding.EncodeToString([]byte("fake video"))} {
		if !strings.Contains(body, want) {
			t.Fatalf("request body missing %q: %s", want, body)
		}
	}
}

func TestTranscribe_InvalidJSON(t *testing.T) {
	video := filepath.Join(t.TempDir(), "clip.mp4")
	if err := os.WriteFile(video, []byte("v"), 0o644); err != nil {
		t.Fatal(err)
	}
	srv := newServer(t, http.StatusOK, `{"candidates": [{"content": {"parts": [{"text": "not json"}]}}]}`, nil)

	_, err := newTestClient(t, srv.URL).Transcribe(context.Background(), types.Media{Path: video}, "de")
	var rce *types.RemoteCallError
	if !errors.As(err, &rce) {
		t.Fatalf("err = %v, want RemoteCallError", err)
	}
}

func TestTranscribe_MissingFile(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{}`, nil)
	if _, err := newTestClient(t, srv.URL).Transcribe(context.Background(), types.Media{Path: "/nope.mp4"}, "de"); err == nil {
		t.Fatal("expected error for missing media")
	}
}

func TestSynthesize(t *testing.T) {
	pcm := []byte{0x00, 0x80, 0xff, 0x7f}
	var got recorded
	srv := newServer(t, http.StatusOK, `{
		"candidates": [{"content": {"role": "model", "parts": [
			{"inlineData": {"mimeType": "audio/L16;codec=pcm;rate=24000", "data": "`+base64.StdEncoding.EncodeToString(pcm)+`"}}
		]}}]
	}`, &got)

	sp, err := newTestClient(t, srv.URL).Synthesize(context.Background(), "Bonjour", "Kore")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(sp.PCM) != string(pcm) || sp.SampleRate != 24000 || sp.Channels != 1 {
		t.Fatalf("unexpected speech %+v", sp)
	}
	if !strings.Contains(got.path, "voice") {
		t.Fatalf("tts model not used, path %q", got.path)
	}
	raw, _ := json.Marshal(got.body)
	if !strings.Contains(string(raw), "Kore") || !strings.Contains(string(raw), "AUDIO") {
		t.Fatalf("request missing voice config: %s", raw)
	}
}

func TestSynthesize_NoAudio(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{"candidates": [{"content": {"parts": [{"text": "sorry"}]}}]}`, nil)
	_, err := newTestClient(t, srv.URL).Synthesize(context.Background(), "hi", "Puck")
	var rce *types.RemoteCallError
	if !errors.As(err, &rce) || !strings.Contains(rce.Message, "no audio") {
		t.Fatalf("err = %v, want no-audio RemoteCallError", err)
	}
}

func TestSynthesize_APIError(t *testing.T) {
	srv := newServer(t, http.StatusTooManyRequests, `{"error": {"code": 429, "message": "quota exceeded", "status": "RESOURCE_EXHAUSTED"}}`, nil)
	_, err := newTestClient(t, srv.URL).Synthesize(context.Background(), "hi", "Puck")
	var rce *types.RemoteCallError
	if !errors.As(err, &rce) {
		t.Fatalf("err = %v, want RemoteCallError", err)
	}
	if rce.Service != "gemini" || !strings.Contains(rce.Message, "429") || !strings.Contains(rce.Message, "quota exceeded") {
		t.Fatalf("unexpected error %+v", rce)
	}
}

func TestPCMRate(t *testing.T) {
	tests := map[string]int{
		"audio/L16;codec=pcm;rate=24000": 24000,
		"audio/L16;rate=16000":           16000,
		"audio/L16":                      24000,
		"":                               24000,
		"audio/L16;rate=abc":             24000,
	}
	for in, want := range tests {
		if got := pcmRate(in); got != want {
			t.Fatalf("pcmRate(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestMediaMIME(t *testing.T) {
	if got := mediaMIME(types.Media{Path: "a.mp4", MIMEType: "video/webm"}); got != "video/webm" {
		t.Fatalf("explicit mime ignored: %q", got)
	}
	if got := mediaMIME(types.Media{Path: "a.unknownext"}); got != "video/mp4" {
		t.Fatalf("fallback = %q", got)
	}
}
