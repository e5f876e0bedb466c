//go:build integration

package itest

import (
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/forPelevin/dubstudio/internal/domain/audio"
)

// makeVideo renders a test pattern clip with a sine tone audio track.
func makeVideo(t *testing.T, dir string, seconds int) string {
	t.Helper()
	out := filepath.Join(dir, "input.mp4")
	d := strconv.Itoa(seconds)
	ff := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi", "-i", "testsrc=s=320x240:r=25:d="+d,
		"-f", "lavfi", "-i", "sine=frequency=220:d="+d,
		"-shortest",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-c:a", "aac",
		out,
	)
	if b, err := ff.CombinedOutput(); err != nil {
		t.Fatalf("ffmpeg fixture failed: %v\n%s", err, string(b))
	}
	return out
}

// writeToneWAV writes a mono 24 kHz sine tone through the WAV encoder.
func writeToneWAV(t *testing.T, dir string, seconds float64) string {
	t.Helper()
	const rate = 24000
	n := int(seconds * rate)
	ch := make([]float32, n)
	for i := range ch {
		ch[i] = float32(0.5 * math.Sin(2*math.Pi*440*float64(i)/rate))
	}
	buf, err := audio.NewSampleBuffer(rate, [][]float32{ch})
	if err != nil {
		t.Fatalf("sample buffer: %v", err)
	}
	out := filepath.Join(dir, "dub.wav")
	if err := os.WriteFile(out, audio.EncodeWAV(buf), 0o644); err != nil {
		t.Fatalf("write wav: %v", err)
	}
	return out
}
