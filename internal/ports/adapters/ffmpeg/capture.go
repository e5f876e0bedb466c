package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/forPelevin/dubstudio/internal/ports"
	"github.com/forPelevin/dubstudio/internal/types"
)

// Open prepares a real-time capture of req. Nothing is spawned until Start.
func (a *Adapter) Open(_ context.Context, req ports.CaptureRequest) (ports.Capture, error) {
	if err := checkSource("video", req.Video); err != nil {
		return nil, err
	}
	if req.Audio != "" {
		if err := checkSource("audio", req.Audio); err != nil {
			return nil, err
		}
	}
	if req.Out == "" {
		return nil, &types.CaptureSetupError{Err: errors.New("no output path")}
	}
	if err := os.MkdirAll(filepath.Dir(req.Out), 0o755); err != nil {
		return nil, &types.CaptureSetupError{Err: fmt.Errorf("create output dir: %w", err)}
	}
	return &capture{
		a:     a,
		req:   req,
		args:  captureArgs(req),
		ended: make(chan struct{}),
	}, nil
}

func checkSource(kind, path string) error {
	if path == "" {
		return &types.CaptureSetupError{Source: kind, Err: errors.New("no source")}
	}
	st, err := os.Stat(path)
	if err != nil {
		return &types.CaptureSetupError{Source: kind, Err: err}
	}
	if st.IsDir() {
		return &types.CaptureSetupError{Source: kind, Err: fmt.Errorf("%s is a directory", path)}
	}
	return nil
}

// captureArgs plays both inputs at their native rate (-re) so the recorder
// sees them in lockstep, and bounds the output to the target duration.
func captureArgs(req ports.CaptureRequest) []string {
	dub := req.Audio != ""

	args := []string{"-hide_banner", "-nostats", "-loglevel", "error", "-y", "-re", "-i", req.Video}
	if dub {
		args = append(args, "-re", "-i", req.Audio)
	}
	args = append(args, "-map", "0:v:0")
	if dub {
		args = append(args, "-map", "1:a:0")
	} else {
		args = append(args, "-an")
	}
	args = append(args, "-t", fmtSeconds(req.Duration))

	switch req.Format {
	case types.FormatWebM:
		args = append(args, "-c:v", "libvpx-vp9", "-deadline", "realtime", "-cpu-used", "8", "-b:v", "2M")
		if dub {
			args = append(args, "-c:a", "libopus", "-b:a", "128k")
		}
	default:
		args = append(args, "-c:v", "copy")
		if dub {
			args = append(args, "-c:a", "aac", "-b:a", "192k")
		}
	}

	return append(args,
		"-progress", "pipe:1",
		"-f", containerName(req.Format),
		req.Out,
	)
}

func containerName(f types.OutputFormat) string {
	switch f {
	case types.FormatWebM:
		return "webm"
	case types.FormatMKV:
		return "matroska"
	default:
		return "mp4"
	}
}

type capture struct {
	a    *Adapter
	req  ports.CaptureRequest
	args []string

	posUS  atomic.Int64
	ended  chan struct{}
	stderr tailBuffer

	mu       sync.Mutex
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	exitErr  error
	killed   bool
	finished bool
	closed   bool
}

func (c *capture) WaitReady(ctx context.Context) error {
	if err := c.expectStream(ctx, "video", c.req.Video); err != nil {
		return err
	}
	if c.req.Audio == "" {
		return nil
	}
	return c.expectStream(ctx, "audio", c.req.Audio)
}

func (c *capture) expectStream(ctx context.Context, kind, path string) error {
	kinds, err := c.a.ProbeStreams(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &types.CaptureSetupError{Source: kind, Err: err}
	}
	if !slices.Contains(kinds, kind) {
		return &types.CaptureSetupError{Source: kind, Err: fmt.Errorf("%s has no %s stream", path, kind)}
	}
	return nil
}

func (c *capture) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("capture closed")
	}
	if c.cmd != nil {
		return errors.New("capture already started")
	}

	// The process outlives ctx on purpose: Stop finalizes it with "q" and
	// Close kills it.
	cmd := exec.Command(c.a.ffmpeg, c.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("ffmpeg start: %w", err)
	}
	c.cmd = cmd
	c.stdin = stdin

	var g errgroup.Group
	g.Go(func() error { return readProgress(stdout, &c.posUS) })
	g.Go(func() error {
		_, err := io.Copy(&c.stderr, stderr)
		return err
	})
	go func() {
		readErr := g.Wait()
		waitErr := cmd.Wait()

		c.mu.Lock()
		switch {
		case waitErr != nil:
			c.exitErr = fmt.Errorf("ffmpeg capture: %w\n%s", waitErr, c.stderr.String())
		case readErr != nil:
			c.exitErr = fmt.Errorf("ffmpeg progress: %w", readErr)
		}
		c.mu.Unlock()
		close(c.ended)
	}()
	return nil
}

func (c *capture) Position() time.Duration {
	return time.Duration(c.posUS.Load()) * time.Microsecond
}

func (c *capture) Ended() <-chan struct{} { return c.ended }

func (c *capture) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.killed {
		return nil
	}
	return c.exitErr
}

func (c *capture) Stop(ctx context.Context) (types.Artifact, error) {
	c.mu.Lock()
	stdin := c.stdin
	started := c.cmd != nil
	c.mu.Unlock()
	if !started {
		return types.Artifact{}, errors.New("capture not started")
	}

	// ffmpeg may already have exited at the -t bound; the write then fails
	// with a closed pipe, which is fine.
	_, _ = io.WriteString(stdin, "q")
	_ = stdin.Close()

	select {
	case <-c.ended:
	case <-ctx.Done():
		c.kill()
		return types.Artifact{}, fmt.Errorf("ffmpeg finalize: %w", ctx.Err())
	}
	if err := c.Err(); err != nil {
		return types.Artifact{}, err
	}

	st, err := os.Stat(c.req.Out)
	if err != nil {
		return types.Artifact{}, fmt.Errorf("stat capture output: %w", err)
	}
	c.mu.Lock()
	c.finished = true
	c.mu.Unlock()
	return types.Artifact{
		Path:     c.req.Out,
		MIMEType: c.req.Format.MIMEType(),
		Size:     st.Size(),
	}, nil
}

func (c *capture) kill() {
	c.mu.Lock()
	cmd := c.cmd
	c.killed = true
	c.mu.Unlock()
	if cmd == nil {
		return
	}
	select {
	case <-c.ended:
		return
	default:
	}
	_ = cmd.Process.Kill()
	<-c.ended
}

func (c *capture) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	started := c.cmd != nil
	c.mu.Unlock()

	if started {
		select {
		case <-c.ended:
		default:
			c.kill()
		}
	}

	c.mu.Lock()
	finished := c.finished
	c.mu.Unlock()
	if finished {
		return nil
	}
	if err := os.Remove(c.req.Out); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove partial capture: %w", err)
	}
	return nil
}

// readProgress consumes ffmpeg's -progress key=value stream and publishes
// the output clock.
func readProgress(r io.Reader, posUS *atomic.Int64) error {
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if us, ok := parseProgressLine(sc.Text()); ok && us > posUS.Load() {
			posUS.Store(us)
		}
	}
	return sc.Err()
}

func parseProgressLine(line string) (int64, bool) {
	key, val, ok := strings.Cut(strings.TrimSpace(line), "=")
	if !ok {
		return 0, false
	}
	// out_time_ms is microseconds too; older builds only emit that key.
	if key != "out_time_us" && key != "out_time_ms" {
		return 0, false
	}
	us, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
	if err != nil || us < 0 {
		return 0, false
	}
	return us, true
}

// tailBuffer keeps the last few KiB written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf []byte
}

const tailLimit = 4 << 10

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, p...)
	if over := len(t.buf) - tailLimit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.TrimSpace(string(t.buf))
}
