// Package effects holds the post-synthesis visual stage. Only a passthrough
// exists: it checks its inputs and optionally waits, leaving the media
// untouched.
package effects

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"
)

type Passthrough struct {
	// Delay stands in for inference time.
	Delay  time.Duration
	Logger *slog.Logger
}

func (p Passthrough) Apply(ctx context.Context, videoPath, audioPath string) error {
	for _, path := range []string{videoPath, audioPath} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("effects input: %w", err)
		}
	}

	log := p.Logger
	if log == nil {
		log = slog.Default()
	}
	log.Debug("effects passthrough", "video", videoPath, "audio", audioPath, "delay", p.Delay)

	if p.Delay <= 0 {
		return nil
	}
	t := time.NewTimer(p.Delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
