package types

import (
	"errors"
	"fmt"
	"os"
)

type OutputFormat string

const (
	FormatMP4  OutputFormat = "mp4"
	FormatMKV  OutputFormat = "mkv"
	FormatWebM OutputFormat = "webm"
)

func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case FormatMP4, FormatMKV, FormatWebM:
		return f, nil
	case "":
		return FormatMP4, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (want mp4, mkv or webm)", s)
	}
}

func (f OutputFormat) Ext() string { return "." + string(f) }

func (f OutputFormat) MIMEType() string {
	switch f {
	case FormatWebM:
		return "video/webm"
	case FormatMKV:
		return "video/x-matroska"
	default:
		return "video/mp4"
	}
}

// Artifact is a file produced by the pipeline. Its owner releases it once
// it has been exported or is no longer needed.
type Artifact struct {
	Path     string
	MIMEType string
	Size     int64
}

func (a Artifact) Empty() bool { return a.Path == "" }

// Release deletes the file behind a. Releasing an empty or already removed
// artifact is not an error.
func (a Artifact) Release() error {
	if a.Path == "" {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
