package types

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled is returned by a mux job that was cancelled before it
	// completed. The partial capture is discarded.
	ErrCancelled = errors.New("mux cancelled")

	// ErrBusy is returned when a run is requested while another one is active.
	ErrBusy = errors.New("pipeline busy")

	// ErrReset is returned by a run that was interrupted by Reset.
	ErrReset = errors.New("pipeline reset")
)

type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string { return "decode pcm: " + e.Reason }

type EncodeError struct {
	Reason string
}

func (e *EncodeError) Error() string { return "encode wav: " + e.Reason }

// CaptureSetupError means a source did not become ready for capture within
// the setup window.
type CaptureSetupError struct {
	Source string
	Err    error
}

func (e *CaptureSetupError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("capture setup: %v", e.Err)
	}
	return fmt.Sprintf("capture setup (%s): %v", e.Source, e.Err)
}

func (e *CaptureSetupError) Unwrap() error { return e.Err }

// CaptureRuntimeError means the capture started but the recorder failed
// mid-stream.
type CaptureRuntimeError struct {
	Err error
}

func (e *CaptureRuntimeError) Error() string { return fmt.Sprintf("capture: %v", e.Err) }

func (e *CaptureRuntimeError) Unwrap() error { return e.Err }

// RemoteCallError wraps a failure reported by a remote collaborator.
type RemoteCallError struct {
	Service string
	Message string
	Err     error
}

func (e *RemoteCallError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	return fmt.Sprintf("%s: %s", e.Service, msg)
}

func (e *RemoteCallError) Unwrap() error { return e.Err }
