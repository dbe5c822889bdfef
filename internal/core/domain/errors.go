package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrCancelled marks work stopped by context cancellation or timeout.
	ErrCancelled = errors.New("cancelled")
	// ErrStemInUse is returned when the collision policy forbids reusing an output name.
	ErrStemInUse = errors.New("output name already in use")
	// ErrNoStream is returned when a provider has no stream of the requested kind.
	ErrNoStream = errors.New("no matching stream")
	// ErrNoSubtitles is returned when a video has no caption tracks.
	ErrNoSubtitles = errors.New("no subtitles available for this video")
	// ErrNoThumbnail is returned when a video has no thumbnails.
	ErrNoThumbnail = errors.New("no thumbnail available for this video")
)

// ResolutionError means the provider could not resolve an identifier.
type ResolutionError struct {
	Identifier string
	Err        error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("failed to resolve %s: %v", e.Identifier, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// AcquisitionError means a stream could not be opened or transferred.
type AcquisitionError struct {
	Identifier string
	Kind       StreamKind
	Err        error
}

func (e *AcquisitionError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("failed to acquire streams for %s: %v", e.Identifier, e.Err)
	}
	return fmt.Sprintf("failed to acquire %s stream for %s: %v", e.Kind, e.Identifier, e.Err)
}

func (e *AcquisitionError) Unwrap() error { return e.Err }

// MergeError means the mux backend failed. Stderr holds its diagnostic output, if any.
type MergeError struct {
	Output string
	Stderr string
	Err    error
}

func (e *MergeError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("failed to merge into %s: %v, stderr: %s", e.Output, e.Err, e.Stderr)
	}
	return fmt.Sprintf("failed to merge into %s: %v", e.Output, e.Err)
}

func (e *MergeError) Unwrap() error { return e.Err }

// IoError wraps a filesystem failure on Path.
type IoError struct {
	Op   string
	Path string
	Err  error
}

func (e *IoError) Error() string {
	return fmt.Sprintf("failed to %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IoError) Unwrap() error { return e.Err }
