// Package ffmpeg merges a video and an audio file with the ffmpeg binary.
package ffmpeg

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"github.com/alessio/shellescape"
	"github.com/rs/zerolog"

	"tubegrab/internal/core/domain"
)

const (
	// DefaultBinary is looked up in PATH.
	DefaultBinary = "ffmpeg"

	VideoCodec   = "copy"
	AudioCodec   = "aac"
	OutputFormat = "mp4"
	LogLevel     = "error"
)

// Muxer implements ports.MuxBackend by running ffmpeg.
type Muxer struct {
	binaryPath string
	logger     zerolog.Logger
}

// NewMuxer creates a Muxer. An empty binaryPath means DefaultBinary.
func NewMuxer(binaryPath string, logger zerolog.Logger) *Muxer {
	if binaryPath == "" {
		binaryPath = DefaultBinary
	}
	return &Muxer{
		binaryPath: binaryPath,
		logger:     logger.With().Str("muxer", "ffmpeg").Logger(),
	}
}

// Available reports whether the ffmpeg binary can be found.
func Available(binaryPath string) bool {
	if binaryPath == "" {
		binaryPath = DefaultBinary
	}
	_, err := exec.LookPath(binaryPath)
	return err == nil
}

// Name returns "ffmpeg".
func (m *Muxer) Name() string { return "ffmpeg" }

// BuildArgs returns the ffmpeg arguments that copy the video track of job.VideoPath,
// encode the audio track of job.AudioPath to AAC and write an MP4 to job.Output.
func BuildArgs(job domain.MuxJob) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-loglevel", LogLevel,
		"-y",
		"-i", job.VideoPath,
		"-i", job.AudioPath,
		"-map", "0:v:0",
		"-map", "1:a:0",
		"-c:v", VideoCodec,
		"-c:a", AudioCodec,
		"-strict", "experimental",
		"-f", OutputFormat,
		job.Output,
	}
}

// Mux runs ffmpeg and waits for it to exit.
func (m *Muxer) Mux(ctx context.Context, job domain.MuxJob) error {
	args := BuildArgs(job)
	m.logger.Debug().Msgf("Executing command: %s %s", m.binaryPath, shellescape.QuoteCommand(args))

	cmd := exec.CommandContext(ctx, m.binaryPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = errors.Join(domain.ErrCancelled, ctxErr)
		}
		return &domain.MergeError{
			Output: job.Output,
			Stderr: strings.TrimSpace(stderr.String()),
			Err:    fmt.Errorf("ffmpeg failed: %w", err),
		}
	}
	return nil
}
