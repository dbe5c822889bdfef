package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"tubegrab/internal/core/domain"
	"tubegrab/internal/core/ports"
)

// mergedExt is the extension of the final file; stagingExt is appended while muxing.
const (
	mergedExt  = ".mp4"
	stagingExt = ".part"
)

// Merger turns a finished stream pair into <stem>.mp4.
type Merger struct {
	storage ports.Storage
	backend ports.MuxBackend
}

// NewMerger creates a Merger.
func NewMerger(storage ports.Storage, backend ports.MuxBackend) *Merger {
	return &Merger{storage: storage, backend: backend}
}

// Backend returns the name of the mux backend in use.
func (m *Merger) Backend() string { return m.backend.Name() }

// Merge muxes both temporary files into a staging file and renames it onto the
// final name. The temporary files are deleted only on success; on failure they
// stay and no file exists under the final name.
func (m *Merger) Merge(ctx context.Context, item domain.ContentItem, streams *StreamPair, logger zerolog.Logger) (string, error) {
	final := m.storage.OutputPath(item.Stem, mergedExt)
	staging := final + stagingExt

	for _, h := range []*domain.StreamHandle{streams.Video, streams.Audio} {
		if h.State() == domain.StreamEnded {
			continue
		}
		reason := h.Err()
		if reason == nil {
			reason = fmt.Errorf("%s stream is %s", h.Kind, h.State())
		}
		return "", &domain.MergeError{Output: final, Err: reason}
	}

	job := domain.MuxJob{
		VideoPath: streams.Video.Path,
		AudioPath: streams.Audio.Path,
		Output:    staging,
	}

	logger.Info().Str("backend", m.backend.Name()).Str("output", final).Msg("Merging streams")
	if err := m.backend.Mux(ctx, job); err != nil {
		_ = m.storage.Remove(staging)
		var me *domain.MergeError
		if !errors.As(err, &me) {
			err = &domain.MergeError{Output: final, Err: err}
		}
		return "", err
	}

	if err := m.storage.Promote(staging, final); err != nil {
		_ = m.storage.Remove(staging)
		return "", &domain.MergeError{Output: final, Err: err}
	}

	if err := m.storage.Remove(streams.Video.Path, streams.Audio.Path); err != nil {
		logger.Warn().Err(err).Msg("Failed to remove temporary files")
	}
	return final, nil
}
