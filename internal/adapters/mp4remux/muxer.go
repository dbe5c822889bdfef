// Package mp4remux merges an MP4 video file and an MP4 audio file in-process,
// copying both tracks without re-encoding.
package mp4remux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/yapingcat/gomedia/go-mp4"

	"tubegrab/internal/core/domain"
)

// Muxer implements ports.MuxBackend with gomedia's MP4 demuxer and muxer.
// Both inputs must be MP4 (ISO BMFF) files. The audio track is copied as is.
type Muxer struct {
	logger zerolog.Logger
}

// NewMuxer creates a Muxer.
func NewMuxer(logger zerolog.Logger) *Muxer {
	return &Muxer{logger: logger.With().Str("muxer", "native").Logger()}
}

// Name returns "native".
func (m *Muxer) Name() string { return "native" }

// Mux copies the first video track of job.VideoPath and the first audio track of
// job.AudioPath into job.Output.
func (m *Muxer) Mux(ctx context.Context, job domain.MuxJob) error {
	if err := m.mux(ctx, job); err != nil {
		if ctx.Err() != nil {
			err = errors.Join(domain.ErrCancelled, err)
		}
		return &domain.MergeError{Output: job.Output, Err: err}
	}
	return nil
}

func (m *Muxer) mux(ctx context.Context, job domain.MuxJob) error {
	videoFile, err := os.Open(job.VideoPath)
	if err != nil {
		return err
	}
	defer videoFile.Close()

	audioFile, err := os.Open(job.AudioPath)
	if err != nil {
		return err
	}
	defer audioFile.Close()

	videoDemuxer := mp4.CreateMp4Demuxer(videoFile)
	videoTracks, err := videoDemuxer.ReadHead()
	if err != nil {
		return fmt.Errorf("failed to read video header: %w", err)
	}
	videoTrack, ok := pickTrack(videoTracks, isVideoCodec)
	if !ok {
		return fmt.Errorf("no supported video track in %s", job.VideoPath)
	}

	audioDemuxer := mp4.CreateMp4Demuxer(audioFile)
	audioTracks, err := audioDemuxer.ReadHead()
	if err != nil {
		return fmt.Errorf("failed to read audio header: %w", err)
	}
	audioTrack, ok := pickTrack(audioTracks, isAudioCodec)
	if !ok {
		return fmt.Errorf("no supported audio track in %s", job.AudioPath)
	}

	out, err := os.Create(job.Output)
	if err != nil {
		return err
	}
	defer out.Close()

	muxer, err := mp4.CreateMp4Muxer(out)
	if err != nil {
		return fmt.Errorf("failed to create muxer: %w", err)
	}
	vtid := muxer.AddVideoTrack(videoTrack.Cid)
	atid := muxer.AddAudioTrack(audioTrack.Cid)

	m.logger.Debug().
		Uint64("video_end_dts", videoTrack.EndDts).
		Uint64("audio_end_dts", audioTrack.EndDts).
		Msg("Remuxing tracks")

	if err := copyPackets(ctx, videoDemuxer, videoTrack.Cid, func(data []byte, pts, dts uint64) error {
		return muxer.Write(vtid, data, pts, dts)
	}); err != nil {
		return fmt.Errorf("failed to copy video: %w", err)
	}
	if err := copyPackets(ctx, audioDemuxer, audioTrack.Cid, func(data []byte, pts, dts uint64) error {
		return muxer.Write(atid, data, pts, dts)
	}); err != nil {
		return fmt.Errorf("failed to copy audio: %w", err)
	}

	if err := muxer.WriteTrailer(); err != nil {
		return fmt.Errorf("failed to write trailer: %w", err)
	}
	return out.Close()
}

func copyPackets(ctx context.Context, demuxer *mp4.MovDemuxer, cid mp4.MP4_CODEC_TYPE, write func(data []byte, pts, dts uint64) error) error {
	for n := 0; ; n++ {
		if n%256 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		pkg, err := demuxer.ReadPacket()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if pkg.Cid != cid {
			continue
		}
		if err := write(pkg.Data, uint64(pkg.Pts), uint64(pkg.Dts)); err != nil {
			return err
		}
	}
}

func pickTrack(tracks []mp4.TrackInfo, match func(mp4.MP4_CODEC_TYPE) bool) (mp4.TrackInfo, bool) {
	for _, t := range tracks {
		if match(t.Cid) {
			return t, true
		}
	}
	return mp4.TrackInfo{}, false
}

func isVideoCodec(c mp4.MP4_CODEC_TYPE) bool {
	return c == mp4.MP4_CODEC_H264 || c == mp4.MP4_CODEC_H265
}

func isAudioCodec(c mp4.MP4_CODEC_TYPE) bool {
	switch c {
	case mp4.MP4_CODEC_AAC, mp4.MP4_CODEC_MP3, mp4.MP4_CODEC_OPUS:
		return true
	}
	return false
}
