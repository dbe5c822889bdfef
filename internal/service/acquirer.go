package service

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"tubegrab/internal/core/domain"
	"tubegrab/internal/core/ports"
)

// StreamPair holds the handles of the two temporary files of one item.
type StreamPair struct {
	Video *domain.StreamHandle
	Audio *domain.StreamHandle

	wg sync.WaitGroup
}

// Wait blocks until both transfer goroutines have exited and closed their files.
func (s *StreamPair) Wait() {
	s.wg.Wait()
}

// AcquirerOptions tunes an Acquirer.
type AcquirerOptions struct {
	// ReportAudioProgress sends audio progress events to the sink too.
	ReportAudioProgress bool
	// Container is the preferred container of both streams, e.g. "mp4". Empty means any.
	Container string
}

// Acquirer opens both elementary streams of an item and copies them to temporary files.
type Acquirer struct {
	source  ports.MediaSource
	storage ports.Storage
	sink    ports.ProgressSink
	opts    AcquirerOptions
}

// NewAcquirer creates an Acquirer. A nil sink discards progress.
func NewAcquirer(source ports.MediaSource, storage ports.Storage, sink ports.ProgressSink, opts AcquirerOptions) *Acquirer {
	if sink == nil {
		sink = nopSink{}
	}
	return &Acquirer{source: source, storage: storage, sink: sink, opts: opts}
}

// Acquire starts both transfers and returns immediately. Each transfer reports to
// pair when it ends or fails. An error means no transfer was started.
func (a *Acquirer) Acquire(ctx context.Context, item domain.ContentItem, quality string, pair *PairSync, logger zerolog.Logger) (*StreamPair, error) {
	if quality == "" {
		quality = domain.QualityHighest
	}

	video, err := a.source.OpenStream(ctx, item.Identifier, domain.QualityHint{
		Kind:       domain.StreamVideo,
		Preference: quality,
		Container:  a.opts.Container,
	})
	if err != nil {
		return nil, acquisitionError(item, domain.StreamVideo, err)
	}

	audio, err := a.source.OpenStream(ctx, item.Identifier, domain.QualityHint{
		Kind:       domain.StreamAudio,
		Preference: domain.QualityHighest,
		Container:  a.opts.Container,
	})
	if err != nil {
		video.Body.Close()
		return nil, acquisitionError(item, domain.StreamAudio, err)
	}

	videoPath := a.storage.TempPath(item.Stem, domain.StreamVideo, video.Container)
	audioPath := a.storage.TempPath(item.Stem, domain.StreamAudio, audio.Container)

	videoFile, err := a.storage.Create(videoPath)
	if err != nil {
		video.Body.Close()
		audio.Body.Close()
		return nil, acquisitionError(item, domain.StreamVideo, err)
	}
	audioFile, err := a.storage.Create(audioPath)
	if err != nil {
		videoFile.Close()
		video.Body.Close()
		audio.Body.Close()
		return nil, acquisitionError(item, domain.StreamAudio, err)
	}

	streams := &StreamPair{
		Video: domain.NewStreamHandle(domain.StreamVideo, videoPath, streamSize(video)),
		Audio: domain.NewStreamHandle(domain.StreamAudio, audioPath, streamSize(audio)),
	}

	logger.Info().
		Str("video_format", video.Format.ID).
		Str("video_quality", video.Format.QualityLabel).
		Str("audio_format", audio.Format.ID).
		Msg("Downloading streams")

	streams.wg.Add(2)
	go func() {
		defer streams.wg.Done()
		a.transfer(ctx, item, streams.Video, video.Body, videoFile, true, pair, logger)
	}()
	go func() {
		defer streams.wg.Done()
		a.transfer(ctx, item, streams.Audio, audio.Body, audioFile, a.opts.ReportAudioProgress, pair, logger)
	}()

	return streams, nil
}

func (a *Acquirer) transfer(ctx context.Context, item domain.ContentItem, h *domain.StreamHandle, body io.ReadCloser, file io.WriteCloser, report bool, pair *PairSync, logger zerolog.Logger) {
	// closing the body unblocks a Read stuck on the network
	stop := context.AfterFunc(ctx, func() { body.Close() })
	defer stop()

	counter := &progressCounter{item: item, handle: h, sink: a.sink, report: report}
	_, err := io.Copy(io.MultiWriter(&diskWriter{w: file, path: h.Path}, counter), body)

	if closeErr := file.Close(); err == nil && closeErr != nil {
		err = &domain.IoError{Op: "close", Path: h.Path, Err: closeErr}
	}
	body.Close()

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = errors.Join(domain.ErrCancelled, ctxErr)
		}
		err = acquisitionError(item, h.Kind, err)
		h.MarkFailed(err)
		downloaded, _ := h.Progress()
		logger.Error().Err(err).Str("kind", string(h.Kind)).Int64("bytes", downloaded).Msg("Stream failed")
		pair.OnFail(h.Kind, err)
		return
	}

	h.MarkEnded()
	downloaded, total := h.Progress()
	if total <= 0 {
		// the size is known once the body is exhausted
		h.SetTotal(downloaded)
	}
	if report {
		a.sink.Done(item, h.Kind)
	}
	logger.Debug().Str("kind", string(h.Kind)).Int64("bytes", downloaded).Msg("Stream finished")
	pair.OnEnd(h.Kind)
}

// streamSize prefers the transfer's Content-Length and falls back to the size the
// source reported when resolving. 0 means unknown.
func streamSize(s *ports.MediaStream) int64 {
	if s.Size > 0 {
		return s.Size
	}
	return s.Format.Size
}

func acquisitionError(item domain.ContentItem, kind domain.StreamKind, err error) error {
	var acq *domain.AcquisitionError
	if errors.As(err, &acq) {
		return err
	}
	var res *domain.ResolutionError
	if errors.As(err, &res) {
		return err
	}
	return &domain.AcquisitionError{Identifier: item.Identifier, Kind: kind, Err: err}
}

// diskWriter tags write failures as filesystem errors.
type diskWriter struct {
	w    io.Writer
	path string
}

func (d *diskWriter) Write(p []byte) (int, error) {
	n, err := d.w.Write(p)
	if err != nil {
		return n, &domain.IoError{Op: "write", Path: d.path, Err: err}
	}
	return n, nil
}

// progressCounter counts written bytes into a handle and forwards them to a sink.
type progressCounter struct {
	item   domain.ContentItem
	handle *domain.StreamHandle
	sink   ports.ProgressSink
	report bool
}

func (c *progressCounter) Write(p []byte) (int, error) {
	downloaded := c.handle.Add(int64(len(p)))
	if c.report {
		_, total := c.handle.Progress()
		c.sink.Progress(c.item, c.handle.Kind, downloaded, total)
	}
	return len(p), nil
}

type nopSink struct{}

func (nopSink) Progress(domain.ContentItem, domain.StreamKind, int64, int64) {}
func (nopSink) Done(domain.ContentItem, domain.StreamKind)                    {}
