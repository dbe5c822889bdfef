package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"tubegrab/internal/core/domain"
	"tubegrab/internal/core/ports"
)

// Catalog serves read-only lookups and the small single-file downloads
// (thumbnails, subtitles) that do not go through the merge pipeline.
type Catalog struct {
	source     ports.MediaSource
	fetcher    ports.MetadataFetcher
	downloader ports.Downloader
	storage    ports.Storage
	logger     zerolog.Logger
}

// NewCatalog creates a Catalog.
func NewCatalog(source ports.MediaSource, fetcher ports.MetadataFetcher, downloader ports.Downloader, storage ports.Storage, logger zerolog.Logger) *Catalog {
	return &Catalog{
		source:     source,
		fetcher:    fetcher,
		downloader: downloader,
		storage:    storage,
		logger:     logger,
	}
}

// Details scrapes the requested fields of a video page. No fields means all.
func (c *Catalog) Details(ctx context.Context, identifier string, fields ...domain.DetailField) (domain.Details, error) {
	details, err := c.fetcher.Fetch(ctx, identifier, fields...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch video details: %w", err)
	}
	return details, nil
}

// VideoMetadata summarizes a video: title, duration in seconds and its first format.
func (c *Catalog) VideoMetadata(ctx context.Context, identifier string) (domain.VideoMetadata, error) {
	info, err := c.source.Resolve(ctx, identifier)
	if err != nil {
		return domain.VideoMetadata{}, err
	}
	meta := domain.VideoMetadata{
		Title:    info.Title,
		Duration: fmt.Sprintf("%d seconds", int64(info.Duration.Seconds())),
	}
	if len(info.Formats) > 0 {
		meta.Format = info.Formats[0].Container
		meta.Resolution = info.Formats[0].QualityLabel
	}
	return meta, nil
}

// ChannelInfo returns the name and description of a channel.
func (c *Catalog) ChannelInfo(ctx context.Context, channelID string) (domain.ChannelInfo, error) {
	info, err := c.fetcher.FetchChannel(ctx, channelID)
	if err != nil {
		return domain.ChannelInfo{}, fmt.Errorf("failed to fetch channel info: %w", err)
	}
	return info, nil
}

// DownloadThumbnail saves the largest thumbnail as <title>_thumbnail.jpg.
func (c *Catalog) DownloadThumbnail(ctx context.Context, identifier string) (string, error) {
	info, err := c.source.Resolve(ctx, identifier)
	if err != nil {
		return "", err
	}
	thumb, ok := info.LargestThumbnail()
	if !ok {
		return "", domain.ErrNoThumbnail
	}
	path := c.storage.OutputPath(domain.FileStem(info.Title, info.ID), "_thumbnail.jpg")
	if err := c.save(ctx, thumb.URL, path); err != nil {
		return "", err
	}
	c.logger.Info().Str("path", path).Int("width", thumb.Width).Msg("Thumbnail downloaded")
	return path, nil
}

// DownloadSubtitles saves the WebVTT captions in lang as <title>_<lang>.vtt. When
// lang is missing the first available track is used instead.
func (c *Catalog) DownloadSubtitles(ctx context.Context, identifier, lang string) (string, error) {
	if lang == "" {
		lang = "en"
	}
	info, err := c.source.Resolve(ctx, identifier)
	if err != nil {
		return "", err
	}
	track, fallback, ok := info.Caption(lang)
	if !ok {
		return "", domain.ErrNoSubtitles
	}
	if fallback {
		c.logger.Warn().Msgf("Subtitles in %s not available. Downloading in %s instead.", lang, track.LanguageCode)
	}
	path := c.storage.OutputPath(domain.FileStem(info.Title, info.ID), "_"+track.LanguageCode+".vtt")
	if err := c.save(ctx, track.URL, path); err != nil {
		return "", err
	}
	c.logger.Info().Str("path", path).Str("lang", track.LanguageCode).Msg("Subtitles downloaded")
	return path, nil
}

func (c *Catalog) save(ctx context.Context, url, path string) error {
	body, _, err := c.downloader.Download(ctx, url)
	if err != nil {
		return err
	}
	defer body.Close()
	if _, err := c.storage.Save(ctx, path, body); err != nil {
		return err
	}
	return nil
}
