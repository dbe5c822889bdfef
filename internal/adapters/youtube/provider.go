package youtube

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/kkdai/youtube/v2"
	"github.com/rs/zerolog"

	"tubegrab/internal/core/domain"
	"tubegrab/internal/core/ports"
)

// videoClient is the part of *youtube.Client the provider uses.
type videoClient interface {
	GetVideoContext(ctx context.Context, url string) (*youtube.Video, error)
	GetStreamContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (io.ReadCloser, int64, error)
}

// Provider implements ports.MediaSource for YouTube.
type Provider struct {
	client videoClient
	logger zerolog.Logger

	cache *expirable.LRU[string, *youtube.Video]
}

// Resolved videos are kept briefly so one item's Resolve and both OpenStream
// calls share a single watch-page request.
const (
	cacheSize = 64
	cacheTTL  = 5 * time.Minute
)

// NewProvider creates a Provider. A zero timeout leaves requests bounded only by ctx.
func NewProvider(timeout time.Duration, logger zerolog.Logger) *Provider {
	return newProvider(&youtube.Client{
		HTTPClient: &http.Client{Timeout: timeout},
	}, logger)
}

func newProvider(client videoClient, logger zerolog.Logger) *Provider {
	return &Provider{
		client: client,
		logger: logger.With().Str("source", "youtube").Logger(),
		cache:  expirable.NewLRU[string, *youtube.Video](cacheSize, nil, cacheTTL),
	}
}

// Resolve fetches the watch page of identifier.
func (p *Provider) Resolve(ctx context.Context, identifier string) (*domain.MediaInfo, error) {
	video, err := p.video(ctx, identifier)
	if err != nil {
		return nil, err
	}
	return toMediaInfo(identifier, video), nil
}

// OpenStream opens the elementary stream of identifier closest to hint.
func (p *Provider) OpenStream(ctx context.Context, identifier string, hint domain.QualityHint) (*ports.MediaStream, error) {
	video, err := p.video(ctx, identifier)
	if err != nil {
		return nil, err
	}

	streams := toMediaInfo(identifier, video).Streams
	chosen, err := domain.SelectStream(streams, hint)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s stream: %w", hint.Kind, err)
	}

	format := findFormat(video, chosen.ID)
	if format == nil {
		return nil, fmt.Errorf("format %s disappeared from %s", chosen.ID, identifier)
	}

	p.logger.Debug().
		Str("kind", string(hint.Kind)).
		Str("itag", chosen.ID).
		Str("mime", chosen.MimeType).
		Str("quality", chosen.QualityLabel).
		Msg("Opening stream")

	body, size, err := p.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s stream: %w", hint.Kind, err)
	}
	if size <= 0 {
		size = chosen.Size
	}
	return &ports.MediaStream{
		Body:      body,
		Size:      size,
		Container: chosen.Container,
		Format:    chosen,
	}, nil
}

func (p *Provider) video(ctx context.Context, identifier string) (*youtube.Video, error) {
	if cached, ok := p.cache.Get(identifier); ok {
		return cached, nil
	}

	video, err := p.client.GetVideoContext(ctx, identifier)
	if err != nil {
		return nil, &domain.ResolutionError{Identifier: identifier, Err: err}
	}

	p.cache.Add(identifier, video)
	return video, nil
}

func findFormat(video *youtube.Video, id string) *youtube.Format {
	for i := range video.Formats {
		if strconv.Itoa(video.Formats[i].ItagNo) == id {
			return &video.Formats[i]
		}
	}
	return nil
}

func toMediaInfo(identifier string, video *youtube.Video) *domain.MediaInfo {
	info := &domain.MediaInfo{
		Identifier:  identifier,
		ID:          video.ID,
		Title:       video.Title,
		Author:      video.Author,
		Description: video.Description,
		Duration:    video.Duration,
	}
	for _, f := range video.Formats {
		s := toStream(f)
		info.Formats = append(info.Formats, s)
		if s.Kind != "" {
			info.Streams = append(info.Streams, s)
		}
	}
	for _, c := range video.CaptionTracks {
		info.Captions = append(info.Captions, domain.CaptionTrack{
			LanguageCode: c.LanguageCode,
			URL:          captionURL(c.BaseURL),
		})
	}
	for _, t := range video.Thumbnails {
		info.Thumbnails = append(info.Thumbnails, domain.Thumbnail{
			URL:    t.URL,
			Width:  int(t.Width),
			Height: int(t.Height),
		})
	}
	return info
}

// toStream converts a format. Muxed formats get an empty Kind.
func toStream(f youtube.Format) domain.ElementaryStream {
	var kind domain.StreamKind
	switch {
	case strings.HasPrefix(f.MimeType, "video/") && f.AudioChannels == 0:
		kind = domain.StreamVideo
	case strings.HasPrefix(f.MimeType, "audio/"):
		kind = domain.StreamAudio
	}
	return domain.ElementaryStream{
		ID:           strconv.Itoa(f.ItagNo),
		Kind:         kind,
		Container:    mimeToExt(f.MimeType),
		MimeType:     f.MimeType,
		Bitrate:      f.Bitrate,
		Height:       f.Height,
		QualityLabel: f.QualityLabel,
		Size:         f.ContentLength,
		URL:          f.URL,
	}
}

func mimeToExt(mime string) string {
	if i := strings.Index(mime, ";"); i >= 0 {
		mime = mime[:i]
	}
	parts := strings.Split(strings.TrimSpace(mime), "/")
	if len(parts) != 2 {
		return "bin"
	}
	switch parts[1] {
	case "3gpp":
		return "3gp"
	case "mpeg":
		return "mp3"
	default:
		return parts[1]
	}
}

// captionURL asks the timedtext endpoint for WebVTT.
func captionURL(base string) string {
	if base == "" || strings.Contains(base, "fmt=") {
		return base
	}
	if strings.Contains(base, "?") {
		return base + "&fmt=vtt"
	}
	return base + "?fmt=vtt"
}
