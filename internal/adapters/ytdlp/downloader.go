package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strconv"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"tubegrab/internal/core/domain"
	"tubegrab/internal/core/ports"
)

// YtDlpSource uses the local yt-dlp binary to resolve pages it knows how to extract.
// Streams are then fetched directly with the Downloader.
type YtDlpSource struct {
	binaryPath string
	downloader ports.Downloader
	timeout    time.Duration
	logger     zerolog.Logger

	cache *expirable.LRU[string, *domain.MediaInfo]
}

// Resolved pages are kept briefly so one item's Resolve and both OpenStream
// calls share a single yt-dlp run.
const (
	cacheSize = 64
	cacheTTL  = 5 * time.Minute
)

// DefaultBinary returns ./yt-dlp.exe when present on Windows, otherwise yt-dlp from PATH.
func DefaultBinary() string {
	if runtime.GOOS == "windows" {
		if _, err := os.Stat("yt-dlp.exe"); err == nil {
			return ".\\yt-dlp.exe"
		}
	}
	return "yt-dlp"
}

// NewYtDlpSource creates a new source. An empty binaryPath uses DefaultBinary.
func NewYtDlpSource(binaryPath string, downloader ports.Downloader, logger zerolog.Logger) *YtDlpSource {
	if binaryPath == "" {
		binaryPath = DefaultBinary()
	}
	return &YtDlpSource{
		binaryPath: binaryPath,
		downloader: downloader,
		timeout:    2 * time.Minute,
		logger:     logger.With().Str("source", "yt-dlp").Logger(),
		cache:      expirable.NewLRU[string, *domain.MediaInfo](cacheSize, nil, cacheTTL),
	}
}

// Resolve dumps the page's info JSON with yt-dlp -J.
func (d *YtDlpSource) Resolve(ctx context.Context, identifier string) (*domain.MediaInfo, error) {
	if cached, ok := d.cache.Get(identifier); ok {
		return cached, nil
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	// -J: dump a single JSON document
	// --no-playlist: treat watch URLs with a list parameter as one video
	// --no-warnings: keep stderr for real errors
	cmd := exec.CommandContext(ctx, d.binaryPath, "-J", "--no-playlist", "--no-warnings", identifier)

	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, &domain.ResolutionError{
			Identifier: identifier,
			Err:        fmt.Errorf("yt-dlp failed: %w, stderr: %s", err, bytes.TrimSpace(stderr.Bytes())),
		}
	}

	info, err := parseInfo(identifier, out.Bytes())
	if err != nil {
		return nil, &domain.ResolutionError{Identifier: identifier, Err: err}
	}

	d.cache.Add(identifier, info)
	return info, nil
}

// OpenStream downloads the URL of the format closest to hint.
func (d *YtDlpSource) OpenStream(ctx context.Context, identifier string, hint domain.QualityHint) (*ports.MediaStream, error) {
	info, err := d.Resolve(ctx, identifier)
	if err != nil {
		return nil, err
	}
	chosen, err := domain.SelectStream(info.Streams, hint)
	if err != nil {
		return nil, fmt.Errorf("failed to select %s stream: %w", hint.Kind, err)
	}
	if chosen.URL == "" {
		return nil, fmt.Errorf("yt-dlp returned no URL for format %s", chosen.ID)
	}

	d.logger.Debug().Str("kind", string(hint.Kind)).Str("format", chosen.ID).Msg("Opening stream")

	body, size, err := d.downloader.Download(ctx, chosen.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s stream: %w", hint.Kind, err)
	}
	if size <= 0 {
		size = chosen.Size
	}
	return &ports.MediaStream{Body: body, Size: size, Container: chosen.Container, Format: chosen}, nil
}

type infoJSON struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Uploader    string  `json:"uploader"`
	Description string  `json:"description"`
	Duration    float64 `json:"duration"`
	Formats     []struct {
		FormatID       string  `json:"format_id"`
		Ext            string  `json:"ext"`
		VCodec         string  `json:"vcodec"`
		ACodec         string  `json:"acodec"`
		TBR            float64 `json:"tbr"`
		Height         int     `json:"height"`
		FormatNote     string  `json:"format_note"`
		Filesize       int64   `json:"filesize"`
		FilesizeApprox int64   `json:"filesize_approx"`
		URL            string  `json:"url"`
		Protocol       string  `json:"protocol"`
	} `json:"formats"`
	Thumbnails []struct {
		URL    string `json:"url"`
		Width  int    `json:"width"`
		Height int    `json:"height"`
	} `json:"thumbnails"`
	Subtitles map[string][]struct {
		Ext string `json:"ext"`
		URL string `json:"url"`
	} `json:"subtitles"`
}

func parseInfo(identifier string, data []byte) (*domain.MediaInfo, error) {
	var raw infoJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse yt-dlp output: %w", err)
	}

	info := &domain.MediaInfo{
		Identifier:  identifier,
		ID:          raw.ID,
		Title:       raw.Title,
		Author:      raw.Uploader,
		Description: raw.Description,
		Duration:    time.Duration(raw.Duration * float64(time.Second)),
	}

	for _, f := range raw.Formats {
		s := domain.ElementaryStream{
			ID:           f.FormatID,
			Container:    f.Ext,
			Bitrate:      int(f.TBR * 1000),
			Height:       f.Height,
			QualityLabel: f.FormatNote,
			Size:         f.Filesize,
			URL:          f.URL,
		}
		if s.Size == 0 {
			s.Size = f.FilesizeApprox
		}
		if f.Height > 0 && s.QualityLabel == "" {
			s.QualityLabel = strconv.Itoa(f.Height) + "p"
		}
		hasVideo := f.VCodec != "" && f.VCodec != "none"
		hasAudio := f.ACodec != "" && f.ACodec != "none"
		switch {
		case hasVideo && !hasAudio:
			s.Kind = domain.StreamVideo
		case hasAudio && !hasVideo:
			s.Kind = domain.StreamAudio
		}
		info.Formats = append(info.Formats, s)
		// segmented protocols cannot be fetched with a single GET
		if s.Kind != "" && (f.Protocol == "" || f.Protocol == "https" || f.Protocol == "http") {
			info.Streams = append(info.Streams, s)
		}
	}

	for _, t := range raw.Thumbnails {
		info.Thumbnails = append(info.Thumbnails, domain.Thumbnail{URL: t.URL, Width: t.Width, Height: t.Height})
	}

	langs := make([]string, 0, len(raw.Subtitles))
	for lang := range raw.Subtitles {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	for _, lang := range langs {
		for _, sub := range raw.Subtitles[lang] {
			if sub.Ext == "vtt" {
				info.Captions = append(info.Captions, domain.CaptionTrack{LanguageCode: lang, URL: sub.URL})
				break
			}
		}
	}
	return info, nil
}
