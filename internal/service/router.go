package service

import (
	"context"
	"fmt"
	"strings"

	"tubegrab/internal/core/domain"
	"tubegrab/internal/core/ports"
)

// Source selection values.
const (
	SourceAuto    = "auto"
	SourceYouTube = "youtube"
	SourceYtDlp   = "ytdlp"
)

// Router implements ports.MediaSource by picking a source per identifier.
// YouTube URLs go to the YouTube source, everything else to the generic one.
type Router struct {
	youtube ports.MediaSource
	generic ports.MediaSource
	mode    string
}

// NewRouter creates a Router. mode forces one source unless it is SourceAuto.
func NewRouter(youtube, generic ports.MediaSource, mode string) (*Router, error) {
	switch mode {
	case "", SourceAuto:
		mode = SourceAuto
	case SourceYouTube, SourceYtDlp:
	default:
		return nil, fmt.Errorf("unknown source %q (want auto, youtube or ytdlp)", mode)
	}
	return &Router{youtube: youtube, generic: generic, mode: mode}, nil
}

func (r *Router) Resolve(ctx context.Context, identifier string) (*domain.MediaInfo, error) {
	return r.pick(identifier).Resolve(ctx, identifier)
}

func (r *Router) OpenStream(ctx context.Context, identifier string, hint domain.QualityHint) (*ports.MediaStream, error) {
	return r.pick(identifier).OpenStream(ctx, identifier, hint)
}

func (r *Router) pick(identifier string) ports.MediaSource {
	switch r.mode {
	case SourceYouTube:
		return r.youtube
	case SourceYtDlp:
		return r.generic
	}
	if detectPlatform(identifier) == "youtube" {
		return r.youtube
	}
	return r.generic
}

func detectPlatform(url string) string {
	lower := strings.ToLower(url)
	if containsAny(lower, "youtube.com", "youtu.be") {
		return "youtube"
	}
	if containsAny(lower, "tiktok.com") {
		return "tiktok"
	}
	return "unknown"
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
