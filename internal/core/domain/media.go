package domain

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// ElementaryStream is one downloadable single-track format offered by a provider.
type ElementaryStream struct {
	ID           string     `json:"id"`
	Kind         StreamKind `json:"kind"`
	Container    string     `json:"container"`
	MimeType     string     `json:"mime_type,omitempty"`
	Bitrate      int        `json:"bitrate"`
	Height       int        `json:"height,omitempty"`
	QualityLabel string     `json:"quality_label,omitempty"`
	Size         int64      `json:"size,omitempty"`
	URL          string     `json:"-"`
}

// CaptionTrack is one subtitle track.
type CaptionTrack struct {
	LanguageCode string `json:"language_code"`
	URL          string `json:"-"`
}

// Thumbnail is one preview image.
type Thumbnail struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// MediaInfo is what a provider knows about an identifier after resolving it.
type MediaInfo struct {
	Identifier  string             `json:"identifier"`
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	Author      string             `json:"author,omitempty"`
	Description string             `json:"description,omitempty"`
	Duration    time.Duration      `json:"duration"`
	Streams     []ElementaryStream `json:"streams"`
	Captions    []CaptionTrack     `json:"captions,omitempty"`
	Thumbnails  []Thumbnail        `json:"thumbnails,omitempty"`
	// Formats lists the provider's formats in provider order, muxed ones included.
	Formats []ElementaryStream `json:"formats,omitempty"`
}

// LargestThumbnail returns the widest thumbnail.
func (m *MediaInfo) LargestThumbnail() (Thumbnail, bool) {
	if len(m.Thumbnails) == 0 {
		return Thumbnail{}, false
	}
	best := m.Thumbnails[0]
	for _, t := range m.Thumbnails[1:] {
		if t.Width > best.Width {
			best = t
		}
	}
	return best, true
}

// Caption returns the track for lang, or the first track with fallback set.
func (m *MediaInfo) Caption(lang string) (track CaptionTrack, fallback bool, ok bool) {
	for _, c := range m.Captions {
		if c.LanguageCode == lang {
			return c, false, true
		}
	}
	if len(m.Captions) > 0 {
		return m.Captions[0], true, true
	}
	return CaptionTrack{}, false, false
}

// QualityPreference values understood by SelectStream besides resolution labels.
const (
	QualityHighest = "highest"
	QualityLowest  = "lowest"
)

// QualityHint asks a provider for a stream. It is a hint: the closest match wins.
type QualityHint struct {
	Kind       StreamKind
	Preference string // "highest", "lowest" or a label such as "720p"
	Container  string // preferred container; ignored when nothing matches
}

// SelectStream picks the stream in streams that best fits hint.
func SelectStream(streams []ElementaryStream, hint QualityHint) (ElementaryStream, error) {
	var candidates []ElementaryStream
	for _, s := range streams {
		if s.Kind == hint.Kind {
			candidates = append(candidates, s)
		}
	}
	if len(candidates) == 0 {
		return ElementaryStream{}, ErrNoStream
	}

	if hint.Container != "" {
		var preferred []ElementaryStream
		for _, s := range candidates {
			if strings.EqualFold(s.Container, hint.Container) {
				preferred = append(preferred, s)
			}
		}
		if len(preferred) > 0 {
			candidates = preferred
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Height != candidates[j].Height {
			return candidates[i].Height > candidates[j].Height
		}
		return candidates[i].Bitrate > candidates[j].Bitrate
	})
	if hint.Kind == StreamAudio {
		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].Bitrate > candidates[j].Bitrate
		})
	}

	pref := strings.ToLower(strings.TrimSpace(hint.Preference))
	switch pref {
	case "", QualityHighest:
		return candidates[0], nil
	case QualityLowest:
		return candidates[len(candidates)-1], nil
	}

	target, ok := parseHeight(pref)
	if !ok || hint.Kind == StreamAudio {
		return candidates[0], nil
	}
	best := candidates[0]
	bestDist := abs(best.Height - target)
	for _, s := range candidates[1:] {
		if d := abs(s.Height - target); d < bestDist {
			best, bestDist = s, d
		}
	}
	return best, nil
}

func parseHeight(label string) (int, bool) {
	label = strings.TrimSuffix(label, "p")
	if i := strings.IndexAny(label, "p@"); i >= 0 {
		label = label[:i]
	}
	h, err := strconv.Atoi(label)
	if err != nil || h <= 0 {
		return 0, false
	}
	return h, true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// VideoMetadata is the short technical summary of a video.
type VideoMetadata struct {
	Title      string `json:"title"`
	Duration   string `json:"duration"`
	Format     string `json:"format"`
	Resolution string `json:"resolution"`
}

// ChannelInfo describes a channel page.
type ChannelInfo struct {
	ChannelName string `json:"channelName"`
	Description string `json:"description"`
}
