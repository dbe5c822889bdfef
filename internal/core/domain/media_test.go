package domain

import (
	"errors"
	"testing"
	"time"
)

var zeroTime time.Time

func testStreams() []ElementaryStream {
	return []ElementaryStream{
		{ID: "137", Kind: StreamVideo, Container: "mp4", Height: 1080, Bitrate: 4000},
		{ID: "248", Kind: StreamVideo, Container: "webm", Height: 1080, Bitrate: 3000},
		{ID: "136", Kind: StreamVideo, Container: "mp4", Height: 720, Bitrate: 2000},
		{ID: "160", Kind: StreamVideo, Container: "mp4", Height: 144, Bitrate: 100},
		{ID: "140", Kind: StreamAudio, Container: "mp4", Bitrate: 128},
		{ID: "251", Kind: StreamAudio, Container: "webm", Bitrate: 160},
	}
}

func TestSelectStream(t *testing.T) {
	tests := []struct {
		name   string
		hint   QualityHint
		wantID string
	}{
		{"highest video", QualityHint{Kind: StreamVideo, Preference: QualityHighest}, "137"},
		{"empty preference means highest", QualityHint{Kind: StreamVideo}, "137"},
		{"lowest video", QualityHint{Kind: StreamVideo, Preference: QualityLowest}, "160"},
		{"label picks nearest height", QualityHint{Kind: StreamVideo, Preference: "700p"}, "136"},
		{"label with frame rate", QualityHint{Kind: StreamVideo, Preference: "720p60"}, "136"},
		{"container preference", QualityHint{Kind: StreamVideo, Container: "webm"}, "248"},
		{"unknown container ignored", QualityHint{Kind: StreamVideo, Container: "mkv"}, "137"},
		{"highest audio by bitrate", QualityHint{Kind: StreamAudio, Preference: QualityHighest}, "251"},
		{"audio in mp4", QualityHint{Kind: StreamAudio, Container: "mp4"}, "140"},
		{"garbage label falls back to best", QualityHint{Kind: StreamVideo, Preference: "best-ish"}, "137"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectStream(testStreams(), tt.hint)
			if err != nil {
				t.Fatalf("SelectStream returned error: %v", err)
			}
			if got.ID != tt.wantID {
				t.Errorf("SelectStream = %s, want %s", got.ID, tt.wantID)
			}
		})
	}
}

func TestSelectStreamNoCandidates(t *testing.T) {
	_, err := SelectStream(testStreams()[:4], QualityHint{Kind: StreamAudio})
	if !errors.Is(err, ErrNoStream) {
		t.Errorf("err = %v, want ErrNoStream", err)
	}
}

func TestMediaInfoHelpers(t *testing.T) {
	info := &MediaInfo{
		Thumbnails: []Thumbnail{{URL: "s", Width: 120}, {URL: "l", Width: 1280}, {URL: "m", Width: 480}},
		Captions:   []CaptionTrack{{LanguageCode: "de", URL: "de"}, {LanguageCode: "en", URL: "en"}},
	}

	thumb, ok := info.LargestThumbnail()
	if !ok || thumb.URL != "l" {
		t.Errorf("LargestThumbnail = %+v, %v", thumb, ok)
	}

	track, fallback, ok := info.Caption("en")
	if !ok || fallback || track.URL != "en" {
		t.Errorf("Caption(en) = %+v, %v, %v", track, fallback, ok)
	}
	track, fallback, ok = info.Caption("fr")
	if !ok || !fallback || track.LanguageCode != "de" {
		t.Errorf("Caption(fr) = %+v, %v, %v", track, fallback, ok)
	}

	empty := &MediaInfo{}
	if _, ok := empty.LargestThumbnail(); ok {
		t.Error("empty info has no thumbnail")
	}
	if _, _, ok := empty.Caption("en"); ok {
		t.Error("empty info has no captions")
	}
}

func TestDetails(t *testing.T) {
	d := Details{FieldTitle: "T", FieldViews: "42"}

	if v, ok := d.Lookup("title"); !ok || v != "T" {
		t.Errorf("Lookup(title) = %q, %v", v, ok)
	}
	if _, ok := d.Lookup("likes"); ok {
		t.Error("unknown field must not be found")
	}
	if _, ok := d.Lookup("genre"); ok {
		t.Error("known field absent from the map must not be found")
	}

	sel := d.Select([]DetailField{FieldViews, FieldGenre})
	if len(sel) != 2 || sel[FieldViews] != "42" || sel[FieldGenre] != "" {
		t.Errorf("Select = %v", sel)
	}
	if all := d.Select(nil); len(all) != len(AllDetailFields) {
		t.Errorf("Select(nil) has %d fields, want %d", len(all), len(AllDetailFields))
	}

	known, unknown := ParseDetailFields([]string{"title", "likes", "views"})
	if len(known) != 2 || len(unknown) != 1 || unknown[0] != "likes" {
		t.Errorf("ParseDetailFields = %v, %v", known, unknown)
	}
}
