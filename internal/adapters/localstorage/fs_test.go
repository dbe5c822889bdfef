package localstorage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"tubegrab/internal/core/domain"
)

func newItem(jobID, title string) domain.ContentItem {
	return domain.NewContentItem(jobID, "https://example.com/"+title, title)
}

func TestClaimOverwriteReusesStem(t *testing.T) {
	s := NewLocalStorage(t.TempDir(), CollisionOverwrite)
	a, err := s.Claim(newItem("11111111-aaaa", "Same Title"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.Claim(newItem("22222222-bbbb", "Same Title"))
	if err != nil {
		t.Fatal(err)
	}
	if a != "Same_Title" || b != "Same_Title" {
		t.Errorf("stems = %q, %q", a, b)
	}
}

func TestClaimEmptyTitlesDoNotShareAStem(t *testing.T) {
	s := NewLocalStorage(t.TempDir(), CollisionFail)
	a, err := s.Claim(newItem("11111111-aaaa", ""))
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.Claim(newItem("22222222-bbbb", ""))
	if err != nil {
		t.Fatalf("second empty title: %v", err)
	}
	if a != "video_11111111" || b != "video_22222222" {
		t.Errorf("stems = %q, %q", a, b)
	}
	if strings.HasPrefix(filepath.Base(s.OutputPath(a, MergedExt)), ".") {
		t.Error("output must not be a hidden file")
	}
}

func TestClaimFailRejectsInFlightAndExisting(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStorage(dir, CollisionFail)

	stem, err := s.Claim(newItem("11111111", "clip"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Claim(newItem("22222222", "clip")); !errors.Is(err, domain.ErrStemInUse) {
		t.Errorf("in-flight claim err = %v, want ErrStemInUse", err)
	}

	s.Release(stem)
	if _, err := s.Claim(newItem("33333333", "clip")); err != nil {
		t.Errorf("claim after release failed: %v", err)
	}
	s.Release(stem)

	if err := os.WriteFile(filepath.Join(dir, "clip.mp4"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Claim(newItem("44444444", "clip")); !errors.Is(err, domain.ErrStemInUse) {
		t.Errorf("existing file claim err = %v, want ErrStemInUse", err)
	}
}

func TestClaimSuffixUsesJobID(t *testing.T) {
	s := NewLocalStorage(t.TempDir(), CollisionSuffix)
	first, _ := s.Claim(newItem("aaaaaaaa-1111-2222", "clip"))
	second, _ := s.Claim(newItem("bbbbbbbb-3333-4444", "clip"))
	if first != "clip" {
		t.Errorf("first stem = %q, want clip", first)
	}
	if second != "clip-bbbbbbbb" {
		t.Errorf("second stem = %q, want clip-bbbbbbbb", second)
	}
}

func TestParseCollisionPolicy(t *testing.T) {
	for _, in := range []string{"", "overwrite", "fail", "suffix"} {
		if _, err := ParseCollisionPolicy(in); err != nil {
			t.Errorf("ParseCollisionPolicy(%q) error: %v", in, err)
		}
	}
	if _, err := ParseCollisionPolicy("rename"); err == nil {
		t.Error("expected error for unknown policy")
	}
}

func TestPaths(t *testing.T) {
	s := NewLocalStorage("/out", CollisionOverwrite)
	if got := s.TempPath("clip", domain.StreamAudio, "webm"); got != filepath.Join("/out", "clip_audio.webm") {
		t.Errorf("TempPath = %q", got)
	}
	if got := s.TempPath("clip", domain.StreamVideo, ""); got != filepath.Join("/out", "clip_video.mp4") {
		t.Errorf("TempPath default = %q", got)
	}
	if got := s.OutputPath("clip", "_en.vtt"); got != filepath.Join("/out", "clip_en.vtt") {
		t.Errorf("OutputPath = %q", got)
	}
}

func TestCreateTruncatesAndPromoteRenames(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStorage(dir, CollisionOverwrite)
	staging := filepath.Join(dir, "clip.mp4.part")

	for _, content := range []string{"long old content", "new"} {
		w, err := s.Create(staging)
		if err != nil {
			t.Fatal(err)
		}
		_, _ = w.Write([]byte(content))
		w.Close()
	}

	final := filepath.Join(dir, "clip.mp4")
	if err := s.Promote(staging, final); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(final)
	if err != nil || string(data) != "new" {
		t.Errorf("final = %q, %v", data, err)
	}
	if _, err := os.Stat(staging); !os.IsNotExist(err) {
		t.Error("staging file should be gone after promote")
	}
}

func TestRemoveIgnoresMissing(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStorage(dir, CollisionOverwrite)
	p := filepath.Join(dir, "a")
	_ = os.WriteFile(p, nil, 0644)
	if err := s.Remove(p, filepath.Join(dir, "missing")); err != nil {
		t.Errorf("Remove returned %v", err)
	}
	if _, err := os.Stat(p); !os.IsNotExist(err) {
		t.Error("file should be removed")
	}
}

func TestSave(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStorage(dir, CollisionOverwrite)
	p := filepath.Join(dir, "thumb.jpg")
	n, err := s.Save(context.Background(), p, strings.NewReader("jpegdata"))
	if err != nil || n != 8 {
		t.Fatalf("Save = %d, %v", n, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.Save(ctx, p, strings.NewReader("x")); !errors.Is(err, context.Canceled) {
		t.Errorf("Save with cancelled ctx err = %v", err)
	}
}

func TestCreateInMissingDirIsIoError(t *testing.T) {
	s := NewLocalStorage(filepath.Join(t.TempDir(), "nope"), CollisionOverwrite)
	_, err := s.Create(s.TempPath("clip", domain.StreamVideo, "mp4"))
	var ioErr *domain.IoError
	if !errors.As(err, &ioErr) {
		t.Errorf("err = %v, want IoError", err)
	}
}
