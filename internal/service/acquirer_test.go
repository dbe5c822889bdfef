package service

import (
	"context"
	"io"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"tubegrab/internal/adapters/localstorage"
	"tubegrab/internal/core/domain"
)

func waitForPhase(t *testing.T, pair *PairSync, want domain.PairPhase) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for pair.Phase() != want {
		if time.Now().After(deadline) {
			t.Fatalf("pair phase = %v, want %v", pair.Phase(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestAcquireJoinsInEitherOrder(t *testing.T) {
	for _, first := range []domain.StreamKind{domain.StreamVideo, domain.StreamAudio} {
		t.Run(string(first)+" ends first", func(t *testing.T) {
			last := domain.StreamAudio
			if first == domain.StreamAudio {
				last = domain.StreamVideo
			}
			gate := make(chan struct{})
			src := newFakeSource("clip")
			lastData := strings.ToUpper(string(last))
			src.bodies[last] = func() io.ReadCloser { return newGatedBody(lastData, gate) }

			storage := localstorage.NewLocalStorage(t.TempDir(), localstorage.CollisionOverwrite)
			var joins atomic.Int32
			pair := NewPairSync(func() { joins.Add(1) })
			item := domain.NewContentItem("job-1", "id", "clip")

			streams, err := NewAcquirer(src, storage, nil, AcquirerOptions{}).Acquire(context.Background(), item, "", pair, zerolog.Nop())
			if err != nil {
				t.Fatal(err)
			}
			handles := map[domain.StreamKind]*domain.StreamHandle{
				domain.StreamVideo: streams.Video,
				domain.StreamAudio: streams.Audio,
			}

			// the first end signal is recorded before the other stream can deliver data
			waitForPhase(t, pair, domain.PairOneDone)
			if handles[first].State() != domain.StreamEnded || handles[last].State() != domain.StreamInProgress {
				t.Fatalf("states: %s=%v %s=%v", first, handles[first].State(), last, handles[last].State())
			}
			if joins.Load() != 0 {
				t.Fatal("continuation ran before both streams ended")
			}

			close(gate)
			if err := pair.Wait(); err != nil {
				t.Fatalf("Wait = %v", err)
			}
			streams.Wait()
			if joins.Load() != 1 {
				t.Errorf("continuation ran %d times, want 1", joins.Load())
			}
		})
	}
}

func TestAcquireRecordsSizeOnceKnown(t *testing.T) {
	src := newFakeSource("clip")
	storage := localstorage.NewLocalStorage(t.TempDir(), localstorage.CollisionOverwrite)
	pair := NewPairSync(nil)

	streams, err := NewAcquirer(src, storage, nil, AcquirerOptions{}).Acquire(context.Background(), domain.NewContentItem("job-1", "id", "clip"), "", pair, zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	if _, total := streams.Video.Progress(); total != 0 {
		t.Fatalf("total before transfer = %d, want unknown", total)
	}
	if err := pair.Wait(); err != nil {
		t.Fatal(err)
	}
	streams.Wait()

	for _, h := range []*domain.StreamHandle{streams.Video, streams.Audio} {
		downloaded, total := h.Progress()
		if downloaded != 5 || total != 5 {
			t.Errorf("%s progress = %d/%d, want 5/5", h.Kind, downloaded, total)
		}
	}
}

func TestStreamSizeFallsBackToResolvedSize(t *testing.T) {
	src := newFakeSource("clip")
	stream, err := src.OpenStream(context.Background(), "id", domain.QualityHint{Kind: domain.StreamVideo})
	if err != nil {
		t.Fatal(err)
	}
	defer stream.Body.Close()

	if got := streamSize(stream); got != 0 {
		t.Errorf("streamSize = %d, want 0", got)
	}
	stream.Format.Size = 2048
	if got := streamSize(stream); got != 2048 {
		t.Errorf("streamSize = %d, want resolved size", got)
	}
	stream.Size = 4096
	if got := streamSize(stream); got != 4096 {
		t.Errorf("streamSize = %d, want Content-Length", got)
	}
}
