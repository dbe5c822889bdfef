package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"tubegrab/internal/adapters/localstorage"
	"tubegrab/internal/core/domain"
	"tubegrab/internal/core/ports"
)

var errClosed = errors.New("body closed")

// gatedBody serves data once gate is closed. Close unblocks a pending Read.
type gatedBody struct {
	r       io.Reader
	gate    <-chan struct{}
	closed  chan struct{}
	once    sync.Once
	onClose func()
}

func newGatedBody(data string, gate <-chan struct{}) *gatedBody {
	return &gatedBody{r: strings.NewReader(data), gate: gate, closed: make(chan struct{})}
}

func (g *gatedBody) Read(p []byte) (int, error) {
	if g.gate != nil {
		select {
		case <-g.gate:
		case <-g.closed:
			return 0, errClosed
		}
	}
	select {
	case <-g.closed:
		return 0, errClosed
	default:
	}
	return g.r.Read(p)
}

func (g *gatedBody) Close() error {
	g.once.Do(func() {
		close(g.closed)
		if g.onClose != nil {
			g.onClose()
		}
	})
	return nil
}

// failingBody returns some data and then err.
type failingBody struct {
	data string
	err  error
	sent bool
}

func (f *failingBody) Read(p []byte) (int, error) {
	if !f.sent {
		f.sent = true
		return copy(p, f.data), nil
	}
	return 0, f.err
}

func (f *failingBody) Close() error { return nil }

type fakeSource struct {
	mu         sync.Mutex
	title      string
	resolveErr error
	openErr    map[domain.StreamKind]error
	bodies     map[domain.StreamKind]func() io.ReadCloser
	containers map[domain.StreamKind]string
	hints      []domain.QualityHint
	info       *domain.MediaInfo
}

func newFakeSource(title string) *fakeSource {
	return &fakeSource{
		title:   title,
		openErr: map[domain.StreamKind]error{},
		bodies: map[domain.StreamKind]func() io.ReadCloser{
			domain.StreamVideo: func() io.ReadCloser { return newGatedBody("VIDEO", nil) },
			domain.StreamAudio: func() io.ReadCloser { return newGatedBody("AUDIO", nil) },
		},
		containers: map[domain.StreamKind]string{
			domain.StreamVideo: "mp4",
			domain.StreamAudio: "webm",
		},
	}
}

func (f *fakeSource) Resolve(ctx context.Context, identifier string) (*domain.MediaInfo, error) {
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	if f.info != nil {
		return f.info, nil
	}
	title := f.title
	if title == "" {
		title = "title " + identifier
	}
	return &domain.MediaInfo{Identifier: identifier, Title: title}, nil
}

func (f *fakeSource) OpenStream(ctx context.Context, identifier string, hint domain.QualityHint) (*ports.MediaStream, error) {
	f.mu.Lock()
	f.hints = append(f.hints, hint)
	f.mu.Unlock()
	if err := f.openErr[hint.Kind]; err != nil {
		return nil, err
	}
	return &ports.MediaStream{
		Body:      f.bodies[hint.Kind](),
		Container: f.containers[hint.Kind],
		Format:    domain.ElementaryStream{ID: string(hint.Kind), Kind: hint.Kind},
	}, nil
}

// fakeMuxer concatenates both inputs into the output, or fails with err.
type fakeMuxer struct {
	mu    sync.Mutex
	calls int
	jobs  []domain.MuxJob
	err   error
}

func (m *fakeMuxer) Name() string { return "fake" }

func (m *fakeMuxer) Mux(ctx context.Context, job domain.MuxJob) error {
	m.mu.Lock()
	m.calls++
	m.jobs = append(m.jobs, job)
	m.mu.Unlock()

	if m.err != nil {
		// leave a partial staging file behind like a crashed encoder would
		_ = os.WriteFile(job.Output, []byte("partial"), 0644)
		return m.err
	}
	video, err := os.ReadFile(job.VideoPath)
	if err != nil {
		return err
	}
	audio, err := os.ReadFile(job.AudioPath)
	if err != nil {
		return err
	}
	return os.WriteFile(job.Output, append(video, audio...), 0644)
}

func (m *fakeMuxer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type sinkEvent struct {
	kind domain.StreamKind
	done bool
}

type recordingSink struct {
	mu     sync.Mutex
	events []sinkEvent
}

func (s *recordingSink) Progress(item domain.ContentItem, kind domain.StreamKind, downloaded, total int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sinkEvent{kind: kind})
}

func (s *recordingSink) Done(item domain.ContentItem, kind domain.StreamKind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, sinkEvent{kind: kind, done: true})
}

func (s *recordingSink) kinds() map[domain.StreamKind]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[domain.StreamKind]int{}
	for _, e := range s.events {
		out[e.kind]++
	}
	return out
}

type pipeline struct {
	dir     string
	source  *fakeSource
	muxer   *fakeMuxer
	sink    *recordingSink
	storage *localstorage.LocalStorage
	orch    *Orchestrator
}

func newPipeline(t *testing.T, source *fakeSource, opts AcquirerOptions) *pipeline {
	t.Helper()
	dir := t.TempDir()
	p := &pipeline{
		dir:     dir,
		source:  source,
		muxer:   &fakeMuxer{},
		sink:    &recordingSink{},
		storage: localstorage.NewLocalStorage(dir, localstorage.CollisionOverwrite),
	}
	acq := NewAcquirer(source, p.storage, p.sink, opts)
	merger := NewMerger(p.storage, p.muxer)
	p.orch = NewOrchestrator(source, p.storage, acq, merger, OrchestratorOptions{}, zerolog.Nop())
	return p
}

func (p *pipeline) path(name string) string {
	return p.storage.OutputPath(name, "")
}

func exists(t *testing.T, path string) bool {
	t.Helper()
	_, err := os.Stat(path)
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("stat %s: %v", path, err)
	}
	return err == nil
}

// runnerFunc adapts a function to ItemRunner.
type runnerFunc func(ctx context.Context, id string) domain.Outcome

func (f runnerFunc) Run(ctx context.Context, id string) domain.Outcome { return f(ctx, id) }

func okRunner(ctx context.Context, id string) domain.Outcome {
	return domain.Succeeded("job", id, fmt.Sprintf("/out/%s.mp4", id), zeroTime)
}
