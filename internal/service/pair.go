package service

import (
	"sync"

	"tubegrab/internal/core/domain"
)

// PairSync joins the end signals of a video and an audio stream.
// The continuation passed to NewPairSync runs exactly once, after both
// streams ended, whichever order the signals arrive in. It never runs if
// either stream failed.
type PairSync struct {
	mu         sync.Mutex
	videoEnded bool
	audioEnded bool
	phase      domain.PairPhase
	err        error
	onBoth     func()
	done       chan struct{}
}

// NewPairSync creates a waiting pair. onBothEnded may be nil.
func NewPairSync(onBothEnded func()) *PairSync {
	return &PairSync{
		phase:  domain.PairWaiting,
		onBoth: onBothEnded,
		done:   make(chan struct{}),
	}
}

// OnEnd records that the stream of kind ended successfully.
func (p *PairSync) OnEnd(kind domain.StreamKind) {
	p.mu.Lock()
	if p.phase == domain.PairBothDone || p.phase == domain.PairFailed {
		p.mu.Unlock()
		return
	}
	switch kind {
	case domain.StreamVideo:
		p.videoEnded = true
	case domain.StreamAudio:
		p.audioEnded = true
	}
	if !p.videoEnded || !p.audioEnded {
		p.phase = domain.PairOneDone
		p.mu.Unlock()
		return
	}
	p.phase = domain.PairBothDone
	cont := p.onBoth
	p.mu.Unlock()

	if cont != nil {
		cont()
	}
	close(p.done)
}

// OnFail records that the stream of kind failed. The first failure wins.
func (p *PairSync) OnFail(kind domain.StreamKind, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.phase == domain.PairBothDone || p.phase == domain.PairFailed {
		return
	}
	p.phase = domain.PairFailed
	p.err = err
	close(p.done)
}

// Wait blocks until both streams ended or one failed and returns the failure.
func (p *PairSync) Wait() error {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Done is closed once the pair reached a terminal phase.
func (p *PairSync) Done() <-chan struct{} {
	return p.done
}

// Phase returns the current join state.
func (p *PairSync) Phase() domain.PairPhase {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.phase
}
