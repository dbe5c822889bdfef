// Package progress renders transfer progress events on a terminal.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
	"golang.org/x/time/rate"

	"tubegrab/internal/core/domain"
	"tubegrab/internal/core/ports"
)

// Modes accepted by New.
const (
	ModeAuto = "auto"
	ModeLine = "line"
	ModeBar  = "bar"
	ModeNone = "none"
)

// New returns the sink for mode. Auto picks bars on a terminal and lines otherwise.
// interval bounds how often the line renderer redraws one stream; 0 redraws on every chunk.
func New(mode string, out *os.File, interval time.Duration) (ports.ProgressSink, error) {
	switch mode {
	case "", ModeAuto:
		if term.IsTerminal(int(out.Fd())) {
			return NewBar(out), nil
		}
		return NewLine(out, interval), nil
	case ModeLine:
		return NewLine(out, interval), nil
	case ModeBar:
		return NewBar(out), nil
	case ModeNone:
		return Nop{}, nil
	}
	return nil, fmt.Errorf("unknown progress mode %q (want auto, line, bar or none)", mode)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Progress(domain.ContentItem, domain.StreamKind, int64, int64) {}
func (Nop) Done(domain.ContentItem, domain.StreamKind)                    {}

type streamKey struct {
	job  string
	kind domain.StreamKind
}

// Line rewrites a single status line per event:
//
//	Downloading video... 42.17%
//
// When the total is unknown the byte count is shown instead.
type Line struct {
	out      io.Writer
	interval time.Duration

	mu       sync.Mutex
	limiters map[streamKey]*rate.Limiter
}

// NewLine creates a line renderer writing to out.
func NewLine(out io.Writer, interval time.Duration) *Line {
	return &Line{
		out:      out,
		interval: interval,
		limiters: make(map[streamKey]*rate.Limiter),
	}
}

func (l *Line) Progress(item domain.ContentItem, kind domain.StreamKind, downloaded, total int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := streamKey{item.JobID, kind}
	lim, ok := l.limiters[key]
	if !ok {
		limit := rate.Inf
		if l.interval > 0 {
			limit = rate.Every(l.interval)
		}
		lim = rate.NewLimiter(limit, 1)
		l.limiters[key] = lim
	}
	if !lim.Allow() {
		return
	}
	fmt.Fprint(l.out, "\r"+lineText(kind, downloaded, total))
}

func (l *Line) Done(item domain.ContentItem, kind domain.StreamKind) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, streamKey{item.JobID, kind})
	fmt.Fprintf(l.out, "\rDownloading %s... done\n", kind)
}

func lineText(kind domain.StreamKind, downloaded, total int64) string {
	if pct, ok := domain.Percent(downloaded, total); ok {
		return fmt.Sprintf("Downloading %s... %.2f%%", kind, pct)
	}
	return fmt.Sprintf("Downloading %s... %s", kind, humanize.Bytes(uint64(downloaded)))
}

// Bar draws one progress bar per stream.
type Bar struct {
	out io.Writer

	mu   sync.Mutex
	bars map[streamKey]*progressbar.ProgressBar
}

// NewBar creates a bar renderer writing to out.
func NewBar(out io.Writer) *Bar {
	return &Bar{out: out, bars: make(map[streamKey]*progressbar.ProgressBar)}
}

func (b *Bar) Progress(item domain.ContentItem, kind domain.StreamKind, downloaded, total int64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := streamKey{item.JobID, kind}
	bar, ok := b.bars[key]
	if !ok {
		size := total
		if size <= 0 {
			size = -1
		}
		bar = progressbar.NewOptions64(size,
			progressbar.OptionSetWriter(b.out),
			progressbar.OptionSetDescription(describe(item, kind)),
			progressbar.OptionShowBytes(true),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionShowCount(),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionFullWidth(),
		)
		b.bars[key] = bar
	}
	_ = bar.Set64(downloaded)
}

func (b *Bar) Done(item domain.ContentItem, kind domain.StreamKind) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := streamKey{item.JobID, kind}
	if bar, ok := b.bars[key]; ok {
		_ = bar.Finish()
		delete(b.bars, key)
	}
	fmt.Fprintln(b.out)
}

func describe(item domain.ContentItem, kind domain.StreamKind) string {
	name := item.Stem
	if len(name) > 24 {
		name = name[:24]
	}
	return strings.TrimSpace(fmt.Sprintf("%s %s", name, kind))
}
