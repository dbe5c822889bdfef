package domain

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// StreamKind names one elementary stream of a content item.
type StreamKind string

const (
	StreamVideo StreamKind = "video"
	StreamAudio StreamKind = "audio"
)

// ContentItem is one remotely hosted video being downloaded.
type ContentItem struct {
	JobID          string `json:"job_id"`
	Identifier     string `json:"identifier"`
	Title          string `json:"title"`
	SanitizedTitle string `json:"sanitized_title"`
	Stem           string `json:"stem"` // file name base claimed in the output directory
}

// NewContentItem creates an item whose stem defaults to the sanitized title.
// An empty title falls back to video_<first 8 chars of jobID>.
func NewContentItem(jobID, identifier, title string) ContentItem {
	short := jobID
	if len(short) > 8 {
		short = short[:8]
	}
	return ContentItem{
		JobID:          jobID,
		Identifier:     identifier,
		Title:          title,
		SanitizedTitle: Sanitize(title),
		Stem:           FileStem(title, short),
	}
}

// WithStem returns a copy of the item using stem for its file names.
func (c ContentItem) WithStem(stem string) ContentItem {
	c.Stem = stem
	return c
}

// Sanitize replaces every character outside [A-Za-z0-9] with an underscore.
func Sanitize(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// FileStem returns the sanitized title, or video_<id> when the title is empty.
func FileStem(title, id string) string {
	if stem := Sanitize(title); stem != "" {
		return stem
	}
	if id = Sanitize(id); id == "" {
		id = "untitled"
	}
	return "video_" + id
}

// StreamState is the terminal state of a StreamHandle.
type StreamState int32

const (
	StreamInProgress StreamState = iota
	StreamEnded
	StreamFailed
)

func (s StreamState) String() string {
	switch s {
	case StreamEnded:
		return "ended"
	case StreamFailed:
		return "failed"
	default:
		return "in-progress"
	}
}

// StreamHandle tracks one elementary stream being written to its temporary file.
// Only the transfer that created it mutates it; readers may poll from any goroutine.
type StreamHandle struct {
	Kind StreamKind
	Path string

	downloaded atomic.Int64
	total      atomic.Int64
	state      atomic.Int32

	mu  sync.Mutex
	err error
}

// NewStreamHandle creates an in-progress handle. total may be 0 when unknown.
func NewStreamHandle(kind StreamKind, path string, total int64) *StreamHandle {
	h := &StreamHandle{Kind: kind, Path: path}
	h.total.Store(total)
	return h
}

// Add records n more bytes and returns the running count.
func (h *StreamHandle) Add(n int64) int64 {
	return h.downloaded.Add(n)
}

// SetTotal records the expected size once it becomes known.
func (h *StreamHandle) SetTotal(total int64) {
	h.total.Store(total)
}

// Progress returns bytes written so far and the expected total (0 if unknown).
func (h *StreamHandle) Progress() (downloaded, total int64) {
	return h.downloaded.Load(), h.total.Load()
}

// State returns the current state.
func (h *StreamHandle) State() StreamState {
	return StreamState(h.state.Load())
}

// MarkEnded moves an in-progress handle to ended.
func (h *StreamHandle) MarkEnded() bool {
	return h.state.CompareAndSwap(int32(StreamInProgress), int32(StreamEnded))
}

// MarkFailed moves an in-progress handle to failed and remembers err.
func (h *StreamHandle) MarkFailed(err error) bool {
	if !h.state.CompareAndSwap(int32(StreamInProgress), int32(StreamFailed)) {
		return false
	}
	h.mu.Lock()
	h.err = err
	h.mu.Unlock()
	return true
}

// Err returns the failure recorded by MarkFailed.
func (h *StreamHandle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// Percent converts a progress pair to a percentage. ok is false when total is unknown.
func Percent(downloaded, total int64) (pct float64, ok bool) {
	if total <= 0 {
		return 0, false
	}
	return float64(downloaded) / float64(total) * 100, true
}

// PairPhase is the join state of a video/audio stream pair.
type PairPhase int

const (
	PairWaiting PairPhase = iota
	PairOneDone
	PairBothDone
	PairFailed
)

func (p PairPhase) String() string {
	switch p {
	case PairOneDone:
		return "one-done"
	case PairBothDone:
		return "both-done"
	case PairFailed:
		return "failed"
	default:
		return "waiting"
	}
}

// OutcomeStatus is the terminal result kind of one item.
type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeFailed    OutcomeStatus = "failed"
)

// Outcome holds the terminal result of processing one identifier.
type Outcome struct {
	JobID      string        `json:"job_id,omitempty"`
	Identifier string        `json:"identifier"`
	Status     OutcomeStatus `json:"status"`
	OutputPath string        `json:"output_path,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	Err        error         `json:"-"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// Succeeded builds a successful outcome.
func Succeeded(jobID, identifier, outputPath string, startedAt time.Time) Outcome {
	return Outcome{
		JobID:      jobID,
		Identifier: identifier,
		Status:     OutcomeSucceeded,
		OutputPath: outputPath,
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
	}
}

// Failed builds a failed outcome carrying err as the reason.
func Failed(jobID, identifier string, err error, startedAt time.Time) Outcome {
	reason := "unknown error"
	if err != nil {
		reason = err.Error()
	}
	return Outcome{
		JobID:      jobID,
		Identifier: identifier,
		Status:     OutcomeFailed,
		Reason:     reason,
		Err:        err,
		StartedAt:  startedAt,
		FinishedAt: time.Now().UTC(),
	}
}

// OK reports whether the outcome succeeded.
func (o Outcome) OK() bool {
	return o.Status == OutcomeSucceeded
}

// MuxJob describes one merge of a video and an audio file into Output.
type MuxJob struct {
	VideoPath string
	AudioPath string
	Output    string
}
