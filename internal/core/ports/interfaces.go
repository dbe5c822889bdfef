package ports

import (
	"context"
	"io"

	"tubegrab/internal/core/domain"
)

// MediaStream is an opened elementary stream.
type MediaStream struct {
	Body      io.ReadCloser // caller must close
	Size      int64         // expected byte count, 0 when unknown
	Container string        // file extension without the dot, e.g. "mp4", "webm"
	Format    domain.ElementaryStream
}

// MediaSource defines the contract for resolving identifiers and opening their streams.
type MediaSource interface {
	// Resolve fetches title, elementary streams, caption tracks and thumbnails.
	Resolve(ctx context.Context, identifier string) (*domain.MediaInfo, error)

	// OpenStream opens the stream closest to hint. The hint is not a guarantee.
	OpenStream(ctx context.Context, identifier string, hint domain.QualityHint) (*MediaStream, error)
}

// MetadataFetcher defines the contract for scraping page-level details.
type MetadataFetcher interface {
	// Fetch returns the requested fields; no fields means all known fields.
	Fetch(ctx context.Context, identifier string, fields ...domain.DetailField) (domain.Details, error)

	// FetchChannel returns the name and description of a channel.
	FetchChannel(ctx context.Context, channelID string) (domain.ChannelInfo, error)
}

// MuxBackend combines one video and one audio file into job.Output.
type MuxBackend interface {
	Mux(ctx context.Context, job domain.MuxJob) error
	Name() string
}

// Downloader defines the contract for fetching a plain URL.
type Downloader interface {
	// Download fetches the given URL.
	// Returns a ReadCloser that the caller must close and the Content-Length (0 if unknown).
	Download(ctx context.Context, url string) (io.ReadCloser, int64, error)
}

// Storage defines the contract for the output directory shared by all items.
type Storage interface {
	// Claim reserves a file name stem for item according to the collision policy.
	Claim(item domain.ContentItem) (string, error)

	// Release frees a stem reserved by Claim.
	Release(stem string)

	// TempPath returns the temporary file path of one elementary stream.
	TempPath(stem string, kind domain.StreamKind, container string) string

	// OutputPath returns the final path of a file named stem+suffix.
	OutputPath(stem, suffix string) string

	// Create opens path for writing, truncating any previous content.
	Create(path string) (io.WriteCloser, error)

	// Promote atomically moves a staging file onto its final name.
	Promote(staging, final string) error

	// Remove deletes files, ignoring ones that do not exist.
	Remove(paths ...string) error

	// Save writes reader to path and returns the byte count.
	Save(ctx context.Context, path string, reader io.Reader) (int64, error)
}

// ProgressSink receives transfer progress events.
type ProgressSink interface {
	// Progress is called for every chunk written. total is 0 when unknown.
	Progress(item domain.ContentItem, kind domain.StreamKind, downloaded, total int64)

	// Done is called once when the stream finished successfully.
	Done(item domain.ContentItem, kind domain.StreamKind)
}
