package localstorage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"tubegrab/internal/core/domain"
)

// CollisionPolicy decides what happens when two items want the same output name.
type CollisionPolicy string

const (
	// CollisionOverwrite reuses the stem; the last writer wins.
	CollisionOverwrite CollisionPolicy = "overwrite"
	// CollisionFail rejects a stem that is in flight or already has a final file.
	CollisionFail CollisionPolicy = "fail"
	// CollisionSuffix appends part of the job ID to the stem.
	CollisionSuffix CollisionPolicy = "suffix"
)

// ParseCollisionPolicy validates a policy name. Empty means overwrite.
func ParseCollisionPolicy(s string) (CollisionPolicy, error) {
	switch CollisionPolicy(s) {
	case "", CollisionOverwrite:
		return CollisionOverwrite, nil
	case CollisionFail, CollisionSuffix:
		return CollisionPolicy(s), nil
	}
	return "", fmt.Errorf("unknown collision policy %q (want overwrite, fail or suffix)", s)
}

// MergedExt is the extension of every merged output file.
const MergedExt = ".mp4"

// LocalStorage implements ports.Storage for the local filesystem.
type LocalStorage struct {
	BaseDir string
	Policy  CollisionPolicy

	mu     sync.Mutex
	claims map[string]int
}

// NewLocalStorage creates a new LocalStorage instance.
func NewLocalStorage(baseDir string, policy CollisionPolicy) *LocalStorage {
	if policy == "" {
		policy = CollisionOverwrite
	}
	return &LocalStorage{
		BaseDir: baseDir,
		Policy:  policy,
		claims:  make(map[string]int),
	}
}

// Init creates the output directory.
func (s *LocalStorage) Init() error {
	if err := os.MkdirAll(s.BaseDir, 0755); err != nil {
		return &domain.IoError{Op: "create output directory", Path: s.BaseDir, Err: err}
	}
	return nil
}

// Claim reserves a stem for item.
func (s *LocalStorage) Claim(item domain.ContentItem) (string, error) {
	stem := item.Stem
	if stem == "" {
		stem = domain.FileStem(item.Title, item.JobID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.Policy {
	case CollisionFail:
		if s.claims[stem] > 0 {
			return "", fmt.Errorf("%w: %s is being written by another item", domain.ErrStemInUse, stem)
		}
		if _, err := os.Stat(s.OutputPath(stem, MergedExt)); err == nil {
			return "", fmt.Errorf("%w: %s already exists", domain.ErrStemInUse, s.OutputPath(stem, MergedExt))
		}
	case CollisionSuffix:
		if s.claims[stem] > 0 || s.exists(stem) {
			suffix := item.JobID
			if len(suffix) > 8 {
				suffix = suffix[:8]
			}
			stem = stem + "-" + suffix
		}
	}

	s.claims[stem]++
	return stem, nil
}

func (s *LocalStorage) exists(stem string) bool {
	_, err := os.Stat(s.OutputPath(stem, MergedExt))
	return err == nil
}

// Release frees a stem reserved by Claim.
func (s *LocalStorage) Release(stem string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claims[stem] <= 1 {
		delete(s.claims, stem)
		return
	}
	s.claims[stem]--
}

// TempPath returns <stem>_<kind>.<container>.
func (s *LocalStorage) TempPath(stem string, kind domain.StreamKind, container string) string {
	if container == "" {
		container = "mp4"
	}
	return filepath.Join(s.BaseDir, fmt.Sprintf("%s_%s.%s", stem, kind, container))
}

// OutputPath returns the path for a file named stem+suffix.
func (s *LocalStorage) OutputPath(stem, suffix string) string {
	return filepath.Join(s.BaseDir, stem+suffix)
}

// Create opens path for writing, truncating it.
func (s *LocalStorage) Create(path string) (io.WriteCloser, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, &domain.IoError{Op: "create", Path: path, Err: err}
	}
	return file, nil
}

// Promote renames staging onto final.
func (s *LocalStorage) Promote(staging, final string) error {
	if err := os.Rename(staging, final); err != nil {
		return &domain.IoError{Op: "rename", Path: staging, Err: err}
	}
	return nil
}

// Remove deletes paths. Missing files are not an error.
func (s *LocalStorage) Remove(paths ...string) error {
	var errs []error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, &domain.IoError{Op: "remove", Path: p, Err: err})
		}
	}
	return errors.Join(errs...)
}

// Save writes reader to path.
func (s *LocalStorage) Save(ctx context.Context, path string, reader io.Reader) (int64, error) {
	file, err := os.Create(path)
	if err != nil {
		return 0, &domain.IoError{Op: "create", Path: path, Err: err}
	}
	defer file.Close()

	n, err := io.Copy(file, &ctxReader{ctx: ctx, r: reader})
	if err != nil {
		return n, &domain.IoError{Op: "write", Path: path, Err: err}
	}
	if err := file.Close(); err != nil {
		return n, &domain.IoError{Op: "close", Path: path, Err: err}
	}
	return n, nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
