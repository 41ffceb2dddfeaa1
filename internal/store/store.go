// Package store manages the on-disk frame sequence of one recording session.
//
// Frames are written as {dir}/{index}.{ext} with 1-based contiguous indices,
// which is the layout the encoder's numeric input pattern expects.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrIOFailure wraps any failure to write a frame. It is recoverable:
	// the frame is dropped and its index stays pending.
	ErrIOFailure = errors.New("frame write failed")
	// ErrOutOfSequence is returned when a frame index is not the next pending index,
	// or when a reopened directory has gaps.
	ErrOutOfSequence = errors.New("frame index out of sequence")
	// ErrSealed is returned by Persist once the store is sealed or purging.
	ErrSealed = errors.New("frame store is sealed")
	// ErrCleanupFailure is returned when Purge could not remove every entry.
	ErrCleanupFailure = errors.New("session cleanup failed")
)

// Frame describes one persisted still.
type Frame struct {
	Index           int
	Path            string
	Size            int64
	CaptureDuration time.Duration
}

// Store owns one session directory. Persist, Seal and Purge are serialized;
// the counters may be read concurrently at any time.
type Store struct {
	dir string
	ext string

	mu     sync.Mutex
	sealed bool

	frameCount atomic.Int64
	totalBytes atomic.Int64
}

// Create makes a fresh session directory {root}/{id}. It fails if the
// directory already exists.
func Create(root, id, ext string) (*Store, error) {
	if id == "" {
		return nil, errors.New("session id must be non-empty")
	}
	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, fmt.Errorf("failed to create output root: %w", err)
	}
	dir := filepath.Join(root, id)
	if err := os.Mkdir(dir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}
	return &Store{dir: dir, ext: normalizeExt(ext)}, nil
}

// Open reopens an existing session directory, recovering the frame count and
// byte total from the files present. A directory whose frames are not
// exactly 1..N is rejected with ErrOutOfSequence.
func Open(dir, ext string) (*Store, error) {
	s := &Store{dir: dir, ext: normalizeExt(ext)}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read session directory: %w", err)
	}

	var indices []int
	var total int64
	for _, e := range entries {
		idx, ok := s.parseFrameName(e.Name())
		if !ok || e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return nil, fmt.Errorf("failed to stat frame %s: %w", e.Name(), err)
		}
		indices = append(indices, idx)
		total += info.Size()
	}

	sort.Ints(indices)
	for i, idx := range indices {
		if idx != i+1 {
			return nil, fmt.Errorf("%w: expected frame %d, found %d", ErrOutOfSequence, i+1, idx)
		}
	}

	s.frameCount.Store(int64(len(indices)))
	s.totalBytes.Store(total)
	return s, nil
}

// Dir returns the session directory.
func (s *Store) Dir() string { return s.dir }

// Ext returns the frame file extension without the leading dot.
func (s *Store) Ext() string { return s.ext }

// FrameCount returns the number of frames persisted so far.
func (s *Store) FrameCount() int { return int(s.frameCount.Load()) }

// TotalBytes returns the cumulative size of persisted frames.
func (s *Store) TotalBytes() int64 { return s.totalBytes.Load() }

// NextIndex returns the index the next successful frame will take.
func (s *Store) NextIndex() int { return s.FrameCount() + 1 }

// FramePath returns the path of frame index.
func (s *Store) FramePath(index int) string {
	return filepath.Join(s.dir, strconv.Itoa(index)+"."+s.ext)
}

// Pattern returns the numeric input pattern ({dir}/%d.{ext}) for the encoder.
func (s *Store) Pattern() string {
	return filepath.Join(s.dir, "%d."+s.ext)
}

// Persist writes data as frame index. The index must equal NextIndex. The
// write goes to a temp file that is renamed into place, so a failed write
// never leaves a partial {index}.{ext} behind.
func (s *Store) Persist(index int, data []byte) (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sealed {
		return Frame{}, ErrSealed
	}
	if next := s.NextIndex(); index != next {
		return Frame{}, fmt.Errorf("%w: got %d, want %d", ErrOutOfSequence, index, next)
	}

	path := s.FramePath(index)
	tmp := filepath.Join(s.dir, "."+strconv.Itoa(index)+".tmp")
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		_ = os.Remove(tmp)
		return Frame{}, fmt.Errorf("%w: %v", ErrIOFailure, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return Frame{}, fmt.Errorf("%w: %v", ErrIOFailure, err)
	}

	size := int64(len(data))
	s.totalBytes.Add(size)
	s.frameCount.Add(1)
	return Frame{Index: index, Path: path, Size: size}, nil
}

// Seal forbids further writes. It waits for an in-progress Persist.
func (s *Store) Seal() {
	s.mu.Lock()
	s.sealed = true
	s.mu.Unlock()
}

// Sealed reports whether the store accepts writes.
func (s *Store) Sealed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sealed
}

// Purge seals the store, removes every entry in the session directory and
// then the directory itself. Removal is best effort: all failures are
// collected and returned wrapped in ErrCleanupFailure, and nothing already
// removed is restored. Purging a directory that no longer exists is a no-op.
func (s *Store) Purge() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sealed = true

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("%w: %w", ErrCleanupFailure, err)
	}

	var errs []error
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(s.dir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	if err := os.Remove(s.dir); err != nil && !errors.Is(err, fs.ErrNotExist) {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrCleanupFailure, errors.Join(errs...))
	}
	return nil
}

func (s *Store) parseFrameName(name string) (int, bool) {
	base, found := strings.CutSuffix(name, "."+s.ext)
	if !found || base == "" {
		return 0, false
	}
	idx, err := strconv.Atoi(base)
	if err != nil || idx <= 0 || strconv.Itoa(idx) != base {
		return 0, false
	}
	return idx, true
}

func normalizeExt(ext string) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return "png"
	}
	return ext
}

// Remove purges the session directory dir without scanning its frames.
// It is used to discard preserved sessions whose frame sequence may be broken.
func Remove(dir string) error {
	s := &Store{dir: dir, ext: normalizeExt("")}
	return s.Purge()
}
