// Package usenet is the streaming facade over mounts, NZB parsing, the
// segment store and the NNTP manager.
package usenet

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/rs/zerolog"

	"github.com/keonramses/cinephage/internal/usenet/nzb"
	"github.com/keonramses/cinephage/internal/usenet/store"
	"github.com/keonramses/cinephage/internal/usenet/stream"
)

// Mount statuses reported by the mount manager.
const (
	MountDownloading        = "downloading"
	MountExtracting         = "extracting"
	MountReady              = "ready"
	MountRequiresExtraction = "requires_extraction"
	MountError              = "error"
)

const (
	nzbCacheSize       = 64
	nzbCacheTTL        = time.Hour
	streamCleanupDelay = 2 * time.Minute
)

var (
	ErrMountNotFound = errors.New("mount not found")
	ErrFileNotFound  = errors.New("file not found in mount")
	// ErrRequiresExtraction marks RAR-only payloads that cannot be
	// streamed directly.
	ErrRequiresExtraction = errors.New("mount requires extraction")
	ErrMountNotReady      = errors.New("mount is not ready")
)

// RangeError wraps a rejected Range header together with the file size
// so callers can build a "bytes */<size>" Content-Range.
type RangeError struct {
	Total int64
	Err   error
}

func (e *RangeError) Error() string { return e.Err.Error() }

func (e *RangeError) Unwrap() error { return e.Err }

// MountInfo is the mount manager's projection of one mounted NZB.
type MountInfo struct {
	ID         string
	NzbHash    string
	Status     string
	MediaFiles []nzb.File
}

// MountManager is the external mount collaborator.
type MountManager interface {
	GetMount(ctx context.Context, id string) (*MountInfo, error)
	TouchMount(ctx context.Context, id string) error
}

// Cleaner removes a mount's temp artifacts once streaming stops.
type Cleaner interface {
	CleanupMount(mountID string)
}

// Stream is one open range stream over a mounted file.
type Stream struct {
	ID      string
	File    *nzb.File
	Range   stream.ByteRange
	Total   int64
	Partial bool

	seekable *stream.SeekableStream
	close    func()
	once     sync.Once
}

// Run emits the stream's range to w.
func (s *Stream) Run(ctx context.Context, w io.Writer) error {
	return s.seekable.Run(ctx, w)
}

// SetAccessPattern forwards the hint to the underlying stream.
func (s *Stream) SetAccessPattern(pattern string, currentSegment int) {
	s.seekable.SetAccessPattern(pattern, currentSegment)
}

// Close releases the mount bookkeeping. Idempotent.
func (s *Stream) Close() {
	s.once.Do(s.close)
}

type fileState struct {
	store *store.SegmentStore
	cache *store.SegmentCache
}

// Service opens seekable streams over mounted NZBs and keeps per-mount
// bookkeeping so cleanup runs after the last stream closes.
type Service struct {
	mounts  MountManager
	fetcher stream.ArticleFetcher
	cleaner Cleaner
	logger  zerolog.Logger

	nzbCache *expirable.LRU[string, *nzb.ParsedNzb]

	mu        sync.Mutex
	files     map[string]*fileState
	active    map[string]int
	cleanupAt map[string]*time.Timer
}

// NewService creates the usenet stream service.
func NewService(mounts MountManager, fetcher stream.ArticleFetcher, logger zerolog.Logger) *Service {
	return &Service{
		mounts:    mounts,
		fetcher:   fetcher,
		nzbCache:  expirable.NewLRU[string, *nzb.ParsedNzb](nzbCacheSize, nil, nzbCacheTTL),
		files:     make(map[string]*fileState),
		active:    make(map[string]int),
		cleanupAt: make(map[string]*time.Timer),
		logger:    logger.With().Str("component", "usenet").Logger(),
	}
}

// SetCleaner attaches the extraction-artifact cleaner.
func (s *Service) SetCleaner(c Cleaner) { s.cleaner = c }

// ParseNzb parses an NZB document with a per-mount cache so repeated
// opens of the same mount skip the XML work.
func (s *Service) ParseNzb(mountID string, raw []byte) (*nzb.ParsedNzb, error) {
	if parsed, ok := s.nzbCache.Get(mountID); ok {
		return parsed, nil
	}
	parsed, err := nzb.Parse(raw)
	if err != nil {
		return nil, err
	}
	if parsed.IsRarOnly() {
		return nil, fmt.Errorf("%w: archive-only NZB", ErrRequiresExtraction)
	}
	s.nzbCache.Add(mountID, parsed)
	return parsed, nil
}

// OpenStream opens a range stream over one media file of a mount.
// rangeHeader may be empty for a full-file stream.
func (s *Service) OpenStream(ctx context.Context, mountID string, fileIndex int, rangeHeader string) (*Stream, error) {
	mount, err := s.mounts.GetMount(ctx, mountID)
	if err != nil {
		return nil, fmt.Errorf("get mount %s: %w", mountID, err)
	}
	if mount == nil {
		return nil, ErrMountNotFound
	}

	switch mount.Status {
	case MountRequiresExtraction:
		return nil, ErrRequiresExtraction
	case MountReady:
	default:
		return nil, fmt.Errorf("%w: status %s", ErrMountNotReady, mount.Status)
	}

	if fileIndex < 0 || fileIndex >= len(mount.MediaFiles) {
		return nil, ErrFileNotFound
	}
	file := &mount.MediaFiles[fileIndex]

	if err := s.mounts.TouchMount(ctx, mountID); err != nil {
		s.logger.Debug().Err(err).Str("mountId", mountID).Msg("Touch mount failed")
	}

	fs := s.fileStateFor(mountID, fileIndex, file)
	total := fs.store.TotalSize()

	rng := stream.ByteRange{Start: 0, End: total - 1}
	partial := false
	if rangeHeader != "" {
		parsed, err := stream.ParseRangeHeader(rangeHeader, total)
		if err != nil {
			return nil, &RangeError{Total: total, Err: err}
		}
		rng = *parsed
		partial = true
	}

	s.registerStream(mountID)

	streamID := uuid.NewString()
	s.logger.Debug().
		Str("streamId", streamID).
		Str("mountId", mountID).
		Str("file", file.Filename).
		Int64("start", rng.Start).
		Int64("end", rng.End).
		Msg("Stream opened")

	seekable := stream.NewSeekableStream(file, fs.store, fs.cache, s.fetcher, rng, s.logger)
	return &Stream{
		ID:       streamID,
		File:     file,
		Range:    rng,
		Total:    total,
		Partial:  partial,
		seekable: seekable,
		close:    func() { s.releaseStream(mountID) },
	}, nil
}

// ActiveStreams reports the open stream count for a mount.
func (s *Service) ActiveStreams(mountID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active[mountID]
}

// fileStateFor returns the shared segment store and cache for one file
// of a mount, creating them on first use.
func (s *Service) fileStateFor(mountID string, fileIndex int, file *nzb.File) *fileState {
	key := fmt.Sprintf("%s:%d", mountID, fileIndex)

	s.mu.Lock()
	defer s.mu.Unlock()
	if fs, ok := s.files[key]; ok {
		return fs
	}

	sizes := make([]int64, len(file.Segments))
	for i, seg := range file.Segments {
		sizes[i] = seg.EstimatedBytes
	}
	fs := &fileState{
		store: store.NewSegmentStore(sizes),
		cache: store.NewSegmentCache(),
	}
	s.files[key] = fs
	return fs
}

func (s *Service) registerStream(mountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active[mountID]++
	if timer, ok := s.cleanupAt[mountID]; ok {
		timer.Stop()
		delete(s.cleanupAt, mountID)
	}
}

// releaseStream decrements the mount's stream count and schedules
// cleanup after a grace period when it hits zero.
func (s *Service) releaseStream(mountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.active[mountID]--
	if s.active[mountID] > 0 {
		return
	}
	delete(s.active, mountID)

	s.cleanupAt[mountID] = time.AfterFunc(streamCleanupDelay, func() {
		s.cleanupMount(mountID)
	})
}

func (s *Service) cleanupMount(mountID string) {
	s.mu.Lock()
	if s.active[mountID] > 0 {
		s.mu.Unlock()
		return
	}
	delete(s.cleanupAt, mountID)
	prefix := mountID + ":"
	for key := range s.files {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			delete(s.files, key)
		}
	}
	s.mu.Unlock()

	if s.cleaner != nil {
		s.cleaner.CleanupMount(mountID)
	}
	s.logger.Debug().Str("mountId", mountID).Msg("Mount stream state cleaned up")
}
