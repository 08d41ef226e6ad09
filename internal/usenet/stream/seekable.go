package stream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/keonramses/cinephage/internal/metrics"
	"github.com/keonramses/cinephage/internal/usenet/nzb"
	"github.com/keonramses/cinephage/internal/usenet/store"
)

// Access patterns hinting prefetch and cache retention.
const (
	AccessSequential = "sequential"
	AccessRandom     = "random"
	AccessIdle       = "idle"
)

const (
	sequentialPrefetch = 4
	randomPrefetch     = 1
	randomCacheWindow  = 2
)

// ArticleFetcher fetches and decodes one article body. The NNTP
// manager satisfies it.
type ArticleFetcher interface {
	GetDecodedArticle(ctx context.Context, messageID string) ([]byte, error)
}

// SeekableStream emits bytes for exactly one requested range of a
// usenet file, fetching segments on demand with bounded prefetch.
type SeekableStream struct {
	segments []nzb.Segment
	store    *store.SegmentStore
	cache    *store.SegmentCache
	fetcher  ArticleFetcher
	rng      ByteRange
	logger   zerolog.Logger

	prefetchWindow atomic.Int32
	pattern        atomic.Value
}

// NewSeekableStream builds a stream for one file and range. The store
// and cache are shared across streams of the same file.
func NewSeekableStream(file *nzb.File, st *store.SegmentStore, cache *store.SegmentCache, fetcher ArticleFetcher, rng ByteRange, logger zerolog.Logger) *SeekableStream {
	s := &SeekableStream{
		segments: file.Segments,
		store:    st,
		cache:    cache,
		fetcher:  fetcher,
		rng:      rng,
		logger:   logger.With().Str("component", "usenet-stream").Logger(),
	}
	s.prefetchWindow.Store(sequentialPrefetch)
	s.pattern.Store(AccessSequential)
	return s
}

// SetAccessPattern adjusts prefetch depth and cache retention. Random
// access shrinks both.
func (s *SeekableStream) SetAccessPattern(pattern string, currentSegment int) {
	s.pattern.Store(pattern)
	switch pattern {
	case AccessRandom:
		s.prefetchWindow.Store(randomPrefetch)
		s.cache.InvalidateOutsideWindow(currentSegment, randomCacheWindow)
	case AccessIdle:
		s.prefetchWindow.Store(0)
	default:
		s.prefetchWindow.Store(sequentialPrefetch)
	}
}

// Run writes the requested range to w and returns when the range is
// fully emitted or ctx is cancelled.
func (s *SeekableStream) Run(ctx context.Context, w io.Writer) error {
	metrics.ActiveStreams.WithLabelValues("usenet").Inc()
	defer metrics.ActiveStreams.WithLabelValues("usenet").Dec()

	pos, ok := s.store.FindSegmentForOffset(s.rng.Start)
	if !ok {
		return fmt.Errorf("offset %d out of range", s.rng.Start)
	}

	segIdx := pos.SegmentIndex
	inSeg := pos.OffsetInSegment
	remaining := s.rng.Length()

	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		if segIdx >= len(s.segments) {
			return fmt.Errorf("segment %d beyond file end with %d bytes unemitted", segIdx, remaining)
		}

		data, err := s.ensureSegment(ctx, segIdx)
		if err != nil {
			return err
		}

		s.prefetch(ctx, segIdx)

		if inSeg >= int64(len(data)) {
			// Estimated size overshot the decoded one; move on.
			inSeg -= int64(len(data))
			segIdx++
			continue
		}

		end := int64(len(data))
		if avail := end - inSeg; avail > remaining {
			end = inSeg + remaining
		}

		n, err := w.Write(data[inSeg:end])
		if err != nil {
			return err
		}
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}

		remaining -= int64(n)
		segIdx++
		inSeg = 0
	}
	return nil
}

// ensureSegment returns the decoded bytes for a segment, fetching and
// caching on miss, and feeds the actual size back to the store.
func (s *SeekableStream) ensureSegment(ctx context.Context, index int) ([]byte, error) {
	if data, ok := s.cache.Get(index); ok {
		return data, nil
	}

	data, err := s.fetcher.GetDecodedArticle(ctx, s.segments[index].MessageID)
	if err != nil {
		return nil, fmt.Errorf("segment %d: %w", index, err)
	}

	s.cache.Put(index, data)
	s.store.UpdateDecodedSize(index, int64(len(data)))
	return data, nil
}

// prefetch warms the next few segments in the background. Prefetches
// are best-effort and ignore errors.
func (s *SeekableStream) prefetch(ctx context.Context, current int) {
	window := int(s.prefetchWindow.Load())
	for i := current + 1; i <= current+window && i < len(s.segments); i++ {
		if _, ok := s.cache.Get(i); ok {
			continue
		}
		index := i
		go func() {
			data, err := s.fetcher.GetDecodedArticle(ctx, s.segments[index].MessageID)
			if err != nil {
				return
			}
			s.cache.Put(index, data)
			s.store.UpdateDecodedSize(index, int64(len(data)))
		}()
	}
}
