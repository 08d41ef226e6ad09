// Package store tracks per-segment size and offset bookkeeping for a
// streamed usenet file and caches decoded segments.
package store

import (
	"sync"
)

// SegmentInfo is the decode bookkeeping for one segment. Estimated
// values come from the NZB; actual values arrive after decode and are
// then authoritative.
type SegmentInfo struct {
	EstimatedSize   int64
	ActualSize      *int64
	EstimatedOffset int64
	ActualOffset    *int64
}

// Size returns the actual size when known, else the estimate.
func (s *SegmentInfo) Size() int64 {
	if s.ActualSize != nil {
		return *s.ActualSize
	}
	return s.EstimatedSize
}

// Offset returns the actual offset when known, else the estimate.
func (s *SegmentInfo) Offset() int64 {
	if s.ActualOffset != nil {
		return *s.ActualOffset
	}
	return s.EstimatedOffset
}

// SegmentPosition locates a byte offset within a segment.
type SegmentPosition struct {
	SegmentIndex    int
	OffsetInSegment int64
}

// SegmentStore reconciles estimated and decoded segment sizes for one
// file. Safe for concurrent use.
type SegmentStore struct {
	mu       sync.RWMutex
	segments []SegmentInfo
	decoded  int
}

// NewSegmentStore builds a store from the NZB's estimated segment
// sizes, in segment order.
func NewSegmentStore(estimatedSizes []int64) *SegmentStore {
	segments := make([]SegmentInfo, len(estimatedSizes))
	var offset int64
	for i, size := range estimatedSizes {
		segments[i] = SegmentInfo{
			EstimatedSize:   size,
			EstimatedOffset: offset,
		}
		offset += size
	}
	if len(segments) > 0 {
		zero := int64(0)
		segments[0].ActualOffset = &zero
	}
	return &SegmentStore{segments: segments}
}

// Count returns the number of segments.
func (s *SegmentStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.segments)
}

// Segment returns a copy of one segment's bookkeeping.
func (s *SegmentStore) Segment(index int) (SegmentInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.segments) {
		return SegmentInfo{}, false
	}
	return s.segments[index], true
}

// TotalSize returns the exact size once every segment is decoded,
// otherwise the running best estimate.
func (s *SegmentStore) TotalSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total int64
	for i := range s.segments {
		total += s.segments[i].Size()
	}
	return total
}

// Complete reports whether every segment has an actual size.
func (s *SegmentStore) Complete() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.decoded == len(s.segments)
}

// FindSegmentForOffset maps a byte offset to a segment and an offset
// within it, using actual offsets where known and estimates otherwise.
// Returns false when the offset is out of range.
func (s *SegmentStore) FindSegmentForOffset(byteOffset int64) (SegmentPosition, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if byteOffset < 0 {
		return SegmentPosition{}, false
	}
	var start int64
	for i := range s.segments {
		seg := &s.segments[i]
		if seg.ActualOffset != nil {
			start = *seg.ActualOffset
		}
		size := seg.Size()
		if byteOffset < start+size {
			return SegmentPosition{SegmentIndex: i, OffsetInSegment: byteOffset - start}, true
		}
		start += size
	}
	return SegmentPosition{}, false
}

// UpdateDecodedSize records a segment's decoded size. Idempotent: once
// an actual size is set it never changes. Actual offsets propagate
// forward as far as the contiguous decoded prefix reaches.
func (s *SegmentStore) UpdateDecodedSize(index int, actualSize int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.segments) {
		return
	}
	seg := &s.segments[index]
	if seg.ActualSize != nil {
		return
	}
	size := actualSize
	seg.ActualSize = &size
	s.decoded++

	s.propagateOffsetsLocked()
}

// propagateOffsetsLocked assigns actual offsets to every segment whose
// predecessors all have actual sizes.
func (s *SegmentStore) propagateOffsetsLocked() {
	var offset int64
	for i := range s.segments {
		seg := &s.segments[i]
		if seg.ActualOffset == nil {
			o := offset
			seg.ActualOffset = &o
		}
		if seg.ActualSize == nil {
			return
		}
		offset = *seg.ActualOffset + *seg.ActualSize
	}
}
