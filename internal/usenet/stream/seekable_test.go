package stream

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/keonramses/cinephage/internal/usenet/nzb"
	"github.com/keonramses/cinephage/internal/usenet/store"
)

// fakeFetcher serves segment bodies from a pre-sliced file and records
// which message IDs were requested.
type fakeFetcher struct {
	mu       sync.Mutex
	bodies   map[string][]byte
	requests []string
}

func (f *fakeFetcher) GetDecodedArticle(_ context.Context, messageID string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	body, ok := f.bodies[messageID]
	if !ok {
		return nil, fmt.Errorf("no such article %s", messageID)
	}
	f.requests = append(f.requests, messageID)
	return body, nil
}

func (f *fakeFetcher) requested() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.requests...)
}

// fakeFile slices deterministic content into equal segments.
func fakeFile(t *testing.T, totalSize, segmentSize int64) (*nzb.File, *fakeFetcher, []byte) {
	t.Helper()
	content := make([]byte, totalSize)
	for i := range content {
		content[i] = byte(i % 251)
	}

	fetcher := &fakeFetcher{bodies: make(map[string][]byte)}
	file := &nzb.File{Filename: "feature.mkv", Size: totalSize}
	for off, n := int64(0), 1; off < totalSize; off, n = off+segmentSize, n+1 {
		end := off + segmentSize
		if end > totalSize {
			end = totalSize
		}
		id := fmt.Sprintf("seg%d@test", n)
		fetcher.bodies[id] = content[off:end]
		file.Segments = append(file.Segments, nzb.Segment{
			MessageID:      id,
			Number:         n,
			EstimatedBytes: end - off,
		})
	}
	return file, fetcher, content
}

func estimates(file *nzb.File) []int64 {
	sizes := make([]int64, len(file.Segments))
	for i, seg := range file.Segments {
		sizes[i] = seg.EstimatedBytes
	}
	return sizes
}

func TestSeekableStreamEmitsExactRange(t *testing.T) {
	file, fetcher, content := fakeFile(t, 10_000_000, 300_000)
	st := store.NewSegmentStore(estimates(file))
	cache := store.NewSegmentCacheWith(50, 0)

	rng, err := ParseRangeHeader("bytes=1000000-1999999", 10_000_000)
	if err != nil {
		t.Fatalf("ParseRangeHeader: %v", err)
	}

	s := NewSeekableStream(file, st, cache, fetcher, *rng, zerolog.Nop())
	s.SetAccessPattern(AccessIdle, 0)

	var buf bytes.Buffer
	if err := s.Run(context.Background(), &buf); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if int64(buf.Len()) != 1_000_000 {
		t.Fatalf("emitted %d bytes, want 1000000", buf.Len())
	}
	if !bytes.Equal(buf.Bytes(), content[1_000_000:2_000_000]) {
		t.Fatal("emitted bytes do not match file content at the requested range")
	}

	// 300 kB segments: the range spans segments 3 (offset 900000)
	// through 6 (offset 1800000) and nothing else.
	want := []string{"seg4@test", "seg5@test", "seg6@test", "seg7@test"}
	got := fetcher.requested()
	if len(got) != len(want) {
		t.Fatalf("fetched %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("fetched %v, want %v", got, want)
		}
	}
}

func TestSeekableStreamReusesCachedSegments(t *testing.T) {
	file, fetcher, content := fakeFile(t, 1_000_000, 100_000)
	st := store.NewSegmentStore(estimates(file))
	cache := store.NewSegmentCacheWith(50, 0)

	first, _ := ParseRangeHeader("bytes=0-299999", file.Size)
	s := NewSeekableStream(file, st, cache, fetcher, *first, zerolog.Nop())
	s.SetAccessPattern(AccessIdle, 0)
	var buf bytes.Buffer
	if err := s.Run(context.Background(), &buf); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	fetchedOnce := len(fetcher.requested())

	// Overlapping range on a fresh stream sharing store and cache.
	second, _ := ParseRangeHeader("bytes=100000-399999", file.Size)
	s2 := NewSeekableStream(file, st, cache, fetcher, *second, zerolog.Nop())
	s2.SetAccessPattern(AccessIdle, 0)
	buf.Reset()
	if err := s2.Run(context.Background(), &buf); err != nil {
		t.Fatalf("second Run: %v", err)
	}

	if !bytes.Equal(buf.Bytes(), content[100_000:400_000]) {
		t.Fatal("second range content mismatch")
	}
	// Only segment 3 (offset 300000) is new.
	if got := len(fetcher.requested()); got != fetchedOnce+1 {
		t.Errorf("total fetches = %d, want %d", got, fetchedOnce+1)
	}
}

func TestSeekableStreamHandlesShortDecodedSegments(t *testing.T) {
	// Estimates overstate the decoded sizes, as yEnc estimates do. The
	// stream must reconcile offsets through the store and still emit
	// the requested number of bytes.
	content := []byte("abcdefghijklmnopqrstuvwxyz")
	fetcher := &fakeFetcher{bodies: map[string][]byte{
		"a@test": content[0:10],
		"b@test": content[10:20],
		"c@test": content[20:26],
	}}
	file := &nzb.File{Filename: "x.mkv", Size: 30}
	for i, id := range []string{"a@test", "b@test", "c@test"} {
		file.Segments = append(file.Segments, nzb.Segment{MessageID: id, Number: i + 1, EstimatedBytes: 10})
	}

	st := store.NewSegmentStore([]int64{10, 10, 10})
	cache := store.NewSegmentCacheWith(10, 0)

	rng, err := ParseRangeHeader("bytes=5-20", 30)
	if err != nil {
		t.Fatalf("ParseRangeHeader: %v", err)
	}
	s := NewSeekableStream(file, st, cache, fetcher, *rng, zerolog.Nop())
	s.SetAccessPattern(AccessIdle, 0)

	var buf bytes.Buffer
	if err := s.Run(context.Background(), &buf); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := content[5:21]; !bytes.Equal(buf.Bytes(), want) {
		t.Errorf("got %q, want %q", buf.Bytes(), want)
	}
}

func TestSeekableStreamCancellation(t *testing.T) {
	file, fetcher, _ := fakeFile(t, 1_000_000, 100_000)
	st := store.NewSegmentStore(estimates(file))
	cache := store.NewSegmentCacheWith(50, 0)

	rng, _ := ParseRangeHeader("bytes=0-999999", file.Size)
	s := NewSeekableStream(file, st, cache, fetcher, *rng, zerolog.Nop())
	s.SetAccessPattern(AccessIdle, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Run(ctx, &bytes.Buffer{}); err == nil {
		t.Error("Run ignored a cancelled context")
	}
}
