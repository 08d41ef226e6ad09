package stream

import (
	"errors"
	"testing"
)

func TestParseRangeHeader(t *testing.T) {
	const total = 10_000_000

	tests := []struct {
		name    string
		header  string
		want    *ByteRange
		wantErr error
	}{
		{
			name:   "explicit range",
			header: "bytes=1000000-1999999",
			want:   &ByteRange{Start: 1_000_000, End: 1_999_999},
		},
		{
			name:   "single byte",
			header: "bytes=0-0",
			want:   &ByteRange{Start: 0, End: 0},
		},
		{
			name:   "open ended",
			header: "bytes=5000000-",
			want:   &ByteRange{Start: 5_000_000, End: total - 1},
		},
		{
			name:   "suffix",
			header: "bytes=-1000",
			want:   &ByteRange{Start: total - 1000, End: total - 1},
		},
		{
			name:   "suffix larger than file",
			header: "bytes=-99999999",
			want:   &ByteRange{Start: 0, End: total - 1},
		},
		{
			name:   "end clamped to file size",
			header: "bytes=0-99999999",
			want:   &ByteRange{Start: 0, End: total - 1},
		},
		{
			name:    "zero suffix rejected",
			header:  "bytes=-0",
			wantErr: ErrInvalidRange,
		},
		{
			name:    "start past end of file",
			header:  "bytes=10000000-",
			wantErr: ErrUnsatisfiable,
		},
		{
			name:    "start after end",
			header:  "bytes=5-2",
			wantErr: ErrInvalidRange,
		},
		{
			name:    "missing unit",
			header:  "1000-2000",
			wantErr: ErrInvalidRange,
		},
		{
			name:    "multi range unsupported",
			header:  "bytes=0-1,5-9",
			wantErr: ErrInvalidRange,
		},
		{
			name:    "garbage",
			header:  "bytes=abc-def",
			wantErr: ErrInvalidRange,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRangeHeader(tt.header, total)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if *got != *tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestRangeRoundTrip(t *testing.T) {
	const total = 1 << 20

	ranges := []ByteRange{
		{Start: 0, End: 0},
		{Start: 0, End: total - 1},
		{Start: 4096, End: 8191},
		{Start: total - 1, End: total - 1},
	}
	for _, r := range ranges {
		parsed, err := ParseRangeHeader(r.Serialize(), total)
		if err != nil {
			t.Fatalf("round trip of %+v failed: %v", r, err)
		}
		if *parsed != r {
			t.Errorf("round trip changed %+v to %+v", r, *parsed)
		}
	}
}

func TestRangeLengthAndContentRange(t *testing.T) {
	r := ByteRange{Start: 1_000_000, End: 1_999_999}
	if r.Length() != 1_000_000 {
		t.Errorf("expected length 1000000, got %d", r.Length())
	}
	if got := r.ContentRange(10_000_000); got != "bytes 1000000-1999999/10000000" {
		t.Errorf("unexpected content range %q", got)
	}
	if got := UnsatisfiableContentRange(512); got != "bytes */512" {
		t.Errorf("unexpected unsatisfiable content range %q", got)
	}
}
