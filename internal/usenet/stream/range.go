// Package stream emits byte ranges of usenet files by resolving
// segments on demand through the NNTP manager.
package stream

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	// ErrInvalidRange marks a malformed Range header.
	ErrInvalidRange = errors.New("invalid range")
	// ErrUnsatisfiable marks a syntactically valid range outside the
	// file; callers answer 416.
	ErrUnsatisfiable = errors.New("range not satisfiable")
)

// ByteRange is an inclusive byte range within a file.
type ByteRange struct {
	Start int64
	End   int64
}

// Length returns the number of bytes the range covers.
func (r ByteRange) Length() int64 { return r.End - r.Start + 1 }

// Serialize renders the range back into Range-header form.
func (r ByteRange) Serialize() string {
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

// ContentRange renders the Content-Range response header value.
func (r ByteRange) ContentRange(total int64) string {
	return fmt.Sprintf("bytes %d-%d/%d", r.Start, r.End, total)
}

// UnsatisfiableContentRange is the Content-Range value for a 416.
func UnsatisfiableContentRange(total int64) string {
	return fmt.Sprintf("bytes */%d", total)
}

// ParseRangeHeader parses a single-range header of the forms
// bytes=a-b, bytes=a- and bytes=-N against a known total size.
// A zero suffix (bytes=-0) is rejected.
func ParseRangeHeader(header string, total int64) (*ByteRange, error) {
	spec, ok := strings.CutPrefix(strings.TrimSpace(header), "bytes=")
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRange, header)
	}
	if strings.Contains(spec, ",") {
		return nil, fmt.Errorf("%w: multiple ranges unsupported", ErrInvalidRange)
	}

	startStr, endStr, ok := strings.Cut(spec, "-")
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRange, header)
	}

	if startStr == "" {
		// Suffix form: last N bytes.
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("%w: bad suffix %q", ErrInvalidRange, endStr)
		}
		if n > total {
			n = total
		}
		if total == 0 {
			return nil, ErrUnsatisfiable
		}
		return &ByteRange{Start: total - n, End: total - 1}, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return nil, fmt.Errorf("%w: bad start %q", ErrInvalidRange, startStr)
	}

	end := total - 1
	if endStr != "" {
		end, err = strconv.ParseInt(endStr, 10, 64)
		if err != nil || end < start {
			return nil, fmt.Errorf("%w: bad end %q", ErrInvalidRange, endStr)
		}
		if end > total-1 {
			end = total - 1
		}
	}

	if start > total-1 {
		return nil, ErrUnsatisfiable
	}
	return &ByteRange{Start: start, End: end}, nil
}
