// Package yenc decodes single yEnc-encoded article bodies, including
// the multipart =ypart form.
package yenc

import (
	"bytes"
	"errors"
	"fmt"
	"hash/crc32"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

const (
	headerSearchLines  = 10
	trailerSearchLines = 5
)

var (
	ErrNoHeader  = errors.New("no =ybegin header found")
	ErrNoTrailer = errors.New("no =yend trailer found")
)

// Header is the parsed =ybegin line, with the optional =ypart values.
type Header struct {
	Part  int
	Total int
	Line  int
	Size  int64
	Name  string

	// Multipart range from =ypart, 1-based inclusive.
	PartBegin int64
	PartEnd   int64
}

// Trailer is the parsed =yend line.
type Trailer struct {
	Size  int64
	Part  int
	CRC32 string
	PCRC  string
}

// Decoded is the product of one article decode.
type Decoded struct {
	Header  Header
	Trailer Trailer
	Data    []byte
}

// Decoder decodes article bodies. CRC mismatches log a warning rather
// than failing; streaming tolerates minor corruption better than hard
// aborts. Set StrictCRC to fail instead.
type Decoder struct {
	StrictCRC bool
	logger    zerolog.Logger
}

// NewDecoder creates a lenient decoder.
func NewDecoder(logger zerolog.Logger) *Decoder {
	return &Decoder{logger: logger.With().Str("component", "yenc").Logger()}
}

// Decode parses and decodes one article body. The =ybegin line must
// appear within the first 10 lines and =yend within the last 5.
func (d *Decoder) Decode(body []byte) (*Decoded, error) {
	lines := bytes.Split(body, []byte("\n"))

	headerIdx := -1
	for i := 0; i < len(lines) && i < headerSearchLines; i++ {
		if bytes.HasPrefix(bytes.TrimSpace(lines[i]), []byte("=ybegin ")) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, ErrNoHeader
	}

	header := parseHeader(string(lines[headerIdx]))

	dataStart := headerIdx + 1
	if dataStart < len(lines) && bytes.HasPrefix(bytes.TrimSpace(lines[dataStart]), []byte("=ypart ")) {
		parsePart(string(lines[dataStart]), &header)
		dataStart++
	}

	trailerIdx := -1
	for i := len(lines) - 1; i >= 0 && i >= len(lines)-trailerSearchLines; i-- {
		if bytes.HasPrefix(bytes.TrimSpace(lines[i]), []byte("=yend ")) {
			trailerIdx = i
			break
		}
	}
	if trailerIdx < 0 || trailerIdx <= headerIdx {
		return nil, ErrNoTrailer
	}

	trailer := parseTrailer(string(lines[trailerIdx]))

	data := decodeBody(lines[dataStart:trailerIdx])

	if err := d.verifyCRC(header, trailer, data); err != nil {
		return nil, err
	}

	return &Decoded{Header: header, Trailer: trailer, Data: data}, nil
}

// decodeBody applies the yEnc transform: strip CR/LF, subtract 42
// (mod 256), with an extra 64 subtracted after an escape byte.
func decodeBody(lines [][]byte) []byte {
	size := 0
	for _, l := range lines {
		size += len(l)
	}
	out := make([]byte, 0, size)

	escaped := false
	for _, line := range lines {
		for _, b := range line {
			if b == '\r' || b == '\n' {
				continue
			}
			if escaped {
				out = append(out, b-64-42)
				escaped = false
				continue
			}
			if b == '=' {
				escaped = true
				continue
			}
			out = append(out, b-42)
		}
	}
	return out
}

func (d *Decoder) verifyCRC(header Header, trailer Trailer, data []byte) error {
	expected := trailer.PCRC
	if expected == "" {
		expected = trailer.CRC32
	}
	if expected == "" {
		return nil
	}

	want, err := strconv.ParseUint(strings.TrimPrefix(strings.ToLower(expected), "0x"), 16, 32)
	if err != nil {
		return nil
	}
	got := crc32.ChecksumIEEE(data)
	if got == uint32(want) {
		return nil
	}

	if d.StrictCRC {
		return fmt.Errorf("crc mismatch for %q: got %08x want %08x", header.Name, got, uint32(want))
	}
	d.logger.Warn().
		Str("name", header.Name).
		Str("expected", fmt.Sprintf("%08x", uint32(want))).
		Str("actual", fmt.Sprintf("%08x", got)).
		Msg("CRC mismatch, continuing")
	return nil
}

func parseHeader(line string) Header {
	attrs := parseAttrs(line, "=ybegin ")
	h := Header{Name: attrs["name"]}
	h.Part, _ = strconv.Atoi(attrs["part"])
	h.Total, _ = strconv.Atoi(attrs["total"])
	h.Line, _ = strconv.Atoi(attrs["line"])
	h.Size, _ = strconv.ParseInt(attrs["size"], 10, 64)
	return h
}

func parsePart(line string, h *Header) {
	attrs := parseAttrs(line, "=ypart ")
	h.PartBegin, _ = strconv.ParseInt(attrs["begin"], 10, 64)
	h.PartEnd, _ = strconv.ParseInt(attrs["end"], 10, 64)
}

func parseTrailer(line string) Trailer {
	attrs := parseAttrs(line, "=yend ")
	t := Trailer{CRC32: attrs["crc32"], PCRC: attrs["pcrc32"]}
	t.Size, _ = strconv.ParseInt(attrs["size"], 10, 64)
	t.Part, _ = strconv.Atoi(attrs["part"])
	return t
}

// parseAttrs splits "key=value" pairs. The name attribute is special:
// it runs to end of line and may contain spaces.
func parseAttrs(line, prefix string) map[string]string {
	attrs := make(map[string]string)
	rest := strings.TrimPrefix(strings.TrimSpace(line), prefix)

	if idx := strings.Index(rest, "name="); idx >= 0 {
		attrs["name"] = strings.TrimSpace(rest[idx+len("name="):])
		rest = rest[:idx]
	}
	for _, field := range strings.Fields(rest) {
		k, v, ok := strings.Cut(field, "=")
		if ok {
			attrs[k] = v
		}
	}
	return attrs
}
