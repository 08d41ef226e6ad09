// Package nzb parses NZB documents into a streamable file model.
package nzb

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"
)

const rarOnlyMinSize = 10 * 1024 * 1024

// Segment is one article of a file, ordered by Number from 1.
type Segment struct {
	MessageID      string
	Number         int
	EstimatedBytes int64
}

// File is one file within an NZB.
type File struct {
	Poster   string
	PostDate time.Time
	Subject  string
	Filename string
	Groups   []string
	Segments []Segment
	Size     int64
}

// IsRar reports whether the file looks like a RAR volume.
func (f *File) IsRar() bool {
	return isRarName(f.Filename)
}

// IsSample reports whether the file is a sample clip.
func (f *File) IsSample() bool {
	return strings.Contains(strings.ToLower(f.Filename), "sample")
}

// IsMedia reports whether the file has a playable media extension.
func (f *File) IsMedia() bool {
	ext := strings.ToLower(filepath.Ext(f.Filename))
	_, ok := mediaExtensions[ext]
	return ok
}

// ParsedNzb is the complete parse product.
type ParsedNzb struct {
	Hash       string
	Files      []File
	MediaFiles []File
	TotalSize  int64
	Groups     []string
}

// IsRarOnly reports whether every substantial file is a RAR volume:
// at least one file over 10 MB that is not a sample, and all such
// files are RARs. Streaming refuses these NZBs.
func (p *ParsedNzb) IsRarOnly() bool {
	substantial := 0
	for i := range p.Files {
		f := &p.Files[i]
		if f.Size <= rarOnlyMinSize || f.IsSample() {
			continue
		}
		substantial++
		if !f.IsRar() {
			return false
		}
	}
	return substantial > 0
}

var mediaExtensions = map[string]struct{}{
	".mkv": {}, ".mp4": {}, ".avi": {}, ".m4v": {}, ".ts": {},
	".m2ts": {}, ".mts": {}, ".wmv": {}, ".mov": {}, ".mpg": {},
	".mpeg": {}, ".webm": {}, ".flv": {}, ".vob": {}, ".divx": {},
	".iso": {},
}

var (
	rarPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\.rar$`),
		regexp.MustCompile(`(?i)\.r\d{2}$`),
		regexp.MustCompile(`(?i)\.part\d+\.rar$`),
		regexp.MustCompile(`\.\d{3}$`),
	}
	quotedNameRe   = regexp.MustCompile(`"([^"]+)"`)
	yencSubjectRe  = regexp.MustCompile(`yEnc\s+\(\d+/\d+\)\s+(.+?)\s*$`)
	trailingFileRe = regexp.MustCompile(`(\S+\.\w{2,4})\s*$`)
)

func isRarName(name string) bool {
	for _, re := range rarPatterns {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

type xmlNzb struct {
	XMLName xml.Name  `xml:"nzb"`
	Files   []xmlFile `xml:"file"`
}

type xmlFile struct {
	Poster   string       `xml:"poster,attr"`
	Date     int64        `xml:"date,attr"`
	Subject  string       `xml:"subject,attr"`
	Groups   []string     `xml:"groups>group"`
	Segments []xmlSegment `xml:"segments>segment"`
}

type xmlSegment struct {
	Bytes     int64  `xml:"bytes,attr"`
	Number    int    `xml:"number,attr"`
	MessageID string `xml:",chardata"`
}

// Parse reads an NZB document. The hash is the SHA-256 of the raw
// bytes, so identical documents share identity.
func Parse(data []byte) (*ParsedNzb, error) {
	var doc xmlNzb
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("invalid NZB document: %w", err)
	}
	if len(doc.Files) == 0 {
		return nil, fmt.Errorf("NZB document contains no files")
	}

	sum := sha256.Sum256(data)
	parsed := &ParsedNzb{
		Hash:  hex.EncodeToString(sum[:]),
		Files: make([]File, 0, len(doc.Files)),
	}

	groupSet := make(map[string]struct{})
	for _, xf := range doc.Files {
		f := File{
			Poster:   xf.Poster,
			PostDate: time.Unix(xf.Date, 0),
			Subject:  xf.Subject,
			Filename: filenameFromSubject(xf.Subject),
			Groups:   xf.Groups,
		}
		for _, g := range xf.Groups {
			groupSet[g] = struct{}{}
		}

		f.Segments = make([]Segment, 0, len(xf.Segments))
		for _, xs := range xf.Segments {
			f.Segments = append(f.Segments, Segment{
				MessageID:      strings.TrimSpace(xs.MessageID),
				Number:         xs.Number,
				EstimatedBytes: xs.Bytes,
			})
			f.Size += xs.Bytes
		}
		sort.Slice(f.Segments, func(i, j int) bool {
			return f.Segments[i].Number < f.Segments[j].Number
		})

		parsed.Files = append(parsed.Files, f)
		parsed.TotalSize += f.Size
	}

	parsed.Groups = make([]string, 0, len(groupSet))
	for g := range groupSet {
		parsed.Groups = append(parsed.Groups, g)
	}
	sort.Strings(parsed.Groups)

	for _, f := range parsed.Files {
		if !f.IsRar() && f.IsMedia() {
			parsed.MediaFiles = append(parsed.MediaFiles, f)
		}
	}
	// Largest first: the main feature ahead of extras.
	sort.SliceStable(parsed.MediaFiles, func(i, j int) bool {
		return parsed.MediaFiles[i].Size > parsed.MediaFiles[j].Size
	})

	return parsed, nil
}

// filenameFromSubject derives a filename from a usenet subject line:
// quoted span, then the yEnc form, then a trailing name.ext token,
// then the first 100 characters.
func filenameFromSubject(subject string) string {
	if m := quotedNameRe.FindStringSubmatch(subject); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := yencSubjectRe.FindStringSubmatch(subject); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := trailingFileRe.FindStringSubmatch(subject); m != nil {
		return strings.TrimSpace(m[1])
	}
	if len(subject) > 100 {
		return subject[:100]
	}
	return subject
}
