package yenc

import (
	"bytes"
	"errors"
	"fmt"
	"hash/crc32"
	"testing"

	"github.com/rs/zerolog"
)

// encodeBody applies the yEnc transform with the standard escape set,
// wrapping at lineLen encoded bytes.
func encodeBody(data []byte, lineLen int) []byte {
	var out bytes.Buffer
	col := 0
	for _, b := range data {
		c := b + 42
		switch c {
		case 0x00, 0x0a, 0x0d, '=':
			out.WriteByte('=')
			out.WriteByte(c + 64)
			col += 2
		default:
			out.WriteByte(c)
			col++
		}
		if col >= lineLen {
			out.WriteString("\r\n")
			col = 0
		}
	}
	if col > 0 {
		out.WriteString("\r\n")
	}
	return out.Bytes()
}

func article(data []byte, lineLen int) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "=ybegin line=%d size=%d name=test file.bin\r\n", lineLen, len(data))
	b.Write(encodeBody(data, lineLen))
	fmt.Fprintf(&b, "=yend size=%d crc32=%08x\r\n", len(data), crc32.ChecksumIEEE(data))
	return b.Bytes()
}

func testData(n int) []byte {
	data := make([]byte, n)
	for i := range data {
		data[i] = byte(i * 7)
	}
	return data
}

func TestDecodeRoundTrip(t *testing.T) {
	d := NewDecoder(zerolog.Nop())
	// 512 bytes covers every byte value, including the four that
	// must be escaped (0xd6, 0xe0, 0xe3, 0x13 pre-encode).
	data := testData(512)

	decoded, err := d.Decode(article(data, 128))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(decoded.Data, data) {
		t.Fatalf("decoded %d bytes, round trip mismatch", len(decoded.Data))
	}
	if decoded.Header.Name != "test file.bin" {
		t.Errorf("header name = %q, want %q", decoded.Header.Name, "test file.bin")
	}
	if decoded.Header.Size != int64(len(data)) {
		t.Errorf("header size = %d, want %d", decoded.Header.Size, len(data))
	}
	if decoded.Trailer.Size != int64(len(data)) {
		t.Errorf("trailer size = %d, want %d", decoded.Trailer.Size, len(data))
	}
}

func TestDecodeEscapeAcrossLineBreak(t *testing.T) {
	d := NewDecoder(zerolog.Nop())

	// 0x13 encodes to the escaped pair 0x3d 0x7d. The body splits the
	// pair across a line break; the escape state must carry over.
	data := []byte{0x01, 0x13, 0x02}
	var b bytes.Buffer
	fmt.Fprintf(&b, "=ybegin line=2 size=%d name=split.bin\r\n", len(data))
	b.WriteString("+=\r\n")
	b.WriteString("},\r\n")
	fmt.Fprintf(&b, "=yend size=%d crc32=%08x\r\n", len(data), crc32.ChecksumIEEE(data))

	decoded, err := d.Decode(b.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(decoded.Data, data) {
		t.Fatalf("decoded = %x, want %x", decoded.Data, data)
	}
}

func TestDecodeMultipart(t *testing.T) {
	d := NewDecoder(zerolog.Nop())
	data := testData(300)

	var b bytes.Buffer
	fmt.Fprintf(&b, "=ybegin part=2 total=4 line=128 size=1200 name=big.mkv\r\n")
	fmt.Fprintf(&b, "=ypart begin=301 end=600\r\n")
	b.Write(encodeBody(data, 128))
	fmt.Fprintf(&b, "=yend size=%d part=2 pcrc32=%08x\r\n", len(data), crc32.ChecksumIEEE(data))

	decoded, err := d.Decode(b.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(decoded.Data, data) {
		t.Fatal("multipart round trip mismatch")
	}
	if decoded.Header.Part != 2 || decoded.Header.Total != 4 {
		t.Errorf("part/total = %d/%d, want 2/4", decoded.Header.Part, decoded.Header.Total)
	}
	if decoded.Header.PartBegin != 301 || decoded.Header.PartEnd != 600 {
		t.Errorf("part range = %d-%d, want 301-600", decoded.Header.PartBegin, decoded.Header.PartEnd)
	}
	if decoded.Trailer.PCRC == "" {
		t.Error("trailer pcrc32 not parsed")
	}
}

func TestDecodeCRCMismatch(t *testing.T) {
	data := testData(64)
	var b bytes.Buffer
	fmt.Fprintf(&b, "=ybegin line=128 size=%d name=bad.bin\r\n", len(data))
	b.Write(encodeBody(data, 128))
	fmt.Fprintf(&b, "=yend size=%d crc32=deadbeef\r\n", len(data))
	body := b.Bytes()

	lenient := NewDecoder(zerolog.Nop())
	decoded, err := lenient.Decode(body)
	if err != nil {
		t.Fatalf("lenient decoder failed on CRC mismatch: %v", err)
	}
	if !bytes.Equal(decoded.Data, data) {
		t.Error("lenient decode returned wrong data")
	}

	strict := NewDecoder(zerolog.Nop())
	strict.StrictCRC = true
	if _, err := strict.Decode(body); err == nil {
		t.Error("strict decoder accepted CRC mismatch")
	}
}

func TestDecodeMissingHeaderAndTrailer(t *testing.T) {
	d := NewDecoder(zerolog.Nop())

	if _, err := d.Decode([]byte("just some text\r\nno yenc here\r\n")); !errors.Is(err, ErrNoHeader) {
		t.Errorf("got %v, want ErrNoHeader", err)
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "=ybegin line=128 size=10 name=x.bin\r\n")
	b.Write(encodeBody(testData(10), 128))
	if _, err := d.Decode(b.Bytes()); !errors.Is(err, ErrNoTrailer) {
		t.Errorf("got %v, want ErrNoTrailer", err)
	}
}
