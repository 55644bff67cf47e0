// Package metadata reads and writes the raw EXIF, ICC and XMP blocks that are
// carried from a source image onto its compressed output.
package metadata

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/chai2010/webp"
)

// Blocks holds raw metadata payloads. EXIF is the TIFF structure without the
// "Exif\x00\x00" prefix. A nil field means the source had no such block.
type Blocks struct {
	EXIF []byte
	ICC  []byte
	XMP  []byte
}

// Empty reports whether no block is present.
func (b Blocks) Empty() bool {
	return len(b.EXIF) == 0 && len(b.ICC) == 0 && len(b.XMP) == 0
}

var (
	exifHeader = []byte("Exif\x00\x00")
	xmpHeader  = []byte("http://ns.adobe.com/xap/1.0/\x00")
	iccHeader  = []byte("ICC_PROFILE\x00")
	pngMagic   = []byte("\x89PNG\r\n\x1a\n")
)

// maxICCChunk is the payload room left in one APP2 segment.
const maxICCChunk = 65535 - 2 - 14

// ReadFile extracts metadata blocks from a JPEG, PNG or WEBP file. Other
// formats yield empty Blocks.
func ReadFile(path string) (Blocks, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Blocks{}, err
	}
	return Read(data)
}

// Read extracts metadata blocks from encoded image bytes.
func Read(data []byte) (Blocks, error) {
	switch {
	case len(data) > 2 && data[0] == 0xFF && data[1] == 0xD8:
		return readJPEG(data)
	case bytes.HasPrefix(data, pngMagic):
		return readPNG(data)
	case len(data) > 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return readWEBP(data), nil
	}
	return Blocks{}, nil
}

func readJPEG(data []byte) (Blocks, error) {
	var b Blocks
	var iccParts [][]byte

	pos := 2
	for pos+4 <= len(data) {
		if data[pos] != 0xFF {
			return b, errors.New("jpeg: marker expected")
		}
		marker := data[pos+1]
		if marker == 0xFF {
			pos++
			continue
		}
		if marker == 0xDA || marker == 0xD9 {
			break
		}
		if marker >= 0xD0 && marker <= 0xD7 || marker == 0x01 {
			pos += 2
			continue
		}

		segLen := int(binary.BigEndian.Uint16(data[pos+2 : pos+4]))
		if segLen < 2 || pos+2+segLen > len(data) {
			return b, errors.New("jpeg: truncated segment")
		}
		payload := data[pos+4 : pos+2+segLen]

		switch {
		case marker == 0xE1 && bytes.HasPrefix(payload, exifHeader) && b.EXIF == nil:
			b.EXIF = clone(payload[len(exifHeader):])
		case marker == 0xE1 && bytes.HasPrefix(payload, xmpHeader) && b.XMP == nil:
			b.XMP = clone(payload[len(xmpHeader):])
		case marker == 0xE2 && bytes.HasPrefix(payload, iccHeader) && len(payload) > len(iccHeader)+2:
			// Chunks carry a sequence number and count; they are stored in order.
			iccParts = append(iccParts, payload[len(iccHeader)+2:])
		}
		pos += 2 + segLen
	}

	if len(iccParts) > 0 {
		b.ICC = bytes.Join(iccParts, nil)
	}
	return b, nil
}

func readPNG(data []byte) (Blocks, error) {
	var b Blocks
	pos := len(pngMagic)
	for pos+8 <= len(data) {
		length := int(binary.BigEndian.Uint32(data[pos : pos+4]))
		typ := string(data[pos+4 : pos+8])
		if length < 0 || pos+12+length > len(data) {
			return b, errors.New("png: truncated chunk")
		}
		chunk := data[pos+8 : pos+8+length]

		switch typ {
		case "eXIf":
			b.EXIF = clone(bytes.TrimPrefix(chunk, exifHeader))
		case "iCCP":
			icc, err := inflateICCP(chunk)
			if err != nil {
				return b, err
			}
			b.ICC = icc
		case "iTXt":
			if xmp, ok := parseXMPText(chunk); ok {
				b.XMP = xmp
			}
		case "IEND":
			return b, nil
		}
		pos += 12 + length
	}
	return b, nil
}

// iCCP: name, NUL, compression method, zlib stream.
func inflateICCP(chunk []byte) ([]byte, error) {
	nul := bytes.IndexByte(chunk, 0)
	if nul < 0 || nul+2 > len(chunk) {
		return nil, errors.New("png: malformed iCCP chunk")
	}
	r, err := zlib.NewReader(bytes.NewReader(chunk[nul+2:]))
	if err != nil {
		return nil, fmt.Errorf("png: iCCP: %w", err)
	}
	defer r.Close()
	return io.ReadAll(r)
}

// iTXt: keyword, NUL, compression flag, method, language, NUL, translated, NUL, text.
func parseXMPText(chunk []byte) ([]byte, bool) {
	const keyword = "XML:com.adobe.xmp"
	if !bytes.HasPrefix(chunk, []byte(keyword+"\x00")) {
		return nil, false
	}
	rest := chunk[len(keyword)+1:]
	if len(rest) < 2 || rest[0] != 0 {
		return nil, false
	}
	rest = rest[2:]
	for i := 0; i < 2; i++ {
		nul := bytes.IndexByte(rest, 0)
		if nul < 0 {
			return nil, false
		}
		rest = rest[nul+1:]
	}
	return clone(rest), true
}

func readWEBP(data []byte) Blocks {
	var b Blocks
	if exif, err := webp.GetMetadata(data, "EXIF"); err == nil && len(exif) > 0 {
		b.EXIF = bytes.TrimPrefix(exif, exifHeader)
	}
	if icc, err := webp.GetMetadata(data, "ICCP"); err == nil && len(icc) > 0 {
		b.ICC = icc
	}
	if xmp, err := webp.GetMetadata(data, "XMP"); err == nil && len(xmp) > 0 {
		b.XMP = xmp
	}
	return b
}

// InjectJPEG returns a copy of a JPEG stream with the blocks inserted as APP
// segments right after SOI. Any EXIF, XMP or ICC segments already in the
// stream are dropped so the source metadata wins.
func InjectJPEG(data []byte, b Blocks) ([]byte, error) {
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil, errors.New("jpeg: missing SOI")
	}
	if b.Empty() {
		return data, nil
	}

	var out bytes.Buffer
	out.Grow(len(data) + len(b.EXIF) + len(b.ICC) + len(b.XMP) + 64)
	out.Write(data[:2])

	pos := 2
	// JFIF APP0 stays the first segment.
	if data[2] == 0xFF && data[3] == 0xE0 && len(data) >= 6 {
		segLen := int(binary.BigEndian.Uint16(data[4:6]))
		if 4+segLen <= len(data) {
			out.Write(data[2 : 4+segLen])
			pos = 4 + segLen
		}
	}

	if len(b.EXIF) > 0 {
		if err := writeSegment(&out, 0xE1, exifHeader, b.EXIF); err != nil {
			return nil, err
		}
	}
	if len(b.XMP) > 0 {
		if err := writeSegment(&out, 0xE1, xmpHeader, b.XMP); err != nil {
			return nil, err
		}
	}
	if len(b.ICC) > 0 {
		chunks := (len(b.ICC) + maxICCChunk - 1) / maxICCChunk
		if chunks > 255 {
			return nil, errors.New("jpeg: icc profile too large")
		}
		for i := 0; i < chunks; i++ {
			part := b.ICC[i*maxICCChunk : min((i+1)*maxICCChunk, len(b.ICC))]
			header := append(clone(iccHeader), byte(i+1), byte(chunks))
			if err := writeSegment(&out, 0xE2, header, part); err != nil {
				return nil, err
			}
		}
	}

	for pos+4 <= len(data) {
		marker := data[pos+1]
		if data[pos] != 0xFF || marker == 0xDA {
			break
		}
		segLen := int(binary.BigEndian.Uint16(data[pos+2 : pos+4]))
		if pos+2+segLen > len(data) {
			break
		}
		payload := data[pos+4 : pos+2+segLen]
		drop := (marker == 0xE1 && (bytes.HasPrefix(payload, exifHeader) || bytes.HasPrefix(payload, xmpHeader))) ||
			(marker == 0xE2 && bytes.HasPrefix(payload, iccHeader))
		if !drop {
			out.Write(data[pos : pos+2+segLen])
		}
		pos += 2 + segLen
	}
	out.Write(data[pos:])

	return out.Bytes(), nil
}

// InjectWEBP attaches the blocks to an encoded WEBP stream. The EXIF chunk
// holds the bare TIFF structure.
func InjectWEBP(data []byte, b Blocks) ([]byte, error) {
	var err error
	if len(b.ICC) > 0 {
		if data, err = webp.SetMetadata(data, b.ICC, "ICCP"); err != nil {
			return nil, fmt.Errorf("webp: set ICCP: %w", err)
		}
	}
	if len(b.EXIF) > 0 {
		if data, err = webp.SetMetadata(data, b.EXIF, "EXIF"); err != nil {
			return nil, fmt.Errorf("webp: set EXIF: %w", err)
		}
	}
	if len(b.XMP) > 0 {
		if data, err = webp.SetMetadata(data, b.XMP, "XMP"); err != nil {
			return nil, fmt.Errorf("webp: set XMP: %w", err)
		}
	}
	return data, nil
}

func writeSegment(w *bytes.Buffer, marker byte, header, payload []byte) error {
	size := 2 + len(header) + len(payload)
	if size > 0xFFFF {
		return fmt.Errorf("jpeg: APP%d segment too large (%d bytes)", marker-0xE0, size)
	}
	w.Write([]byte{0xFF, marker, byte(size >> 8), byte(size)})
	w.Write(header)
	w.Write(payload)
	return nil
}

// ExifWithHeader returns the EXIF block prefixed the way JPEG APP1 and
// exif decoders expect it.
func (b Blocks) ExifWithHeader() []byte {
	if len(b.EXIF) == 0 {
		return nil
	}
	return append(clone(exifHeader), b.EXIF...)
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
