package extractor

import (
	"bytes"
	"strings"

	"github.com/barasher/go-exiftool"
	"github.com/rwcarlsen/goexif/exif"
	"github.com/rwcarlsen/goexif/tiff"
)

// exifWalker flattens goexif fields into scalar values keyed by tag name.
type exifWalker struct {
	fields map[string]any
}

func (w *exifWalker) Walk(name exif.FieldName, tag *tiff.Tag) error {
	if tag.Count == 0 {
		return nil
	}

	switch tag.Format() {
	case tiff.StringVal:
		if s, err := tag.StringVal(); err == nil {
			w.fields[string(name)] = strings.TrimRight(strings.TrimSpace(s), "\x00")
		}
	case tiff.IntVal:
		if tag.Count == 1 {
			if v, err := tag.Int64(0); err == nil {
				w.fields[string(name)] = v
			}
		}
	case tiff.RatVal:
		if tag.Count == 1 {
			if num, den, err := tag.Rat2(0); err == nil && den != 0 {
				w.fields[string(name)] = float64(num) / float64(den)
			}
		}
	case tiff.FloatVal:
		if tag.Count == 1 {
			if v, err := tag.Float(0); err == nil {
				w.fields[string(name)] = v
			}
		}
	}
	return nil
}

// decodeEXIF parses a bare TIFF structure or a whole TIFF file into a tag map.
func decodeEXIF(block []byte) (map[string]any, error) {
	x, err := exif.Decode(bytes.NewReader(block))
	if err != nil && (x == nil || exif.IsCriticalError(err)) {
		return nil, err
	}

	w := &exifWalker{fields: make(map[string]any)}
	if err := x.Walk(w); err != nil {
		return nil, err
	}
	return w.fields, nil
}

// Keys exiftool reports about the file itself rather than its EXIF.
var exiftoolFileKeys = map[string]bool{
	"SourceFile":          true,
	"ExifToolVersion":     true,
	"FileName":            true,
	"Directory":           true,
	"FileSize":            true,
	"FileModifyDate":      true,
	"FileAccessDate":      true,
	"FileInodeChangeDate": true,
	"FilePermissions":     true,
	"FileType":            true,
	"FileTypeExtension":   true,
	"MIMEType":            true,
	"ImageWidth":          true,
	"ImageHeight":         true,
	"ImageSize":           true,
	"Megapixels":          true,
}

// extractWithExiftool reads tags through an exiftool process.
func extractWithExiftool(et *exiftool.Exiftool, filePath string) (map[string]any, error) {
	metas := et.ExtractMetadata(filePath)
	if len(metas) == 0 {
		return nil, nil
	}
	if metas[0].Err != nil {
		return nil, metas[0].Err
	}

	fields := make(map[string]any)
	for key, value := range metas[0].Fields {
		if exiftoolFileKeys[key] {
			continue
		}
		switch value.(type) {
		case string, float64, bool:
			fields[key] = value
		}
	}
	return fields, nil
}
