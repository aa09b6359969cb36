// Package codec describes the in-process image codec: the closed set of
// target formats and the operations the dispatcher needs from a codec.
package codec

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"mediaforge/internal/classify"
)

type Format int

const (
	FormatJPEG Format = iota + 1
	FormatPNG
	FormatWEBP
	FormatTIFF
	FormatGIF
	FormatAVIF
)

// spellings maps every user-facing target spelling onto a Format.
var spellings = map[string]Format{
	"jpg":  FormatJPEG,
	"jpeg": FormatJPEG,
	"png":  FormatPNG,
	"webp": FormatWEBP,
	"tif":  FormatTIFF,
	"tiff": FormatTIFF,
	"gif":  FormatGIF,
	"avif": FormatAVIF,
}

// ParseFormat accepts a user spelling, with or without a leading dot.
func ParseFormat(s string) (Format, error) {
	key := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".")
	if f, ok := spellings[key]; ok {
		return f, nil
	}
	return 0, &classify.UnsupportedFormatError{Ext: key, Accepted: TargetSpellings()}
}

// TargetSpellings lists every accepted target spelling, sorted.
func TargetSpellings() []string {
	out := make([]string, 0, len(spellings))
	for s := range spellings {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// CodecName renders the identifier the codec library understands.
func (f Format) CodecName() string {
	switch f {
	case FormatJPEG:
		return "jpeg"
	case FormatPNG:
		return "png"
	case FormatWEBP:
		return "webp"
	case FormatTIFF:
		return "tiff"
	case FormatGIF:
		return "gif"
	case FormatAVIF:
		return "avif"
	default:
		return ""
	}
}

func (f Format) String() string {
	if name := f.CodecName(); name != "" {
		return name
	}
	return fmt.Sprintf("Format(%d)", int(f))
}

type EncodeOptions struct {
	Format        Format
	Quality       int
	StripMetadata bool
}

// Metadata is what the codec reports about a decoded image. DPI is zero when
// the file carries no density.
type Metadata struct {
	Width  int
	Height int
	DPI    float64
}

// Codec re-encodes images and reads their metadata.
type Codec interface {
	Encode(ctx context.Context, inputPath, outputPath string, opts EncodeOptions) error
	Metadata(ctx context.Context, path string) (Metadata, error)
}

const (
	UnitInch       = 2
	UnitCentimeter = 3
)

// ParseDensity turns an EXIF resolution value such as "300/1" or "72" into
// dots per inch. It returns 0 for anything it cannot read.
func ParseDensity(value string, unit int) float64 {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	// Some encoders append a description after the rational.
	if i := strings.IndexByte(value, ' '); i > 0 {
		value = value[:i]
	}

	var dpi float64
	if num, den, ok := strings.Cut(value, "/"); ok {
		n, errN := strconv.ParseFloat(num, 64)
		d, errD := strconv.ParseFloat(den, 64)
		if errN != nil || errD != nil || d == 0 {
			return 0
		}
		dpi = n / d
	} else {
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 0
		}
		dpi = v
	}
	if dpi <= 0 {
		return 0
	}
	if unit == UnitCentimeter {
		dpi *= 2.54
	}
	return dpi
}
