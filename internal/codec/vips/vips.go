// Package vips implements codec.Codec on libvips through bimg.
package vips

import (
	"context"
	"fmt"

	"github.com/h2non/bimg"

	"mediaforge/internal/codec"
	"mediaforge/internal/joberror"
	"mediaforge/internal/models"
)

type Codec struct{}

func New() *Codec {
	return &Codec{}
}

func bimgType(f codec.Format) (bimg.ImageType, bool) {
	switch f {
	case codec.FormatJPEG:
		return bimg.JPEG, true
	case codec.FormatPNG:
		return bimg.PNG, true
	case codec.FormatWEBP:
		return bimg.WEBP, true
	case codec.FormatTIFF:
		return bimg.TIFF, true
	case codec.FormatGIF:
		return bimg.GIF, true
	case codec.FormatAVIF:
		return bimg.AVIF, true
	default:
		return 0, false
	}
}

func (c *Codec) Encode(ctx context.Context, inputPath, outputPath string, opts codec.EncodeOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	imgType, ok := bimgType(opts.Format)
	if !ok {
		return joberror.New(models.KindUnsupportedFormat, "encode", fmt.Sprintf("no codec for %s", opts.Format))
	}
	if !bimg.IsTypeSupportedSave(imgType) {
		return joberror.New(models.KindToolMissing, "encode",
			fmt.Sprintf("libvips %s was built without %s save support", bimg.VipsVersion, opts.Format.CodecName()))
	}

	buf, err := bimg.Read(inputPath)
	if err != nil {
		return joberror.IO("read image", err)
	}

	out, err := bimg.NewImage(buf).Process(bimg.Options{
		Type:          imgType,
		Quality:       opts.Quality,
		StripMetadata: opts.StripMetadata,
	})
	if err != nil {
		return joberror.Wrap(models.KindToolExecutionFailed, "encode "+opts.Format.CodecName(), err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	if err := bimg.Write(outputPath, out); err != nil {
		return joberror.IO("write image", err)
	}
	return nil
}

func (c *Codec) Metadata(ctx context.Context, path string) (codec.Metadata, error) {
	if err := ctx.Err(); err != nil {
		return codec.Metadata{}, err
	}

	buf, err := bimg.Read(path)
	if err != nil {
		return codec.Metadata{}, joberror.IO("read image", err)
	}
	meta, err := bimg.NewImage(buf).Metadata()
	if err != nil {
		return codec.Metadata{}, joberror.Wrap(models.KindToolExecutionFailed, "read image metadata", err)
	}

	return codec.Metadata{
		Width:  meta.Size.Width,
		Height: meta.Size.Height,
		DPI:    codec.ParseDensity(meta.EXIF.XResolution, meta.EXIF.ResolutionUnit),
	}, nil
}

// Version reports the libvips version bimg was built against.
func Version() string {
	return bimg.VipsVersion
}
