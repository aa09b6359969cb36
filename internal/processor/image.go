package processor

import (
	"context"
	"fmt"

	"mediaforge/internal/codec"
	"mediaforge/internal/models"
)

// ImageConvert re-encodes inputPath into the target format.
func ImageConvert(ctx context.Context, c codec.Codec, inputPath, outputPath string, format codec.Format) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	opts := codec.EncodeOptions{Format: format}
	if format == codec.FormatJPEG {
		opts.Quality = 95
	}

	if err := c.Encode(ctx, inputPath, outputPath, opts); err != nil {
		return fmt.Errorf("image convert to %s: %w", format.CodecName(), err)
	}
	return nil
}

// ImageSlim writes a metadata-free JPEG at the profile quality.
func ImageSlim(ctx context.Context, c codec.Codec, inputPath, outputPath string, p models.ToolProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := c.Encode(ctx, inputPath, outputPath, codec.EncodeOptions{
		Format:        codec.FormatJPEG,
		Quality:       p.Quality,
		StripMetadata: true,
	})
	if err != nil {
		return fmt.Errorf("image slim (q=%d): %w", p.Quality, err)
	}
	return nil
}
