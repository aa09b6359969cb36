package processor

import (
	"context"
	"fmt"

	"mediaforge/internal/models"
)

const convertAudioBitrate = "192k"

// AudioConvert extracts or transcodes the audio track into MP3.
func AudioConvert(ctx context.Context, ffmpeg, inputPath, outputPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := runCommand(ctx, ffmpeg, mp3Args(inputPath, outputPath, convertAudioBitrate)...); err != nil {
		return fmt.Errorf("audio convert to mp3: %w", err)
	}
	return nil
}

// AudioSlim re-encodes into MP3 at the profile bitrate.
func AudioSlim(ctx context.Context, ffmpeg, inputPath, outputPath string, p models.ToolProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := runCommand(ctx, ffmpeg, mp3Args(inputPath, outputPath, p.AudioBitrate)...); err != nil {
		return fmt.Errorf("audio slim (%s): %w", p.AudioBitrate, err)
	}
	return nil
}

func mp3Args(inputPath, outputPath, bitrate string) []string {
	return []string{
		"-hide_banner", "-loglevel", "error",
		"-i", inputPath,
		"-vn",
		"-c:a", "libmp3lame",
		"-b:a", bitrate,
		"-f", "mp3",
		"-y", outputPath,
	}
}
