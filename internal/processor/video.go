package processor

import (
	"context"
	"fmt"

	"mediaforge/internal/models"
)

// VideoConvert transcodes any supported container into an H.264 MP4. Muted
// output drops every audio stream.
func VideoConvert(ctx context.Context, ffmpeg, inputPath, outputPath string, muted bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", inputPath,
	}
	args = append(args, h264Args("fast")...)
	if muted {
		args = append(args, "-an")
	} else {
		args = append(args, aacAudioArgs()...)
	}
	args = append(args, "-movflags", "+faststart", "-f", "mp4")
	args = append(args, "-y", outputPath)

	if _, err := runCommand(ctx, ffmpeg, args...); err != nil {
		return fmt.Errorf("video convert (muted=%v): %w", muted, err)
	}
	return nil
}

// VideoSlim re-encodes at the profile CRF.
func VideoSlim(ctx context.Context, ffmpeg, inputPath, outputPath string, p models.ToolProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	args := []string{
		"-hide_banner", "-loglevel", "error",
		"-i", inputPath,
	}
	args = append(args, h264Args("medium")...)
	args = append(args, "-crf", fmt.Sprintf("%d", p.CRF))
	args = append(args, aacAudioArgs()...)
	args = append(args, "-movflags", "+faststart", "-f", "mp4")
	args = append(args, "-y", outputPath)

	if _, err := runCommand(ctx, ffmpeg, args...); err != nil {
		return fmt.Errorf("video slim (crf=%d): %w", p.CRF, err)
	}
	return nil
}

func h264Args(preset string) []string {
	return []string{
		"-c:v", "libx264",
		"-preset", preset,
		"-pix_fmt", "yuv420p", // max player compatibility
	}
}

func aacAudioArgs() []string {
	return []string{"-c:a", "aac"}
}
