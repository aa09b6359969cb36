package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"mediaforge/internal/joberror"
	"mediaforge/internal/models"
)

type probeResult struct {
	Format struct {
		BitRate  string `json:"bit_rate"`
		Duration string `json:"duration"`
	} `json:"format"`
}

// ProbeBitrate returns the container bitrate in bits per second. ok is false
// when ffprobe does not report one.
func ProbeBitrate(ctx context.Context, ffprobe, path string) (bps int64, ok bool, err error) {
	out, err := runCommand(ctx, ffprobe,
		"-v", "error", "-hide_banner",
		"-show_format",
		"-of", "json",
		"--", path,
	)
	if err != nil {
		return 0, false, fmt.Errorf("probe bitrate: %w", err)
	}

	var result probeResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		return 0, false, joberror.Wrap(models.KindToolExecutionFailed, "ffprobe parse", err)
	}

	raw := strings.TrimSpace(result.Format.BitRate)
	if raw == "" || raw == "N/A" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return 0, false, nil
	}
	return int64(v), true, nil
}
