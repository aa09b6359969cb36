// Package outcome turns a finished tool run into a JobOutcome and enforces the
// no-improvement rule for slimming operations.
package outcome

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"mediaforge/internal/joberror"
	"mediaforge/internal/models"
)

type Input struct {
	// Slimming enables the size regression check.
	Slimming   bool
	Err        error
	OutputPath string
	InputSize  *int64
}

// Normalize never fails. A rejected slim artifact is deleted, so a second call
// on the same input reports the missing output.
func Normalize(in Input) models.JobOutcome {
	if in.Err != nil {
		return models.Failed(joberror.KindOf(in.Err), in.Err.Error())
	}

	info, err := os.Stat(in.OutputPath)
	if err != nil {
		return models.Failed(models.KindIOFailure, fmt.Sprintf("tool reported success but output is unavailable: %v", err))
	}

	size := info.Size()
	if !info.IsDir() && size == 0 {
		os.Remove(in.OutputPath)
		return models.Failed(models.KindIOFailure, fmt.Sprintf("tool produced an empty file: %s", in.OutputPath))
	}

	if in.Slimming && in.InputSize != nil && size >= *in.InputSize {
		if err := os.Remove(in.OutputPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return models.Failed(models.KindIOFailure, fmt.Sprintf("remove rejected output: %v", err))
		}
		return NoImprovement(fmt.Sprintf("output would be %d bytes, input is %d bytes", size, *in.InputSize))
	}

	out := in.OutputPath
	o := models.JobOutcome{
		Success:    true,
		OutputPath: &out,
	}
	if in.InputSize != nil {
		inSize := *in.InputSize
		o.InputSizeBytes = &inSize
	}
	if !info.IsDir() {
		o.OutputSizeBytes = &size
	}
	o.CompressionRatioPercent = models.CompressionRatio(o.InputSizeBytes, o.OutputSizeBytes)
	return o
}

// NoImprovement is the outcome for an input already at or below its target,
// whether detected before or after running the tool.
func NoImprovement(detail string) models.JobOutcome {
	return models.Failed(models.KindNoImprovement, detail)
}

// Fail converts any error into a failed outcome.
func Fail(err error) models.JobOutcome {
	return Normalize(Input{Err: err})
}

// InputSize stats path. A missing size is not an error; the ratio is simply
// omitted.
func InputSize(path string) *int64 {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return nil
	}
	size := info.Size()
	return &size
}
