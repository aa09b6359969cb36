package processor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"

	"mediaforge/internal/joberror"
	"mediaforge/internal/models"
)

const upscaleFactor = "4"

var upscaleModels = map[models.ModelVariant]string{
	models.VariantPhoto: "realesrgan-x4plus",
	models.VariantAnime: "realesrgan-x4plus-anime",
}

// UpscaleModel returns the model name passed to the enhancement tool.
func UpscaleModel(v models.ModelVariant) string {
	if m, ok := upscaleModels[v]; ok {
		return m
	}
	return upscaleModels[models.VariantPhoto]
}

// Upscale runs the super-resolution tool at 4x. The binary must exist before
// anything is spawned.
func Upscale(ctx context.Context, bin, inputPath, outputPath string, variant models.ModelVariant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := requireBinary(bin); err != nil {
		return err
	}

	model := UpscaleModel(variant)
	_, err := runCommand(ctx, bin,
		"-i", inputPath,
		"-o", outputPath,
		"-n", model,
		"-s", upscaleFactor,
	)
	if err != nil {
		return fmt.Errorf("upscale (%s): %w", model, err)
	}
	return nil
}

func requireBinary(bin string) error {
	if strings.ContainsRune(bin, os.PathSeparator) || strings.ContainsRune(bin, '/') {
		info, err := os.Stat(bin)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return joberror.New(models.KindToolMissing, "upscale", fmt.Sprintf("enhancement tool not found at %s", bin))
			}
			return joberror.IO("upscale", err)
		}
		if info.IsDir() {
			return joberror.New(models.KindToolMissing, "upscale", fmt.Sprintf("enhancement tool path %s is a directory", bin))
		}
		return nil
	}
	if _, err := exec.LookPath(bin); err != nil {
		return joberror.New(models.KindToolMissing, "upscale", fmt.Sprintf("enhancement tool %s not found on PATH", bin))
	}
	return nil
}
