package processor

import (
	"context"
	"fmt"

	"mediaforge/internal/models"
)

// PDFSlim rewrites a PDF through Ghostscript with the profile preset.
func PDFSlim(ctx context.Context, gs, inputPath, outputPath string, p models.ToolProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := runCommand(ctx, gs, ghostscriptArgs(inputPath, outputPath, p.PDFSetting)...); err != nil {
		return fmt.Errorf("pdf slim (%s): %w", p.PDFSetting, err)
	}
	return nil
}

func ghostscriptArgs(inputPath, outputPath, preset string) []string {
	return []string{
		"-sDEVICE=pdfwrite",
		"-dCompatibilityLevel=1.4",
		fmt.Sprintf("-dPDFSETTINGS=%s", preset),
		"-dNOPAUSE",
		"-dQUIET",
		"-dBATCH",
		fmt.Sprintf("-sOutputFile=%s", outputPath),
		inputPath,
	}
}
