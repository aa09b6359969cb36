package dispatcher

import (
	"context"
	"fmt"
	"strings"

	"mediaforge/internal/classify"
	"mediaforge/internal/joberror"
	"mediaforge/internal/models"
)

// Route picks the entry point for a request.
func Route(req models.JobRequest) (string, error) {
	switch req.Operation {
	case models.OpConvert:
		return routeConvert(req)
	case models.OpSlim:
		return OpSlim, nil
	case models.OpUpscale:
		return OpUpscale, nil
	case models.OpCompress:
		return OpCompress, nil
	case models.OpExtract:
		return OpExtract, nil
	default:
		return "", joberror.New(models.KindInvalidRequest, "dispatch",
			fmt.Sprintf("unknown operation %q", req.Operation))
	}
}

func routeConvert(req models.JobRequest) (string, error) {
	target := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(req.TargetFormat)), ".")
	switch target {
	case "pdf":
		return OpConvertPDF, nil
	case "mp3":
		return OpConvertAudio, nil
	case "mp4":
		return OpConvertVideo, nil
	}

	category, err := classify.Classify(req.InputPath)
	if err != nil {
		if _, docErr := classify.Document(req.InputPath); docErr == nil {
			return OpConvertPDF, nil
		}
		return "", err
	}
	switch category {
	case models.CategoryImage:
		return OpConvertImage, nil
	case models.CategoryVideo:
		return OpConvertVideo, nil
	case models.CategoryAudio:
		return OpConvertAudio, nil
	default:
		return "", joberror.New(models.KindInvalidRequest, "dispatch",
			fmt.Sprintf("%s files cannot be converted", category))
	}
}

// Dispatch routes req to its entry point.
func (d *Dispatcher) Dispatch(ctx context.Context, req models.JobRequest) models.JobOutcome {
	op, err := Route(req)
	if err != nil {
		return d.reject(ctx, string(req.Operation), req.InputPath, err)
	}

	switch op {
	case OpConvertImage:
		return d.ConvertImage(ctx, req.InputPath, req.TargetFormat, req.OutputDir)
	case OpConvertPDF:
		return d.ConvertToPDF(ctx, req.InputPath, req.OutputDir)
	case OpConvertVideo:
		return d.ConvertVideo(ctx, req.InputPath, req.OutputDir, req.Muted)
	case OpConvertAudio:
		return d.ConvertAudio(ctx, req.InputPath, req.OutputDir)
	case OpSlim:
		return d.Slim(ctx, req.InputPath, req.Tier, req.OutputDir)
	case OpUpscale:
		return d.Upscale(ctx, req.InputPath, req.OutputDir, req.ModelVariant)
	case OpCompress:
		return d.ArchiveCompress(ctx, req.Inputs(), req.OutputDir)
	default:
		return d.ArchiveExtract(ctx, req.InputPath, req.OutputDir)
	}
}
