package dispatcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mediaforge/internal/classify"
	"mediaforge/internal/codec"
	"mediaforge/internal/joberror"
	"mediaforge/internal/models"
	"mediaforge/internal/naming"
	"mediaforge/internal/outcome"
	"mediaforge/internal/processor"
	"mediaforge/internal/profile"
)

// Operation names, also used as timeout keys.
const (
	OpConvertImage = "convert-image"
	OpConvertPDF   = "convert-pdf"
	OpConvertVideo = "convert-video"
	OpConvertAudio = "convert-audio"
	OpSlim         = "slim"
	OpUpscale      = "upscale"
	OpCompress     = "compress"
	OpExtract      = "extract"
)

func requireInput(inputPath string) error {
	if strings.TrimSpace(inputPath) == "" {
		return joberror.New(models.KindInvalidRequest, "dispatch", "input path is required")
	}
	return nil
}

func (d *Dispatcher) ConvertImage(ctx context.Context, inputPath, targetFormat, outputDir string) models.JobOutcome {
	started := time.Now()
	if err := requireInput(inputPath); err != nil {
		return d.reject(ctx, OpConvertImage, inputPath, err)
	}
	if _, err := classify.Require(inputPath, classify.Extensions(models.CategoryImage)); err != nil {
		return d.reject(ctx, OpConvertImage, inputPath, err)
	}
	target := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(targetFormat)), ".")
	if target == "" {
		return d.reject(ctx, OpConvertImage, inputPath,
			joberror.New(models.KindInvalidRequest, OpConvertImage, "target format is required"))
	}
	format, err := codec.ParseFormat(target)
	if err != nil {
		return d.reject(ctx, OpConvertImage, inputPath, err)
	}

	j := job{
		op:        OpConvertImage,
		input:     inputPath,
		output:    naming.OutputPath(inputPath, outputDir, naming.SuffixConverted, target),
		inputSize: outcome.InputSize(inputPath),
		started:   started,
	}
	return d.produce(ctx, j, func(tmp string) error {
		return processor.ImageConvert(ctx, d.codec, inputPath, tmp, format)
	})
}

func (d *Dispatcher) ConvertToPDF(ctx context.Context, inputPath, outputDir string) models.JobOutcome {
	started := time.Now()
	if err := requireInput(inputPath); err != nil {
		return d.reject(ctx, OpConvertPDF, inputPath, err)
	}
	if _, err := classify.Document(inputPath); err != nil {
		return d.reject(ctx, OpConvertPDF, inputPath, err)
	}

	j := job{
		op:        OpConvertPDF,
		input:     inputPath,
		output:    naming.OutputPath(inputPath, outputDir, naming.SuffixConverted, "pdf"),
		inputSize: outcome.InputSize(inputPath),
		started:   started,
	}
	return d.produce(ctx, j, func(tmp string) error {
		return processor.ToPDF(ctx, d.codec, d.docs, inputPath, tmp)
	})
}

func (d *Dispatcher) ConvertVideo(ctx context.Context, inputPath, outputDir string, muted bool) models.JobOutcome {
	started := time.Now()
	if err := requireInput(inputPath); err != nil {
		return d.reject(ctx, OpConvertVideo, inputPath, err)
	}
	if _, err := classify.VideoSource(inputPath); err != nil {
		return d.reject(ctx, OpConvertVideo, inputPath, err)
	}

	suffix := naming.SuffixConverted
	if muted {
		suffix = naming.SuffixMuted
	}
	j := job{
		op:        OpConvertVideo,
		input:     inputPath,
		output:    naming.OutputPath(inputPath, outputDir, suffix, "mp4"),
		inputSize: outcome.InputSize(inputPath),
		started:   started,
	}
	return d.produce(ctx, j, func(tmp string) error {
		return processor.VideoConvert(ctx, d.tools.FFmpeg, inputPath, tmp, muted)
	})
}

func (d *Dispatcher) ConvertAudio(ctx context.Context, inputPath, outputDir string) models.JobOutcome {
	started := time.Now()
	if err := requireInput(inputPath); err != nil {
		return d.reject(ctx, OpConvertAudio, inputPath, err)
	}
	if _, err := classify.AudioSource(inputPath); err != nil {
		return d.reject(ctx, OpConvertAudio, inputPath, err)
	}

	j := job{
		op:        OpConvertAudio,
		input:     inputPath,
		output:    naming.OutputPath(inputPath, outputDir, naming.SuffixConverted, "mp3"),
		inputSize: outcome.InputSize(inputPath),
		started:   started,
	}
	return d.produce(ctx, j, func(tmp string) error {
		return processor.AudioConvert(ctx, d.tools.FFmpeg, inputPath, tmp)
	})
}

// Slim recompresses an image, video, audio file or PDF. A result that is not
// smaller than the input is deleted and reported as NoImprovement.
func (d *Dispatcher) Slim(ctx context.Context, inputPath string, tier models.Tier, outputDir string) models.JobOutcome {
	started := time.Now()
	if err := requireInput(inputPath); err != nil {
		return d.reject(ctx, OpSlim, inputPath, err)
	}
	category, err := classify.SlimSource(inputPath)
	if err != nil {
		return d.reject(ctx, OpSlim, inputPath, err)
	}
	p := profile.Resolve(category, tier)

	j := job{
		op:        OpSlim,
		input:     inputPath,
		slimming:  true,
		inputSize: outcome.InputSize(inputPath),
		started:   started,
	}

	var run func(tmp string) error
	switch category {
	case models.CategoryImage:
		j.output = naming.OutputPath(inputPath, outputDir, naming.SuffixSlim, "jpg")
		run = func(tmp string) error {
			return processor.ImageSlim(ctx, d.codec, inputPath, tmp, p)
		}
	case models.CategoryVideo:
		if o, skip := d.alreadyOptimal(ctx, j, p); skip {
			return o
		}
		j.output = naming.OutputPath(inputPath, outputDir, naming.SuffixSlim, "mp4")
		run = func(tmp string) error {
			return processor.VideoSlim(ctx, d.tools.FFmpeg, inputPath, tmp, p)
		}
	case models.CategoryAudio:
		if o, skip := d.alreadyOptimal(ctx, j, p); skip {
			return o
		}
		j.output = naming.OutputPath(inputPath, outputDir, naming.SuffixSlim, "mp3")
		run = func(tmp string) error {
			return processor.AudioSlim(ctx, d.tools.FFmpeg, inputPath, tmp, p)
		}
	case models.CategoryPDF:
		j.output = naming.OutputPath(inputPath, outputDir, naming.SuffixSlim, "pdf")
		run = func(tmp string) error {
			return processor.PDFSlim(ctx, d.tools.Ghostscript, inputPath, tmp, p)
		}
	}
	return d.produce(ctx, j, run)
}

// alreadyOptimal probes the source bitrate. A probe failure never blocks the
// encode; the post-run size check still applies.
func (d *Dispatcher) alreadyOptimal(ctx context.Context, j job, p models.ToolProfile) (models.JobOutcome, bool) {
	if !d.precheck || p.BitrateThreshold <= 0 {
		return models.JobOutcome{}, false
	}
	bps, ok, err := processor.ProbeBitrate(ctx, d.tools.FFprobe, j.input)
	if err != nil {
		d.log(ctx).Warn().Err(err).Str("input", j.input).Msg("bitrate probe failed, encoding anyway")
		return models.JobOutcome{}, false
	}
	if !ok || bps > p.BitrateThreshold {
		return models.JobOutcome{}, false
	}
	detail := fmt.Sprintf("source bitrate %d bps is at or below the %s target of %d bps", bps, p.Tier, p.BitrateThreshold)
	return d.report(ctx, j, outcome.NoImprovement(detail), nil), true
}

func (d *Dispatcher) Upscale(ctx context.Context, inputPath, outputDir string, variant models.ModelVariant) models.JobOutcome {
	started := time.Now()
	if err := requireInput(inputPath); err != nil {
		return d.reject(ctx, OpUpscale, inputPath, err)
	}
	if _, err := classify.UpscaleSource(inputPath); err != nil {
		return d.reject(ctx, OpUpscale, inputPath, err)
	}
	variant = models.ParseVariant(string(variant))

	suffix := naming.SuffixHD
	if variant == models.VariantAnime {
		suffix = naming.SuffixHD + "_" + string(models.VariantAnime)
	}
	j := job{
		op:        OpUpscale,
		input:     inputPath,
		output:    naming.OutputPath(inputPath, outputDir, suffix, "png"),
		inputSize: outcome.InputSize(inputPath),
		started:   started,
	}
	return d.produce(ctx, j, func(tmp string) error {
		return processor.Upscale(ctx, d.tools.Upscaler, inputPath, tmp, variant)
	})
}

func (d *Dispatcher) ArchiveCompress(ctx context.Context, inputPaths []string, outputDir string) models.JobOutcome {
	started := time.Now()
	var inputs []string
	for _, p := range inputPaths {
		if strings.TrimSpace(p) != "" {
			inputs = append(inputs, p)
		}
	}
	if len(inputs) == 0 {
		return d.reject(ctx, OpCompress, "",
			joberror.New(models.KindInvalidRequest, OpCompress, "no files to compress"))
	}

	j := job{
		op:        OpCompress,
		input:     strings.Join(inputs, ", "),
		output:    naming.ArchivePath(inputs, outputDir),
		inputSize: totalSize(inputs),
		started:   started,
	}
	return d.produce(ctx, j, func(tmp string) error {
		return processor.ArchiveCompress(ctx, inputs, tmp)
	})
}

// ArchiveExtract unpacks into outputDir, or into a directory named after the
// archive next to it. The outcome's output path is that directory.
func (d *Dispatcher) ArchiveExtract(ctx context.Context, archivePath, outputDir string) models.JobOutcome {
	started := time.Now()
	if err := requireInput(archivePath); err != nil {
		return d.reject(ctx, OpExtract, archivePath, err)
	}
	if _, err := classify.ArchiveSource(archivePath); err != nil {
		return d.reject(ctx, OpExtract, archivePath, err)
	}

	j := job{
		op:        OpExtract,
		input:     archivePath,
		output:    naming.ExtractDir(archivePath, outputDir),
		inputSize: outcome.InputSize(archivePath),
		started:   started,
	}
	err := processor.ArchiveExtract(ctx, archivePath, j.output)
	o := outcome.Normalize(outcome.Input{Err: err, OutputPath: j.output, InputSize: j.inputSize})
	return d.report(ctx, j, o, err)
}

// totalSize sums regular files under every input. It returns nil when any
// input cannot be measured.
func totalSize(inputs []string) *int64 {
	var total int64
	for _, in := range inputs {
		err := filepath.Walk(in, func(_ string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.Mode().IsRegular() {
				total += info.Size()
			}
			return nil
		})
		if err != nil {
			return nil
		}
	}
	return &total
}
