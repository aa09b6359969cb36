package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"mediaforge/internal/codec"
	"mediaforge/internal/dispatcher"
	"mediaforge/internal/models"
	"mediaforge/internal/profile"
)

func newConvertImageCommand(ctx *commandContext) *cobra.Command {
	var target string
	cmd := &cobra.Command{
		Use:   "convert-image <file>...",
		Short: "Convert images to another format",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outDir := ctx.outputDirectory()
			return ctx.runJobs(cmd, perInput(dispatcher.OpConvertImage, args,
				func(jobCtx context.Context, d *dispatcher.Dispatcher, input string) models.JobOutcome {
					return d.ConvertImage(jobCtx, input, target, outDir)
				}))
		},
	}
	cmd.Flags().StringVarP(&target, "to", "t", "", "Target format ("+strings.Join(codec.TargetSpellings(), ", ")+")")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newConvertPDFCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "convert-pdf <file>...",
		Short: "Convert images and documents to PDF",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outDir := ctx.outputDirectory()
			return ctx.runJobs(cmd, perInput(dispatcher.OpConvertPDF, args,
				func(jobCtx context.Context, d *dispatcher.Dispatcher, input string) models.JobOutcome {
					return d.ConvertToPDF(jobCtx, input, outDir)
				}))
		},
	}
}

func newConvertVideoCommand(ctx *commandContext) *cobra.Command {
	var muted bool
	cmd := &cobra.Command{
		Use:   "convert-video <file>...",
		Short: "Re-encode videos to H.264 MP4",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outDir := ctx.outputDirectory()
			return ctx.runJobs(cmd, perInput(dispatcher.OpConvertVideo, args,
				func(jobCtx context.Context, d *dispatcher.Dispatcher, input string) models.JobOutcome {
					return d.ConvertVideo(jobCtx, input, outDir, muted)
				}))
		},
	}
	cmd.Flags().BoolVar(&muted, "muted", false, "Drop the audio track")
	return cmd
}

func newConvertAudioCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "convert-audio <file>...",
		Short: "Extract or convert audio to MP3",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outDir := ctx.outputDirectory()
			return ctx.runJobs(cmd, perInput(dispatcher.OpConvertAudio, args,
				func(jobCtx context.Context, d *dispatcher.Dispatcher, input string) models.JobOutcome {
					return d.ConvertAudio(jobCtx, input, outDir)
				}))
		},
	}
}

func newSlimCommand(ctx *commandContext) *cobra.Command {
	var tier string
	cmd := &cobra.Command{
		Use:   "slim <file>...",
		Short: "Shrink images, videos, audio and PDFs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outDir := ctx.outputDirectory()
			t := profile.ParseTier(tier)
			return ctx.runJobs(cmd, perInput(dispatcher.OpSlim, args,
				func(jobCtx context.Context, d *dispatcher.Dispatcher, input string) models.JobOutcome {
					return d.Slim(jobCtx, input, t, outDir)
				}))
		},
	}
	cmd.Flags().StringVarP(&tier, "tier", "p", string(models.TierBalanced), "Compression tier (light, balanced, extreme)")
	return cmd
}

func newUpscaleCommand(ctx *commandContext) *cobra.Command {
	var variant string
	cmd := &cobra.Command{
		Use:   "upscale <image>...",
		Short: "Upscale images 4x with Real-ESRGAN",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outDir := ctx.outputDirectory()
			v := models.ParseVariant(variant)
			return ctx.runJobs(cmd, perInput(dispatcher.OpUpscale, args,
				func(jobCtx context.Context, d *dispatcher.Dispatcher, input string) models.JobOutcome {
					return d.Upscale(jobCtx, input, outDir, v)
				}))
		},
	}
	cmd.Flags().StringVar(&variant, "variant", string(models.VariantPhoto), "Model variant (photo, anime)")
	return cmd
}

func newZipCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "zip <path>...",
		Short: "Pack files and folders into one ZIP archive",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outDir := ctx.outputDirectory()
			return ctx.runJobs(cmd, []batchJob{{
				Op:    dispatcher.OpCompress,
				Input: strings.Join(args, ", "),
				Run: func(jobCtx context.Context, d *dispatcher.Dispatcher) models.JobOutcome {
					return d.ArchiveCompress(jobCtx, args, outDir)
				},
			}})
		},
	}
}

func newUnzipCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "unzip <archive>...",
		Short: "Extract ZIP archives",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			outDir := ctx.outputDirectory()
			return ctx.runJobs(cmd, perInput(dispatcher.OpExtract, args,
				func(jobCtx context.Context, d *dispatcher.Dispatcher, input string) models.JobOutcome {
					return d.ArchiveExtract(jobCtx, input, outDir)
				}))
		},
	}
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run job requests read as JSON from a file or stdin",
		Long: `Run reads one job request object, or an array of them, and dispatches each.

Example:
  echo '{"operation":"slim","inputPath":"clip.mov","profile":"extreme"}' | mediaforge run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if file != "" && file != "-" {
				f, err := os.Open(file)
				if err != nil {
					return fmt.Errorf("open requests: %w", err)
				}
				defer f.Close()
				r = f
			}
			reqs, err := decodeRequests(r)
			if err != nil {
				return err
			}

			jobs := make([]batchJob, 0, len(reqs))
			for _, req := range reqs {
				req := req
				if req.OutputDir == "" {
					req.OutputDir = ctx.outputDirectory()
				}
				op, err := dispatcher.Route(req)
				if err != nil {
					op = string(req.Operation)
				}
				jobs = append(jobs, batchJob{
					Op:    op,
					Input: strings.Join(req.Inputs(), ", "),
					Run: func(jobCtx context.Context, d *dispatcher.Dispatcher) models.JobOutcome {
						return d.Dispatch(jobCtx, req)
					},
				})
			}
			return ctx.runJobs(cmd, jobs)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read requests from this file instead of stdin")
	return cmd
}

func decodeRequests(r io.Reader) ([]models.JobRequest, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read requests: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("no job request given")
	}

	var reqs []models.JobRequest
	if data[0] == '[' {
		err = json.Unmarshal(data, &reqs)
	} else {
		var req models.JobRequest
		err = json.Unmarshal(data, &req)
		reqs = append(reqs, req)
	}
	if err != nil {
		return nil, fmt.Errorf("decode job request: %w", err)
	}
	if len(reqs) == 0 {
		return nil, fmt.Errorf("no job request given")
	}
	return reqs, nil
}
