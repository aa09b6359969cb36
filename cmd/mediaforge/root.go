package main

import (
	"github.com/spf13/cobra"

	"mediaforge/internal/codec"
)

func newRootCommand(imageCodec codec.Codec) *cobra.Command {
	var (
		configFlag string
		outputDir  string
		jsonOutput bool
		jobs       int
	)

	ctx := newCommandContext(&configFlag, &outputDir, &jsonOutput, &jobs, imageCodec)

	rootCmd := &cobra.Command{
		Use:           "mediaforge",
		Short:         "Convert, slim and upscale media files",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig(cmd.ErrOrStderr())
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configFlag, "config", "c", "", "Configuration file path")
	flags.StringVarP(&outputDir, "output-dir", "o", "", "Write results here instead of next to each input")
	flags.BoolVar(&jsonOutput, "json", false, "Print outcomes as JSON")
	flags.IntVarP(&jobs, "jobs", "j", 0, "Maximum concurrent jobs (default worker.concurrency)")

	rootCmd.AddCommand(newConvertImageCommand(ctx))
	rootCmd.AddCommand(newConvertPDFCommand(ctx))
	rootCmd.AddCommand(newConvertVideoCommand(ctx))
	rootCmd.AddCommand(newConvertAudioCommand(ctx))
	rootCmd.AddCommand(newSlimCommand(ctx))
	rootCmd.AddCommand(newUpscaleCommand(ctx))
	rootCmd.AddCommand(newZipCommand(ctx))
	rootCmd.AddCommand(newUnzipCommand(ctx))
	rootCmd.AddCommand(newRunCommand(ctx))
	rootCmd.AddCommand(newDoctorCommand(ctx))
	rootCmd.AddCommand(newHistoryCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}
