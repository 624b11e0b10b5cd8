package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/hbomb79/Verto/internal/capability"
	"github.com/hbomb79/Verto/internal/engine"
	"github.com/hbomb79/Verto/internal/event"
	"github.com/hbomb79/Verto/internal/service"
	"github.com/hbomb79/Verto/internal/settings"
	"github.com/hbomb79/Verto/pkg/logger"
	"github.com/spf13/cobra"
)

var log = logger.Get("CLI")

type convertOptions struct {
	image         bool
	raw           bool
	output        string
	overrides     []string
	artwork       bool
	artworkSource string
	extension     string
	skipTrim      bool
	outputDir     string
	name          string
}

func newConvertCommand(ctx *commandContext) *cobra.Command {
	opts := &convertOptions{}
	cmd := &cobra.Command{
		Use:   "convert <input> [inputs...]",
		Short: "Convert media using the saved preferences",
		Long: `Convert the inputs provided using the saved preferences, writing every
output to the output directory. With --raw, FFmpeg writes directly to the
path given by --output (native engine only).`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.raw && opts.output == "" {
				return errors.New("--raw requires --output")
			}

			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if opts.raw && cfg.Engine.Kind == engine.ContainerKind {
				return service.ErrRawPathRequiresNative
			}

			overrides, err := settings.ParseOverrides(opts.overrides)
			if err != nil {
				return err
			}

			inputs := make([]engine.Input, len(args))
			for i, path := range args {
				abs, err := filepath.Abs(path)
				if err != nil {
					return fmt.Errorf("failed to resolve input %s: %w", path, err)
				}
				if _, err := os.Stat(abs); err != nil {
					return fmt.Errorf("input %s is not readable: %w", path, err)
				}

				inputs[i] = engine.Input{Path: abs}
			}

			signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			isImage := opts.image
			if !cmd.Flags().Changed("image") {
				if info, err := engine.Probe(signalCtx, cfg.Engine, inputs[0].Path); err == nil {
					isImage = info.Kind == capability.Image
				} else {
					log.Emit(logger.WARNING, "Unable to probe %s, assuming it is not an image: %v\n", inputs[0].Path, err)
				}
			}

			converter, _, err := ctx.newConverter(event.New())
			if err != nil {
				return err
			}

			request := service.Request{
				Inputs:      inputs,
				IsImage:     isImage,
				Overrides:   overrides,
				ForceNoTrim: opts.skipTrim,
				OutputDir:   opts.outputDir,
			}
			request.Flags.Artwork = opts.artwork
			request.Flags.ArtworkSource = artworkSourceName(opts.artworkSource, inputs)
			request.Flags.Extension = opts.extension
			request.Flags.SuggestedName = opts.name
			if opts.raw {
				output, err := filepath.Abs(opts.output)
				if err != nil {
					return fmt.Errorf("failed to resolve output %s: %w", opts.output, err)
				}
				request.RawOutput = output
			}

			result, err := converter.Convert(signalCtx, request)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, path := range result.Saved {
				fmt.Fprintln(out, path)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.image, "image", false, "Treat the inputs as still images (probed when omitted)")
	flags.BoolVar(&opts.raw, "raw", false, "Let FFmpeg write directly to --output")
	flags.StringVarP(&opts.output, "output", "o", "", "Output path used with --raw")
	flags.StringArrayVar(&opts.overrides, "set", nil, "Override a preference for this conversion (key=value, repeatable)")
	flags.BoolVar(&opts.artwork, "artwork", false, "Re-attach embedded artwork to the output")
	flags.StringVar(&opts.artworkSource, "artwork-source", "", "Name of the input to take artwork from")
	flags.StringVar(&opts.extension, "ext", "", "Override the output extension")
	flags.BoolVar(&opts.skipTrim, "skip-trim", false, "Ignore the trim preferences")
	flags.StringVar(&opts.outputDir, "output-dir", "", "Directory outputs are saved to (defaults to the configured output_dir)")
	flags.StringVar(&opts.name, "name", "", "Name given to the output")

	return cmd
}

// artworkSourceName maps an artwork source given as the path of one of the
// inputs on to the name it is staged under.
func artworkSourceName(source string, inputs []engine.Input) string {
	if source == "" {
		return ""
	}

	abs, err := filepath.Abs(source)
	if err != nil {
		return source
	}
	for _, input := range inputs {
		if input.Path == abs {
			return input.StagedName()
		}
	}

	return source
}
