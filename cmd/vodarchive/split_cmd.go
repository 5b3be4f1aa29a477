package main

import (
	"fmt"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/vodarchive/vodarchive/internal/logging"
	"github.com/vodarchive/vodarchive/internal/pipeline"
	"github.com/vodarchive/vodarchive/internal/segment"
)

func newSplitCmd() *cobra.Command {
	var softCap, hardCap time.Duration
	cmd := &cobra.Command{
		Use:   "split <file>",
		Short: "Split one video into upload-sized parts",
		Long: `Split a local video into parts of at most --soft length. A short trailing
part is merged into the one before it when the result stays under --hard.

The source file is removed once the parts exist.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("soft") {
				softCap = cfg.SoftCap()
			}
			if !cmd.Flags().Changed("hard") {
				hardCap = cfg.HardCap()
			}

			logger := logging.NewLogger(cfg.LogLevel())
			ffmpeg, err := pipeline.NewSubprocessFFmpeg(cfg.FFmpegPath(), logger)
			if err != nil {
				return err
			}

			parts, err := segment.New(ffmpeg, logger).Split(cmd.Context(), args[0], softCap, hardCap)
			if err != nil {
				return err
			}
			slices.Sort(parts)
			for _, p := range parts {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&softCap, "soft", 0, "target part length (default from config)")
	cmd.Flags().DurationVar(&hardCap, "hard", 0, "maximum part length after merging the remainder (default from config)")
	return cmd
}
