package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vodarchive/vodarchive/internal/config"
)

var configPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "vodarchive",
		Short: "Back up livestream archives to a video host",
		Long: `vodarchive watches streamers on the source platform, downloads their
archived broadcasts, splits them into upload-sized parts with ffmpeg and
publishes every part into a per-broadcast playlist.

Without a subcommand it runs the daemon (same as "vodarchive run").`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd, false)
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv(config.EnvConfigFile),
		"path to a YAML config file (env "+config.EnvConfigFile+")")

	root.AddCommand(newRunCmd(), newSplitCmd(), newTitleCmd(), newVersionCmd())
	return root
}

func loadConfig() (*config.FileConfig, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
