package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vodarchive/vodarchive/internal/catalog"
	"github.com/vodarchive/vodarchive/internal/db"
	"github.com/vodarchive/vodarchive/internal/format"
	"github.com/vodarchive/vodarchive/internal/logging"
)

func newTitleCmd() *cobra.Command {
	var parts int
	var withDescription bool
	cmd := &cobra.Command{
		Use:   "title <video-id>",
		Short: "Preview the titles a catalogued video would be uploaded with",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			videoID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid video id %q: %w", args[0], err)
			}
			if parts < 1 {
				return fmt.Errorf("--parts must be at least 1")
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logger := logging.NewLogger(cfg.LogLevel())

			database, err := db.New(cfg.DBPath(), logger)
			if err != nil {
				return fmt.Errorf("failed to open database: %w", err)
			}
			defer database.Close()

			svc := catalog.NewService(catalog.NewRepository(database.Conn()), nil, logger)
			rec, err := svc.Record(cmd.Context(), videoID)
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("video %d is not in the catalog", videoID)
			}

			out := cmd.OutOrStdout()
			playlist, err := format.PlaylistTitle(*rec)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "playlist: %s\n", playlist)

			for n := 1; n <= parts; n++ {
				title, err := format.Title(*rec, n, parts)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "part %d:   %s\n", n, title)
				if withDescription {
					fmt.Fprintf(out, "%s\n\n", format.Description(*rec, n, parts, cfg.DescriptionTemplate()))
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&parts, "parts", 1, "number of parts to render titles for")
	cmd.Flags().BoolVar(&withDescription, "description", false, "also render each part's description")
	return cmd
}
