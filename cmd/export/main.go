package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"

	"catalogcrawler/internal/config"
	"catalogcrawler/internal/db"
	"catalogcrawler/internal/logger"
	"catalogcrawler/internal/repository"
	"catalogcrawler/internal/sink"
)

func main() {
	if err := newExportCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newExportCmd() *cobra.Command {
	var (
		configPath string
		output     string
		postgres   string
		limit      int
	)
	cmd := &cobra.Command{
		Use:          "export",
		Short:        "Write records stored in Postgres to a JSON feed",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if postgres != "" {
				cfg.DatabaseURL = postgres
			}
			if output != "" {
				cfg.OutputPath = output
			}
			if cfg.DatabaseURL == "" {
				return errors.New("no database: set DATABASE_URL or --postgres")
			}

			log := logger.Must(logger.Config{Level: cfg.LogLevel})
			defer func() { _ = log.Sync() }()

			ctx := cmd.Context()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer pool.Close()

			records, err := (&repository.RecordReader{DB: pool}).List(ctx, limit)
			if err != nil {
				return err
			}
			if err := sink.WriteFeed(cfg.OutputPath, records); err != nil {
				return err
			}
			log.Info("Export finished",
				logger.Int("records", len(records)),
				logger.String("output", cfg.OutputPath),
			)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	cmd.Flags().StringVarP(&output, "output", "o", "", "feed file to write")
	cmd.Flags().StringVar(&postgres, "postgres", "", "Postgres database to read from")
	cmd.Flags().IntVar(&limit, "limit", 0, "export at most this many records (0 means all)")
	return cmd
}
