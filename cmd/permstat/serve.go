package main

import (
	"context"
	"net/http"

	"github.com/spf13/cobra"

	"permstat/adapters/postgres"
	"permstat/app"
	"permstat/internal/api"
	"permstat/internal/config"
	"permstat/ports"
)

// serveCmd represents the serve command.
var serveCmd = newServeCmd()

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Start the HTTP API. Configuration comes from the environment (optionally a
.env file): PORT, DATABASE_URL, and the PERMSTAT_* inference defaults.
Without DATABASE_URL the API runs without run storage.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context())
		},
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var repo ports.RunRepository
	if cfg.Database.URL != "" {
		db, err := postgres.Connect(cfg.Database.URL)
		if err != nil {
			return err
		}
		defer db.Close()
		pgRepo := postgres.NewRunRepository(db).(*postgres.RunRepositoryImpl)
		if err := pgRepo.EnsureSchema(ctx); err != nil {
			return err
		}
		repo = pgRepo
		logger.Info("run storage enabled")
	} else {
		logger.Warn("DATABASE_URL not set; runs will not be stored")
	}

	service := app.NewAnalysisService(repo, logger)
	server := api.NewServer(service, repo, logger)

	logger.Info("listening on :%s", cfg.Server.Port)
	return http.ListenAndServe(":"+cfg.Server.Port, server.Handler())
}
