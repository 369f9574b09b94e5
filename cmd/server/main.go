package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"registry-backend/internal/config"
	"registry-backend/internal/database"
	"registry-backend/internal/logging"
)

const programName = "registry-backend"

var envFile string

// app is what every subcommand starts from.
type app struct {
	cfg    *config.Config
	logger *zap.Logger
}

func setup() (*app, error) {
	var files []string
	if envFile != "" {
		files = append(files, envFile)
	}
	cfg, err := config.Load(files...)
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	logger = logger.With(zap.String("component", programName))

	if _, err := maxprocs.Set(maxprocs.Logger(logger.Sugar().Infof)); err != nil {
		logger.Warn("could not set GOMAXPROCS", zap.Error(err))
	}
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}
	return &app{cfg: cfg, logger: logger}, nil
}

func (a *app) openDB() (*gorm.DB, error) {
	db, err := database.Open(a.cfg.DatabaseDriver, a.cfg.DatabaseDSN, a.logger)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db, a.logger); err != nil {
		_ = database.Close(db)
		return nil, err
	}
	return db, nil
}

func main() {
	rootCmd := &cobra.Command{
		Use:          programName,
		Short:        "Township, branch and user registry API",
		SilenceUsage: true,
		RunE:         serveRun,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load before reading the environment (default .env)")
	rootCmd.AddCommand(serveCommand(), migrateCommand(), seedCommand())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
