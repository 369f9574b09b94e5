package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"registry-backend/internal/auth"
	"registry-backend/internal/database"
	"registry-backend/internal/server"
)

const shutdownTimeout = 10 * time.Second

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE:  serveRun,
	}
}

func serveRun(cmd *cobra.Command, _ []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer func() { _ = a.logger.Sync() }()

	db, err := a.openDB()
	if err != nil {
		return err
	}
	defer func() {
		if err := database.Close(db); err != nil {
			a.logger.Warn("closing database", zap.Error(err))
		}
	}()

	httpApp := server.New(server.Deps{Config: a.cfg, DB: db, Logger: a.logger})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("listening", zap.String("port", a.cfg.HTTPPort))
		errCh <- httpApp.Listen(":" + a.cfg.HTTPPort)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	a.logger.Info("shutting down")
	if err := httpApp.ShutdownWithTimeout(shutdownTimeout); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Warn("listener stopped", zap.Error(err))
	}
	return nil
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = a.logger.Sync() }()
			db, err := a.openDB()
			if err != nil {
				return err
			}
			return database.Close(db)
		},
	}
}

func seedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the initial township, branch and admin account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = a.logger.Sync() }()
			db, err := a.openDB()
			if err != nil {
				return err
			}
			defer func() { _ = database.Close(db) }()

			password := a.cfg.SeedAdminPassword
			generated := password == ""
			if generated {
				if password, err = auth.RandomPassword(a.cfg.TempPasswordLength); err != nil {
					return err
				}
			}
			if err := database.Seed(cmd.Context(), db, auth.NewHasher(a.cfg.BcryptCost), password, a.logger); err != nil {
				return err
			}
			if generated {
				// Printed for the operator, never logged. Only valid if this run created the admin.
				fmt.Fprintf(cmd.ErrOrStderr(), "admin password for %q: %s (must be changed at first login)\n", database.SeedAdminName, password)
			}
			return nil
		},
	}
}
