package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"

	"github.com/cartrita/cartrita/internal/config"
	"github.com/cartrita/cartrita/internal/maintenance"
	pgstore "github.com/cartrita/cartrita/internal/storage/postgres"
)

var maintenanceConfigPath string

var maintenanceCmd = &cobra.Command{
	Use:   "maintenance",
	Short: "Run the maintenance task set once and exit",
	RunE:  runMaintenance,
}

func init() {
	maintenanceCmd.Flags().StringVar(&maintenanceConfigPath, "config",
		config.DefaultConfigPath(), "path to config file")
}

func runMaintenance(_ *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))

	cfg, err := config.Load(goutils.Env("CARTRITA_CONFIG", maintenanceConfigPath))
	if err != nil {
		return err
	}

	db, err := pgstore.Open(pgstore.Config{
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.OpenConns(),
		MaxIdleConns:    cfg.Database.IdleConns(),
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime(),
	}, logger)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	store := pgstore.NewStore(db)
	defer store.Close()

	runner := maintenance.NewRunner(maintenance.NewMetrics(prometheus.NewRegistry()), logger)
	maintenance.RegisterStandardTasks(runner, maintenanceDeps(store))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	results := runner.RunAll(ctx)
	var failed int
	for _, res := range results {
		fmt.Printf("%-40s %-10s %-12s %s\n", res.Task, res.Status, res.Duration.Round(time.Millisecond), res.Message)
		if res.Status == maintenance.StatusFailed {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d maintenance tasks failed", failed, len(results))
	}
	return nil
}
