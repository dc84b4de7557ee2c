// Package serve runs the scheduled pipeline and the status API.
package serve

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/spf13/cobra"

	"dzs/taxi-etl/cmd/root"
	"dzs/taxi-etl/internal/api"
	"dzs/taxi-etl/internal/logging"
	"dzs/taxi-etl/internal/scheduler"
)

var runOnStart bool

// Cmd represents the serve command
var Cmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scheduled pipeline and the status API",
	Long: `Run extract and load on the schedule.cron schedule and serve the map
tables and the last run report over HTTP until interrupted.

Example:
  taxi-etl serve --run-now`,
	Run: serveFunc,
}

func init() {
	Cmd.Flags().BoolVar(&runOnStart, "run-now", false, "Run the pipeline once at startup")
}

func serveFunc(cmd *cobra.Command, args []string) {
	appContainer := root.GetContainer()
	if appContainer == nil {
		root.Log.Fatal("Container not initialized")
	}
	cfg := appContainer.GetConfig()
	logger := appContainer.GetLogger()

	ctx, stop := signal.NotifyContext(root.Context(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := scheduler.New(scheduler.Config{
		Cron:      cfg.Schedule.Cron,
		LagMonths: cfg.Extract.LagMonths,
		Timeout:   time.Hour,
	}, appContainer.GetExtractor(), appContainer.GetLoader(), logger)

	if cfg.Schedule.Enabled {
		if err := sched.Start(); err != nil {
			logger.Fatalf("Failed to start scheduler: %v", err)
		}
		defer sched.Stop()
	}
	if runOnStart {
		go func() {
			if _, err := sched.RunOnce(ctx); err != nil {
				logger.WithError(err).Error("Startup run failed")
			}
		}()
	}

	app := api.NewApp(appContainer.GetTableStore(), sched, logger)
	app.Use(fiberlogger.New())

	go func() {
		logger.Info("Status API listening", logging.Field{Key: "address", Value: cfg.Server.Address})
		if err := app.Listen(cfg.Server.Address); err != nil {
			logger.WithError(err).Warn("Status API stopped")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logger.WithError(err).Error("Error during shutdown")
	}
}
