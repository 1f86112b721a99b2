package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"storefront/catalog/internal/config"
	"storefront/catalog/internal/container"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the product search index from the catalog",
	Long: `Recreates the search index, queues one task per category and works
the queue until it drains.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd.Context(), func(ctx context.Context, app *container.ReindexContainer) error {
			return app.Run(ctx)
		})
	},
}

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Reset the index and queue a new run without working it",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd.Context(), func(ctx context.Context, app *container.ReindexContainer) error {
			runID, err := app.Service.Enqueue(ctx)
			if err != nil {
				return err
			}
			cmd.Printf("Queued reindex run %s\n", runID)
			return nil
		})
	},
}

var workCmd = &cobra.Command{
	Use:   "work",
	Short: "Work queued tasks, including ones left by an interrupted run",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withContainer(cmd.Context(), func(ctx context.Context, app *container.ReindexContainer) error {
			return app.Service.RunWorkers(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(enqueueCmd, workCmd)
}

func withContainer(ctx context.Context, run func(context.Context, *container.ReindexContainer) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if level, err := log.ParseLevel(cfg.Log.Level); err == nil {
		log.SetLevel(level)
	}

	app, err := container.NewReindex(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	return run(ctx, app)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Fatalf("Reindex failed: %v", err)
	}
}
