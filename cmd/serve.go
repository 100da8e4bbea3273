package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the backup scheduler daemon",
	Long: `Run the scheduler daemon: weekly and monthly backup triggers, the daily
retention sweep, and the cloud upload worker pool. Triggers missed while the
process was down are caught up at startup.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	app, err := buildApp()
	if err != nil {
		return err
	}
	defer app.close()

	ctx := context.Background()
	if err := app.store.EnsureSchema(ctx); err != nil {
		return err
	}

	app.uploader.Start()
	if err := app.scheduler.Start(ctx); err != nil {
		return err
	}

	color.Green("crm-backup-service %s running, press Ctrl+C to stop", version)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	app.logger.Info("Shutting down")
	app.scheduler.Stop()
	app.uploader.Wait()
	app.uploader.Close()
	return nil
}
