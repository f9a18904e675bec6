// delivery-reconciler runs the overdue delivery reconciliation once, for use from cron or a
// Cloud Scheduler job, and can apply the schema.
//
// Usage (from backend directory):
//
//	DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/delivery-reconciler run
//	go run ./cmd/delivery-reconciler run --report out.xlsx
//	go run ./cmd/delivery-reconciler migrate
//	go run ./cmd/delivery-reconciler trigger --topic delivery-reconciliation
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mmdatafocus/purchasing_backend/config"
	"github.com/mmdatafocus/purchasing_backend/internalapi"
	"github.com/mmdatafocus/purchasing_backend/models"
	"github.com/mmdatafocus/purchasing_backend/workflow"
	"github.com/spf13/cobra"
)

type runOptions struct {
	Report            string
	SkipNotifications bool
	NoLock            bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := &cobra.Command{
		Use:           "delivery-reconciler",
		Short:         "Reschedule overdue purchase order deliveries",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newRunCommand(), newMigrateCommand(), newTriggerCommand())

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRunCommand() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one reconciliation pass and print the result as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconciliation(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Report, "report", "", "also write the result as an xlsx workbook at this path")
	cmd.Flags().BoolVar(&opts.SkipNotifications, "skip-notifications", false, "reschedule without sending notifications")
	cmd.Flags().BoolVar(&opts.NoLock, "no-lock", false, "do not take the redis run lock")
	return cmd
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the delivery tables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			config.ConnectDatabaseWithRetry()
			if err := models.MigrateTable(config.GetDB()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

// newTriggerCommand publishes a run request; the push subscription on the topic delivers it to
// the service's /internal/pubsub/delivery-reconciliation endpoint.
func newTriggerCommand() *cobra.Command {
	var topic, requestedBy string
	cmd := &cobra.Command{
		Use:   "trigger",
		Short: "Request a reconciliation run through Pub/Sub",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defer config.ClosePubSub()
			id, err := config.PublishJSON(cmd.Context(), topic, internalapi.ReconciliationTrigger{RequestedBy: requestedBy}, nil)
			if err != nil {
				return fmt.Errorf("publish trigger: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "published %s to %s\n", id, topic)
			return nil
		},
	}
	defaultTopic := os.Getenv("RECONCILIATION_TRIGGER_TOPIC")
	if defaultTopic == "" {
		defaultTopic = "delivery-reconciliation"
	}
	cmd.Flags().StringVar(&topic, "topic", defaultTopic, "Pub/Sub topic with the push subscription")
	cmd.Flags().StringVar(&requestedBy, "requested-by", "cli", "recorded in the run log")
	return cmd
}

func runReconciliation(cmd *cobra.Command, opts *runOptions) error {
	ctx := cmd.Context()
	logger := config.GetLogger()

	settings, err := config.LoadDeliverySettings()
	if err != nil {
		return err
	}

	config.ConnectDatabaseWithRetry()
	db := config.GetDB()
	if db == nil {
		return fmt.Errorf("database not initialized; set DB_* env vars")
	}
	if !opts.NoLock {
		config.ConnectRedisWithRetry(ctx, 3)
		defer config.CloseRedis()
	}
	defer config.ClosePubSub()

	reconciler := workflow.NewReconcilerFromSettings(db, settings, logger)
	if opts.SkipNotifications {
		reconciler.Dispatcher = nil
	}
	if opts.NoLock {
		reconciler.Locker = nil
	}

	result, err := reconciler.Run(ctx)
	if err != nil {
		return fmt.Errorf("reconciliation failed: %w", err)
	}

	if opts.Report != "" {
		if err := workflow.SaveReconciliationReport(result, opts.Report); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
