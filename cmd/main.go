package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yungbote/plansync-backend/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "plansync",
		Short:         "Plan store API with an ordered index pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newServeCommand(), newConsumeCommand(), newReindexCommand())
	return cmd
}

// withApp builds the application, runs fn and always releases it.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	a, err := app.New(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func newServeCommand() *cobra.Command {
	var noConsumer bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the index consumer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return a.Serve(ctx, !noConsumer)
			})
		},
	}
	cmd.Flags().BoolVar(&noConsumer, "no-consumer", false, "serve HTTP only; run `plansync consume` separately")
	return cmd
}

func newConsumeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "consume",
		Short: "Drain plan events into the search index",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return a.Consume(ctx)
			})
		},
	}
}

func newReindexCommand() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild index documents from the plan store",
		Long: `Rebuild index documents from the plan store.

Without --id every stored plan is reindexed; per-plan failures are counted
and the sweep continues. With --id only that plan is rebuilt, and it is
removed from the index when it no longer exists in the store.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				report, err := a.Reindex(ctx, id)
				fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d indexed=%d failed=%d\n", report.Scanned, report.Indexed, report.Failed)
				if err != nil {
					return err
				}
				if report.Failed > 0 {
					return fmt.Errorf("%d plan(s) failed to reindex", report.Failed)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "reindex a single plan by objectId")
	return cmd
}
