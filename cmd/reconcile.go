/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

*/
package cmd

import (
	"fmt"

	"github.com/mautops/approval-chain/internal/container"
	"github.com/mautops/approval-chain/internal/metrics"
	"github.com/spf13/cobra"
)

// reconcileCmd represents the reconcile command
var reconcileCmd = &cobra.Command{
	Use:   "reconcile <record-id>...",
	Short: "Re-run escalation for approved records",
	Long: `Re-run the escalation step for approved records whose next level
or completion was never written, for example after a crash between the
decision and the escalation. Records that already escalated are left
untouched. This is an operator command and skips the workspace admin
check of the HTTP endpoint. Events created here are delivered by the
running server's relay.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		ctr, err := container.NewContainer(ctx, cfg, log)
		if err != nil {
			return fmt.Errorf("failed to initialize container: %w", err)
		}
		defer ctr.Close()

		failed := 0
		for _, id := range args {
			next, err := ctr.Engine().Reconcile(ctx, id)
			switch {
			case err != nil:
				failed++
				log.WithError(err).WithField("record_id", id).Error("reconcile failed")
			case next != nil:
				metrics.RecordEscalation()
				fmt.Fprintf(cmd.OutOrStdout(), "%s: created level %d record %s\n", id, next.Level, next.ID)
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "%s: nothing to do\n", id)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d records failed to reconcile", failed, len(args))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}
