package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wolfman30/practice-records/internal/app/bootstrap"
)

const resetConfirmation = "DELETE"

var errResetNotConfirmed = errors.New(`reset cancelled: pass --confirm DELETE exactly`)

func newStatsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show local storage usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withWorkspace(cmd, func(ctx context.Context, ws *bootstrap.Workspace) error {
				stats, err := ws.Stats(ctx)
				if err != nil {
					return err
				}
				renderStats(cmd.OutOrStdout(), stats)
				return nil
			})
		},
	}
}

func newResyncPatientsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resync-patients",
		Short: "Rebuild the patient list from the records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withWorkspace(cmd, func(ctx context.Context, ws *bootstrap.Workspace) error {
				n, err := ws.SyncPatients(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Patient list rebuilt: %d patients\n", n)
				return nil
			})
		},
	}
}

func newResetCommand(a *app) *cobra.Command {
	var confirm string
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Permanently delete all local records and patients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if confirm != resetConfirmation {
				return errResetNotConfirmed
			}
			return a.withWorkspace(cmd, func(ctx context.Context, ws *bootstrap.Workspace) error {
				if err := ws.Clear(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "All local data deleted")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&confirm, "confirm", "", `type DELETE to confirm`)
	return cmd
}
