package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/wolfman30/practice-records/internal/app/bootstrap"
	"github.com/wolfman30/practice-records/internal/cloudsync"
)

var errRemoteNotConfigured = errors.New("remote API not configured (set REMOTE_BASE_URL)")

func printSyncResult(w io.Writer, res cloudsync.Result) {
	fmt.Fprintf(w, "Pending %d, synced %d, failed %d\n", res.Pending, res.Synced, res.Failed)
}

func newSyncCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Push locally-only records to the remote API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withWorkspace(cmd, func(ctx context.Context, ws *bootstrap.Workspace) error {
				if ws.Monitor == nil {
					return errRemoteNotConfigured
				}
				if a.offline {
					ws.Monitor.Check(ctx)
				}
				// The first successful probe already reconciled.
				if res, at, err := ws.Monitor.LastSync(); !at.IsZero() {
					if err != nil {
						return err
					}
					printSyncResult(cmd.OutOrStdout(), res)
					return nil
				}
				res, err := ws.Monitor.SyncNow(ctx)
				if err != nil {
					return err
				}
				printSyncResult(cmd.OutOrStdout(), res)
				return nil
			})
		},
	}
}

func newWatchCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Keep checking connectivity and sync whenever the remote comes back",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			ws, err := a.openWorkspace(ctx)
			if err != nil {
				return err
			}
			defer ws.Close()
			if ws.Monitor == nil {
				return errRemoteNotConfigured
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Watching remote every %s, Ctrl-C to stop\n", a.cfg.ConnectivityCheckInterval)
			ws.Monitor.Run(ctx)
			return nil
		},
	}
}

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report remote connectivity and local data size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withWorkspace(cmd, func(ctx context.Context, ws *bootstrap.Workspace) error {
				out := cmd.OutOrStdout()
				switch {
				case ws.Monitor == nil:
					fmt.Fprintln(out, "Remote: not configured (local only)")
				case a.offline:
					fmt.Fprintln(out, "Remote: not checked")
				default:
					fmt.Fprintf(out, "Remote: %s\n", ws.Monitor.State())
				}
				stats, err := ws.Stats(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Local: %d records, %d patients, %s\n", stats.Records, stats.Patients, formatBytes(stats.Bytes))
				return nil
			})
		},
	}
}
