package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/wolfman30/practice-records/cmd/mainconfig"
	"github.com/wolfman30/practice-records/internal/app/bootstrap"
	"github.com/wolfman30/practice-records/internal/backup"
	"github.com/wolfman30/practice-records/internal/cloudsync"
	appconfig "github.com/wolfman30/practice-records/internal/config"
	"github.com/wolfman30/practice-records/internal/records"
	"github.com/wolfman30/practice-records/pkg/logging"
)

// app carries what every subcommand needs. openWorkspace and openArchive are
// swapped in tests.
type app struct {
	cfg     *appconfig.Config
	logger  *logging.Logger
	now     func() time.Time
	verbose bool
	offline bool

	openWorkspace func(ctx context.Context) (*bootstrap.Workspace, error)
	openArchive   func(ctx context.Context) (*backup.Archive, error)
}

func newApp(cfg *appconfig.Config) *app {
	a := &app{cfg: cfg, now: time.Now, logger: logging.Default()}
	a.openWorkspace = func(ctx context.Context) (*bootstrap.Workspace, error) {
		return bootstrap.BuildWorkspace(ctx, a.cfg, nil, a.logger)
	}
	a.openArchive = func(ctx context.Context) (*backup.Archive, error) {
		return mainconfig.BuildArchive(ctx, a.cfg, a.logger)
	}
	return a
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "recordsctl",
		Short: "Manage practice records from the command line.",
		Long: `recordsctl works against the local record store and keeps it in step
with the hosted records API whenever that API is reachable.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := "warn"
			if a.verbose {
				level = "debug"
			}
			a.logger = logging.NewWithOutput(level, cmd.ErrOrStderr())
		},
	}
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "log debug output to stderr")
	root.PersistentFlags().BoolVar(&a.offline, "offline", false, "skip the remote connectivity check")

	root.AddCommand(
		newAddCommand(a),
		newListCommand(a),
		newShowCommand(a),
		newEditCommand(a),
		newDeleteCommand(a),
		newPatientsCommand(a),
		newHistoryCommand(a),
		newSummaryCommand(a),
		newSyncCommand(a),
		newWatchCommand(a),
		newStatusCommand(a),
		newBackupCommand(a),
		newStatsCommand(a),
		newResyncPatientsCommand(a),
		newResetCommand(a),
	)
	return root
}

// withWorkspace opens the stores, probes the remote once so writes can go
// out directly, and closes everything when fn returns.
func (a *app) withWorkspace(cmd *cobra.Command, fn func(ctx context.Context, ws *bootstrap.Workspace) error) error {
	ctx := cmd.Context()
	ws, err := a.openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer ws.Close()

	if ws.Monitor != nil && !a.offline {
		ws.Monitor.Check(ctx)
	}
	return fn(ctx, ws)
}

// withRecord is withWorkspace for commands taking a record id. A sync run by
// the connectivity check swaps local ids for server ids, so the id is pinned
// to its syncId first and resolved again afterwards.
func (a *app) withRecord(cmd *cobra.Command, rawID string, fn func(ctx context.Context, ws *bootstrap.Workspace, id int64) error) error {
	id, err := parseRecordID(rawID)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	ws, err := a.openWorkspace(ctx)
	if err != nil {
		return err
	}
	defer ws.Close()

	var syncID string
	if rec, err := ws.Record(ctx, id); err == nil {
		syncID = rec.SyncID
	}
	if ws.Monitor != nil && !a.offline {
		ws.Monitor.Check(ctx)
	}
	if syncID != "" {
		if id, err = resolveSyncID(ctx, ws, id, syncID); err != nil {
			return err
		}
	}
	return fn(ctx, ws, id)
}

func resolveSyncID(ctx context.Context, ws *bootstrap.Workspace, id int64, syncID string) (int64, error) {
	if _, err := ws.Record(ctx, id); !cloudsync.IsNotFound(err) {
		return id, err
	}
	data, err := ws.Dataset(ctx)
	if err != nil {
		return id, err
	}
	for _, rec := range data.Records {
		if rec.SyncID == syncID {
			return rec.ID, nil
		}
	}
	return id, nil
}

func (a *app) today() string {
	return a.now().Format(records.DateLayout)
}
