package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/wolfman30/practice-records/internal/app/bootstrap"
	"github.com/wolfman30/practice-records/internal/backup"
	"github.com/wolfman30/practice-records/internal/records"
)

func newBackupCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export, import and archive the local data",
	}
	cmd.AddCommand(
		newBackupExportCommand(a),
		newBackupImportCommand(a),
		newBackupArchiveCommand(a),
		newBackupRestoreCommand(a),
	)
	return cmd
}

func (a *app) defaultBackupName() string {
	return fmt.Sprintf("practice-backup-%s.json", a.today())
}

func newBackupExportCommand(a *app) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a JSON backup file (use --out - for stdout)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if out == "" {
				out = a.defaultBackupName()
			}
			return a.withWorkspace(cmd, func(ctx context.Context, ws *bootstrap.Workspace) error {
				data, err := ws.Dataset(ctx)
				if err != nil {
					return err
				}
				f := backup.NewFile(data, a.now())
				if out == "-" {
					return backup.Encode(cmd.OutOrStdout(), f)
				}
				if err := writeBackupFile(out, f); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d records, %d patients to %s\n", len(f.Records), len(f.Patients), out)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (default practice-backup-<date>.json)")
	return cmd
}

func writeBackupFile(path string, f backup.File) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create backup: %w", err)
	}
	defer func() {
		if cerr := file.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}()
	return backup.Encode(file, f)
}

func readBackupFile(path string, stdin io.Reader) (backup.File, error) {
	if path == "-" {
		return backup.Decode(stdin)
	}
	file, err := os.Open(path)
	if err != nil {
		return backup.File{}, fmt.Errorf("open backup: %w", err)
	}
	defer file.Close()
	return backup.Decode(file)
}

func printImport(w io.Writer, replace bool, data records.Dataset, res records.MergeResult) {
	if replace {
		fmt.Fprintf(w, "Restored %d records, %d patients\n", len(data.Records), len(data.Patients))
		return
	}
	fmt.Fprintf(w, "Merged: %d records, %d patients added\n", res.RecordsAdded, res.PatientsAdded)
}

func newBackupImportCommand(a *app) *cobra.Command {
	var replace bool
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Merge a JSON backup into the local data (--replace to overwrite)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := readBackupFile(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			return a.withWorkspace(cmd, func(ctx context.Context, ws *bootstrap.Workspace) error {
				data := f.Dataset()
				res, err := ws.Import(ctx, data, replace)
				if err != nil {
					return err
				}
				printImport(cmd.OutOrStdout(), replace, data, res)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&replace, "replace", false, "replace all local data instead of merging")
	return cmd
}

func newBackupArchiveCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "archive",
		Short: "Upload a backup of the local data to the archive bucket",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			archive, err := a.requireArchive(cmd.Context())
			if err != nil {
				return err
			}
			return a.withWorkspace(cmd, func(ctx context.Context, ws *bootstrap.Workspace) error {
				data, err := ws.Dataset(ctx)
				if err != nil {
					return err
				}
				key, err := archive.Put(ctx, backup.NewFile(data, a.now()))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Archived %d records to %s\n", len(data.Records), key)
				return nil
			})
		},
	}
}

func newBackupRestoreCommand(a *app) *cobra.Command {
	var merge bool
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Replace the local data with the newest archived backup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			archive, err := a.requireArchive(cmd.Context())
			if err != nil {
				return err
			}
			return a.withWorkspace(cmd, func(ctx context.Context, ws *bootstrap.Workspace) error {
				f, key, err := archive.Latest(ctx)
				if err != nil {
					return err
				}
				data := f.Dataset()
				res, err := ws.Import(ctx, data, !merge)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Using %s\n", key)
				printImport(cmd.OutOrStdout(), !merge, data, res)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&merge, "merge", false, "merge into the local data instead of replacing it")
	return cmd
}

func (a *app) requireArchive(ctx context.Context) (*backup.Archive, error) {
	archive, err := a.openArchive(ctx)
	if err != nil {
		return nil, err
	}
	if !archive.Enabled() {
		return nil, fmt.Errorf("%w: set BACKUP_BUCKET", backup.ErrNoArchive)
	}
	return archive, nil
}
