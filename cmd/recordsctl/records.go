package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wolfman30/practice-records/internal/app/bootstrap"
	"github.com/wolfman30/practice-records/internal/billing"
	"github.com/wolfman30/practice-records/internal/cloudsync"
	"github.com/wolfman30/practice-records/internal/records"
)

type recordFlags struct {
	name     string
	folder   string
	date     string
	hospital string
	service  string
	details  string
	fee      float64
	notes    string
}

func (f *recordFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.name, "name", "", "patient name")
	fs.StringVar(&f.folder, "folder", "", "patient folder number")
	fs.StringVar(&f.date, "date", "", "review date (YYYY-MM-DD, default today)")
	fs.StringVar(&f.hospital, "hospital", "", "hospital name")
	fs.StringVar(&f.service, "service", "", "service type")
	fs.StringVar(&f.details, "details", "", "service details (defaults to the service type)")
	fs.Float64Var(&f.fee, "fee", 0, "fee charged")
	fs.StringVar(&f.notes, "notes", "", "free-text notes")
}

func (f *recordFlags) input() records.RecordInput {
	return records.RecordInput{
		PatientName:    f.name,
		FolderNumber:   f.folder,
		ReviewDate:     f.date,
		HospitalName:   f.hospital,
		ServiceType:    f.service,
		ServiceDetails: f.details,
		Fee:            records.Amount(f.fee),
		Notes:          f.notes,
	}
}

// overlay copies only the flags the user actually passed onto in.
func (f *recordFlags) overlay(cmd *cobra.Command, in *records.RecordInput) {
	changed := cmd.Flags().Changed
	if changed("name") {
		in.PatientName = f.name
	}
	if changed("folder") {
		in.FolderNumber = f.folder
	}
	if changed("date") {
		in.ReviewDate = f.date
	}
	if changed("hospital") {
		in.HospitalName = f.hospital
	}
	if changed("service") {
		if !changed("details") && in.ServiceDetails == in.ServiceType {
			in.ServiceDetails = f.service
		}
		in.ServiceType = f.service
	}
	if changed("details") {
		in.ServiceDetails = f.details
	}
	if changed("fee") {
		in.Fee = records.Amount(f.fee)
	}
	if changed("notes") {
		in.Notes = f.notes
	}
}

func parseRecordID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid record id %q", raw)
	}
	return id, nil
}

func writeOutcome(cmd *cobra.Command, verb string, res cloudsync.WriteResult) {
	where := "saved locally, will sync when online"
	if res.RemoteSent {
		where = "synced"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s record #%d for %s (%s)\n", verb, res.Record.ID, res.Record.FolderNumber, where)
}

func newAddCommand(a *app) *cobra.Command {
	var f recordFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a patient visit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := f.input()
			if in.ReviewDate == "" {
				in.ReviewDate = a.today()
			}
			return a.withWorkspace(cmd, func(ctx context.Context, ws *bootstrap.Workspace) error {
				res, err := ws.AddRecord(ctx, in)
				if err != nil {
					return err
				}
				writeOutcome(cmd, "Added", res)
				return nil
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newListCommand(a *app) *cobra.Command {
	var filter records.Filter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List records, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withWorkspace(cmd, func(ctx context.Context, ws *bootstrap.Workspace) error {
				recs, err := ws.ListRecords(ctx, filter)
				if err != nil {
					return err
				}
				renderRecords(cmd.OutOrStdout(), recs)
				return nil
			})
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&filter.Date, "date", "", "only this review date")
	fs.StringVar(&filter.From, "from", "", "earliest review date")
	fs.StringVar(&filter.To, "to", "", "latest review date")
	fs.StringVar(&filter.ServiceType, "service", "", "only this service type")
	fs.StringVar(&filter.Hospital, "hospital", "", "only this hospital")
	fs.StringVar(&filter.FolderNumber, "folder", "", "only this folder number")
	return cmd
}

func newShowCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRecord(cmd, args[0], func(ctx context.Context, ws *bootstrap.Workspace, id int64) error {
				rec, err := ws.Record(ctx, id)
				if err != nil {
					return err
				}
				renderRecord(cmd.OutOrStdout(), rec)
				return nil
			})
		},
	}
}

func newEditCommand(a *app) *cobra.Command {
	var f recordFlags
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Change fields of an existing record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRecord(cmd, args[0], func(ctx context.Context, ws *bootstrap.Workspace, id int64) error {
				rec, err := ws.Record(ctx, id)
				if err != nil {
					return err
				}
				in := records.InputFrom(rec)
				f.overlay(cmd, &in)
				res, err := ws.UpdateRecord(ctx, id, in)
				if err != nil {
					return err
				}
				writeOutcome(cmd, "Updated", res)
				return nil
			})
		},
	}
	f.register(cmd)
	return cmd
}

func newDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRecord(cmd, args[0], func(ctx context.Context, ws *bootstrap.Workspace, id int64) error {
				deleted, err := ws.DeleteRecord(ctx, id)
				if err != nil {
					return err
				}
				if deleted {
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted record #%d\n", id)
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "Record #%d was already gone\n", id)
				}
				return nil
			})
		},
	}
}

func newPatientsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "patients",
		Short: "List known patients",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withWorkspace(cmd, func(ctx context.Context, ws *bootstrap.Workspace) error {
				patients, err := ws.Patients(ctx)
				if err != nil {
					return err
				}
				renderPatients(cmd.OutOrStdout(), patients)
				return nil
			})
		},
	}
}

func newHistoryCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "history <folder>",
		Short: "Show every visit of one patient",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withWorkspace(cmd, func(ctx context.Context, ws *bootstrap.Workspace) error {
				data, err := ws.Dataset(ctx)
				if err != nil {
					return err
				}
				renderHistory(cmd.OutOrStdout(), billing.History(data.Records, data.Patients, strings.TrimSpace(args[0])))
				return nil
			})
		},
	}
}
