package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wolfman30/practice-records/internal/app/bootstrap"
	"github.com/wolfman30/practice-records/internal/billing"
	"github.com/wolfman30/practice-records/internal/records"
)

func newSummaryCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Billing summaries and spreadsheet reports",
	}
	cmd.AddCommand(newDailySummaryCommand(a), newRangeSummaryCommand(a))
	return cmd
}

func newDailySummaryCommand(a *app) *cobra.Command {
	var date, hospital, xlsxPath string
	cmd := &cobra.Command{
		Use:   "daily",
		Short: "Summarise one day of visits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if date == "" {
				date = a.today()
			}
			if !records.IsDate(date) {
				return records.ErrInvalidReviewDate
			}
			return a.withWorkspace(cmd, func(ctx context.Context, ws *bootstrap.Workspace) error {
				recs, err := ws.ListRecords(ctx, records.Filter{Date: date, Hospital: hospital})
				if err != nil {
					return err
				}
				s := billing.Daily(recs, date, hospital)
				if xlsxPath != "" {
					data, err := billing.RenderDailyXLSX(s)
					if err != nil {
						return err
					}
					return writeReport(cmd, xlsxPath, data)
				}
				renderDaily(cmd.OutOrStdout(), s)
				return nil
			})
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&date, "date", "", "day to summarise (YYYY-MM-DD, default today)")
	fs.StringVar(&hospital, "hospital", "", "only this hospital")
	fs.StringVar(&xlsxPath, "xlsx", "", "write an Excel report to this path instead of printing")
	return cmd
}

func newRangeSummaryCommand(a *app) *cobra.Command {
	var filter records.Filter
	var xlsxPath string
	cmd := &cobra.Command{
		Use:   "range",
		Short: "Summarise visits between two dates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := filter.Validate(); err != nil {
				return err
			}
			return a.withWorkspace(cmd, func(ctx context.Context, ws *bootstrap.Workspace) error {
				recs, err := ws.ListRecords(ctx, filter)
				if err != nil {
					return err
				}
				r := billing.DateRange(recs, filter)
				if xlsxPath != "" {
					data, err := billing.RenderRangeXLSX(r)
					if err != nil {
						return err
					}
					return writeReport(cmd, xlsxPath, data)
				}
				renderRange(cmd.OutOrStdout(), r)
				return nil
			})
		},
	}
	fs := cmd.Flags()
	fs.StringVar(&filter.From, "from", "", "earliest review date")
	fs.StringVar(&filter.To, "to", "", "latest review date")
	fs.StringVar(&filter.ServiceType, "service", "", "only this service type")
	fs.StringVar(&filter.Hospital, "hospital", "", "only this hospital")
	fs.StringVar(&xlsxPath, "xlsx", "", "write an Excel report to this path instead of printing")
	return cmd
}

func writeReport(cmd *cobra.Command, path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%s)\n", path, formatBytes(int64(len(data))))
	return nil
}
