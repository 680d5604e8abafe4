package billing

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/wolfman30/practice-records/internal/records"
)

const (
	recordsSheet   = "Records"
	breakdownSheet = "Breakdown"
)

var recordHeader = []string{
	"Date",
	"Patient Name",
	"Folder Number",
	"Hospital",
	"Service Type",
	"Service Details",
	"Fee",
	"Notes",
}

var recordColumnWidths = []float64{12, 28, 14, 22, 18, 30, 12, 30}

// breakdownTable is a titled block on the breakdown sheet.
type breakdownTable struct {
	title string
	label string
	rows  [][3]any
}

type workbook struct {
	f           *excelize.File
	headerStyle int
	moneyStyle  int
	totalStyle  int
	titleStyle  int
}

func newWorkbook() (*workbook, error) {
	f := excelize.NewFile()
	wb := &workbook{f: f}

	if _, err := f.NewSheet(recordsSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("billing: create sheet: %w", err)
	}
	if _, err := f.NewSheet(breakdownSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("billing: create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return nil, fmt.Errorf("billing: delete default sheet: %w", err)
	}
	// indexes shift once the default sheet is gone
	index, err := f.GetSheetIndex(recordsSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("billing: locate sheet: %w", err)
	}
	f.SetActiveSheet(index)

	border := []excelize.Border{
		{Type: "left", Color: "000000", Style: 1},
		{Type: "top", Color: "000000", Style: 1},
		{Type: "bottom", Color: "000000", Style: 1},
		{Type: "right", Color: "000000", Style: 1},
	}
	moneyFmt := "#,##0.00"
	styles := []struct {
		dst   *int
		style *excelize.Style
	}{
		{&wb.headerStyle, &excelize.Style{
			Font:      &excelize.Font{Bold: true},
			Fill:      excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
			Border:    border,
			Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
		}},
		{&wb.moneyStyle, &excelize.Style{CustomNumFmt: &moneyFmt}},
		{&wb.totalStyle, &excelize.Style{
			Font:         &excelize.Font{Bold: true},
			Border:       []excelize.Border{{Type: "top", Color: "000000", Style: 2}},
			CustomNumFmt: &moneyFmt,
		}},
		{&wb.titleStyle, &excelize.Style{Font: &excelize.Font{Bold: true, Size: 14}}},
	}
	for _, s := range styles {
		id, err := f.NewStyle(s.style)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("billing: create style: %w", err)
		}
		*s.dst = id
	}
	return wb, nil
}

func (wb *workbook) set(sheet string, col, row int, value any, style int) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	if err := wb.f.SetCellValue(sheet, cell, value); err != nil {
		return fmt.Errorf("billing: set cell %s: %w", cell, err)
	}
	if style != 0 {
		if err := wb.f.SetCellStyle(sheet, cell, cell, style); err != nil {
			return fmt.Errorf("billing: style cell %s: %w", cell, err)
		}
	}
	return nil
}

func (wb *workbook) writeRecords(title string, recs []records.Record, total records.Amount) error {
	if err := wb.set(recordsSheet, 1, 1, title, wb.titleStyle); err != nil {
		return err
	}
	for i, h := range recordHeader {
		if err := wb.set(recordsSheet, i+1, 3, h, wb.headerStyle); err != nil {
			return err
		}
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		if err := wb.f.SetColWidth(recordsSheet, col, col, recordColumnWidths[i]); err != nil {
			return fmt.Errorf("billing: set width: %w", err)
		}
	}

	row := 4
	for _, rec := range recs {
		values := []any{
			rec.ReviewDate, rec.PatientName, rec.FolderNumber, rec.HospitalName,
			rec.ServiceType, rec.ServiceDetails, float64(rec.Fee), rec.Notes,
		}
		for i, v := range values {
			style := 0
			if i == 6 {
				style = wb.moneyStyle
			}
			if err := wb.set(recordsSheet, i+1, row, v, style); err != nil {
				return err
			}
		}
		row++
	}

	if err := wb.set(recordsSheet, 1, row, "TOTAL", wb.totalStyle); err != nil {
		return err
	}
	return wb.set(recordsSheet, 7, row, float64(total), wb.totalStyle)
}

func (wb *workbook) writeBreakdown(tables []breakdownTable) error {
	if err := wb.f.SetColWidth(breakdownSheet, "A", "A", 28); err != nil {
		return fmt.Errorf("billing: set width: %w", err)
	}
	row := 1
	for _, t := range tables {
		if err := wb.set(breakdownSheet, 1, row, t.title, wb.titleStyle); err != nil {
			return err
		}
		row++
		for i, h := range []string{t.label, "Count", "Revenue"} {
			if err := wb.set(breakdownSheet, i+1, row, h, wb.headerStyle); err != nil {
				return err
			}
		}
		row++
		for _, r := range t.rows {
			if err := wb.set(breakdownSheet, 1, row, r[0], 0); err != nil {
				return err
			}
			if err := wb.set(breakdownSheet, 2, row, r[1], 0); err != nil {
				return err
			}
			if err := wb.set(breakdownSheet, 3, row, r[2], wb.moneyStyle); err != nil {
				return err
			}
			row++
		}
		row++
	}
	return nil
}

func (wb *workbook) bytes() ([]byte, error) {
	defer wb.f.Close()
	buf, err := wb.f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("billing: write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func serviceRows(totals []ServiceTotal) [][3]any {
	rows := make([][3]any, 0, len(totals))
	for _, t := range totals {
		rows = append(rows, [3]any{t.ServiceType, t.Count, float64(t.Revenue)})
	}
	return rows
}

// RenderDailyXLSX renders a daily summary as a spreadsheet.
func RenderDailyXLSX(s DailySummary) ([]byte, error) {
	wb, err := newWorkbook()
	if err != nil {
		return nil, err
	}
	title := "Daily Summary: " + s.Date
	if s.Hospital != "" {
		title += " (" + s.Hospital + ")"
	}
	if err := wb.writeRecords(title, s.Records, s.TotalRevenue); err != nil {
		wb.f.Close()
		return nil, err
	}
	if err := wb.writeBreakdown([]breakdownTable{
		{title: "By Service", label: "Service Type", rows: serviceRows(s.ByService)},
	}); err != nil {
		wb.f.Close()
		return nil, err
	}
	return wb.bytes()
}

// RenderRangeXLSX renders a date-range report as a spreadsheet.
func RenderRangeXLSX(r RangeReport) ([]byte, error) {
	wb, err := newWorkbook()
	if err != nil {
		return nil, err
	}
	if err := wb.writeRecords(r.Title, r.Records, r.TotalRevenue); err != nil {
		wb.f.Close()
		return nil, err
	}

	hospitals := make([][3]any, 0, len(r.ByHospital))
	for _, h := range r.ByHospital {
		hospitals = append(hospitals, [3]any{h.Hospital, h.Count, float64(h.Revenue)})
	}
	days := make([][3]any, 0, len(r.ByDay))
	for _, d := range r.ByDay {
		days = append(days, [3]any{d.Date, d.Count, float64(d.Revenue)})
	}
	if err := wb.writeBreakdown([]breakdownTable{
		{title: "By Service", label: "Service Type", rows: serviceRows(r.ByService)},
		{title: "By Hospital", label: "Hospital", rows: hospitals},
		{title: "By Day", label: "Date", rows: days},
	}); err != nil {
		wb.f.Close()
		return nil, err
	}
	return wb.bytes()
}
